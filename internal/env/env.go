// Package env provides the namespaced configuration accessor handlers use
// for their on/off toggles and per-plugin settings.
package env

import (
	"strconv"
	"strings"

	kenv "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/tjfontaine/stageline/internal/core/ports"
)

// DefaultPrefix is the environment variable prefix Load reads.
const DefaultPrefix = "STAGELINE_"

// Env is a koanf-backed ports.Env. Keys are "namespace.key"; environment
// variables map by stripping the prefix, lower-casing and turning "__" into
// ".", so STAGELINE_PLUGINS__ORDERS__ENABLED is plugins.orders.enabled.
type Env struct {
	k *koanf.Koanf
}

var _ ports.Env = (*Env)(nil)

// Load reads every environment variable carrying prefix.
func Load(prefix string) (*Env, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	k := koanf.New(".")
	if err := k.Load(kenv.Provider(prefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, prefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	return &Env{k: k}, nil
}

// FromMap builds an Env from dotted keys, mostly for tests.
func FromMap(values map[string]any) *Env {
	k := koanf.New(".")
	for key, v := range values {
		_ = k.Set(strings.ToLower(key), v)
	}
	return &Env{k: k}
}

func path(namespace, key string) string {
	if namespace == "" {
		return strings.ToLower(key)
	}
	return strings.ToLower(namespace + "." + key)
}

// String returns the raw value of namespace.key.
func (e *Env) String(namespace, key string) (string, bool) {
	p := path(namespace, key)
	if !e.k.Exists(p) {
		return "", false
	}
	return e.k.String(p), true
}

// Int returns namespace.key as an int. Unparseable values report false.
func (e *Env) Int(namespace, key string) (int, bool) {
	s, ok := e.String(namespace, key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Bool returns namespace.key as a bool. Unparseable values report false.
func (e *Env) Bool(namespace, key string) (bool, bool) {
	s, ok := e.String(namespace, key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, false
	}
	return b, true
}

// Exists reports whether namespace.key is set.
func (e *Env) Exists(namespace, key string) bool {
	return e.k.Exists(path(namespace, key))
}

// Enabled reads namespace.enabled. Unset or unparseable means enabled.
func (e *Env) Enabled(namespace string) bool {
	b, ok := e.Bool(namespace, "enabled")
	if !ok {
		return true
	}
	return b
}

// Keys returns every key loaded, sorted.
func (e *Env) Keys() []string {
	return e.k.Keys()
}
