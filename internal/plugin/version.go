package plugin

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Mode selects how an incompatible plugin is treated.
type Mode string

const (
	// ModeStrict aborts discovery on the first incompatible plugin.
	ModeStrict Mode = "strict"
	// ModeWarn logs and skips incompatible plugins.
	ModeWarn Mode = "warn"
	// ModeIgnore admits every plugin.
	ModeIgnore Mode = "ignore"
)

// ParseMode parses a mode name. The empty string is ModeWarn.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeWarn, nil
	case ModeStrict, ModeWarn, ModeIgnore:
		return m, nil
	default:
		return "", fmt.Errorf("unknown version check mode %q (want strict, warn or ignore)", s)
	}
}

// Versioned is anything that declares a version requirement.
type Versioned interface {
	Name() string
	VersionRequirement() string
}

// VersionChecker gates plugins on the host version.
type VersionChecker struct {
	host   *semver.Version
	mode   Mode
	logger *slog.Logger
}

// NewVersionChecker creates a checker for the given host version.
func NewVersionChecker(hostVersion string, mode Mode, logger *slog.Logger) (*VersionChecker, error) {
	host, err := semver.NewVersion(hostVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid host version %q: %w", hostVersion, err)
	}
	if mode == "" {
		mode = ModeWarn
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VersionChecker{host: host, mode: mode, logger: logger}, nil
}

// Host returns the host version.
func (c *VersionChecker) Host() string { return c.host.String() }

// Mode returns the configured mode.
func (c *VersionChecker) Mode() Mode { return c.mode }

// Compatible reports whether p may run on the host. No requirement means
// compatible; a requirement that does not parse never is.
func (c *VersionChecker) Compatible(p Versioned) bool {
	return c.incompatibility(p) == nil
}

func (c *VersionChecker) incompatibility(p Versioned) *VersionIncompatibleError {
	req := strings.TrimSpace(p.VersionRequirement())
	if req == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(req)
	if err != nil {
		return &VersionIncompatibleError{Plugin: p.Name(), Requirement: req, HostVersion: c.Host(), Reason: err.Error()}
	}
	if !constraint.Check(c.host) {
		return &VersionIncompatibleError{Plugin: p.Name(), Requirement: req, HostVersion: c.Host()}
	}
	return nil
}

// Check applies the mode. It returns true when p should be admitted. In
// strict mode an incompatible plugin is an error; in warn mode it is logged
// and skipped; in ignore mode it is admitted.
func (c *VersionChecker) Check(p Versioned) (bool, error) {
	incompatible := c.incompatibility(p)
	if incompatible == nil {
		return true, nil
	}

	switch c.mode {
	case ModeStrict:
		return false, incompatible
	case ModeIgnore:
		return true, nil
	default:
		c.logger.Warn("skipping incompatible plugin",
			slog.String("plugin", p.Name()),
			slog.String("requirement", incompatible.Requirement),
			slog.String("host_version", incompatible.HostVersion))
		return false, nil
	}
}
