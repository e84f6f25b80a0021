package plugin

import "fmt"

// VersionIncompatibleError reports a plugin whose version requirement the
// host version does not satisfy.
type VersionIncompatibleError struct {
	Plugin      string
	Requirement string
	HostVersion string
	// Reason is set when the requirement itself could not be parsed.
	Reason string
}

func (e *VersionIncompatibleError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("plugin %s: version requirement %q is invalid: %s", e.Plugin, e.Requirement, e.Reason)
	}
	return fmt.Sprintf("plugin %s requires version %s, host is %s", e.Plugin, e.Requirement, e.HostVersion)
}

// LoadError reports a plugin file that failed to load.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load plugin %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
