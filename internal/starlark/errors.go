package starlark

import "fmt"

// Capability categories reported by CapabilityError.
const (
	CapabilityModule  = "module"
	CapabilityBuiltin = "builtin"
	CapabilityName    = "name"
)

// CapabilityError reports an attempt to reach something outside the
// capability allowlist. It survives the interpreter's error wrapping, so
// callers can detect it with errors.As on the error returned by execution.
type CapabilityError struct {
	Category string
	Name     string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s %q is not in the capability allowlist", e.Category, e.Name)
}
