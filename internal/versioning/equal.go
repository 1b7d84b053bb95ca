package versioning

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/leapstack-labs/finmodel/pkg/core"
)

// Changed reports whether code or params differ from the model's current
// values, which is exactly when a new version is due.
func Changed(current *core.Model, code string, params map[string]any) bool {
	return current.Code != code || !core.ParametersEqual(current.Parameters, params)
}

// ParametersDiff describes how two parameter mappings differ in their
// canonical form, for logging. It is empty when they are equal.
func ParametersDiff(a, b map[string]any) string {
	ca, err := core.CanonicalParameters(a)
	if err != nil {
		return err.Error()
	}
	cb, err := core.CanonicalParameters(b)
	if err != nil {
		return err.Error()
	}
	return cmp.Diff(ca, cb, cmpopts.EquateEmpty())
}
