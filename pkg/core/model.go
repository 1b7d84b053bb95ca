package core

import "time"

// Well-known model type tags. Any other tag is accepted and treated as custom.
const (
	ModelTypeRevenue  = "revenue"
	ModelTypeExpense  = "expense"
	ModelTypeCashFlow = "cash_flow"
	ModelTypeCustom   = "custom"
)

// Model is a named, owned financial computation definition.
//
// Code and Parameters always mirror the latest Version once any update has
// committed; repositories re-derive them from that Version on read.
type Model struct {
	ID          string
	Name        string
	Description string
	ModelType   string
	Code        string
	Parameters  map[string]any
	OwnerID     string
	IsPublic    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CanRead reports whether userID may see the model.
func (m *Model) CanRead(userID string) bool {
	return m.OwnerID == userID || m.IsPublic
}

// CanWrite reports whether userID may modify or delete the model.
func (m *Model) CanWrite(userID string) bool {
	return m.OwnerID == userID
}

// Clone returns a deep copy of the model.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	c := *m
	c.Parameters = CloneParameters(m.Parameters)
	return &c
}

// Version is an immutable snapshot of a model's code and parameters.
// Versions are owned by their model and are never addressed on their own.
type Version struct {
	ID          string
	ModelID     string
	Number      int
	Code        string
	Parameters  map[string]any
	Description string
	CreatedAt   time.Time
}

// ModelUpdate is a partial update. Nil fields are left unchanged.
type ModelUpdate struct {
	Name        *string
	Description *string
	ModelType   *string
	Code        *string
	Parameters  map[string]any
	IsPublic    *bool

	// VersionDescription overrides the generated "Version N of <name>"
	// description when the update produces a new version.
	VersionDescription string
}

// ModelFilter narrows ListModels results.
type ModelFilter struct {
	// ViewerID restricts results to models owned by the viewer or public ones.
	// Empty means no visibility filter.
	ViewerID  string
	ModelType string
	Offset    int
	Limit     int
}
