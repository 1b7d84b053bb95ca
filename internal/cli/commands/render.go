package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/finmodel/internal/cli/output"
	"github.com/leapstack-labs/finmodel/pkg/core"
)

// ErrExecutionFailed is returned after a failed execution has been rendered.
var ErrExecutionFailed = errors.New("execution failed")

// executionJSON is the machine-readable form of one execution.
type executionJSON struct {
	ModelID    string            `json:"model_id,omitempty"`
	Version    int               `json:"version,omitempty"`
	Parameters map[string]any    `json:"parameters"`
	Execution  *core.ExecutionResult `json:"execution"`
}

// renderExecution writes an execution result and returns ErrExecutionFailed
// when the executed code failed.
func renderExecution(r *output.Renderer, out executionJSON) error {
	res := out.Execution
	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(out); err != nil {
			return err
		}
		return executionError(res)
	}

	if res.Console != "" {
		r.Header(2, "Console")
		r.Println(strings.TrimRight(res.Console, "\n"))
		r.Println("")
	}

	if res.Failed() {
		r.Error(fmt.Sprintf("%s: %s", res.Error.Kind, res.Error.Message))
		if res.Error.Trace != "" {
			r.Muted(strings.TrimRight(res.Error.Trace, "\n"))
		}
		return executionError(res)
	}

	r.Header(1, "Result")
	renderValues(r, res.Result)
	r.Muted(fmt.Sprintf("Completed in %s (%d steps)", res.Duration.Round(time.Microsecond), res.Steps))
	return nil
}

func executionError(res *core.ExecutionResult) error {
	if !res.Failed() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrExecutionFailed, res.Error.Kind)
}

// renderValues writes a result mapping: row lists as tables, everything
// else as key/value pairs.
func renderValues(r *output.Renderer, values map[string]any) {
	var scalars [][2]string
	for _, key := range sortedKeys(values) {
		if rows, ok := recordRows(values[key]); ok {
			r.Header(2, key)
			header, cells := recordTable(rows)
			r.Table(header, cells)
			r.Println("")
			continue
		}
		if nested, ok := values[key].(map[string]any); ok {
			r.Header(2, key)
			renderValues(r, nested)
			continue
		}
		scalars = append(scalars, [2]string{key, formatValue(values[key])})
	}
	if len(scalars) > 0 {
		r.KeyValue(scalars)
		r.Println("")
	}
}

// recordRows reports whether v is a non-empty list of mappings.
func recordRows(v any) ([]map[string]any, bool) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, false
	}
	rows := make([]map[string]any, len(list))
	for i, item := range list {
		row, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		rows[i] = row
	}
	return rows, true
}

// recordTable flattens rows into a header and cells. Columns are the union
// of row keys; "date" leads when present.
func recordTable(rows []map[string]any) ([]string, [][]any) {
	seen := map[string]bool{}
	var header []string
	for _, row := range rows {
		for _, k := range sortedKeys(row) {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}
	sort.SliceStable(header, func(i, j int) bool {
		return header[i] == "date" && header[j] != "date"
	})

	cells := make([][]any, len(rows))
	for i, row := range rows {
		cells[i] = make([]any, len(header))
		for j, col := range header {
			cells[i][j] = formatValue(row[col])
		}
	}
	return header, cells
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64, bool:
		return fmt.Sprint(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// modelJSON is the machine-readable form of a model.
type modelJSON struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	ModelType   string         `json:"model_type"`
	OwnerID     string         `json:"owner_id"`
	IsPublic    bool           `json:"is_public"`
	Code        string         `json:"code,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func toModelJSON(m *core.Model, full bool) modelJSON {
	out := modelJSON{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		ModelType:   m.ModelType,
		OwnerID:     m.OwnerID,
		IsPublic:    m.IsPublic,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if full {
		out.Code = m.Code
		out.Parameters = m.Parameters
	}
	return out
}

// versionJSON is the machine-readable form of a version.
type versionJSON struct {
	ModelID     string         `json:"model_id"`
	Number      int            `json:"version_number"`
	Description string         `json:"description"`
	Code        string         `json:"code,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func toVersionJSON(v *core.Version, full bool) versionJSON {
	out := versionJSON{
		ModelID:     v.ModelID,
		Number:      v.Number,
		Description: v.Description,
		CreatedAt:   v.CreatedAt,
	}
	if full {
		out.Code = v.Code
		out.Parameters = v.Parameters
	}
	return out
}

func renderModels(r *output.Renderer, list []*core.Model) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]modelJSON, len(list))
		for i, m := range list {
			out[i] = toModelJSON(m, false)
		}
		return r.JSON(out)
	}

	r.Header(1, fmt.Sprintf("Models (%d)", len(list)))
	rows := make([][]any, len(list))
	for i, m := range list {
		rows[i] = []any{m.ID, m.Name, m.ModelType, m.OwnerID, yesNo(m.IsPublic), formatTime(m.UpdatedAt)}
	}
	r.Table([]string{"ID", "Name", "Type", "Owner", "Public", "Updated"}, rows)
	return nil
}

func renderModel(r *output.Renderer, m *core.Model, version *core.Version) error {
	if r.EffectiveMode() == output.ModeJSON {
		if version != nil {
			return r.JSON(struct {
				Model   modelJSON   `json:"model"`
				Version versionJSON `json:"new_version"`
			}{toModelJSON(m, true), toVersionJSON(version, false)})
		}
		return r.JSON(toModelJSON(m, true))
	}

	r.Header(1, m.Name)
	pairs := [][2]string{
		{"ID", m.ID},
		{"Type", m.ModelType},
		{"Owner", m.OwnerID},
		{"Public", yesNo(m.IsPublic)},
		{"Created", formatTime(m.CreatedAt)},
		{"Updated", formatTime(m.UpdatedAt)},
	}
	if m.Description != "" {
		pairs = append(pairs, [2]string{"Description", m.Description})
	}
	r.KeyValue(pairs)
	if version != nil {
		r.Success(fmt.Sprintf("Created version %d: %s", version.Number, version.Description))
	}
	renderSource(r, m.Parameters, m.Code)
	return nil
}

func renderVersions(r *output.Renderer, list []*core.Version) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]versionJSON, len(list))
		for i, v := range list {
			out[i] = toVersionJSON(v, false)
		}
		return r.JSON(out)
	}

	r.Header(1, fmt.Sprintf("Versions (%d)", len(list)))
	rows := make([][]any, len(list))
	for i, v := range list {
		rows[i] = []any{v.Number, v.Description, formatTime(v.CreatedAt)}
	}
	r.Table([]string{"Version", "Description", "Created"}, rows)
	return nil
}

func renderVersion(r *output.Renderer, v *core.Version) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(toVersionJSON(v, true))
	}

	r.Header(1, fmt.Sprintf("Version %d", v.Number))
	r.KeyValue([][2]string{
		{"Model", v.ModelID},
		{"Description", v.Description},
		{"Created", formatTime(v.CreatedAt)},
	})
	renderSource(r, v.Parameters, v.Code)
	return nil
}

func renderSource(r *output.Renderer, params map[string]any, code string) {
	r.Println("")
	r.Header(2, "Parameters")
	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprint(params))
	}
	r.Println(string(data))
	r.Println("")
	r.Header(2, "Code")
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println("```python")
		r.Println(strings.TrimRight(code, "\n"))
		r.Println("```")
		return
	}
	r.Println(strings.TrimRight(code, "\n"))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
