// Package codegen provides the built-in code generator: one Starlark
// template per well-known model type, with default parameters.
package codegen

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/leapstack-labs/finmodel/pkg/core"
)

//go:embed templates/*.star
var templates embed.FS

// baseParameters apply to every template.
var baseParameters = map[string]any{
	"start_date": "2023-01-01",
	"periods":    int64(36),
}

var typeParameters = map[string]map[string]any{
	core.ModelTypeRevenue: {
		"initial_customers":            int64(100),
		"monthly_growth_rate":          0.05,
		"average_revenue_per_customer": int64(100),
		"churn_rate":                   0.02,
	},
	core.ModelTypeExpense: {
		"fixed_costs": map[string]any{
			"rent":        int64(5000),
			"salaries":    int64(20000),
			"utilities":   int64(1000),
			"insurance":   int64(1500),
			"other_fixed": int64(2000),
		},
		"variable_costs": map[string]any{
			"marketing":        0.10,
			"sales_commission": 0.05,
			"customer_support": 0.03,
			"other_variable":   0.02,
		},
		"initial_revenue":     int64(50000),
		"revenue_growth_rate": 0.03,
		"inflation_rate":      0.02,
	},
	core.ModelTypeCashFlow: {
		"initial_cash":        int64(100000),
		"monthly_revenue":     int64(50000),
		"revenue_growth_rate": 0.03,
		"collection_delay":    int64(1),
		"monthly_expenses":    int64(40000),
		"expense_growth_rate": 0.02,
		"payment_delay":       int64(0),
	},
	core.ModelTypeCustom: {
		"initial_value": int64(1000),
		"growth_rate":   0.02,
	},
}

// TemplateGenerator implements core.CodeGenerator with embedded templates.
// Unknown model types get the custom template.
type TemplateGenerator struct {
	logger *slog.Logger
}

var _ core.CodeGenerator = (*TemplateGenerator)(nil)

// NewTemplateGenerator creates a generator.
func NewTemplateGenerator(logger *slog.Logger) *TemplateGenerator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TemplateGenerator{logger: logger}
}

// Generate returns the template for req.ModelType. Supplied parameters are
// layered over the type's defaults; the prompt becomes a header comment.
func (g *TemplateGenerator) Generate(ctx context.Context, req core.GenerateRequest) (*core.GeneratedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	modelType := req.ModelType
	if modelType == "" {
		modelType = core.ModelTypeCustom
	}
	name := templateName(modelType)

	body, err := templates.ReadFile("templates/" + name + ".star")
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", name, err)
	}

	g.logger.Debug("generated model from template",
		"model_type", modelType, "template", name, "historical_rows", len(req.HistoricalData))

	return &core.GeneratedModel{
		ModelType:  modelType,
		Code:       header(req.Prompt) + string(body),
		Parameters: DefaultParameters(modelType, req.Parameters),
	}, nil
}

// DefaultParameters returns the defaults for modelType with overrides
// applied on top. Neither input is modified.
func DefaultParameters(modelType string, overrides map[string]any) map[string]any {
	out := core.CloneParameters(baseParameters)
	for k, v := range typeParameters[templateName(modelType)] {
		out[k] = v
	}
	out = core.CloneParameters(out)
	for k, v := range core.CloneParameters(overrides) {
		out[k] = v
	}
	return out
}

// Types lists the model types with a dedicated template.
func Types() []string {
	out := make([]string, 0, len(typeParameters))
	for t := range typeParameters {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func templateName(modelType string) string {
	if _, ok := typeParameters[modelType]; ok {
		return modelType
	}
	return core.ModelTypeCustom
}

func header(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ""
	}
	var b strings.Builder
	for _, line := range strings.Split(prompt, "\n") {
		b.WriteString("# ")
		b.WriteString(strings.TrimRight(line, "\r"))
		b.WriteString("\n")
	}
	return b.String()
}
