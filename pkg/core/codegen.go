package core

import "context"

// GenerateRequest asks a code-generation service for a candidate model.
type GenerateRequest struct {
	ModelType      string
	Prompt         string
	Parameters     map[string]any
	HistoricalData []map[string]any
}

// GeneratedModel is candidate code plus parameters. The code is untrusted
// input like any other code argument.
type GeneratedModel struct {
	ModelType  string         `json:"model_type"`
	Code       string         `json:"code"`
	Parameters map[string]any `json:"parameters"`
}

// CodeGenerator turns a natural-language description into candidate code.
type CodeGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GeneratedModel, error)
}
