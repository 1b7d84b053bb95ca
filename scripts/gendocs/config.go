package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/leapstack-labs/finmodel/internal/cli/config"
	intconfig "github.com/leapstack-labs/finmodel/internal/config"
)

// ConfigField represents a configuration field definition.
type ConfigField struct {
	Name        string
	Type        string
	Default     string
	Description string
	Category    string // "cli", "engine", "capabilities"
}

// getConfigSchema returns the configuration schema definition.
// This is based on internal/cli/config/types.go and internal/config/types.go.
func getConfigSchema() []ConfigField {
	return []ConfigField{
		{Name: "state_path", Type: "string", Default: config.DefaultStateFile, Description: "SQLite state database; relative to the project root", Category: "cli"},
		{Name: "user", Type: "string", Default: "$USER", Description: "Acting user ID for ownership and visibility", Category: "cli"},
		{Name: "output", Type: "string", Default: config.DefaultOutput, Description: "Output format: auto, text, markdown, json", Category: "cli"},
		{Name: "log_format", Type: "string", Default: config.DefaultLogFormat, Description: "Log format: text, json", Category: "cli"},
		{Name: "verbose", Type: "bool", Default: "false", Description: "Debug logging", Category: "cli"},

		{Name: "engine.timeout", Type: "duration", Default: intconfig.DefaultTimeout.String(), Description: "Wall-clock limit of one execution", Category: "engine"},
		{Name: "engine.max_steps", Type: "int", Default: strconv.Itoa(intconfig.DefaultMaxSteps), Description: "Interpreter step budget of one execution", Category: "engine"},
		{Name: "engine.max_concurrent", Type: "int", Default: strconv.Itoa(intconfig.DefaultMaxConcurrent), Description: "Executions running at once", Category: "engine"},
		{Name: "engine.max_output_bytes", Type: "int", Default: strconv.Itoa(intconfig.DefaultMaxOutputBytes), Description: "Captured console output cap", Category: "engine"},
		{Name: "engine.max_elements", Type: "int", Default: strconv.Itoa(intconfig.DefaultMaxElements), Description: "Largest sequence a module function may build", Category: "engine"},

		{Name: "capabilities.modules", Type: "[]string", Default: "all", Description: "Modules predeclared for model code", Category: "capabilities"},
		{Name: "capabilities.builtins", Type: "[]string", Default: "all", Description: "Extra builtins exposed to model code", Category: "capabilities"},
	}
}

// generateConfigDocs generates the configuration reference page.
func generateConfigDocs(outDir string) error {
	log.Printf("Generating configuration docs to %s", outDir)

	w := NewMarkdownWriter()

	// Frontmatter
	w.Frontmatter("Configuration", "finmodel configuration reference")
	w.GeneratedMarker()

	w.Header(1, "Configuration")
	w.Paragraph(fmt.Sprintf("finmodel reads %s (or %s) from the project root, the nearest directory at or above the working directory holding one. Environment variables and flags override the file.",
		InlineCode(config.ConfigFileName), InlineCode(config.ConfigFileNameAlt)))

	sections := []struct {
		category, title, intro string
	}{
		{"cli", "General", "Where state lives, who is acting and how output looks:"},
		{"engine", "Execution Limits", "Limits applied to every execution. All must be positive:"},
		{"capabilities", "Capabilities", "Narrow what model code can reach. Unknown names are configuration errors:"},
	}

	fields := getConfigSchema()
	for _, sec := range sections {
		w.Header(2, sec.title)
		w.Paragraph(sec.intro)

		headers := []string{"Field", "Type", "Default", "Description"}
		var rows [][]string
		for _, f := range fields {
			if f.Category != sec.category {
				continue
			}
			rows = append(rows, []string{InlineCode(f.Name), f.Type, InlineCode(f.Default), f.Description})
		}
		w.Table(headers, rows)
	}

	w.Header(2, "Example")
	w.CodeBlock("yaml", `state_path: .finmodel/state.db
user: ${FINMODEL_USER}
output: auto

engine:
  timeout: 10s
  max_steps: 100000000
  max_concurrent: 4

capabilities:
  modules: [math, numeric, finance, dates, frame]`)

	filename := filepath.Join(outDir, "configuration.md")
	if err := os.WriteFile(filename, w.Bytes(), 0600); err != nil {
		return err
	}
	log.Printf("  Generated configuration.md")
	return nil
}
