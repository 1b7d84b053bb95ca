// Package core defines the shared language of the finmodel system.
//
// This package contains:
//   - Domain entities (Model, Version, ExecutionResult)
//   - Service interfaces (ModelRepository, CodeGenerator)
//   - Sentinel errors shared across layers
//   - Parameter helpers (clone, canonicalize, merge)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
