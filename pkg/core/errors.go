package core

import "errors"

// Sentinel errors for error classification.
var (
	// ErrNotFound indicates a model or version does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the caller may not access the model.
	ErrForbidden = errors.New("forbidden")

	// ErrContractViolation indicates a malformed call to the execution engine,
	// such as empty code or parameters that cannot be represented.
	ErrContractViolation = errors.New("contract violation")

	// ErrInvalidInput indicates a model field failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration indicates an invalid or incomplete configuration.
	ErrConfiguration = errors.New("configuration error")
)
