package ai

import "github.com/kiranshivaraju/greeneye/pkg/models"

// Provider failure classes, re-exported so callers outside pkg/models can match
// them with errors.Is against the ai package.
var (
	ErrTransient        = models.ErrTransient
	ErrInferenceTimeout = models.ErrInferenceTimeout
	ErrSchemaViolation  = models.ErrSchemaViolation
	ErrInvocationDenied = models.ErrInvocationDenied
	ErrRequestRejected  = models.ErrRequestRejected
)
