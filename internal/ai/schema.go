package ai

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kiranshivaraju/greeneye/pkg/models"
)

// Decode parses raw model output into the typed record for d and validates it.
// Every failure wraps ErrSchemaViolation.
func Decode(d models.Dimension, raw []byte) (models.DimensionResult, error) {
	rec, err := models.NewDimensionResult(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	body := extractObject(raw)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: %s: no JSON object in response", ErrSchemaViolation, d)
	}
	if err := json.Unmarshal(body, rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchemaViolation, d, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchemaViolation, d, err)
	}
	return rec, nil
}

// extractObject trims markdown fences and any prose around the outermost JSON object.
func extractObject(raw []byte) []byte {
	b := bytes.TrimSpace(raw)
	if bytes.HasPrefix(b, []byte("```")) {
		b = bytes.TrimPrefix(b, []byte("```json"))
		b = bytes.TrimPrefix(b, []byte("```"))
		b = bytes.TrimSuffix(bytes.TrimSpace(b), []byte("```"))
		b = bytes.TrimSpace(b)
	}
	start := bytes.IndexByte(b, '{')
	end := bytes.LastIndexByte(b, '}')
	if start < 0 || end < start {
		return nil
	}
	return b[start : end+1]
}
