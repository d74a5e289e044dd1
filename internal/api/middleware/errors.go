package middleware

import (
	"net/http"

	"github.com/kiranshivaraju/greeneye/internal/api/response"
)

// ErrorWriter renders a request rejected by middleware.
type ErrorWriter func(w http.ResponseWriter, status int, code, message string)

// EnvelopeErrors writes {"error": {"code", "message"}}.
func EnvelopeErrors(w http.ResponseWriter, status int, code, message string) {
	response.Error(w, status, code, message, nil)
}

// FlatErrors writes {"error": message}.
func FlatErrors(w http.ResponseWriter, status int, _ string, message string) {
	response.Message(w, status, message)
}
