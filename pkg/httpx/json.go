package httpx

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxBodyBytes caps decoded request bodies.
const MaxBodyBytes = 1 << 20

// WriteJSON encodes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

// WriteError renders err as {"error": message}. Errors that are not an
// AppError are logged and reported as SystemErrorMessage.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = Internal(err, SystemErrorMessage)
	}
	if appErr.Status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", appErr)
	}
	WriteJSON(w, appErr.Status, map[string]string{"error": appErr.Message})
}

// DecodeJSON reads the request body into v. An empty body decodes as {}.
func DecodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
	if err != nil {
		return BadRequest(err, InvalidBodyMessage)
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return BadRequest(err, InvalidBodyMessage)
	}
	return nil
}
