package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"docqa/internal/rag"
)

func WriteError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": GetCorrelationID(ctx),
	}

	json.NewEncoder(w).Encode(resp)
}

// WriteDomainError renders err by its kind. Provider and internal details are
// logged, never sent to the client.
func WriteDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rag.ErrValidation):
		WriteError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
	case errors.Is(err, rag.ErrNotFound):
		WriteError(ctx, w, "NOT_FOUND", err.Error(), http.StatusNotFound)
	case errors.Is(err, rag.ErrDuplicate), errors.Is(err, rag.ErrConfiguration), errors.Is(err, rag.ErrIndexing):
		WriteError(ctx, w, "CONFLICT", err.Error(), http.StatusConflict)
	case errors.Is(err, rag.ErrProvider):
		slog.ErrorContext(ctx, "provider unavailable", "error", err)
		WriteError(ctx, w, "PROVIDER_UNAVAILABLE", "an upstream provider is unavailable, try again later", http.StatusServiceUnavailable)
	default:
		slog.ErrorContext(ctx, "request failed", "error", err)
		WriteError(ctx, w, "INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
	}
}

// WriteJSON writes {"data": v} with status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"data": v})
}
