package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"docqa/internal/rag"
)

// DecodeOptionalJSON decodes a JSON request body into v. A missing body
// leaves v untouched; a malformed one is a validation error.
func DecodeOptionalJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return rag.NewFieldError("body", err.Error())
	}
	return nil
}
