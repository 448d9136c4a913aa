package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorItem is a single entry of Envelope.Errors.
type ErrorItem struct {
	Message string `json:"message"`
}

// Envelope is the JSON shape of every API response.
type Envelope struct {
	Code   int         `json:"code"`
	Data   any         `json:"data,omitempty"`
	Errors []ErrorItem `json:"errors,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK writes a 200 envelope wrapping data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Envelope{Code: http.StatusOK, Data: data})
}

// Fail writes an error envelope.
func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope{Code: status, Errors: []ErrorItem{{Message: message}}})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	if r.Body == nil {
		return Validation("Request body is required")
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(target); err != nil {
		return Validation("Invalid request body")
	}
	return nil
}
