package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/lychee-technology/cohort"
)

// parseTypeDefPath parses /api/v1/typedefs/{guid} or
// /api/v1/typedefs/{guid}/patch.
func parseTypeDefPath(path string) (guid string, action string, err error) {
	path = strings.TrimPrefix(path, "/api/v1/typedefs/")
	path = strings.Trim(path, "/")

	if path == "" {
		return "", "", fmt.Errorf("invalid path: empty typedef guid")
	}

	parts := strings.Split(path, "/")
	switch len(parts) {
	case 1:
		return parts[0], "", nil
	case 2:
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("invalid path format")
	}
}

// requestUser resolves the caller identity from the request headers.
func requestUser(r *http.Request) string {
	if user := r.Header.Get("X-Metadata-User"); user != "" {
		return user
	}
	return "anonymous"
}

// APIResponse is the standard response format.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// writeJSON writes JSON response to http.ResponseWriter.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeSuccess writes a success response.
func writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeCohortError maps a domain error to an HTTP status.
func writeCohortError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case cohort.IsNotFoundError(err):
		status = http.StatusNotFound
	case cohort.IsConflictError(err):
		status = http.StatusConflict
	case cohort.IsInvalidParameterError(err), cohort.IsPatchError(err):
		status = http.StatusBadRequest
	case cohort.IsUnauthorizedError(err):
		status = http.StatusForbidden
	}
	writeError(w, status, err.Error())
}

// readJSONBody reads and decodes JSON from request body.
func readJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
