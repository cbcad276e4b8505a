package errors

import (
	"encoding/json"
	"net/http"
)

// HTTPErrorResponse wraps an InspectorError for HTTP JSON responses.
type HTTPErrorResponse struct {
	Error InspectorError `json:"error"`
}

// WriteHTTPError writes an InspectorError as an HTTP JSON response.
func WriteHTTPError(w http.ResponseWriter, err *InspectorError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(HTTPErrorResponse{Error: *err})
}
