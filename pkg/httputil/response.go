package httputil

import (
	"encoding/json"
	"net/http"
)

// DetailResponse is the body of every non-validation error
type DetailResponse struct {
	Detail string `json:"detail"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteDetail writes {"detail": message} with the given status
func WriteDetail(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, DetailResponse{Detail: message})
}

// WriteFieldErrors writes a 400 whose body maps each field to its messages
func WriteFieldErrors(w http.ResponseWriter, fields map[string][]string) {
	if fields == nil {
		fields = map[string][]string{}
	}
	_ = WriteJSON(w, http.StatusBadRequest, fields)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteDetail(w, http.StatusBadRequest, message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteDetail(w, http.StatusNotFound, message)
}

// WriteInternalError writes a 500. The cause is never exposed to the client.
func WriteInternalError(w http.ResponseWriter) {
	WriteDetail(w, http.StatusInternalServerError, "internal server error")
}

// WriteMethodNotAllowed writes a method not allowed error (405)
func WriteMethodNotAllowed(w http.ResponseWriter, method string) {
	WriteDetail(w, http.StatusMethodNotAllowed, `Method "`+method+`" not allowed.`)
}
