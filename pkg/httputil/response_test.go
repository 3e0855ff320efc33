package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusOK, map[string]string{"name": "ops"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"name":"ops"}`, w.Body.String())
}

func TestWriteCreated(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteCreated(w, map[string]int{"id": 1}))
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestWriteDetailHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		detail string
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "bad") }, http.StatusBadRequest, "bad"},
		{"not found", func(w http.ResponseWriter) { WriteNotFound(w, "team not found") }, http.StatusNotFound, "team not found"},
		{"internal", WriteInternalError, http.StatusInternalServerError, "internal server error"},
		{"method", func(w http.ResponseWriter) { WriteMethodNotAllowed(w, "PATCH") }, http.StatusMethodNotAllowed, `Method "PATCH" not allowed.`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.status, w.Code)
			var body DetailResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.detail, body.Detail)
		})
	}
}

func TestWriteFieldErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteFieldErrors(w, map[string][]string{
		"type":      {"This field is required."},
		"object_id": {"This field is required."},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"type":["This field is required."],"object_id":["This field is required."]}`, w.Body.String())

	w = httptest.NewRecorder()
	WriteFieldErrors(w, nil)
	assert.JSONEq(t, `{}`, w.Body.String())
}
