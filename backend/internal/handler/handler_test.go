package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name        string
		input       any
		status      int
		expected    string
		contentType string
	}{
		{
			name:        "valid payload",
			input:       map[string]string{"status": "ok"},
			status:      http.StatusOK,
			expected:    `{"status":"ok"}`,
			contentType: "application/json",
		},
		{
			name:        "status is kept",
			input:       readiness{Status: "unavailable", Backend: "memory"},
			status:      http.StatusServiceUnavailable,
			expected:    `{"status":"unavailable","backend":"memory"}`,
			contentType: "application/json",
		},
		{
			name:     "unencodable value",
			input:    make(chan int),
			status:   http.StatusInternalServerError,
			expected: "Internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeJSON(rr, tt.status, tt.input)

			assert.Equal(t, tt.status, rr.Code)
			if tt.contentType != "" {
				assert.Equal(t, tt.contentType, rr.Header().Get("Content-Type"))
			}
			assert.Equal(t, tt.expected+"\n", rr.Body.String())
		})
	}
}
