package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errorResponse struct {
	Error struct {
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, http.StatusCreated, map[string]int{"distributions_created": 3})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"distributions_created":3}}`, rec.Body.String())
}

func TestValidationError_FieldDetails(t *testing.T) {
	type request struct {
		Channels []string `json:"channels" validate:"required,min=1"`
		Reason   string   `json:"reason,omitempty" validate:"max=5"`
	}

	err := NewValidator().Struct(request{Reason: "too long"})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	ValidationError(rec, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "validation error", resp.Error.Message)

	var fields []FieldError
	require.NoError(t, json.Unmarshal(resp.Error.Details, &fields))
	assert.ElementsMatch(t, []FieldError{
		{Field: "channels", Message: "required"},
		{Field: "reason", Message: "max"},
	}, fields)
}

func TestValidationError_PlainError(t *testing.T) {
	rec := httptest.NewRecorder()
	ValidationError(rec, errors.New("unknown channel: fax"))

	resp := decodeError(t, rec)
	assert.Equal(t, "validation error", resp.Error.Message)
	assert.JSONEq(t, `"unknown channel: fax"`, string(resp.Error.Details))
}

func TestHandleError(t *testing.T) {
	errNotFound := errors.New("alert not found")
	errConflict := errors.New("conflict")
	mappings := []ErrorMapping{
		{Error: errNotFound, Status: http.StatusNotFound},
		{Error: errConflict, Status: http.StatusConflict, Message: "already running"},
	}

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"wrapped sentinel exposes its text", fmt.Errorf("load: %w", errNotFound), http.StatusNotFound, "load: alert not found"},
		{"fixed message", errConflict, http.StatusConflict, "already running"},
		{"unmapped is hidden", errors.New("pq: connection reset"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleError(context.Background(), rec, tt.err, mappings)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decodeError(t, rec).Error.Message)
		})
	}
}
