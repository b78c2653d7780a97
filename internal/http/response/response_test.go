package response

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/buruapp/buru-server/internal/errors"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusCreated, map[string]string{"hash": "00ff"}, discard())

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"hash":"00ff"}`, w.Body.String())
}

func TestJSON_NilLogger(t *testing.T) {
	w := httptest.NewRecorder()
	Success(w, []int{1, 2}, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[1,2]`, w.Body.String())
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", domainerrors.NotFound("image not found"), http.StatusNotFound, "NOT_FOUND"},
		{"unsupported", domainerrors.UnsupportedMedia("not an image"), http.StatusUnprocessableEntity, "UNSUPPORTED_MEDIA"},
		{"syntax", domainerrors.Syntax("unbalanced parenthesis"), http.StatusBadRequest, "SYNTAX_ERROR"},
		{"wrapped", domainerrors.Wrap(errors.New("locked"), domainerrors.CodeDatabase, "database error"), http.StatusServiceUnavailable, "DATABASE_ERROR"},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleError(w, tt.err, discard())

			assert.Equal(t, tt.wantStatus, w.Code)

			var body ErrorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestHandleError_Details(t *testing.T) {
	w := httptest.NewRecorder()
	err := domainerrors.Syntax("unexpected token").WithDetails(map[string]any{"position": 4})

	HandleError(w, err, discard())

	assert.JSONEq(t, `{"code":"SYNTAX_ERROR","message":"unexpected token","details":{"position":4}}`, w.Body.String())
}

func TestTooManyRequests(t *testing.T) {
	w := httptest.NewRecorder()
	TooManyRequests(w, "slow down", nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}
