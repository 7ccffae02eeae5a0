package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fableloom/chronicler/types"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name       string
		data       any
		wantStatus int
	}{
		{
			name:       "simple object",
			data:       map[string]string{"message": "hello"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "array",
			data:       []int{1, 2, 3},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, tt.wantStatus, tt.data)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"key": "value"}

	WriteSuccess(w, data)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	err := json.NewDecoder(w.Body).Decode(&resp)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		err            *types.Error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "validation",
			err:            types.NewError(types.ErrValidation, "agent_id is required"),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION",
		},
		{
			name:           "not found",
			err:            types.NewError(types.ErrNotFound, "no archived brief"),
			expectedStatus: http.StatusNotFound,
			expectedCode:   "NOT_FOUND",
		},
		{
			name:           "index unavailable",
			err:            types.NewError(types.ErrIndexUnavailable, "index backend unreachable"),
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   "INDEX_UNAVAILABLE",
		},
		{
			name:           "budget unsatisfiable",
			err:            types.NewError(types.ErrBudgetUnsatisfiable, "pruning exhausted"),
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   "BUDGET_UNSATISFIABLE",
		},
		{
			name:           "timeout",
			err:            types.NewError(types.ErrTimeout, "commit timed out"),
			expectedStatus: http.StatusGatewayTimeout,
			expectedCode:   "TIMEOUT",
		},
		{
			name:           "explicit status wins",
			err:            types.NewError(types.ErrValidation, "custom").WithHTTPStatus(http.StatusTeapot),
			expectedStatus: http.StatusTeapot,
			expectedCode:   "VALIDATION",
		},
		{
			name:           "unknown code defaults to 500",
			err:            types.NewError(types.ErrorCode("MYSTERY"), "??"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "MYSTERY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedCode, resp.Error.Code)
		})
	}
}

func TestDecodeJSONBody(t *testing.T) {
	logger := zap.NewNop()

	t.Run("valid body", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/v1/turns", strings.NewReader(`{"turns":3}`))
		var dst struct {
			Turns int `json:"turns"`
		}
		require.NoError(t, DecodeJSONBody(w, r, &dst, logger))
		assert.Equal(t, 3, dst.Turns)
	})

	t.Run("empty body yields zero value", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/v1/turns", nil)
		var dst struct {
			Turns int `json:"turns"`
		}
		require.NoError(t, DecodeJSONBody(w, r, &dst, logger))
		assert.Zero(t, dst.Turns)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/v1/turns", strings.NewReader(`{"bogus":true}`))
		var dst struct {
			Turns int `json:"turns"`
		}
		err := DecodeJSONBody(w, r, &dst, logger)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed JSON rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/v1/turns", strings.NewReader(`{"turns":`))
		var dst struct {
			Turns int `json:"turns"`
		}
		err := DecodeJSONBody(w, r, &dst, logger)
		require.Error(t, err)
		assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
	})
}
