package httpclient

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ecobazaar/storefront/pkg/errors"
)

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestParseResponseError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantIs     error
		wantMsg    string
	}{
		{
			name:       "structured not found",
			status:     http.StatusNotFound,
			body:       `{"error":{"code":"NOT_FOUND","message":"product 9"}}`,
			wantStatus: http.StatusNotFound,
			wantIs:     apperrors.ErrNotFound,
			wantMsg:    "product 9",
		},
		{
			name:       "plain string error",
			status:     http.StatusBadRequest,
			body:       `{"error":"product_id is required"}`,
			wantStatus: http.StatusBadRequest,
			wantIs:     apperrors.ErrInvalidInput,
			wantMsg:    "recommender: product_id is required",
		},
		{
			name:       "unstructured conflict",
			status:     http.StatusConflict,
			body:       `busy`,
			wantStatus: http.StatusConflict,
			wantIs:     apperrors.ErrConflict,
			wantMsg:    "busy",
		},
		{
			name:       "unavailable",
			status:     http.StatusServiceUnavailable,
			body:       `{"error":"warming up"}`,
			wantStatus: http.StatusServiceUnavailable,
			wantIs:     apperrors.ErrServiceUnavail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseResponseError(response(tt.status, tt.body), "recommender")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantIs)
			assert.Equal(t, tt.wantStatus, apperrors.HTTPStatus(err))
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestParseResponseError_ServerError(t *testing.T) {
	err := ParseResponseError(response(http.StatusInternalServerError, `{"error":{"code":"BOOM","message":"index corrupt"}}`), "recommender")
	require.Error(t, err)

	var appErr *apperrors.AppError
	assert.False(t, errors.As(err, &appErr))
	assert.Contains(t, err.Error(), "500/BOOM")
	assert.Contains(t, err.Error(), "index corrupt")
}

func TestParseResponseError_OtherStatusKeepsCode(t *testing.T) {
	err := ParseResponseError(response(http.StatusTeapot, `{"error":{"code":"TEAPOT","message":"short and stout"}}`), "recommender")

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "TEAPOT", appErr.Code)
	assert.Equal(t, http.StatusTeapot, appErr.Status)
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(400))
	assert.True(t, IsClientError(499))
	assert.False(t, IsClientError(500))
	assert.False(t, IsClientError(200))
}
