package httpclient

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hannguyendd/ChangeCapture/pkg/errors"
)

func fakeResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestParseResponseError_StructuredNotFound(t *testing.T) {
	resp := fakeResponse(http.StatusNotFound, `{"error":{"code":"NOT_FOUND","message":"product 42 not found"}}`)

	err := ParseResponseError(resp, "catalog-service")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestParseResponseError_StructuredBadRequest(t *testing.T) {
	resp := fakeResponse(http.StatusBadRequest, `{"error":{"code":"INVALID_INPUT","message":"page must be positive"}}`)

	err := ParseResponseError(resp, "catalog-service")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Contains(t, err.Error(), "page must be positive")
}

func TestParseResponseError_StructuredUnavailable(t *testing.T) {
	resp := fakeResponse(http.StatusServiceUnavailable, `{"error":{"code":"SERVICE_UNAVAILABLE","message":"maintenance"}}`)

	err := ParseResponseError(resp, "catalog-service")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnavailable))
}

func TestParseResponseError_StructuredServerError(t *testing.T) {
	resp := fakeResponse(http.StatusInternalServerError, `{"error":{"code":"INTERNAL_ERROR","message":"boom"}}`)

	err := ParseResponseError(resp, "catalog-service")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog-service")
	assert.Contains(t, err.Error(), "boom")
}

func TestParseResponseError_UnstructuredBody(t *testing.T) {
	resp := fakeResponse(http.StatusBadGateway, "upstream timed out")

	err := ParseResponseError(resp, "catalog-service")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timed out")
}

func TestParseResponseError_EmptyBody(t *testing.T) {
	resp := fakeResponse(http.StatusNotFound, "")

	err := ParseResponseError(resp, "catalog-service")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestParseResponseError_HTMLBody(t *testing.T) {
	resp := fakeResponse(http.StatusServiceUnavailable, "<html><body>503</body></html>")

	err := ParseResponseError(resp, "catalog-service")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestParseResponseError_StructuredButNullError(t *testing.T) {
	resp := fakeResponse(http.StatusInternalServerError, `{"error":null}`)

	err := ParseResponseError(resp, "catalog-service")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(400))
	assert.True(t, IsClientError(404))
	assert.True(t, IsClientError(499))
	assert.False(t, IsClientError(399))
	assert.False(t, IsClientError(500))
	assert.False(t, IsClientError(200))
}
