package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSanitizesHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-mbx-uuid", "abc-123")
		w.Header().Set("X-Amz-Cf-Id", "def-456")
		w.Header().Set("Via", "1.1 cache")
		w.Header().Set("X-Custom", "kept")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	nop := zerolog.Nop()
	client := InitClient(&nop)
	response, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, response.Status)
	assert.Equal(t, "payload", response.Body)
	assert.Equal(t, "kept", response.Headers["X-Custom"])
	assert.NotContains(t, response.Headers, "X-Mbx-Uuid")
	assert.NotContains(t, response.Headers, "X-Amz-Cf-Id")
	assert.NotContains(t, response.Headers, "Via")
	assert.NotContains(t, response.Headers, "Date")
}

func TestGetUnreachable(t *testing.T) {
	nop := zerolog.Nop()
	client := InitClient(&nop)
	_, err := client.Get(context.Background(), "http://127.0.0.1:1/none")
	assert.Error(t, err)
}
