package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/emporium-dao/emporium/internal/config"
	"github.com/emporium-dao/emporium/internal/models/modelaudit"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() modelaudit.Record {
	return modelaudit.NewRecord("r1", "caller", "transfer", "alice", "bob", "10", "2", time.Now().UnixNano())
}

func newTestClient(address string) *Client {
	nop := zerolog.Nop()
	return InitClient(&config.AuditConfig{AuditAddress: address, FlushPeriodMs: 1000}, &nop)
}

func TestSend(t *testing.T) {
	var received modelaudit.Record
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/records", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(modelaudit.SequenceResponse{Sequence: 17})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	sequence, err := client.Send(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, uint64(17), sequence)
	assert.Equal(t, "r1", received.ID)
	assert.Equal(t, "transfer", received.Operation)
}

func TestSendNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Send(context.Background(), testRecord())
	var externalCallFailedError *ExternalCallFailedError
	require.ErrorAs(t, err, &externalCallFailedError)
}

func TestSendUnreachable(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")
	_, err := client.Send(context.Background(), testRecord())
	var externalCallFailedError *ExternalCallFailedError
	require.ErrorAs(t, err, &externalCallFailedError)
}
