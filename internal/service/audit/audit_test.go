package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/emporium-dao/emporium/internal/models/modelaudit"
	"github.com/emporium-dao/emporium/internal/models/modelstorage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutbox struct {
	mu      sync.Mutex
	nextID  int64
	entries []modelstorage.OutboxStorageEntry
}

func (f *fakeOutbox) AddRecord(_ context.Context, record []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.entries = append(f.entries, modelstorage.OutboxStorageEntry{ID: f.nextID, Record: record})
	return nil
}

func (f *fakeOutbox) OldestRecords(_ context.Context, limit int) ([]modelstorage.OutboxStorageEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.entries) {
		limit = len(f.entries)
	}
	out := make([]modelstorage.OutboxStorageEntry, limit)
	copy(out, f.entries[:limit])
	return out, nil
}

func (f *fakeOutbox) DeleteRecord(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, entry := range f.entries {
		if entry.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeOutbox) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type fakeSender struct {
	mu       sync.Mutex
	failures int
	sequence uint64
	sent     []string
}

func (f *fakeSender) Send(_ context.Context, record modelaudit.Record) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("audit service unavailable")
	}
	f.sequence++
	f.sent = append(f.sent, record.ID)
	return f.sequence, nil
}

func newTestWriter(t *testing.T) (*Writer, *fakeOutbox, *fakeSender) {
	t.Helper()
	nop := zerolog.Nop()
	outbox := &fakeOutbox{}
	sender := &fakeSender{}
	writer := InitWriter(context.Background(), outbox, sender, &nop, &sync.WaitGroup{}, 1000)
	return writer, outbox, sender
}

func testRecord(id string) modelaudit.Record {
	return modelaudit.NewRecord(id, "caller", "transfer", "alice", "bob", "10", "2", time.Now().UnixNano())
}

func TestAppendEnqueues(t *testing.T) {
	writer, outbox, _ := newTestWriter(t)
	require.NoError(t, writer.Append(context.Background(), testRecord("r1")))
	require.Equal(t, 1, outbox.size())
	var record modelaudit.Record
	require.NoError(t, json.Unmarshal(outbox.entries[0].Record, &record))
	assert.Equal(t, "r1", record.ID)
	assert.Equal(t, "transfer", record.Operation)
}

func TestFlushDrainsInOrder(t *testing.T) {
	writer, outbox, sender := newTestWriter(t)
	ctx := context.Background()
	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, writer.Append(ctx, testRecord(id)))
	}
	writer.flushOnce()
	assert.Equal(t, 0, outbox.size())
	assert.Equal(t, []string{"r1", "r2", "r3"}, sender.sent)
	assert.Equal(t, uint64(3), writer.Checkpoint())
}

func TestFlushStopsOnFailurePreservingOrder(t *testing.T) {
	writer, outbox, sender := newTestWriter(t)
	ctx := context.Background()
	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, writer.Append(ctx, testRecord(id)))
	}
	sender.failures = 1
	writer.flushOnce()
	// the first send failed, nothing was delivered or deleted
	assert.Equal(t, 3, outbox.size())
	assert.Empty(t, sender.sent)
	assert.Equal(t, uint64(0), writer.Checkpoint())

	// the next pass delivers everything in the original order
	writer.flushOnce()
	assert.Equal(t, 0, outbox.size())
	assert.Equal(t, []string{"r1", "r2", "r3"}, sender.sent)
	assert.Equal(t, uint64(3), writer.Checkpoint())
}

func TestFlushMidBatchFailure(t *testing.T) {
	writer, outbox, sender := newTestWriter(t)
	ctx := context.Background()
	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, writer.Append(ctx, testRecord(id)))
	}
	// the first send succeeds, the second fails, the pass stops there
	sender.failures = 0
	writer.flushOnce()
	assert.Equal(t, []string{"r1", "r2", "r3"}, sender.sent)

	for _, id := range []string{"r4", "r5"} {
		require.NoError(t, writer.Append(ctx, testRecord(id)))
	}
	sender.failures = 1
	writer.flushOnce()
	// r4 failed, r5 must not jump the queue
	assert.Equal(t, 2, outbox.size())
	writer.flushOnce()
	assert.Equal(t, []string{"r1", "r2", "r3", "r4", "r5"}, sender.sent)
}

func TestFlushDropsMalformedEntry(t *testing.T) {
	writer, outbox, sender := newTestWriter(t)
	ctx := context.Background()
	require.NoError(t, outbox.AddRecord(ctx, []byte("not json")))
	require.NoError(t, writer.Append(ctx, testRecord("r1")))
	writer.flushOnce()
	assert.Equal(t, 0, outbox.size())
	assert.Equal(t, []string{"r1"}, sender.sent)
}

func TestCheckpointRestore(t *testing.T) {
	writer, _, sender := newTestWriter(t)
	writer.SetCheckpoint(41)
	assert.Equal(t, uint64(41), writer.Checkpoint())
	sender.sequence = 41
	require.NoError(t, writer.Append(context.Background(), testRecord("r42")))
	writer.flushOnce()
	assert.Equal(t, uint64(42), writer.Checkpoint())
}
