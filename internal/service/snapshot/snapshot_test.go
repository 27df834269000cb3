package snapshot

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/emporium-dao/emporium/internal/config"
	"github.com/emporium-dao/emporium/internal/models/modelaudit"
	"github.com/emporium-dao/emporium/internal/models/modelrewards"
	"github.com/emporium-dao/emporium/internal/models/modelsnapshot"
	"github.com/emporium-dao/emporium/internal/models/modelstorage"
	"github.com/emporium-dao/emporium/internal/service/accesslist"
	"github.com/emporium-dao/emporium/internal/service/audit"
	"github.com/emporium-dao/emporium/internal/service/rewards"
	"github.com/emporium-dao/emporium/internal/service/token"
	storageErrors "github.com/emporium-dao/emporium/internal/storage/v1/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHandle = "123456789012345678"

type fakeStorage struct {
	mu       sync.Mutex
	snapshot *modelstorage.SnapshotStorageEntry
	nextID   int64
	outbox   []modelstorage.OutboxStorageEntry
}

func (f *fakeStorage) SaveSnapshot(_ context.Context, schemaVersion int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = &modelstorage.SnapshotStorageEntry{ID: 1, SchemaVersion: schemaVersion, Data: data}
	return nil
}

func (f *fakeStorage) LoadLatestSnapshot(_ context.Context) (*modelstorage.SnapshotStorageEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshot == nil {
		return nil, &storageErrors.NotFoundError{Err: nil}
	}
	return f.snapshot, nil
}

func (f *fakeStorage) AddRecord(_ context.Context, record []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.outbox = append(f.outbox, modelstorage.OutboxStorageEntry{ID: f.nextID, Record: record})
	return nil
}

func (f *fakeStorage) OldestRecords(_ context.Context, limit int) ([]modelstorage.OutboxStorageEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.outbox) {
		limit = len(f.outbox)
	}
	out := make([]modelstorage.OutboxStorageEntry, limit)
	copy(out, f.outbox[:limit])
	return out, nil
}

func (f *fakeStorage) DeleteRecord(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, entry := range f.outbox {
		if entry.ID == id {
			f.outbox = append(f.outbox[:i], f.outbox[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakeSender struct{}

func (f *fakeSender) Send(_ context.Context, _ modelaudit.Record) (uint64, error) {
	return 0, nil
}

type testStack struct {
	storage *fakeStorage
	token   *token.Service
	rewards *rewards.Service
	access  *accesslist.Registry
	audit   *audit.Writer
	mgr     *Manager
}

func newTestStack(t *testing.T, st *fakeStorage) *testStack {
	t.Helper()
	nop := zerolog.Nop()
	access := accesslist.InitRegistry([]string{"custodian", "service"}, &nop)
	auditWriter := audit.InitWriter(context.Background(), st, &fakeSender{}, &nop, &sync.WaitGroup{}, 1000)
	tokenCfg := &config.TokenConfig{
		Name:          "Emporium Coin",
		Symbol:        "EMP",
		Decimals:      8,
		InitialSupply: "1000",
		Fee:           "2",
		FeeTo:         "treasury",
		Owner:         "owner",
	}
	tokenService, err := token.InitLedger(tokenCfg, access, auditWriter, &nop)
	require.NoError(t, err)
	rewardsCfg := &config.RewardsConfig{WorkBase: 10, DailyBase: 100, DailyPolicy: rewards.PolicyElapsed}
	rewardsService, err := rewards.InitService(rewardsCfg, tokenService, "service", &nop)
	require.NoError(t, err)
	mgr, err := InitManager(st, tokenService, rewardsService, access, auditWriter, rewards.PolicyElapsed, &nop)
	require.NoError(t, err)
	return &testStack{storage: st, token: tokenService, rewards: rewardsService, access: access, audit: auditWriter, mgr: mgr}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	st := &fakeStorage{}
	stack := newTestStack(t, st)
	ctx := context.Background()

	// fresh first start seeds the ledger
	require.NoError(t, stack.mgr.Restore(ctx))
	require.NoError(t, stack.rewards.Register(testHandle, "principal-1"))
	_, err := stack.rewards.ClaimWork(ctx, testHandle)
	require.NoError(t, err)
	_, err = stack.token.Transfer(ctx, "owner", "alice", big.NewInt(100))
	require.NoError(t, err)
	require.NoError(t, stack.access.AddCustodian("custodian", "new-custodian"))
	stack.audit.SetCheckpoint(7)

	require.NoError(t, stack.mgr.Snapshot(ctx))

	restored := newTestStack(t, st)
	require.NoError(t, restored.mgr.Restore(ctx))

	assert.Equal(t, stack.token.TotalSupply().String(), restored.token.TotalSupply().String())
	assert.Equal(t, "100", restored.token.BalanceOf("alice").String())
	assert.Equal(t, stack.token.HistorySize(), restored.token.HistorySize())
	assert.True(t, restored.access.IsCustodian("new-custodian"))
	assert.Equal(t, uint64(7), restored.audit.Checkpoint())
	user, err := restored.rewards.GetUser(testHandle)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), user.Work.Streak)
	assert.Equal(t, uint64(10), user.TotalRewards)
	assert.Equal(t, uint64(1), restored.rewards.TotalUsers())

	// byte-identical second capture proves the round trip is lossless
	firstBlob := append([]byte(nil), st.snapshot.Data...)
	require.NoError(t, restored.mgr.Snapshot(ctx))
	assert.Equal(t, firstBlob, st.snapshot.Data)
}

func TestRestoreFreshStart(t *testing.T) {
	st := &fakeStorage{}
	stack := newTestStack(t, st)
	require.NoError(t, stack.mgr.Restore(context.Background()))
	// no snapshot found, the ledger was bootstrapped with its initial supply
	assert.Equal(t, "1000", stack.token.BalanceOf("owner").String())
	assert.Equal(t, uint64(0), stack.rewards.TotalUsers())
	// exactly one genesis mint record was enqueued
	assert.Len(t, st.outbox, 1)
}

func TestRestartDoesNotRepeatGenesisMint(t *testing.T) {
	st := &fakeStorage{}
	ctx := context.Background()

	first := newTestStack(t, st)
	require.NoError(t, first.mgr.Restore(ctx))
	require.Len(t, st.outbox, 1)
	require.NoError(t, first.mgr.Snapshot(ctx))

	// a restart restores the snapshot instead of seeding the ledger again
	second := newTestStack(t, st)
	require.NoError(t, second.mgr.Restore(ctx))
	assert.Equal(t, "1000", second.token.BalanceOf("owner").String())
	assert.Equal(t, "1000", second.token.TotalSupply().String())
	assert.Len(t, st.outbox, 1)
}

func TestRestoreMigratesV1(t *testing.T) {
	st := &fakeStorage{}
	stack := newTestStack(t, st)
	old := modelsnapshot.StateV1{
		SchemaVersion: 1,
		Token: modelsnapshot.TokenState{
			Name:        "Emporium Coin",
			Symbol:      "EMP",
			Decimals:    8,
			TotalSupply: big.NewInt(500),
			Owner:       "owner",
			Fee:         big.NewInt(2),
			FeeTo:       "treasury",
			HistorySize: 3,
			DeployTime:  time.Now().UnixNano(),
			Balances:    map[string]*big.Int{"owner": big.NewInt(500)},
		},
		TotalUsers: 1,
		Users: map[string]modelrewards.User{
			testHandle: {Handle: testHandle, Principal: "principal-1", TotalRewards: 10},
		},
		Custodians: []string{"custodian", "service"},
	}
	data, err := json.Marshal(old)
	require.NoError(t, err)
	require.NoError(t, st.SaveSnapshot(context.Background(), 1, data))

	require.NoError(t, stack.mgr.Restore(context.Background()))
	assert.Equal(t, "500", stack.token.TotalSupply().String())
	assert.Equal(t, uint64(1), stack.rewards.TotalUsers())
	// fields the old schema predates come up zeroed
	assert.Equal(t, uint64(0), stack.audit.Checkpoint())
}

func TestRestoreUnknownVersion(t *testing.T) {
	st := &fakeStorage{}
	stack := newTestStack(t, st)
	data, err := json.Marshal(modelsnapshot.Envelope{SchemaVersion: 7})
	require.NoError(t, err)
	require.NoError(t, st.SaveSnapshot(context.Background(), 7, data))

	err = stack.mgr.Restore(context.Background())
	var schemaMismatchError *storageErrors.SchemaMismatchError
	require.ErrorAs(t, err, &schemaMismatchError)
	assert.Equal(t, 7, schemaMismatchError.Version)
}

func TestRestoreUndecodableBlob(t *testing.T) {
	st := &fakeStorage{}
	stack := newTestStack(t, st)
	require.NoError(t, st.SaveSnapshot(context.Background(), 2, []byte("not json at all")))

	err := stack.mgr.Restore(context.Background())
	var schemaMismatchError *storageErrors.SchemaMismatchError
	require.ErrorAs(t, err, &schemaMismatchError)
}

func TestRestoreRejectsIncompleteState(t *testing.T) {
	st := &fakeStorage{}
	stack := newTestStack(t, st)
	// a version tag alone is not a usable state blob
	data, err := json.Marshal(modelsnapshot.Envelope{SchemaVersion: 2})
	require.NoError(t, err)
	require.NoError(t, st.SaveSnapshot(context.Background(), 2, data))

	err = stack.mgr.Restore(context.Background())
	var schemaMismatchError *storageErrors.SchemaMismatchError
	require.ErrorAs(t, err, &schemaMismatchError)
}
