package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/emporium-dao/emporium/internal/api/rest/middleware"
	"github.com/emporium-dao/emporium/internal/client/fetch"
	"github.com/emporium-dao/emporium/internal/client/proxy"
	"github.com/emporium-dao/emporium/internal/config"
	"github.com/emporium-dao/emporium/internal/models/modelaudit"
	"github.com/emporium-dao/emporium/internal/models/modeldto"
	"github.com/emporium-dao/emporium/internal/models/modelstorage"
	"github.com/emporium-dao/emporium/internal/service/accesslist"
	"github.com/emporium-dao/emporium/internal/service/audit"
	"github.com/emporium-dao/emporium/internal/service/identity"
	"github.com/emporium-dao/emporium/internal/service/rewards"
	"github.com/emporium-dao/emporium/internal/service/snapshot"
	"github.com/emporium-dao/emporium/internal/service/token"
	storageErrors "github.com/emporium-dao/emporium/internal/storage/v1/errors"
	"github.com/go-chi/chi"
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
		return nil, &storageErrors.NotFoundError{}
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

type testAPI struct {
	router  chi.Router
	ids     *identity.Service
	storage *fakeStorage
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	nop := zerolog.Nop()
	st := &fakeStorage{}
	ids, err := identity.NewIdentityService(&config.SecretConfig{SecretKey: "test-secret"})
	require.NoError(t, err)
	tokenHandler, err := middleware.NewTokenHandler(ids, &config.SecretConfig{SecretKey: "test-secret"})
	require.NoError(t, err)
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
	snapshotMgr, err := snapshot.InitManager(st, tokenService, rewardsService, access, auditWriter, rewards.PolicyElapsed, &nop)
	require.NoError(t, err)
	// fresh first start seeds the ledger
	require.NoError(t, snapshotMgr.Restore(context.Background()))
	urlHandler, err := InitHandlers(tokenService, rewardsService, access, snapshotMgr, ids, proxy.InitClient(&nop), fetch.InitClient(&nop), &nop)
	require.NoError(t, err)

	r := chi.NewRouter()
	openGroup := r.Group(nil)
	mainGroup := r.Group(nil)
	mainGroup.Use(tokenHandler.TokenHandle)
	openGroup.Post("/api/auth/token", urlHandler.HandleAuthToken())
	openGroup.Get("/api/user/{handle}", urlHandler.HandleGetUser())
	openGroup.Get("/api/user/{handle}/balance", urlHandler.HandleUserBalance())
	openGroup.Get("/api/token/balance/{principal}", urlHandler.HandleBalanceOf())
	openGroup.Get("/api/token/metadata", urlHandler.HandleMetadata())
	openGroup.Get("/api/token/holders", urlHandler.HandleHolders())
	mainGroup.Post("/api/user/register", urlHandler.HandleRegister())
	mainGroup.Post("/api/user/daily", urlHandler.HandleDaily())
	mainGroup.Post("/api/user/work", urlHandler.HandleWork())
	mainGroup.Post("/api/token/transfer", urlHandler.HandleTransfer())
	mainGroup.Post("/api/token/mint", urlHandler.HandleMint())
	mainGroup.Post("/api/admin/snapshot", urlHandler.HandleSnapshot())
	return &testAPI{router: r, ids: ids, storage: st}
}

func (a *testAPI) do(t *testing.T, method, path, accessToken string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		request.Header.Set("Authorization", "Bearer "+accessToken)
	}
	recorder := httptest.NewRecorder()
	a.router.ServeHTTP(recorder, request)
	return recorder
}

func (a *testAPI) tokenFor(t *testing.T, principal string) string {
	t.Helper()
	accessToken, err := a.ids.NewToken(principal)
	require.NoError(t, err)
	return accessToken
}

func TestAuthTokenIssue(t *testing.T) {
	api := newTestAPI(t)
	recorder := api.do(t, http.MethodPost, "/api/auth/token", "", modeldto.AuthRequest{})
	require.Equal(t, http.StatusOK, recorder.Code)
	var response modeldto.AuthResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.NotEmpty(t, response.Principal)
	parsed, err := api.ids.ValidateToken(response.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, response.Principal, parsed)
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)
	recorder := api.do(t, http.MethodPost, "/api/user/register", "", modeldto.RegisterRequest{Handle: testHandle})
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	recorder = api.do(t, http.MethodPost, "/api/user/register", "garbage-token", modeldto.RegisterRequest{Handle: testHandle})
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestRegisterAndClaimFlow(t *testing.T) {
	api := newTestAPI(t)
	accessToken := api.tokenFor(t, "principal-1")

	recorder := api.do(t, http.MethodPost, "/api/user/register", accessToken, modeldto.RegisterRequest{Handle: testHandle})
	require.Equal(t, http.StatusOK, recorder.Code)

	// duplicate registration is rejected
	recorder = api.do(t, http.MethodPost, "/api/user/register", accessToken, modeldto.RegisterRequest{Handle: testHandle})
	assert.Equal(t, http.StatusConflict, recorder.Code)

	// malformed handle is rejected
	recorder = api.do(t, http.MethodPost, "/api/user/register", accessToken, modeldto.RegisterRequest{Handle: "alice"})
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)

	recorder = api.do(t, http.MethodPost, "/api/user/work", accessToken, modeldto.ClaimRequest{Handle: testHandle})
	require.Equal(t, http.StatusOK, recorder.Code)
	var claim modeldto.ClaimResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &claim))
	assert.Equal(t, uint64(10), claim.Reward)
	assert.Equal(t, uint64(1), claim.Streak)

	// a second claim inside the cooldown is rejected
	recorder = api.do(t, http.MethodPost, "/api/user/work", accessToken, modeldto.ClaimRequest{Handle: testHandle})
	assert.Equal(t, http.StatusConflict, recorder.Code)

	// the reward landed on the user's balance
	recorder = api.do(t, http.MethodGet, "/api/user/"+testHandle+"/balance", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var balance modeldto.UserBalance
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &balance))
	assert.Equal(t, "10", balance.Balance)
	assert.Equal(t, uint64(10), balance.TotalRewards)
	assert.Equal(t, uint64(1), balance.WorkStreak)
}

func TestClaimUnregisteredUser(t *testing.T) {
	api := newTestAPI(t)
	accessToken := api.tokenFor(t, "principal-1")
	recorder := api.do(t, http.MethodPost, "/api/user/daily", accessToken, modeldto.ClaimRequest{Handle: testHandle})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestTransferStatuses(t *testing.T) {
	api := newTestAPI(t)
	ownerToken := api.tokenFor(t, "owner")

	recorder := api.do(t, http.MethodPost, "/api/token/transfer", ownerToken, modeldto.TransferRequest{To: "alice", Amount: "100"})
	require.Equal(t, http.StatusOK, recorder.Code)
	var response modeldto.TxResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, uint64(2), response.TxIndex)

	// insufficient funds map onto 402
	recorder = api.do(t, http.MethodPost, "/api/token/transfer", ownerToken, modeldto.TransferRequest{To: "alice", Amount: "100000"})
	assert.Equal(t, http.StatusPaymentRequired, recorder.Code)

	// negative and garbage amounts map onto 422
	recorder = api.do(t, http.MethodPost, "/api/token/transfer", ownerToken, modeldto.TransferRequest{To: "alice", Amount: "-5"})
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	recorder = api.do(t, http.MethodPost, "/api/token/transfer", ownerToken, modeldto.TransferRequest{To: "alice", Amount: "ten"})
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)

	recorder = api.do(t, http.MethodGet, "/api/token/balance/alice", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"balance":"100"}`, recorder.Body.String())
}

func TestMintCustodianGate(t *testing.T) {
	api := newTestAPI(t)
	recorder := api.do(t, http.MethodPost, "/api/token/mint", api.tokenFor(t, "mallory"), modeldto.MintRequest{To: "mallory", Amount: "500"})
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = api.do(t, http.MethodPost, "/api/token/mint", api.tokenFor(t, "custodian"), modeldto.MintRequest{To: "alice", Amount: "500"})
	require.Equal(t, http.StatusOK, recorder.Code)
	recorder = api.do(t, http.MethodGet, "/api/token/balance/alice", "", nil)
	assert.JSONEq(t, `{"balance":"500"}`, recorder.Body.String())
}

func TestMetadata(t *testing.T) {
	api := newTestAPI(t)
	recorder := api.do(t, http.MethodGet, "/api/token/metadata", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var metadata modeldto.Metadata
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &metadata))
	assert.Equal(t, "Emporium Coin", metadata.Name)
	assert.Equal(t, "EMP", metadata.Symbol)
	assert.Equal(t, "1000", metadata.TotalSupply)
	assert.Equal(t, "2", metadata.Fee)
}

func TestHoldersQuery(t *testing.T) {
	api := newTestAPI(t)
	recorder := api.do(t, http.MethodGet, "/api/token/holders?start=0&limit=5", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var holders []modeldto.Holder
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &holders))
	require.Len(t, holders, 1)
	assert.Equal(t, "owner", holders[0].Principal)
	assert.Equal(t, "1000", holders[0].Balance)
}

func TestSnapshotEndpointCustodianGate(t *testing.T) {
	api := newTestAPI(t)
	recorder := api.do(t, http.MethodPost, "/api/admin/snapshot", api.tokenFor(t, "mallory"), map[string]string{})
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Nil(t, api.storage.snapshot)

	recorder = api.do(t, http.MethodPost, "/api/admin/snapshot", api.tokenFor(t, "custodian"), map[string]string{})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NotNil(t, api.storage.snapshot)
	assert.Equal(t, 2, api.storage.snapshot.SchemaVersion)
}

func TestContentTypeRequired(t *testing.T) {
	api := newTestAPI(t)
	request := httptest.NewRequest(http.MethodPost, "/api/auth/token", bytes.NewReader([]byte("{}")))
	recorder := httptest.NewRecorder()
	api.router.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	// a charset parameter on the media type is accepted
	request = httptest.NewRequest(http.MethodPost, "/api/auth/token", bytes.NewReader([]byte("{}")))
	request.Header.Set("Content-Type", "application/json; charset=utf-8")
	recorder = httptest.NewRecorder()
	api.router.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusOK, recorder.Code)
}
