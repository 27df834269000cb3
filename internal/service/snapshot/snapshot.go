// Package snapshot implements serialization and restoration of the full
// mutable service state across restarts.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/emporium-dao/emporium/internal/models/modelsnapshot"
	"github.com/emporium-dao/emporium/internal/service/accesslist"
	"github.com/emporium-dao/emporium/internal/service/audit"
	"github.com/emporium-dao/emporium/internal/service/rewards"
	"github.com/emporium-dao/emporium/internal/service/token"
	"github.com/emporium-dao/emporium/internal/storage/v1"
	storageErrors "github.com/emporium-dao/emporium/internal/storage/v1/errors"
	"github.com/rs/zerolog"
)

// Manager defines attributes of a struct available to its methods.
type Manager struct {
	storage     storage.SnapshotStorage
	token       *token.Service
	rewards     *rewards.Service
	access      *accesslist.Registry
	audit       *audit.Writer
	dailyPolicy string
	log         *zerolog.Logger
}

// InitManager initializes a snapshot manager over all stateful services.
func InitManager(st storage.SnapshotStorage, tokenService *token.Service, rewardsService *rewards.Service, access *accesslist.Registry, auditWriter *audit.Writer, dailyPolicy string, log *zerolog.Logger) (*Manager, error) {
	if st == nil || tokenService == nil || rewardsService == nil || access == nil || auditWriter == nil {
		return nil, errors.New("nil service was passed to snapshot manager initializer")
	}
	return &Manager{
		storage:     st,
		token:       tokenService,
		rewards:     rewardsService,
		access:      access,
		audit:       auditWriter,
		dailyPolicy: dailyPolicy,
		log:         log,
	}, nil
}

// Snapshot serializes token metadata, balance and allowance tables, user
// records, the custodian set and the audit checkpoint into one versioned blob.
// Invoked immediately before the service is taken down for an update.
func (m *Manager) Snapshot(ctx context.Context) error {
	users, totalUsers := m.rewards.Export()
	state := modelsnapshot.StateV2{
		SchemaVersion:   modelsnapshot.CurrentVersion,
		Token:           m.token.Export(),
		TotalUsers:      totalUsers,
		Users:           users,
		Custodians:      m.access.Export(),
		DailyPolicy:     m.dailyPolicy,
		AuditCheckpoint: m.audit.Checkpoint(),
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := m.storage.SaveSnapshot(ctx, state.SchemaVersion, data); err != nil {
		return err
	}
	m.log.Info().Msg(fmt.Sprintf("state snapshot taken, schema version %d, %d users, %d holders", state.SchemaVersion, totalUsers, len(state.Token.Balances)))
	return nil
}

// Restore loads the latest snapshot, migrates older schema versions and
// installs the state before any request is served. A blob with an unknown
// version or a shape that does not decode is unrecoverable, the service must
// not start. A missing snapshot means a fresh first start: the token ledger is
// bootstrapped with its configured initial supply and that is not an error.
func (m *Manager) Restore(ctx context.Context) error {
	entry, err := m.storage.LoadLatestSnapshot(ctx)
	if err != nil {
		var notFoundError *storageErrors.NotFoundError
		if errors.As(err, &notFoundError) {
			m.log.Info().Msg("no snapshot found, bootstrapping a fresh state")
			m.token.Bootstrap(ctx)
			return nil
		}
		return err
	}
	var envelope modelsnapshot.Envelope
	if err := json.Unmarshal(entry.Data, &envelope); err != nil {
		return &storageErrors.SchemaMismatchError{Version: entry.SchemaVersion}
	}
	var state modelsnapshot.StateV2
	switch envelope.SchemaVersion {
	case modelsnapshot.CurrentVersion:
		if err := json.Unmarshal(entry.Data, &state); err != nil {
			return &storageErrors.SchemaMismatchError{Version: envelope.SchemaVersion}
		}
	case 1:
		var stateV1 modelsnapshot.StateV1
		if err := json.Unmarshal(entry.Data, &stateV1); err != nil {
			return &storageErrors.SchemaMismatchError{Version: envelope.SchemaVersion}
		}
		state = migrateV1(stateV1)
		m.log.Info().Msg("snapshot migrated from schema version 1")
	default:
		return &storageErrors.SchemaMismatchError{Version: envelope.SchemaVersion}
	}
	if state.Token.TotalSupply == nil || state.Token.Fee == nil {
		return &storageErrors.SchemaMismatchError{Version: envelope.SchemaVersion}
	}
	m.token.Install(state.Token)
	m.rewards.Install(state.Users, state.TotalUsers)
	m.access.Install(state.Custodians)
	m.audit.SetCheckpoint(state.AuditCheckpoint)
	if state.DailyPolicy != "" && state.DailyPolicy != m.dailyPolicy {
		m.log.Warn().Msg(fmt.Sprintf("snapshot was taken under daily policy %s, running with %s", state.DailyPolicy, m.dailyPolicy))
	}
	m.log.Info().Msg(fmt.Sprintf("state restored from snapshot, schema version %d, %d users", envelope.SchemaVersion, state.TotalUsers))
	return nil
}

// migrateV1 lifts a version 1 blob to the current schema. Version 1 predates
// the daily window policy and the audit checkpoint, both get zero values.
func migrateV1(old modelsnapshot.StateV1) modelsnapshot.StateV2 {
	return modelsnapshot.StateV2{
		SchemaVersion:   modelsnapshot.CurrentVersion,
		Token:           old.Token,
		TotalUsers:      old.TotalUsers,
		Users:           old.Users,
		Custodians:      old.Custodians,
		DailyPolicy:     "",
		AuditCheckpoint: 0,
	}
}
