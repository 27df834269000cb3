// Package inpsql provides PSQL-backed persistence for snapshots and the audit
// outbox.
package inpsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/emporium-dao/emporium/internal/config"
	"github.com/emporium-dao/emporium/internal/models/modelstorage"
	storageErrors "github.com/emporium-dao/emporium/internal/storage/v1/errors"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/rs/zerolog"
)

type Storage struct {
	mu  sync.Mutex
	Cfg *config.StorageConfig
	DB  *sql.DB
	log *zerolog.Logger
}

// InitStorage establishes a PSQL connection, creates the tables and sets a
// closer for graceful shutdown.
func InitStorage(ctx context.Context, cfg *config.StorageConfig, log *zerolog.Logger, wg *sync.WaitGroup) (*Storage, error) {
	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("")
	}
	st := Storage{
		Cfg: cfg,
		DB:  db,
		log: log,
	}
	err = st.createTables(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("")
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		err := st.DB.Close()
		if err != nil {
			st.log.Error().Err(err).Msg("could not close DB connection")
			return
		}
		st.log.Info().Msg("PSQL DB connection closed")
	}()
	log.Info().Msg("PSQL DB connection was established")
	return &st, nil
}

// SaveSnapshot stores one serialized state blob with its schema version.
func (s *Storage) SaveSnapshot(ctx context.Context, schemaVersion int, data []byte) error {
	insertStmt, err := s.DB.PrepareContext(ctx, "INSERT INTO snapshots (schema_version, data, created_at) VALUES ($1, $2, $3)")
	if err != nil {
		return &storageErrors.StatementPSQLError{Err: err}
	}
	defer insertStmt.Close()
	chanOk := make(chan bool)
	chanEr := make(chan error)
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := insertStmt.ExecContext(ctx, schemaVersion, data, time.Now().Format(time.RFC3339))
		if err != nil {
			if err, ok := err.(*pgconn.PgError); ok && err.Code == pgerrcode.UniqueViolation {
				chanEr <- &storageErrors.AlreadyExistsError{Err: err, ID: fmt.Sprint(schemaVersion)}
				return
			}
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- true
	}()

	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("saving snapshot failed")
		return &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("saving snapshot failed")
		return methodErr
	case <-chanOk:
		s.log.Info().Msg("saving snapshot done")
		return nil
	}
}

// LoadLatestSnapshot retrieves the most recent state blob.
func (s *Storage) LoadLatestSnapshot(ctx context.Context) (*modelstorage.SnapshotStorageEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT id, schema_version, data, created_at FROM snapshots ORDER BY id DESC LIMIT 1")
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	chanOk := make(chan modelstorage.SnapshotStorageEntry)
	chanEr := make(chan error)
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		var queryOutput modelstorage.SnapshotStorageEntry
		err := selectStmt.QueryRowContext(ctx).Scan(&queryOutput.ID, &queryOutput.SchemaVersion, &queryOutput.Data, &queryOutput.CreatedAt)
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				chanEr <- &storageErrors.NotFoundError{Err: err}
				return
			default:
				chanEr <- err
				return
			}
		}
		chanOk <- queryOutput
	}()

	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("loading latest snapshot failed")
		return nil, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("loading latest snapshot failed")
		return nil, methodErr
	case entry := <-chanOk:
		s.log.Info().Msg("loading latest snapshot done")
		return &entry, nil
	}
}

// AddRecord appends one serialized audit record to the outbox.
func (s *Storage) AddRecord(ctx context.Context, record []byte) error {
	insertStmt, err := s.DB.PrepareContext(ctx, "INSERT INTO audit_outbox (record, created_at) VALUES ($1, $2)")
	if err != nil {
		return &storageErrors.StatementPSQLError{Err: err}
	}
	defer insertStmt.Close()
	chanOk := make(chan bool)
	chanEr := make(chan error)
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := insertStmt.ExecContext(ctx, record, time.Now().Format(time.RFC3339))
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- true
	}()

	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("adding audit record failed")
		return &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("adding audit record failed")
		return methodErr
	case <-chanOk:
		return nil
	}
}

// OldestRecords retrieves up to limit pending audit records, oldest first.
func (s *Storage) OldestRecords(ctx context.Context, limit int) ([]modelstorage.OutboxStorageEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT id, record, created_at FROM audit_outbox ORDER BY id ASC LIMIT $1")
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	chanOk := make(chan []modelstorage.OutboxStorageEntry)
	chanEr := make(chan error)
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		rows, err := selectStmt.QueryContext(ctx, limit)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer rows.Close()
		var queryOutput []modelstorage.OutboxStorageEntry
		for rows.Next() {
			var queryOutputRow modelstorage.OutboxStorageEntry
			err = rows.Scan(&queryOutputRow.ID, &queryOutputRow.Record, &queryOutputRow.CreatedAt)
			if err != nil {
				chanEr <- &storageErrors.ScanningPSQLError{Err: err}
				return
			}
			queryOutput = append(queryOutput, queryOutputRow)
		}
		err = rows.Err()
		if err != nil {
			chanEr <- &storageErrors.ScanningPSQLError{Err: err}
			return
		}
		chanOk <- queryOutput
	}()

	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("fetching audit outbox failed")
		return nil, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("fetching audit outbox failed")
		return nil, methodErr
	case entries := <-chanOk:
		return entries, nil
	}
}

// DeleteRecord removes one delivered audit record from the outbox.
func (s *Storage) DeleteRecord(ctx context.Context, id int64) error {
	deleteStmt, err := s.DB.PrepareContext(ctx, "DELETE FROM audit_outbox WHERE id = $1")
	if err != nil {
		return &storageErrors.StatementPSQLError{Err: err}
	}
	defer deleteStmt.Close()
	chanOk := make(chan bool)
	chanEr := make(chan error)
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := deleteStmt.ExecContext(ctx, id)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- true
	}()

	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("deleting audit record failed")
		return &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("deleting audit record failed")
		return methodErr
	case <-chanOk:
		return nil
	}
}

func (s *Storage) createTables(ctx context.Context) error {
	var queries []string
	query := `CREATE TABLE IF NOT EXISTS snapshots (
		id             BIGSERIAL   NOT NULL,
		schema_version INT         NOT NULL,
		data           BYTEA       NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS audit_outbox (
		id         BIGSERIAL   NOT NULL,
		record     BYTEA       NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);`
	queries = append(queries, query)
	for _, subquery := range queries {
		_, err := s.DB.ExecContext(ctx, subquery)
		if err != nil {
			return err
		}
	}
	return nil
}
