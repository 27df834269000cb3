// Package audit implements the audit log writer: every balance-affecting
// operation is durably enqueued into an ordered outbox and a background flush
// loop pushes records to the external audit service, oldest first. Records are
// retried until the external append succeeds, ledger operations never fail
// because of audit outcomes.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/emporium-dao/emporium/internal/models/modelaudit"
	"github.com/emporium-dao/emporium/internal/storage/v1"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const flushBatchSize = 16

// Sender pushes one record to the external audit service.
type Sender interface {
	Send(ctx context.Context, record modelaudit.Record) (uint64, error)
}

// Writer defines attributes of a struct available to its methods.
type Writer struct {
	ctx         context.Context
	outbox      storage.OutboxStorage
	sender      Sender
	log         *zerolog.Logger
	wg          *sync.WaitGroup
	wake        chan struct{}
	flushPeriod time.Duration
	mu          sync.Mutex
	checkpoint  uint64
}

// InitWriter initializes an audit log writer over a durable outbox.
func InitWriter(ctx context.Context, outbox storage.OutboxStorage, sender Sender, log *zerolog.Logger, wg *sync.WaitGroup, flushPeriodMs int) *Writer {
	return &Writer{
		ctx:         ctx,
		outbox:      outbox,
		sender:      sender,
		log:         log,
		wg:          wg,
		wake:        make(chan struct{}, 1),
		flushPeriod: time.Duration(flushPeriodMs) * time.Millisecond,
	}
}

// Append durably enqueues one record and wakes the flush loop. The record
// survives a service restart in the outbox until the external append succeeds.
func (w *Writer) Append(ctx context.Context, record modelaudit.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := w.outbox.AddRecord(ctx, payload); err != nil {
		return err
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// Checkpoint returns the last sequence number assigned by the audit service.
func (w *Writer) Checkpoint() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.checkpoint
}

// SetCheckpoint installs a restored checkpoint.
func (w *Writer) SetCheckpoint(checkpoint uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.checkpoint = checkpoint
}

// ListenAndFlush starts the background flush loop.
func (w *Writer) ListenAndFlush() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.log.Info().Msg("started listening to audit outbox")
		g, _ := errgroup.WithContext(w.ctx)
		g.Go(w.flushLoop)
		<-w.ctx.Done()
		if err := g.Wait(); err != nil {
			w.log.Error().Err(err).Msg("closing errgroup failed")
		}
		w.log.Info().Msg("stopped listening to audit outbox")
	}()
}

// flushLoop drains the outbox oldest-first on every tick or wake-up. A failed
// external append stops the current pass so that ordering is preserved, the
// record stays in the outbox for the next pass.
func (w *Writer) flushLoop() error {
	ticker := time.NewTicker(w.flushPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return nil
		case <-w.wake:
		case <-ticker.C:
		}
		w.flushOnce()
	}
}

func (w *Writer) flushOnce() {
	ctx, cancel := context.WithTimeout(w.ctx, 5*time.Second)
	defer cancel()
	entries, err := w.outbox.OldestRecords(ctx, flushBatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("fetching pending audit records failed")
		return
	}
	for _, entry := range entries {
		var record modelaudit.Record
		if err := json.Unmarshal(entry.Record, &record); err != nil {
			// a malformed outbox row would wedge the queue, drop it loudly
			w.log.Error().Err(err).Msg(fmt.Sprintf("dropping malformed audit outbox entry %d", entry.ID))
			if err := w.outbox.DeleteRecord(ctx, entry.ID); err != nil {
				w.log.Error().Err(err).Msg(fmt.Sprintf("deleting audit outbox entry %d failed", entry.ID))
				return
			}
			continue
		}
		sequence, err := w.sender.Send(ctx, record)
		if err != nil {
			w.log.Warn().Err(err).Msg(fmt.Sprintf("audit append failed for record %s, will retry", record.ID))
			return
		}
		if err := w.outbox.DeleteRecord(ctx, entry.ID); err != nil {
			w.log.Error().Err(err).Msg(fmt.Sprintf("deleting audit outbox entry %d failed", entry.ID))
			return
		}
		w.mu.Lock()
		w.checkpoint = sequence
		w.mu.Unlock()
		w.log.Info().Msg(fmt.Sprintf("audit record %s appended with sequence %d", record.ID, sequence))
	}
}
