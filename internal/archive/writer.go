// Package archive persists recorded position events to Postgres. The
// in-memory ledger stays the source of truth for the visible history; the
// archive is a durable downstream copy for analytics and support tooling.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"LendView/internal/event"
	"LendView/internal/observability"
)

// Schema creates the archive table. Applied by cmd/migrate.
const Schema = `
CREATE SCHEMA IF NOT EXISTS history;

CREATE TABLE IF NOT EXISTS history.position_events (
	tx_hash       TEXT        NOT NULL,
	log_index     BIGINT      NOT NULL,
	block_number  BIGINT      NOT NULL,
	kind          TEXT        NOT NULL,
	asset         TEXT        NOT NULL,
	user_addr     TEXT        NOT NULL,
	repayer_addr  TEXT,
	amount        NUMERIC(78) NOT NULL,
	scaled_amount NUMERIC(78),
	occurred_at   TIMESTAMPTZ NOT NULL,
	archived_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tx_hash, log_index)
);

CREATE INDEX IF NOT EXISTS position_events_user_idx
	ON history.position_events (user_addr, block_number DESC);
`

// Writer batches recorded events into history.position_events with multi-row
// INSERT. The primary key mirrors the ledger's dedup coordinate, so replays
// across restarts land as conflicts and are dropped by the database.
type Writer struct {
	db           *sql.DB
	in           chan event.PositionEvent
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

// NewWriter builds an archive writer. Zero batchSize or flushTimeout select
// working defaults. metrics may be nil.
func NewWriter(db *sql.DB, batchSize int, flushTimeout time.Duration, metrics *observability.Metrics, log zerolog.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = 50
	}
	if flushTimeout <= 0 {
		flushTimeout = 500 * time.Millisecond
	}
	return &Writer{
		db:           db,
		in:           make(chan event.PositionEvent, 256),
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          log.With().Str("component", "archive").Logger(),
	}
}

// Recorded queues an event for archiving without blocking the reconciler. A
// full buffer drops the event; the ledger already holds it and the archive
// is best effort.
func (w *Writer) Recorded(ev event.PositionEvent) {
	select {
	case w.in <- ev:
	default:
		if w.metrics != nil {
			w.metrics.ArchiveErrors.Inc()
		}
		w.log.Warn().Str("tx", ev.TxHash.Hex()).Msg("archive buffer full, event dropped")
	}
}

// Run drains the buffer until ctx ends, flushing on batch size or timeout.
func (w *Writer) Run(ctx context.Context) error {
	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	batch := make([]event.PositionEvent, 0, w.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.writeBatch(ctx, batch); err != nil {
			if w.metrics != nil {
				w.metrics.ArchiveErrors.Inc()
			}
			w.log.Error().Err(err).Int("batch", len(batch)).Msg("archive write failed")
		} else if w.metrics != nil {
			w.metrics.ArchiveRowsWritten.Add(float64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if len(batch) > 0 {
				if err := w.writeBatch(flushCtx, batch); err != nil {
					w.log.Error().Err(err).Msg("final archive flush failed")
				}
			}
			cancel()
			return ctx.Err()

		case ev := <-w.in:
			batch = append(batch, ev)
			if len(batch) >= w.batchSize {
				flush()
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			flush()
			timer.Reset(w.flushTimeout)
		}
	}
}

func (w *Writer) writeBatch(ctx context.Context, events []event.PositionEvent) error {
	query := `INSERT INTO history.position_events
		(tx_hash, log_index, block_number, kind, asset, user_addr, repayer_addr, amount, scaled_amount, occurred_at)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*10)

	for i, ev := range events {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))

		var repayer *string
		if ev.Repayer != nil {
			hex := ev.Repayer.Hex()
			repayer = &hex
		}
		var scaled *string
		if ev.ScaledAmount != nil {
			s := ev.ScaledAmount.String()
			scaled = &s
		}
		args = append(args,
			ev.TxHash.Hex(), int64(ev.LogIndex), int64(ev.BlockNumber),
			ev.Kind.String(), ev.Asset.Hex(), ev.User.Hex(), repayer,
			ev.Amount.String(), scaled, ev.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (tx_hash, log_index) DO NOTHING"

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}
