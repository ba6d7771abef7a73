// Package publish fans recorded position events out to NATS JetStream so
// other services (notifications, analytics) can follow a user's history
// without polling the chain themselves.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"LendView/internal/event"
	"LendView/internal/observability"
)

// StreamName is the JetStream stream carrying history records.
const StreamName = "LENDVIEW_HISTORY"

// Record is the outbound wire form of one recorded event.
type Record struct {
	Kind         string    `json:"kind"`
	Asset        string    `json:"asset"`
	User         string    `json:"user"`
	Repayer      *string   `json:"repayer,omitempty"`
	Amount       string    `json:"amount"`
	ScaledAmount string    `json:"scaled_amount,omitempty"`
	TxHash       string    `json:"tx_hash"`
	LogIndex     uint      `json:"log_index"`
	BlockNumber  uint64    `json:"block_number"`
	Timestamp    time.Time `json:"timestamp"`
}

// Publisher forwards recorded events to JetStream. Subjects follow
// lendview.history.events.{kind}.{user}.
type Publisher struct {
	js      jetstream.JetStream
	in      chan event.PositionEvent
	metrics *observability.Metrics
	log     zerolog.Logger
}

// NewPublisher builds a publisher. metrics may be nil.
func NewPublisher(js jetstream.JetStream, metrics *observability.Metrics, log zerolog.Logger) *Publisher {
	return &Publisher{
		js:      js,
		in:      make(chan event.PositionEvent, 256),
		metrics: metrics,
		log:     log.With().Str("component", "publisher").Logger(),
	}
}

// Recorded queues an event for publishing without blocking the reconciler.
// A full buffer drops the record; downstream consumers tolerate gaps and the
// archive keeps the durable copy.
func (p *Publisher) Recorded(ev event.PositionEvent) {
	select {
	case p.in <- ev:
	default:
		if p.metrics != nil {
			p.metrics.PublishDrops.Inc()
		}
		p.log.Warn().Str("tx", ev.TxHash.Hex()).Msg("publish buffer full, record dropped")
	}
}

// Run drains the buffer until ctx ends.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-p.in:
			if err := p.publish(ctx, ev); err != nil {
				p.log.Warn().Err(err).Str("tx", ev.TxHash.Hex()).Msg("publish failed")
				continue
			}
			if p.metrics != nil {
				p.metrics.RecordsPublished.WithLabelValues(ev.Kind.String()).Inc()
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ev event.PositionEvent) error {
	rec := Record{
		Kind:        ev.Kind.String(),
		Asset:       ev.Asset.Hex(),
		User:        ev.User.Hex(),
		Amount:      ev.Amount.String(),
		TxHash:      ev.TxHash.Hex(),
		LogIndex:    ev.LogIndex,
		BlockNumber: ev.BlockNumber,
		Timestamp:   ev.Timestamp,
	}
	if ev.Repayer != nil {
		hex := ev.Repayer.Hex()
		rec.Repayer = &hex
	}
	if ev.ScaledAmount != nil {
		rec.ScaledAmount = ev.ScaledAmount.String()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	subject := fmt.Sprintf("lendview.history.events.%s.%s",
		strings.ToLower(rec.Kind), strings.ToLower(rec.User))
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// Connect establishes a NATS connection and returns a JetStream context.
func Connect(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}

// EnsureHistoryStream creates or updates the outbound stream.
func EnsureHistoryStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"lendview.history.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create history stream: %w", err)
	}
	return nil
}
