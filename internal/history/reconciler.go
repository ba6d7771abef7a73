package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"LendView/internal/chain"
	"LendView/internal/event"
	"LendView/internal/observability"
)

// RecordSink receives every event newly inserted into a ledger. Duplicates
// never reach a sink. Implementations must not block; slow consumers buffer
// or drop on their side.
type RecordSink interface {
	Recorded(ev event.PositionEvent)
}

// Reconciler drives one user's event history. It holds one subscription per
// event category, filters deliveries down to the session user, and feeds the
// ledger. Categories are isolated: an error on one subscription is logged and
// counted without disturbing the others.
type Reconciler struct {
	watcher *chain.Watcher
	ledger  *Ledger
	user    common.Address
	metrics *observability.Metrics
	log     zerolog.Logger
	sinks   []RecordSink

	mu      sync.Mutex
	handles []*chain.WatchHandle
	wg      sync.WaitGroup
	started bool
}

// NewReconciler wires a reconciler for one user. metrics may be nil; sinks
// observe every newly recorded event.
func NewReconciler(watcher *chain.Watcher, ledger *Ledger, user common.Address, metrics *observability.Metrics, log zerolog.Logger, sinks ...RecordSink) *Reconciler {
	return &Reconciler{
		watcher: watcher,
		ledger:  ledger,
		user:    user,
		metrics: metrics,
		log:     log.With().Str("component", "reconciler").Str("user", user.Hex()).Logger(),
		sinks:   sinks,
	}
}

// Ledger returns the ledger this reconciler feeds.
func (r *Reconciler) Ledger() *Ledger {
	return r.ledger
}

// Start opens one subscription per event category and begins consuming. If
// any subscription fails to open, the ones already opened are torn down and
// the error is returned.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("reconciler already started")
	}

	for _, kind := range event.Kinds() {
		handle, err := r.watcher.Watch(ctx, kind, r.user)
		if err != nil {
			for _, h := range r.handles {
				h.Unsubscribe()
			}
			r.handles = nil
			return fmt.Errorf("subscribe %s: %w", kind, err)
		}
		r.handles = append(r.handles, handle)
	}

	for _, handle := range r.handles {
		r.wg.Add(1)
		go r.consume(handle)
	}
	r.started = true

	r.log.Info().Int("subscriptions", len(r.handles)).Msg("event reconciliation started")
	return nil
}

// consume drains one category's channels until they close.
func (r *Reconciler) consume(handle *chain.WatchHandle) {
	defer r.wg.Done()

	kind := handle.Kind.String()
	events, errs := handle.Events, handle.Errs

	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.apply(kind, ev)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if r.metrics != nil {
				r.metrics.SubscriptionErrors.WithLabelValues(kind).Inc()
			}
			r.log.Warn().Err(err).Str("kind", kind).Msg("subscription error")
		}
	}
}

func (r *Reconciler) apply(kind string, ev event.PositionEvent) {
	if r.metrics != nil {
		r.metrics.EventsObserved.WithLabelValues(kind).Inc()
	}

	// The repay subscription is not user-scoped server-side, and filters can
	// change underneath a resubscribe. Membership is always re-derived here.
	if !ev.ConcernsUser(r.user) {
		if r.metrics != nil {
			r.metrics.EventsDiscarded.WithLabelValues(kind).Inc()
		}
		return
	}

	inserted := r.ledger.Record(ev)
	if r.metrics != nil {
		if !inserted {
			r.metrics.EventsDeduplicated.WithLabelValues(kind).Inc()
		}
		r.metrics.HistorySize.Set(float64(r.ledger.Len()))
	}

	if inserted {
		for _, sink := range r.sinks {
			sink.Recorded(ev)
		}
		r.log.Debug().
			Str("kind", kind).
			Str("tx", ev.TxHash.Hex()).
			Uint("log_index", ev.LogIndex).
			Msg("event recorded")
	}
}

// Close tears down every subscription and waits for the consumers to drain.
// Safe to call more than once.
func (r *Reconciler) Close() {
	r.mu.Lock()
	handles := r.handles
	r.handles = nil
	r.mu.Unlock()

	for _, h := range handles {
		h.Unsubscribe()
	}
	r.wg.Wait()
}
