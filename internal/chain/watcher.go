package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"LendView/internal/event"
	"LendView/internal/observability"
)

// LogSource is the subset of the Ethereum RPC used for live log delivery.
// Satisfied by *ethclient.Client.
type LogSource interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// Watcher opens per-category subscriptions to the pool's position events.
type Watcher struct {
	source  LogSource
	pool    common.Address
	decoder *EventDecoder
	metrics *observability.Metrics
}

// NewWatcher binds a watcher to a log source and pool address. metrics may
// be nil.
func NewWatcher(source LogSource, pool common.Address, metrics *observability.Metrics) (*Watcher, error) {
	decoder, err := NewEventDecoder()
	if err != nil {
		return nil, err
	}
	return &Watcher{source: source, pool: pool, decoder: decoder, metrics: metrics}, nil
}

// WatchHandle is a cancellable live event subscription for one category.
// Events and Errs close after Unsubscribe returns or the parent context ends.
type WatchHandle struct {
	Kind   event.Kind
	Events <-chan event.PositionEvent
	Errs   <-chan error

	cancel    context.CancelFunc
	done      <-chan struct{}
	closeOnce sync.Once
}

// Unsubscribe tears the subscription down and waits for the delivery
// goroutine to exit. Safe to call more than once.
func (h *WatchHandle) Unsubscribe() {
	h.closeOnce.Do(func() {
		h.cancel()
		<-h.done
	})
}

// Watch subscribes to one event category. Deposit, withdraw, and borrow
// subscriptions are scoped server-side to the user's indexed topic; repay is
// left unscoped because relevance may hinge on the repayer topic instead, so
// the consumer re-validates locally in every case.
func (w *Watcher) Watch(ctx context.Context, kind event.Kind, user common.Address) (*WatchHandle, error) {
	topic, ok := w.decoder.Topic(kind)
	if !ok {
		return nil, fmt.Errorf("no topic for event kind %s", kind)
	}

	query := ethereum.FilterQuery{
		Addresses: []common.Address{w.pool},
		Topics:    [][]common.Hash{{topic}},
	}
	if kind != event.KindRepay {
		userTopic := common.BytesToHash(user.Bytes())
		query.Topics = append(query.Topics, nil, []common.Hash{userTopic})
	}

	subCtx, cancel := context.WithCancel(ctx)

	raw := make(chan types.Log, 64)
	sub, err := w.source.SubscribeFilterLogs(subCtx, query, raw)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s logs: %w", kind, err)
	}

	events := make(chan event.PositionEvent, 64)
	errs := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(events)
		defer close(errs)
		defer sub.Unsubscribe()
		for {
			select {
			case <-subCtx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					select {
					case errs <- fmt.Errorf("%s subscription: %w", kind, err):
					default:
					}
				}
				return
			case log := <-raw:
				decoded, err := w.decoder.Decode(log)
				if err != nil {
					if w.metrics != nil {
						w.metrics.EventsDecodeErrors.Inc()
					}
					select {
					case errs <- fmt.Errorf("decode %s log: %w", kind, err):
					default:
					}
					continue
				}
				select {
				case events <- *decoded:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &WatchHandle{
		Kind:   kind,
		Events: events,
		Errs:   errs,
		cancel: cancel,
		done:   done,
	}, nil
}
