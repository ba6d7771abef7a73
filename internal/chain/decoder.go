package chain

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"LendView/internal/event"
)

const poolEventsABI = `[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"asset","type":"address"},{"indexed":true,"name":"user","type":"address"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"scaledAmount","type":"uint256"},{"indexed":false,"name":"timestamp","type":"uint256"}],"name":"Deposited","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"asset","type":"address"},{"indexed":true,"name":"user","type":"address"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"scaledAmount","type":"uint256"},{"indexed":false,"name":"timestamp","type":"uint256"}],"name":"Withdrawn","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"asset","type":"address"},{"indexed":true,"name":"user","type":"address"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"scaledAmount","type":"uint256"},{"indexed":false,"name":"timestamp","type":"uint256"}],"name":"Borrowed","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"asset","type":"address"},{"indexed":true,"name":"user","type":"address"},{"indexed":true,"name":"repayer","type":"address"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"scaledAmount","type":"uint256"},{"indexed":false,"name":"timestamp","type":"uint256"}],"name":"Repaid","type":"event"}
]`

var eventKindByName = map[string]event.Kind{
	"Deposited": event.KindDeposit,
	"Withdrawn": event.KindWithdraw,
	"Borrowed":  event.KindBorrow,
	"Repaid":    event.KindRepay,
}

// EventDecoder converts raw pool logs into typed position events.
type EventDecoder struct {
	parsed     abi.ABI
	byTopic    map[common.Hash]abi.Event
	kindTopics map[event.Kind]common.Hash
}

// NewEventDecoder parses the pool event ABI and indexes signatures.
func NewEventDecoder() (*EventDecoder, error) {
	parsed, err := abi.JSON(strings.NewReader(poolEventsABI))
	if err != nil {
		return nil, fmt.Errorf("parse pool events ABI: %w", err)
	}
	d := &EventDecoder{
		parsed:     parsed,
		byTopic:    make(map[common.Hash]abi.Event, len(eventKindByName)),
		kindTopics: make(map[event.Kind]common.Hash, len(eventKindByName)),
	}
	for name, kind := range eventKindByName {
		ev, ok := parsed.Events[name]
		if !ok {
			return nil, fmt.Errorf("%s event missing from ABI", name)
		}
		d.byTopic[ev.ID] = ev
		d.kindTopics[kind] = ev.ID
	}
	return d, nil
}

// Topic returns the signature topic for an event kind.
func (d *EventDecoder) Topic(kind event.Kind) (common.Hash, bool) {
	topic, ok := d.kindTopics[kind]
	return topic, ok
}

// Decode parses one pool log into a PositionEvent. Logs that are not one of
// the four tracked emissions return an error.
func (d *EventDecoder) Decode(log types.Log) (*event.PositionEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log has no topics")
	}
	ev, ok := d.byTopic[log.Topics[0]]
	if !ok {
		return nil, fmt.Errorf("unrecognized event topic %s", log.Topics[0].Hex())
	}

	values := make(map[string]interface{})

	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse %s topics: %w", ev.Name, err)
	}
	if err := d.parsed.UnpackIntoMap(values, ev.Name, log.Data); err != nil {
		return nil, fmt.Errorf("unpack %s data: %w", ev.Name, err)
	}

	asset, ok := values["asset"].(common.Address)
	if !ok {
		return nil, fmt.Errorf("%s: missing asset", ev.Name)
	}
	user, ok := values["user"].(common.Address)
	if !ok {
		return nil, fmt.Errorf("%s: missing user", ev.Name)
	}
	amount, ok := values["amount"].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: missing amount", ev.Name)
	}
	scaled, ok := values["scaledAmount"].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: missing scaledAmount", ev.Name)
	}
	ts, ok := values["timestamp"].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: missing timestamp", ev.Name)
	}

	decoded := &event.PositionEvent{
		Kind:         eventKindByName[ev.Name],
		Asset:        asset,
		User:         user,
		Amount:       amount,
		ScaledAmount: scaled,
		Timestamp:    time.Unix(ts.Int64(), 0).UTC(),
		Coordinates: event.Coordinates{
			TxHash:      log.TxHash,
			LogIndex:    log.Index,
			BlockNumber: log.BlockNumber,
		},
	}
	if decoded.Kind == event.KindRepay {
		repayer, ok := values["repayer"].(common.Address)
		if !ok {
			return nil, fmt.Errorf("Repaid: missing repayer")
		}
		decoded.Repayer = &repayer
	}
	return decoded, nil
}
