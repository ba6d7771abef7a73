package chain_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"LendView/internal/chain"
	"LendView/internal/event"
	"LendView/internal/testutil"
)

func mustDecoder(t *testing.T) *chain.EventDecoder {
	t.Helper()
	d, err := chain.NewEventDecoder()
	if err != nil {
		t.Fatalf("build decoder: %v", err)
	}
	return d
}

func sigTopic(t *testing.T, d *chain.EventDecoder, kind event.Kind) common.Hash {
	t.Helper()
	topic, ok := d.Topic(kind)
	if !ok {
		t.Fatalf("no topic for kind %s", kind)
	}
	return topic
}

// ============================================================================
// Test: decoding tracked emissions
// ============================================================================

func TestDecoder_DecodeDeposit(t *testing.T) {
	d := mustDecoder(t)
	asset := testutil.Addr(0xAA)
	user := testutil.Addr(0x01)

	log := types.Log{
		Topics: []common.Hash{
			sigTopic(t, d, event.KindDeposit),
			testutil.AddressTopic(asset),
			testutil.AddressTopic(user),
		},
		Data:        testutil.EncodeEventData(big.NewInt(1500), big.NewInt(1400), 1700000000),
		TxHash:      testutil.Hash(0x10),
		Index:       3,
		BlockNumber: 120,
	}

	ev, err := d.Decode(log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != event.KindDeposit {
		t.Errorf("kind: got %s, want Deposit", ev.Kind)
	}
	if ev.Asset != asset || ev.User != user {
		t.Errorf("addresses: got asset=%s user=%s", ev.Asset.Hex(), ev.User.Hex())
	}
	if ev.Amount.Cmp(big.NewInt(1500)) != 0 {
		t.Errorf("amount: got %s, want 1500", ev.Amount)
	}
	if ev.ScaledAmount.Cmp(big.NewInt(1400)) != 0 {
		t.Errorf("scaled amount: got %s, want 1400", ev.ScaledAmount)
	}
	if want := time.Unix(1700000000, 0).UTC(); !ev.Timestamp.Equal(want) {
		t.Errorf("timestamp: got %s, want %s", ev.Timestamp, want)
	}
	if ev.TxHash != log.TxHash || ev.LogIndex != 3 || ev.BlockNumber != 120 {
		t.Errorf("coordinates not carried over: %+v", ev.Coordinates)
	}
	if ev.Repayer != nil {
		t.Error("deposit must not carry a repayer")
	}
}

func TestDecoder_DecodeRepayCarriesRepayer(t *testing.T) {
	d := mustDecoder(t)
	asset := testutil.Addr(0xAA)
	debtor := testutil.Addr(0x01)
	repayer := testutil.Addr(0x02)

	log := types.Log{
		Topics: []common.Hash{
			sigTopic(t, d, event.KindRepay),
			testutil.AddressTopic(asset),
			testutil.AddressTopic(debtor),
			testutil.AddressTopic(repayer),
		},
		Data:        testutil.EncodeEventData(big.NewInt(900), big.NewInt(880), 1700000100),
		TxHash:      testutil.Hash(0x11),
		Index:       0,
		BlockNumber: 121,
	}

	ev, err := d.Decode(log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != event.KindRepay {
		t.Errorf("kind: got %s, want Repay", ev.Kind)
	}
	if ev.User != debtor {
		t.Errorf("user: got %s, want the debtor", ev.User.Hex())
	}
	if ev.Repayer == nil || *ev.Repayer != repayer {
		t.Errorf("repayer: got %v, want %s", ev.Repayer, repayer.Hex())
	}
}

// ============================================================================
// Test: rejects
// ============================================================================

func TestDecoder_RejectsUnknownTopic(t *testing.T) {
	d := mustDecoder(t)
	log := types.Log{
		Topics: []common.Hash{testutil.Hash(0xFF)},
		Data:   testutil.EncodeEventData(big.NewInt(1), big.NewInt(1), 1),
	}
	if _, err := d.Decode(log); err == nil {
		t.Error("unrecognized signature topic must fail to decode")
	}
}

func TestDecoder_RejectsEmptyTopics(t *testing.T) {
	d := mustDecoder(t)
	if _, err := d.Decode(types.Log{}); err == nil {
		t.Error("a log with no topics must fail to decode")
	}
}

func TestDecoder_RejectsRepayWithoutRepayerTopic(t *testing.T) {
	d := mustDecoder(t)
	log := types.Log{
		Topics: []common.Hash{
			sigTopic(t, d, event.KindRepay),
			testutil.AddressTopic(testutil.Addr(0xAA)),
			testutil.AddressTopic(testutil.Addr(0x01)),
		},
		Data: testutil.EncodeEventData(big.NewInt(1), big.NewInt(1), 1),
	}
	if _, err := d.Decode(log); err == nil {
		t.Error("repay logs without the repayer topic must fail to decode")
	}
}

func TestDecoder_RejectsTruncatedData(t *testing.T) {
	d := mustDecoder(t)
	log := types.Log{
		Topics: []common.Hash{
			sigTopic(t, d, event.KindDeposit),
			testutil.AddressTopic(testutil.Addr(0xAA)),
			testutil.AddressTopic(testutil.Addr(0x01)),
		},
		Data: make([]byte, 32),
	}
	if _, err := d.Decode(log); err == nil {
		t.Error("truncated data section must fail to decode")
	}
}

func TestDecoder_TopicsAreDistinctPerKind(t *testing.T) {
	d := mustDecoder(t)
	seen := make(map[common.Hash]event.Kind)
	for _, kind := range event.Kinds() {
		topic := sigTopic(t, d, kind)
		if prev, dup := seen[topic]; dup {
			t.Errorf("kinds %s and %s share topic %s", prev, kind, topic.Hex())
		}
		seen[topic] = kind
	}
}
