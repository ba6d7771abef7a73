package assets_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"LendView/internal/assets"
)

// ============================================================================
// Test: registry construction
// ============================================================================

func TestNewRegistry_RejectsEmptyTable(t *testing.T) {
	if _, err := assets.NewRegistry(nil); err == nil {
		t.Error("empty table must be rejected")
	}
}

func TestNewRegistry_RejectsMissingSymbol(t *testing.T) {
	table := map[common.Address]assets.Asset{
		common.HexToAddress("0x01"): {Decimals: 18},
	}
	if _, err := assets.NewRegistry(table); err == nil {
		t.Error("asset without a symbol must be rejected")
	}
}

func TestNewRegistry_RejectsImplausibleDecimals(t *testing.T) {
	for _, decimals := range []uint8{0, 37} {
		table := map[common.Address]assets.Asset{
			common.HexToAddress("0x01"): {Symbol: "X", Decimals: decimals},
		}
		if _, err := assets.NewRegistry(table); err == nil {
			t.Errorf("decimals %d must be rejected", decimals)
		}
	}
}

func TestNewRegistry_KeysOverrideUnderlyingField(t *testing.T) {
	key := common.HexToAddress("0x0000000000000000000000000000000000000001")
	table := map[common.Address]assets.Asset{
		key: {Symbol: "X", Decimals: 18, Underlying: common.HexToAddress("0x02")},
	}
	r, err := assets.NewRegistry(table)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	a, ok := r.Lookup(key)
	if !ok {
		t.Fatal("asset not found under its table key")
	}
	if a.Underlying != key {
		t.Errorf("underlying: got %s, want the table key", a.Underlying.Hex())
	}
}

func TestDefaultRegistry_IsValid(t *testing.T) {
	r := assets.DefaultRegistry()
	if r.Len() == 0 {
		t.Fatal("built-in table is empty")
	}
	for _, addr := range r.Addresses() {
		a, ok := r.Lookup(addr)
		if !ok {
			t.Fatalf("address %s listed but not found", addr.Hex())
		}
		if a.Symbol == "" || a.Decimals == 0 {
			t.Errorf("asset %s incompletely configured: %+v", addr.Hex(), a)
		}
	}
}

// ============================================================================
// Test: lookups
// ============================================================================

func TestRegistry_SymbolFallsBackToTruncatedAddress(t *testing.T) {
	r := assets.DefaultRegistry()
	unknown := common.HexToAddress("0xDEAdbeef00000000000000000000000000000000")

	got := r.Symbol(unknown)
	want := unknown.Hex()[:6] + "..."
	if got != want {
		t.Errorf("symbol fallback: got %q, want %q", got, want)
	}
}

func TestRegistry_DecimalsDefaultTo18ForUnknownAssets(t *testing.T) {
	r := assets.DefaultRegistry()
	if got := r.Decimals(common.HexToAddress("0xDEAd")); got != 18 {
		t.Errorf("decimals fallback: got %d, want 18", got)
	}
}

func TestRegistry_AddressesAreSymbolOrdered(t *testing.T) {
	r := assets.DefaultRegistry()
	addrs := r.Addresses()
	for i := 1; i < len(addrs); i++ {
		prev := r.Symbol(addrs[i-1])
		cur := r.Symbol(addrs[i])
		if prev > cur {
			t.Errorf("addresses out of symbol order: %q before %q", prev, cur)
		}
	}
}

// ============================================================================
// Test: reconciliation against the pool
// ============================================================================

func TestRegistry_ReconcileAgreement(t *testing.T) {
	r := assets.DefaultRegistry()
	unlisted, stale := r.Reconcile(r.Addresses())
	if len(unlisted) != 0 || len(stale) != 0 {
		t.Errorf("a registry matching the pool must reconcile cleanly: unlisted %v stale %v", unlisted, stale)
	}
}

func TestRegistry_ReconcileReportsMismatches(t *testing.T) {
	daiOnly := map[common.Address]assets.Asset{
		common.HexToAddress("0x01"): {Symbol: "mDAI", Decimals: 18},
	}
	r, err := assets.NewRegistry(daiOnly)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	onchain := []common.Address{common.HexToAddress("0x02")}
	unlisted, stale := r.Reconcile(onchain)

	if len(unlisted) != 1 || unlisted[0] != common.HexToAddress("0x02") {
		t.Errorf("unlisted: got %v, want the unregistered pool reserve", unlisted)
	}
	if len(stale) != 1 || stale[0] != common.HexToAddress("0x01") {
		t.Errorf("stale: got %v, want the registered asset the pool dropped", stale)
	}
}

// ============================================================================
// Test: TOML registry files
// ============================================================================

func writeRegistryFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assets.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write registry file: %v", err)
	}
	return path
}

func TestLoadRegistry_ParsesAssets(t *testing.T) {
	path := writeRegistryFile(t, `
[[asset]]
symbol = "mDAI"
name = "Mock DAI"
decimals = 18
underlying = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
atoken = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
interactive = true

[[asset]]
symbol = "mUSDC"
name = "Mock USDC"
decimals = 6
underlying = "0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0"
interactive = true
`)

	r, err := assets.LoadRegistry(path)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("len: got %d, want 2", r.Len())
	}

	dai, ok := r.Lookup(common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"))
	if !ok {
		t.Fatal("mDAI not found")
	}
	if dai.Symbol != "mDAI" || dai.Decimals != 18 || !dai.Interactive {
		t.Errorf("mDAI misparsed: %+v", dai)
	}
	if dai.AToken != common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3") {
		t.Errorf("atoken misparsed: %s", dai.AToken.Hex())
	}
}

func TestLoadRegistry_RejectsBadFiles(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"no entries", `# empty`},
		{
			"invalid underlying address",
			"[[asset]]\nsymbol = \"X\"\ndecimals = 18\nunderlying = \"not-an-address\"\n",
		},
		{
			"duplicate underlying address",
			"[[asset]]\nsymbol = \"A\"\ndecimals = 18\nunderlying = \"0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512\"\n" +
				"[[asset]]\nsymbol = \"B\"\ndecimals = 6\nunderlying = \"0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512\"\n",
		},
		{
			"invalid atoken address",
			"[[asset]]\nsymbol = \"X\"\ndecimals = 18\nunderlying = \"0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512\"\natoken = \"zzz\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeRegistryFile(t, tt.contents)
			if _, err := assets.LoadRegistry(path); err == nil {
				t.Error("expected a load error")
			}
		})
	}
}

func TestLoadRegistry_MissingFile(t *testing.T) {
	if _, err := assets.LoadRegistry(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("missing file must error")
	}
}
