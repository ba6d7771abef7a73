package assets

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Asset describes one supported underlying reserve. The registry is the
// static per-asset configuration table; dynamic reserve state comes from the
// chain reader.
type Asset struct {
	Symbol      string
	Name        string
	Decimals    uint8
	Underlying  common.Address
	AToken      common.Address
	Interactive bool // false for browse-only listings
}

// DefaultAssets returns the built-in asset table. Deployments override it
// with a TOML registry file.
var DefaultAssets = map[common.Address]Asset{
	common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"): {
		Symbol:      "mDAI",
		Name:        "Mock DAI",
		Decimals:    18,
		Underlying:  common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"),
		Interactive: true,
	},
	common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0"): {
		Symbol:      "mUSDC",
		Name:        "Mock USDC",
		Decimals:    6,
		Underlying:  common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0"),
		Interactive: true,
	},
	common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"): {
		Symbol:     "USDC",
		Name:       "USD Coin",
		Decimals:   6,
		Underlying: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
	},
	common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"): {
		Symbol:     "DAI",
		Name:       "Dai Stablecoin",
		Decimals:   18,
		Underlying: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
	},
	common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"): {
		Symbol:     "USDT",
		Name:       "Tether USD",
		Decimals:   6,
		Underlying: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
	},
	common.HexToAddress("0x514910771AF9Ca656af840dff83E8264EcF986CA"): {
		Symbol:     "LINK",
		Name:       "Chainlink",
		Decimals:   18,
		Underlying: common.HexToAddress("0x514910771AF9Ca656af840dff83E8264EcF986CA"),
	},
}

// Registry is an immutable lookup of supported assets keyed by underlying
// address. Build it once at startup; concurrent reads are safe.
type Registry struct {
	byAddress map[common.Address]Asset
	ordered   []common.Address
}

// NewRegistry builds a registry from an asset table.
func NewRegistry(table map[common.Address]Asset) (*Registry, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("asset registry must not be empty")
	}
	byAddress := make(map[common.Address]Asset, len(table))
	ordered := make([]common.Address, 0, len(table))
	for addr, a := range table {
		if a.Symbol == "" {
			return nil, fmt.Errorf("asset %s: symbol required", addr.Hex())
		}
		if a.Decimals == 0 || a.Decimals > 36 {
			return nil, fmt.Errorf("asset %s: implausible decimals %d", a.Symbol, a.Decimals)
		}
		a.Underlying = addr
		byAddress[addr] = a
		ordered = append(ordered, addr)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return byAddress[ordered[i]].Symbol < byAddress[ordered[j]].Symbol
	})
	return &Registry{byAddress: byAddress, ordered: ordered}, nil
}

// DefaultRegistry builds a registry from the built-in table.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultAssets)
	if err != nil {
		panic(err) // built-in table is validated by tests
	}
	return r
}

// Lookup returns the asset config for an underlying address.
func (r *Registry) Lookup(addr common.Address) (Asset, bool) {
	a, ok := r.byAddress[addr]
	return a, ok
}

// Symbol returns the configured symbol, or a truncated address for unknown
// assets so raw events still render.
func (r *Registry) Symbol(addr common.Address) string {
	if a, ok := r.byAddress[addr]; ok {
		return a.Symbol
	}
	hex := addr.Hex()
	return hex[:6] + "..."
}

// Decimals returns the configured precision, defaulting to 18 for unknown
// assets.
func (r *Registry) Decimals(addr common.Address) uint8 {
	if a, ok := r.byAddress[addr]; ok {
		return a.Decimals
	}
	return 18
}

// Addresses returns all registered underlying addresses in symbol order.
func (r *Registry) Addresses() []common.Address {
	out := make([]common.Address, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Len returns the number of registered assets.
func (r *Registry) Len() int {
	return len(r.ordered)
}

// Reconcile compares the registry against the pool's on-chain reserve list.
// unlisted holds on-chain reserves the registry does not know about; stale
// holds registered assets the pool no longer supports. Both come back in
// deterministic order.
func (r *Registry) Reconcile(onchain []common.Address) (unlisted, stale []common.Address) {
	seen := make(map[common.Address]bool, len(onchain))
	for _, addr := range onchain {
		seen[addr] = true
		if _, ok := r.byAddress[addr]; !ok {
			unlisted = append(unlisted, addr)
		}
	}
	for _, addr := range r.ordered {
		if !seen[addr] {
			stale = append(stale, addr)
		}
	}
	sort.Slice(unlisted, func(i, j int) bool {
		return unlisted[i].Hex() < unlisted[j].Hex()
	})
	return unlisted, stale
}
