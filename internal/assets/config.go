package assets

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// registryFile is the TOML shape of an asset registry file:
//
//	[[asset]]
//	symbol = "mDAI"
//	name = "Mock DAI"
//	decimals = 18
//	underlying = "0xe7f1...0512"
//	interactive = true
type registryFile struct {
	Assets []assetEntry `toml:"asset"`
}

type assetEntry struct {
	Symbol      string `toml:"symbol"`
	Name        string `toml:"name"`
	Decimals    uint8  `toml:"decimals"`
	Underlying  string `toml:"underlying"`
	AToken      string `toml:"atoken"`
	Interactive bool   `toml:"interactive"`
}

// LoadRegistry reads an asset registry from a TOML file. The file fully
// replaces the built-in table.
func LoadRegistry(path string) (*Registry, error) {
	var file registryFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("decode asset registry %s: %w", path, err)
	}
	if len(file.Assets) == 0 {
		return nil, fmt.Errorf("asset registry %s: no [[asset]] entries", path)
	}

	table := make(map[common.Address]Asset, len(file.Assets))
	for _, e := range file.Assets {
		if !common.IsHexAddress(e.Underlying) {
			return nil, fmt.Errorf("asset %q: invalid underlying address %q", e.Symbol, e.Underlying)
		}
		addr := common.HexToAddress(e.Underlying)
		if _, dup := table[addr]; dup {
			return nil, fmt.Errorf("asset %q: duplicate underlying address %s", e.Symbol, addr.Hex())
		}
		a := Asset{
			Symbol:      e.Symbol,
			Name:        e.Name,
			Decimals:    e.Decimals,
			Underlying:  addr,
			Interactive: e.Interactive,
		}
		if e.AToken != "" {
			if !common.IsHexAddress(e.AToken) {
				return nil, fmt.Errorf("asset %q: invalid atoken address %q", e.Symbol, e.AToken)
			}
			a.AToken = common.HexToAddress(e.AToken)
		}
		table[addr] = a
	}

	return NewRegistry(table)
}
