package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Cogwheel-Validator/grant-explorer/explorer/chains"
	"github.com/pelletier/go-toml/v2"
)

// ChainFile is the on-disk form of per-chain overrides:
//
//	[[chains]]
//	id = "10"
//	verbose_name = "OPTIMISM"
//	price_slug = "optimistic-ethereum"
type ChainFile struct {
	Chains []ChainFileEntry `toml:"chains" json:"chains"`
}

// ChainFileEntry overrides one built-in chain. Omitted keys keep the built-in value.
type ChainFileEntry struct {
	Id              string  `toml:"id" json:"id"`
	VerboseName     *string `toml:"verbose_name" json:"verbose_name"`
	GraphQLEndpoint *string `toml:"graphql_endpoint" json:"graphql_endpoint"`
	PriceSlug       *string `toml:"price_slug" json:"price_slug"`
}

// ChainConfigLoader loads chain override files and converts them to registry overrides.
type ChainConfigLoader struct{}

// NewChainConfigLoader creates a new chain config loader.
func NewChainConfigLoader() *ChainConfigLoader {
	return &ChainConfigLoader{}
}

// LoadFromFile reads a TOML or JSON chain file.
func (l *ChainConfigLoader) LoadFromFile(filePath string) ([]chains.Override, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain config file: %w", err)
	}

	var chainFile ChainFile

	if strings.HasSuffix(filePath, ".json") {
		if err := json.Unmarshal(data, &chainFile); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	} else {
		if err := toml.Unmarshal(data, &chainFile); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	}

	return l.ConvertToOverrides(&chainFile)
}

// ConvertToOverrides validates the entries and converts them to chains.Override values.
func (l *ChainConfigLoader) ConvertToOverrides(file *ChainFile) ([]chains.Override, error) {
	if file == nil || len(file.Chains) == 0 {
		return nil, fmt.Errorf("no chains in config")
	}

	seen := make(map[chains.ChainId]struct{}, len(file.Chains))
	overrides := make([]chains.Override, len(file.Chains))

	for i, entry := range file.Chains {
		id := chains.ParseChainId(entry.Id)
		if !id.IsKnown() {
			return nil, fmt.Errorf("chain %d: unknown chain id %q", i, entry.Id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("chain %d: duplicate chain id %q", i, entry.Id)
		}
		seen[id] = struct{}{}

		overrides[i] = chains.Override{
			Id:              id,
			VerboseName:     entry.VerboseName,
			GraphQLEndpoint: entry.GraphQLEndpoint,
			PriceSlug:       entry.PriceSlug,
		}
	}

	return overrides, nil
}
