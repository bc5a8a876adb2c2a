// Package chains holds the static chain table: subgraph endpoints, display names and the
// price API platform slugs used for denomination.
package chains

import (
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultGraphQLEndpoint serves any chain id that is not recognized.
	DefaultGraphQLEndpoint = "https://api.thegraph.com/subgraphs/name/thelostone-mc/round-labs"
	// DefaultVerboseName is the label for any chain id that is not recognized.
	DefaultVerboseName = "LOCAL_ROUND_LAB"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "chains").Logger()
}

var builtinChains = map[ChainId]ChainConfig{
	Mainnet: {
		Id:              Mainnet,
		VerboseName:     "MAINNET",
		GraphQLEndpoint: "https://api.thegraph.com/subgraphs/name/gitcoinco/grants-round-mainnet",
		PriceSlug:       "ethereum",
		Supported:       true,
	},
	OptimismMainnet: {
		Id:              OptimismMainnet,
		VerboseName:     "OPTIMISM_MAINNET",
		GraphQLEndpoint: "https://api.thegraph.com/subgraphs/name/gitcoinco/grants-round-optimism-mainnet",
		PriceSlug:       "optimistic-ethereum",
		Supported:       true,
	},
	FantomMainnet: {
		Id:              FantomMainnet,
		VerboseName:     "FANTOM_MAINNET",
		GraphQLEndpoint: "https://api.thegraph.com/subgraphs/name/gitcoinco/grants-round-fantom-mainnet",
		PriceSlug:       "fantom",
		Supported:       true,
	},
	// no price provider lists testnet markets
	FantomTestnet: {
		Id:              FantomTestnet,
		VerboseName:     "FANTOM_TESTNET",
		GraphQLEndpoint: "https://api.thegraph.com/subgraphs/name/gitcoinco/grants-round-fantom-testnet",
		Supported:       true,
	},
	Goerli: {
		Id:              Goerli,
		VerboseName:     "GOERLI",
		GraphQLEndpoint: "https://api.thegraph.com/subgraphs/name/gitcoinco/grants-round-goerli-testnet",
		Supported:       true,
	},
}

// Override replaces parts of a built-in chain record. Nil fields keep the built-in value;
// an empty PriceSlug disables price lookups for the chain.
type Override struct {
	Id              ChainId
	VerboseName     *string
	GraphQLEndpoint *string
	PriceSlug       *string
}

// Option configures a Registry.
type Option func(*Registry)

// WithOverrides applies per-chain overrides, usually loaded from a chain file.
// Overrides for unrecognized ids are ignored.
func WithOverrides(overrides ...Override) Option {
	return func(r *Registry) {
		for _, o := range overrides {
			cfg, ok := r.chains[o.Id]
			if !ok {
				log.Warn().Str("chain_id", o.Id.String()).Msg("Ignoring override for unknown chain")
				continue
			}
			if o.VerboseName != nil {
				cfg.VerboseName = *o.VerboseName
			}
			if o.GraphQLEndpoint != nil && *o.GraphQLEndpoint != "" {
				cfg.GraphQLEndpoint = *o.GraphQLEndpoint
			}
			if o.PriceSlug != nil {
				cfg.PriceSlug = *o.PriceSlug
			}
			r.chains[o.Id] = cfg
		}
	}
}

// Registry resolves chain ids to their static configuration. It is never mutated after
// NewRegistry returns, so it is safe for concurrent use.
type Registry struct {
	chains       map[ChainId]ChainConfig
	defaultChain ChainConfig
}

// NewRegistry builds the chain table. Endpoints from cfg take precedence over the built-in
// subgraph URLs; overrides passed as options are applied last.
func NewRegistry(cfg EndpointConfig, opts ...Option) *Registry {
	r := &Registry{
		chains: make(map[ChainId]ChainConfig, len(builtinChains)),
		defaultChain: ChainConfig{
			Id:              Unknown,
			VerboseName:     DefaultVerboseName,
			GraphQLEndpoint: DefaultGraphQLEndpoint,
		},
	}
	if cfg.Default != "" {
		r.defaultChain.GraphQLEndpoint = cfg.Default
	}

	for id, chain := range builtinChains {
		if endpoint := cfg.Endpoints[id]; endpoint != "" {
			chain.GraphQLEndpoint = endpoint
		}
		r.chains[id] = chain
	}

	for _, opt := range opts {
		opt(r)
	}

	log.Debug().Int("chains", len(r.chains)).Msg("Chain registry initialized")
	return r
}

// Lookup returns the record for id, or the default record when id is not recognized.
func (r *Registry) Lookup(id ChainId) ChainConfig {
	if chain, ok := r.chains[id]; ok {
		return chain
	}
	return r.defaultChain
}

// ResolveEndpoint returns the subgraph URL for id.
func (r *Registry) ResolveEndpoint(id ChainId) string {
	return r.Lookup(id).GraphQLEndpoint
}

// ResolveVerboseName returns the display name for id.
func (r *Registry) ResolveVerboseName(id ChainId) string {
	return r.Lookup(id).VerboseName
}

// ResolvePriceSlug returns the price API platform slug for id. The second value is false
// when the chain has no price coverage.
func (r *Registry) ResolvePriceSlug(id ChainId) (string, bool) {
	chain := r.Lookup(id)
	return chain.PriceSlug, chain.HasPriceSlug()
}

// Chains returns all known chain records ordered by numeric chain id.
func (r *Registry) Chains() []ChainConfig {
	out := make([]ChainConfig, 0, len(r.chains))
	for _, chain := range r.chains {
		out = append(out, chain)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Id.String(), out[j].Id.String()
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
	return out
}
