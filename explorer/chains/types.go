package chains

// ChainId identifies a network the explorer knows about. Values are the EVM chain ids
// as decimal strings, which is also how the subgraphs and the frontend refer to them.
type ChainId string

const (
	Mainnet         ChainId = "1"
	OptimismMainnet ChainId = "10"
	FantomMainnet   ChainId = "250"
	FantomTestnet   ChainId = "4002"
	Goerli          ChainId = "5"

	// Unknown is the catch-all for any id not listed above. Lookups on it resolve to
	// the default record instead of failing.
	Unknown ChainId = "unknown"
)

// KnownChains lists every recognized chain in a stable order.
var KnownChains = []ChainId{
	Mainnet,
	OptimismMainnet,
	FantomMainnet,
	FantomTestnet,
	Goerli,
}

// String returns the raw chain id.
func (c ChainId) String() string {
	return string(c)
}

// IsKnown reports whether c is one of KnownChains.
func (c ChainId) IsKnown() bool {
	_, ok := builtinChains[c]
	return ok
}

// ParseChainId converts a raw id into a ChainId. Anything unrecognized becomes Unknown.
func ParseChainId(s string) ChainId {
	id := ChainId(s)
	if id.IsKnown() {
		return id
	}
	return Unknown
}

// ChainConfig is the static per-chain record held by the Registry.
type ChainConfig struct {
	Id              ChainId `json:"chain_id"`
	VerboseName     string  `json:"verbose_name"`
	GraphQLEndpoint string  `json:"graphql_endpoint"`
	// PriceSlug is the price API platform id, empty when the chain has no price coverage.
	PriceSlug string `json:"price_slug,omitempty"`
	Supported bool   `json:"supported"`
}

// HasPriceSlug reports whether prices can be looked up for this chain.
func (c ChainConfig) HasPriceSlug() bool {
	return c.PriceSlug != ""
}

// EndpointConfig carries the subgraph URLs read from the environment at start up.
// Empty entries fall back to the built-in subgraph URLs.
type EndpointConfig struct {
	Endpoints map[ChainId]string
	Default   string
}
