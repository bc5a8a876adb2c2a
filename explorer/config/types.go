package config

import (
	"time"

	"github.com/Cogwheel-Validator/grant-explorer/explorer/chains"
)

type ExplorerConfig struct {
	// http server configs
	Port           int           `mapstructure:"port" toml:"port"`
	Host           string        `mapstructure:"host" toml:"host"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" toml:"request_timeout"`

	// CORS configs
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins"`

	// rate limiting configs
	RatePerMinute         int `mapstructure:"rate_per_minute" toml:"rate_per_minute"`
	MaxConcurrentRequests int `mapstructure:"max_concurrent_requests" toml:"max_concurrent_requests"`

	// OpenTelemetry configs
	ServiceName    string `mapstructure:"service_name" toml:"service_name"`
	ServiceVersion string `mapstructure:"service_version" toml:"service_version"`
	Environment    string `mapstructure:"environment" toml:"environment"` // PROD, DEV, TEST, LOCAL
	EnableTracing  bool   `mapstructure:"enable_tracing" toml:"enable_tracing"`
	UseOTLPTraces  bool   `mapstructure:"use_otlp_traces" toml:"use_otlp_traces"`
	OTLPTracesURL  string `mapstructure:"otlp_traces_url" toml:"otlp_traces_url"`
	EnableMetrics  bool   `mapstructure:"enable_metrics" toml:"enable_metrics"`
	UsePrometheus  bool   `mapstructure:"use_prometheus" toml:"use_prometheus"`
	UseOTLPMetrics bool   `mapstructure:"use_otlp_metrics" toml:"use_otlp_metrics"`
	OTLPMetricsURL string `mapstructure:"otlp_metrics_url" toml:"otlp_metrics_url"`

	InsecureOTLP bool `mapstructure:"insecure_otlp" toml:"insecure_otlp"`

	// Development mode uses stdout exporters
	DevelopmentMode bool `mapstructure:"development_mode" toml:"development_mode"`

	// subgraph endpoints, empty keeps the built-in URL
	SubgraphMainnetAPI         string `mapstructure:"subgraph_mainnet_api" toml:"subgraph_mainnet_api"`
	SubgraphOptimismMainnetAPI string `mapstructure:"subgraph_optimism_mainnet_api" toml:"subgraph_optimism_mainnet_api"`
	SubgraphFantomMainnetAPI   string `mapstructure:"subgraph_fantom_mainnet_api" toml:"subgraph_fantom_mainnet_api"`
	SubgraphFantomTestnetAPI   string `mapstructure:"subgraph_fantom_testnet_api" toml:"subgraph_fantom_testnet_api"`
	SubgraphGoerliAPI          string `mapstructure:"subgraph_goerli_api" toml:"subgraph_goerli_api"`
	SubgraphDefaultAPI         string `mapstructure:"subgraph_default_api" toml:"subgraph_default_api"`

	// IPFS and price provider
	IPFSGateway string `mapstructure:"ipfs_gateway" toml:"ipfs_gateway"`
	PriceAPIURL string `mapstructure:"price_api_url" toml:"price_api_url"`
	PriceAPIKey string `mapstructure:"price_api_key" toml:"price_api_key"`
}

// Endpoints returns the subgraph endpoint configuration for the chain registry.
func (c *ExplorerConfig) Endpoints() chains.EndpointConfig {
	endpoints := map[chains.ChainId]string{}
	for id, url := range map[chains.ChainId]string{
		chains.Mainnet:         c.SubgraphMainnetAPI,
		chains.OptimismMainnet: c.SubgraphOptimismMainnetAPI,
		chains.FantomMainnet:   c.SubgraphFantomMainnetAPI,
		chains.FantomTestnet:   c.SubgraphFantomTestnetAPI,
		chains.Goerli:          c.SubgraphGoerliAPI,
	} {
		if url != "" {
			endpoints[id] = url
		}
	}
	return chains.EndpointConfig{
		Endpoints: endpoints,
		Default:   c.SubgraphDefaultAPI,
	}
}
