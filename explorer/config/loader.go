package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Cogwheel-Validator/grant-explorer/explorer/ipfs"
	pricequery "github.com/Cogwheel-Validator/grant-explorer/explorer/price_query"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultPort           = 8080
	DefaultHost           = "0.0.0.0"
	DefaultRequestTimeout = 30 * time.Second
)

// LoadExplorerConfig loads the explorer config from the given path. A nil path reads
// EXPLORER_* environment variables instead.
func LoadExplorerConfig(configPath *string) (*ExplorerConfig, error) {
	v := viper.New()
	setDefaults(v)

	if configPath == nil {
		// if no file expect envs
		config, err := loadEnv(v)
		if err != nil {
			return nil, fmt.Errorf("failed to load env config: %w", err)
		}
		return config, nil
	}

	config, err := loadFile(v, *configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load file config: %w", err)
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", DefaultPort)
	v.SetDefault("host", DefaultHost)
	v.SetDefault("request_timeout", DefaultRequestTimeout)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("rate_per_minute", 300)
	v.SetDefault("max_concurrent_requests", 100)
	v.SetDefault("service_name", "grant-explorer")
	v.SetDefault("environment", "LOCAL")
	v.SetDefault("ipfs_gateway", ipfs.DefaultGateway)
	v.SetDefault("price_api_url", pricequery.PublicAPIURL)
}

func loadEnv(v *viper.Viper) (*ExplorerConfig, error) {
	// .env is optional, env can be applied through docker, systemd or other means
	_ = godotenv.Load()
	v.SetEnvPrefix("EXPLORER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	var config ExplorerConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal env config: %w", err)
	}
	if err := verifyConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}
	return &config, nil
}

// bindEnvKeys binds each config key to its env var so Unmarshal sees env values
// when no config file is loaded (env-only mode).
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"port", "host", "request_timeout", "allowed_origins",
		"rate_per_minute", "max_concurrent_requests",
		"service_name", "service_version", "environment",
		"enable_tracing", "use_otlp_traces", "otlp_traces_url",
		"enable_metrics", "use_prometheus", "use_otlp_metrics", "otlp_metrics_url",
		"insecure_otlp", "development_mode",
		"subgraph_mainnet_api", "subgraph_optimism_mainnet_api", "subgraph_fantom_mainnet_api",
		"subgraph_fantom_testnet_api", "subgraph_goerli_api", "subgraph_default_api",
		"ipfs_gateway", "price_api_url", "price_api_key",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

func loadFile(v *viper.Viper, configPath string) (*ExplorerConfig, error) {
	if !strings.HasSuffix(configPath, ".toml") {
		return nil, fmt.Errorf("config file must be a toml file")
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config ExplorerConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := verifyConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}

	return &config, nil
}

func verifyConfig(config *ExplorerConfig) error {
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	if config.Host == "" {
		return fmt.Errorf("host is required")
	}

	if len(config.AllowedOrigins) == 0 {
		return fmt.Errorf("allowed_origins is required")
	}

	if config.IPFSGateway == "" {
		return fmt.Errorf("ipfs_gateway is required")
	}

	if config.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}

	if config.UseOTLPTraces && config.OTLPTracesURL == "" {
		return fmt.Errorf("otlp_traces_url is required when use_otlp_traces is set")
	}

	if config.UseOTLPMetrics && config.OTLPMetricsURL == "" {
		return fmt.Errorf("otlp_metrics_url is required when use_otlp_metrics is set")
	}

	return nil
}
