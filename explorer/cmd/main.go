package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/Cogwheel-Validator/grant-explorer/explorer/chains"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/config"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/denom"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/fetch"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/grants"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/graphql"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/ipfs"
	pricequery "github.com/Cogwheel-Validator/grant-explorer/explorer/price_query"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/rpc"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()

	// Share the logger with the RPC package
	rpc.SetLogger(log)
}

var (
	flagConfig       string
	flagConfigChains string
)

var rootCmd = &cobra.Command{
	Use:          "explorer",
	Short:        "Grant explorer API",
	Long:         "Serve and query grant programs, rounds and token prices across the supported chains.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "toml config file (EXPLORER_* env vars when empty)")
	rootCmd.PersistentFlags().StringVar(&flagConfigChains, "config-chains", "", "chain override file, local path or remote source")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(denominateCmd())
	rootCmd.AddCommand(chainsCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			log.Info().
				Str("config", flagConfig).
				Str("chains_config", flagConfigChains).
				Msg("Starting grant explorer")

			// Create context for graceful shutdown
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			services, err := buildServices(ctx, cfg)
			if err != nil {
				return err
			}

			server, err := rpc.NewServer(ctx, buildServerConfig(cfg), services)
			if err != nil {
				return fmt.Errorf("failed to create API server: %w", err)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			go runServer(server.Start, sigCh)

			sig := <-sigCh
			log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()

			return server.Shutdown(shutdownCtx)
		},
	}
}

// runServer blocks on start. A failure other than a clean shutdown is turned into
// SIGTERM so the serve command exits.
func runServer(start func() error, sigCh chan<- os.Signal) {
	err := start()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	log.Error().Err(err).Msg("Server error")
	sigCh <- syscall.SIGTERM
}

func loadConfig() (*config.ExplorerConfig, error) {
	var path *string
	if flagConfig != "" {
		path = &flagConfig
	}
	cfg, err := config.LoadExplorerConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// loadOverrides reads --config-chains, downloading it first when it is remote.
func loadOverrides(ctx context.Context) ([]chains.Override, error) {
	if flagConfigChains == "" {
		return nil, nil
	}

	path := flagConfigChains
	if config.IsRemote(path) {
		dst := filepath.Join(os.TempDir(), "grant-explorer", "chains"+filepath.Ext(path))
		local, err := config.FetchRemote(ctx, path, dst)
		if err != nil {
			return nil, err
		}
		log.Info().Str("source", path).Str("path", local).Msg("Downloaded chain config")
		path = local
	}

	overrides, err := config.NewChainConfigLoader().LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain config: %w", err)
	}
	log.Info().Int("count", len(overrides)).Msg("Loaded chain overrides")
	return overrides, nil
}

func buildServices(ctx context.Context, cfg *config.ExplorerConfig) (*rpc.Services, error) {
	overrides, err := loadOverrides(ctx)
	if err != nil {
		return nil, err
	}

	registry := chains.NewRegistry(cfg.Endpoints(), chains.WithOverrides(overrides...))
	timeout := fetch.WithTimeout(cfg.RequestTimeout)

	graphqlClient := graphql.NewClient(registry, timeout)
	fetcher := ipfs.NewFetcher(cfg.IPFSGateway, timeout)
	prices := pricequery.NewClient(registry, pricequery.ClientConfig{
		BaseURL: cfg.PriceAPIURL,
		APIKey:  cfg.PriceAPIKey,
		Timeout: cfg.RequestTimeout,
	})
	engine := denom.NewEngine(registry, prices)

	return &rpc.Services{
		Registry: registry,
		GraphQL:  graphqlClient,
		IPFS:     fetcher,
		Prices:   prices,
		Engine:   engine,
		Grants:   grants.NewService(graphqlClient, fetcher, engine),
	}, nil
}

// buildServerConfig converts the loaded ExplorerConfig to rpc.ServerConfig
func buildServerConfig(cfg *config.ExplorerConfig) *rpc.ServerConfig {
	serverConfig := &rpc.ServerConfig{
		Address:        cfg.Host + ":" + strconv.Itoa(cfg.Port),
		AllowedOrigins: cfg.AllowedOrigins,
		EnableMetrics:  cfg.UsePrometheus,
		RequestTimeout: cfg.RequestTimeout,
	}

	if cfg.RatePerMinute > 0 {
		serverConfig.RatePerMinute = &cfg.RatePerMinute
	}
	if cfg.MaxConcurrentRequests > 0 {
		serverConfig.MaxConcurrentRequests = &cfg.MaxConcurrentRequests
	}

	if cfg.EnableTracing || cfg.EnableMetrics || cfg.UsePrometheus {
		serverConfig.OTelConfig = &rpc.OTelConfig{
			ServiceName:     defaultString(cfg.ServiceName, "grant-explorer"),
			ServiceVersion:  defaultString(cfg.ServiceVersion, "1.0.0"),
			Environment:     defaultString(cfg.Environment, "development"),
			EnableTracing:   cfg.EnableTracing,
			UseOTLPTraces:   cfg.UseOTLPTraces,
			OTLPTracesURL:   cfg.OTLPTracesURL,
			EnableMetrics:   cfg.EnableMetrics,
			UsePrometheus:   cfg.UsePrometheus,
			UseOTLPMetrics:  cfg.UseOTLPMetrics,
			OTLPMetricsURL:  cfg.OTLPMetricsURL,
			InsecureOTLP:    cfg.InsecureOTLP,
			DevelopmentMode: cfg.DevelopmentMode,
		}
	}

	return serverConfig
}

// defaultString returns the default value if s is empty
func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
