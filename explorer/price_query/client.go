package pricequery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Cogwheel-Validator/grant-explorer/explorer/chains"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/fetch"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// PublicAPIURL is the rate limited public price API.
	PublicAPIURL = "https://api.coingecko.com/api/v3"
	// ProAPIURL is used instead of PublicAPIURL when an API key is configured.
	ProAPIURL = "https://pro-api.coingecko.com/api/v3"
	// VsCurrency is the quote currency of every price returned by this package.
	VsCurrency = "usd"

	proAPIKeyHeader = "x-cg-pro-api-key"
)

var (
	// ErrUnsupportedChain is returned when the chain has no price API platform.
	ErrUnsupportedChain = errors.New("chain has no price api platform")
	// ErrNoMarketData is returned when the provider has no usable series for a token.
	ErrNoMarketData = errors.New("token has no market data")
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "price").Logger()
}

// Client reads current and historical token prices from a CoinGecko compatible API.
type Client struct {
	baseURL  string
	registry *chains.Registry
	http     *fetch.Client
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL overrides the API root. Empty selects the public or pro API depending on APIKey.
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewClient creates a price client. The registry resolves chain ids to platform slugs.
func NewClient(registry *chains.Registry, config ClientConfig, opts ...fetch.Option) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = PublicAPIURL
		if config.APIKey != "" {
			baseURL = ProAPIURL
		}
	}

	fetchOpts := make([]fetch.Option, 0, len(opts)+2)
	if config.Timeout > 0 {
		fetchOpts = append(fetchOpts, fetch.WithTimeout(config.Timeout))
	}
	if config.APIKey != "" {
		fetchOpts = append(fetchOpts, fetch.WithHeader(proAPIKeyHeader, config.APIKey))
	}
	fetchOpts = append(fetchOpts, opts...)

	log.Info().
		Str("url", baseURL).
		Bool("api_key", config.APIKey != "").
		Msg("Price client initialized")

	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		registry: registry,
		http:     fetch.NewClient(fetch.ServicePrice, fetchOpts...),
	}
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")
	return c.http.Get(ctx, c.baseURL+path, header)
}

func contractPath(tokenAddress, platformSlug string) string {
	return fmt.Sprintf("/coins/%s/contract/%s",
		url.PathEscape(platformSlug), url.PathEscape(strings.ToLower(tokenAddress)))
}

// GetCurrentPrice returns the current USD price of a token contract on a platform.
func (c *Client) GetCurrentPrice(ctx context.Context, tokenAddress, platformSlug string) (decimal.Decimal, error) {
	body, err := c.get(ctx, contractPath(tokenAddress, platformSlug))
	if err != nil {
		return decimal.Decimal{}, err
	}

	var response contractResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to parse price response: %w", err)
	}
	if !response.MarketData.CurrentPrice.ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s on %s", ErrNoMarketData, tokenAddress, platformSlug)
	}
	return response.MarketData.CurrentPrice.value, nil
}

// GetPriceRange returns the market chart of a token between two unix timestamps (seconds).
func (c *Client) GetPriceRange(ctx context.Context, tokenAddress, platformSlug string, from, to int64) (PriceRange, error) {
	path := fmt.Sprintf("%s/market_chart/range?vs_currency=%s&from=%d&to=%d",
		contractPath(tokenAddress, platformSlug), VsCurrency, from, to)

	body, err := c.get(ctx, path)
	if err != nil {
		return PriceRange{}, err
	}

	var priceRange PriceRange
	if err := json.Unmarshal(body, &priceRange); err != nil {
		return PriceRange{}, fmt.Errorf("%w: invalid market chart for %s on %s: %v",
			ErrNoMarketData, tokenAddress, platformSlug, err)
	}
	return priceRange, nil
}

// GetStartAndEndPrices returns the first and last price of the token's series over
// [from, to]. The series is taken in the order the provider returns it, which is
// ascending by timestamp.
func (c *Client) GetStartAndEndPrices(ctx context.Context, tokenAddress string, chainId chains.ChainId, from, to int64) (StartEndPrices, error) {
	platform, ok := c.registry.ResolvePriceSlug(chainId)
	if !ok {
		return StartEndPrices{}, fmt.Errorf("%w: %s", ErrUnsupportedChain, c.registry.ResolveVerboseName(chainId))
	}

	priceRange, err := c.GetPriceRange(ctx, tokenAddress, platform, from, to)
	if err != nil {
		return StartEndPrices{}, err
	}
	if len(priceRange.Prices) == 0 {
		return StartEndPrices{}, fmt.Errorf("%w: empty series for %s on %s", ErrNoMarketData, tokenAddress, platform)
	}

	prices := StartEndPrices{
		StartPrice: priceRange.Prices[0].Price,
		EndPrice:   priceRange.Prices[len(priceRange.Prices)-1].Price,
	}

	log.Debug().
		Str("token", tokenAddress).
		Str("platform", platform).
		Int("samples", len(priceRange.Prices)).
		Str("start", prices.StartPrice.String()).
		Str("end", prices.EndPrice.String()).
		Msg("Resolved window prices")

	return prices, nil
}
