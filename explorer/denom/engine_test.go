package denom_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Cogwheel-Validator/grant-explorer/explorer/chains"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/denom"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/fetch"
	pricequery "github.com/Cogwheel-Validator/grant-explorer/explorer/price_query"
	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"
)

const (
	usdc = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	dai  = "0x6b175474e89094c44da98b954eedeac495271d0f"
	weth = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
)

// fakePrices serves fixed window prices per token.
type fakePrices struct {
	mu     sync.Mutex
	prices map[string]pricequery.StartEndPrices
	errs   map[string]error
	calls  []string
}

func (f *fakePrices) GetStartAndEndPrices(ctx context.Context, token string, chainId chains.ChainId, from, to int64) (pricequery.StartEndPrices, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, token)
	if err, ok := f.errs[token]; ok {
		return pricequery.StartEndPrices{}, err
	}
	if p, ok := f.prices[token]; ok {
		return p, nil
	}
	return pricequery.StartEndPrices{}, pricequery.ErrNoMarketData
}

func window(start, end string) pricequery.StartEndPrices {
	return pricequery.StartEndPrices{
		StartPrice: decimal.RequireFromString(start),
		EndPrice:   decimal.RequireFromString(end),
	}
}

func newEngine(prices denom.PriceSource) *denom.Engine {
	return denom.NewEngine(chains.NewRegistry(chains.EndpointConfig{}), prices)
}

func TestDenominateAs_UsesEndPrices(t *testing.T) {
	prices := &fakePrices{prices: map[string]pricequery.StartEndPrices{
		weth: window("1500", "2000"),
		dai:  window("1", "0.5"),
	}}
	engine := newEngine(prices)

	result, err := engine.DenominateAs(context.Background(), weth, dai, decimal.NewFromInt(3), 0, 100, chains.Mainnet)
	assert.NoError(t, err)
	assert.Equal(t, result.Token, dai)
	// 3 * 2000 / 0.5
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(12000)))
	assert.Equal(t, len(prices.calls), 2)
}

func TestDenominateAs_SameTokenIsIdentity(t *testing.T) {
	prices := &fakePrices{}
	engine := newEngine(prices)

	result, err := engine.DenominateAs(context.Background(), usdc, usdc, decimal.NewFromInt(69), 1612577232, 1622577232, chains.Mainnet)
	assert.NoError(t, err)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(69)))
	assert.Equal(t, result.Amount.String(), "69")
	assert.Equal(t, len(prices.calls), 0)

	// checksum and lower case spellings of one address are the same token
	result, err = engine.DenominateAs(context.Background(), usdc, "0x"+strings.ToUpper(usdc[2:]), decimal.NewFromInt(69), 0, 0, chains.Mainnet)
	assert.NoError(t, err)
	assert.Equal(t, len(prices.calls), 0)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(69)))
}

func TestDenominateAs_UnsupportedChain(t *testing.T) {
	prices := &fakePrices{prices: map[string]pricequery.StartEndPrices{
		weth: window("1500", "2000"),
		dai:  window("1", "1"),
	}}
	engine := newEngine(prices)

	for _, chain := range []chains.ChainId{chains.FantomTestnet, chains.Goerli, chains.ChainId("999")} {
		result, err := engine.DenominateAs(context.Background(), weth, dai, decimal.NewFromInt(69), 0, 0, chain)
		assert.NoError(t, err)
		assert.Equal(t, result.Token, dai)
		assert.True(t, result.Amount.Equal(decimal.NewFromInt(69)))
	}
	assert.Equal(t, len(prices.calls), 0)
}

func TestDenominateAs_NoMarketData(t *testing.T) {
	prices := &fakePrices{prices: map[string]pricequery.StartEndPrices{
		weth: window("1500", "2000"),
	}}
	engine := newEngine(prices)

	result, err := engine.DenominateAs(context.Background(), weth, dai, decimal.NewFromInt(69), 0, 0, chains.OptimismMainnet)
	assert.NoError(t, err)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(69)))

	result, err = engine.DenominateAs(context.Background(), dai, weth, decimal.NewFromInt(69), 0, 0, chains.OptimismMainnet)
	assert.NoError(t, err)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(69)))
}

func TestDenominateAs_ZeroTargetPrice(t *testing.T) {
	prices := &fakePrices{prices: map[string]pricequery.StartEndPrices{
		weth: window("1500", "2000"),
		dai:  window("1", "0"),
	}}
	engine := newEngine(prices)

	result, err := engine.DenominateAs(context.Background(), weth, dai, decimal.NewFromInt(5), 0, 0, chains.Mainnet)
	assert.NoError(t, err)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(5)))
}

func TestDenominateAs_TransportErrorPropagates(t *testing.T) {
	transportErr := &fetch.StatusError{Service: fetch.ServicePrice, URL: "https://prices", Status: http.StatusTooManyRequests}
	prices := &fakePrices{
		prices: map[string]pricequery.StartEndPrices{weth: window("1500", "2000")},
		errs:   map[string]error{dai: fmt.Errorf("lookup: %w", transportErr)},
	}
	engine := newEngine(prices)

	_, err := engine.DenominateAs(context.Background(), weth, dai, decimal.NewFromInt(5), 0, 0, chains.Mainnet)
	assert.Error(t, err)
	status, ok := fetch.StatusOf(err)
	assert.True(t, ok)
	assert.Equal(t, status, http.StatusTooManyRequests)
}

func TestDenominateAs_TransportErrorWinsOverMissingData(t *testing.T) {
	transportErr := &fetch.StatusError{Service: fetch.ServicePrice, URL: "https://prices", Status: http.StatusInternalServerError}
	prices := &fakePrices{errs: map[string]error{
		weth: pricequery.ErrNoMarketData,
		dai:  transportErr,
	}}
	engine := newEngine(prices)

	_, err := engine.DenominateAs(context.Background(), weth, dai, decimal.NewFromInt(5), 0, 0, chains.Mainnet)
	assert.True(t, errors.Is(err, transportErr))
}

func TestDenominateAs_AgainstPriceAPI(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch {
		case strings.Contains(r.URL.Path, weth):
			_, _ = w.Write([]byte(`{"prices":[[1000,1800.5],[2000,1900],[3000,2000]]}`))
		case strings.Contains(r.URL.Path, dai):
			_, _ = w.Write([]byte(`{"prices":[[1000,1.01],[3000,1]]}`))
		default:
			// tokens the provider does not list come back empty
			_, _ = w.Write([]byte(``))
		}
	}))
	defer server.Close()

	registry := chains.NewRegistry(chains.EndpointConfig{})
	client := pricequery.NewClient(registry, pricequery.ClientConfig{BaseURL: server.URL})
	engine := denom.NewEngine(registry, client)

	result, err := engine.DenominateAs(context.Background(), weth, dai, decimal.RequireFromString("0.5"), 0, 3, chains.Mainnet)
	assert.NoError(t, err)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, hits.Load(), int32(2))

	// token contract not available on the selected chain
	result, err = engine.DenominateAs(context.Background(), usdc, dai, decimal.NewFromInt(69), 0, 0, chains.OptimismMainnet)
	assert.NoError(t, err)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(69)))

	// unsupported chain never reaches the provider
	before := hits.Load()
	result, err = engine.DenominateAs(context.Background(), usdc, usdc, decimal.NewFromInt(69), 0, 0, chains.FantomTestnet)
	assert.NoError(t, err)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(69)))
	assert.Equal(t, hits.Load(), before)
}
