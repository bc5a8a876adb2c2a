// Package denom converts token amounts into another token's denomination using the
// prices at the end of a time window.
//
// Conversion is best effort: a chain without price coverage, or a token the price
// provider does not list, returns the input amount unchanged. Transport failures from
// the provider are returned to the caller.
package denom

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/Cogwheel-Validator/grant-explorer/explorer/chains"
	pricequery "github.com/Cogwheel-Validator/grant-explorer/explorer/price_query"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "denom").Logger()
}

// TokenAmount is an amount expressed in a token.
type TokenAmount struct {
	Token  string          `json:"token"`
	Amount decimal.Decimal `json:"amount"`
}

// PriceSource provides window prices for a token. *pricequery.Client implements it.
type PriceSource interface {
	GetStartAndEndPrices(ctx context.Context, tokenAddress string, chainId chains.ChainId, from, to int64) (pricequery.StartEndPrices, error)
}

// Engine performs denominations.
type Engine struct {
	registry *chains.Registry
	prices   PriceSource
}

// NewEngine creates an engine backed by the given price source.
func NewEngine(registry *chains.Registry, prices PriceSource) *Engine {
	return &Engine{
		registry: registry,
		prices:   prices,
	}
}

// DenominateAs converts amount of sourceToken into targetToken using the end of window
// prices: amount * sourceEnd / targetEnd. The window bounds are unix seconds.
//
// The input amount is returned unchanged when the chain has no price platform, when
// both tokens are the same, or when either token has no market data.
func (e *Engine) DenominateAs(
	ctx context.Context,
	sourceToken, targetToken string,
	amount decimal.Decimal,
	from, to int64,
	chainId chains.ChainId,
) (TokenAmount, error) {
	unchanged := TokenAmount{Token: targetToken, Amount: amount}

	if _, ok := e.registry.ResolvePriceSlug(chainId); !ok {
		log.Debug().
			Str("chain", e.registry.ResolveVerboseName(chainId)).
			Msg("Chain has no price coverage, skipping conversion")
		return unchanged, nil
	}

	if strings.EqualFold(sourceToken, targetToken) {
		return unchanged, nil
	}

	// Both lookups run to completion; a transport error on either side wins over
	// missing market data on the other.
	var (
		sourcePrices, targetPrices pricequery.StartEndPrices
		sourceErr, targetErr       error
		g                          errgroup.Group
	)
	g.Go(func() error {
		sourcePrices, sourceErr = e.prices.GetStartAndEndPrices(ctx, sourceToken, chainId, from, to)
		return nil
	})
	g.Go(func() error {
		targetPrices, targetErr = e.prices.GetStartAndEndPrices(ctx, targetToken, chainId, from, to)
		return nil
	})
	_ = g.Wait()

	for _, err := range []error{sourceErr, targetErr} {
		if err != nil && !isMissingData(err) {
			return TokenAmount{}, err
		}
	}
	if err := errors.Join(sourceErr, targetErr); err != nil {
		log.Debug().
			Err(err).
			Str("source", sourceToken).
			Str("target", targetToken).
			Msg("Missing market data, skipping conversion")
		return unchanged, nil
	}

	if targetPrices.EndPrice.IsZero() {
		log.Debug().Str("target", targetToken).Msg("Target token has zero end price, skipping conversion")
		return unchanged, nil
	}

	converted := amount.Mul(sourcePrices.EndPrice).Div(targetPrices.EndPrice)
	return TokenAmount{Token: targetToken, Amount: converted}, nil
}

func isMissingData(err error) bool {
	return errors.Is(err, pricequery.ErrNoMarketData) || errors.Is(err, pricequery.ErrUnsupportedChain)
}
