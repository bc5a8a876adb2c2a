package pricequery

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceSample is one [timestampMs, value] point of a market chart series.
type PriceSample struct {
	TimestampMs int64
	Price       decimal.Decimal
}

// UnmarshalJSON decodes the two element array form used by the price API.
func (s *PriceSample) UnmarshalJSON(data []byte) error {
	var pair []json.Number
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("price sample: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("price sample: expected 2 elements, got %d", len(pair))
	}
	ts, err := decimal.NewFromString(pair[0].String())
	if err != nil {
		return fmt.Errorf("price sample timestamp: %w", err)
	}
	price, err := decimal.NewFromString(pair[1].String())
	if err != nil {
		return fmt.Errorf("price sample value: %w", err)
	}
	s.TimestampMs = ts.IntPart()
	s.Price = price
	return nil
}

// MarshalJSON writes the sample back in array form.
func (s PriceSample) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{s.TimestampMs, s.Price})
}

// PriceRange is the market_chart/range response. Series are ordered ascending by
// timestamp by the provider.
type PriceRange struct {
	Prices       []PriceSample `json:"prices"`
	MarketCaps   []PriceSample `json:"market_caps"`
	TotalVolumes []PriceSample `json:"total_volumes"`
}

// StartEndPrices holds the first and last price of a window.
type StartEndPrices struct {
	StartPrice decimal.Decimal `json:"start_price"`
	EndPrice   decimal.Decimal `json:"end_price"`
}

// contractResponse is the subset of /coins/{platform}/contract/{address} we read.
type contractResponse struct {
	Id         string `json:"id"`
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	MarketData struct {
		CurrentPrice currentPrice `json:"current_price"`
	} `json:"market_data"`
}

// currentPrice accepts both the provider's {"usd": 1.0, ...} map and a bare number or
// numeric string.
type currentPrice struct {
	value decimal.Decimal
	ok    bool
}

func (c *currentPrice) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '{' {
		var byCurrency map[string]decimal.Decimal
		if err := json.Unmarshal(data, &byCurrency); err != nil {
			return err
		}
		if usd, ok := byCurrency[VsCurrency]; ok {
			c.value, c.ok = usd, true
		}
		return nil
	}
	if err := c.value.UnmarshalJSON(data); err != nil {
		return err
	}
	c.ok = true
	return nil
}
