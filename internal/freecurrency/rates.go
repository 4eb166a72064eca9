package freecurrency

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"resty.dev/v3"

	"pricetracker/internal/asset"
	"pricetracker/internal/fetcher"
	"pricetracker/internal/pipeline"
	"pricetracker/internal/ratelimit"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.freecurrencyapi.com/v1"

// RatesResponse represents the /latest response: units of each currency
// per one unit of the requested base currency.
type RatesResponse struct {
	Data map[string]float64 `json:"data"`
}

// Params holds what a rates request needs.
type Params struct {
	APIKey string
	// Base is the base currency the upstream quotes against
	Base string
	// Home is the currency prices are displayed in
	Home string
	// Targets are the currencies to price
	Targets []string
}

var names = map[string]string{
	"AUD": "Australian Dollar",
	"BRL": "Brazilian Real",
	"CAD": "Canadian Dollar",
	"CHF": "Swiss Franc",
	"CNY": "Chinese Yuan",
	"CZK": "Czech Koruna",
	"EUR": "Euro",
	"GBP": "British Pound",
	"HKD": "Hong Kong Dollar",
	"INR": "Indian Rupee",
	"JPY": "Japanese Yen",
	"KRW": "South Korean Won",
	"KZT": "Kazakhstani Tenge",
	"NOK": "Norwegian Krone",
	"PLN": "Polish Zloty",
	"RUB": "Russian Ruble",
	"SEK": "Swedish Krona",
	"TRY": "Turkish Lira",
	"USD": "US Dollar",
}

// DisplayName returns the English name of an ISO 4217 code, or the code
// itself when it is not known.
func DisplayName(code string) string {
	if n, ok := names[code]; ok {
		return n
	}
	return code
}

// NewRatesFetcher creates the currency pipeline.
func NewRatesFetcher(params Params, baseURL string, opts ...pipeline.Option) *pipeline.Pipeline[RatesResponse] {
	params = params.normalized()

	return pipeline.New(baseURL, pipeline.Endpoint[RatesResponse]{
		API:    ratelimit.APIFreeCurrency,
		ID:     params.Home,
		Path:   "/latest",
		Build:  params.build,
		Decode: Decode,
		Normalize: func(_ context.Context, r RatesResponse) ([]asset.PricedAsset, error) {
			return Normalize(r.Data, params.Base, params.Home, params.Targets)
		},
	}, opts...)
}

func (p Params) normalized() Params {
	p.Base = strings.ToUpper(strings.TrimSpace(p.Base))
	p.Home = strings.ToUpper(strings.TrimSpace(p.Home))
	if p.Base == "" {
		p.Base = p.Home
	}

	targets := make([]string, 0, len(p.Targets))
	seen := make(map[string]struct{}, len(p.Targets))
	for _, t := range p.Targets {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		targets = append(targets, t)
	}
	p.Targets = targets
	return p
}

// currencies lists what to ask the upstream for: the targets, plus the home
// currency when it is needed as a cross-rate anchor.
func (p Params) currencies() []string {
	out := append([]string(nil), p.Targets...)
	if p.Base != p.Home {
		found := false
		for _, t := range out {
			if t == p.Home {
				found = true
				break
			}
		}
		if !found {
			out = append(out, p.Home)
		}
	}
	return out
}

func (p Params) build(r *resty.Request) *resty.Request {
	q := map[string]string{
		"apikey":        p.APIKey,
		"base_currency": p.Base,
	}
	if cs := p.currencies(); len(cs) > 0 {
		q["currencies"] = strings.Join(cs, ",")
	}
	return r.SetQueryParams(q)
}

// Decode parses a /latest response.
func Decode(body []byte) (RatesResponse, error) {
	var r RatesResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return r, fetcher.NewDecodeError("invalid rates payload", err)
	}
	if r.Data == nil {
		return r, fetcher.NewDecodeError("rates payload has no data object", nil)
	}
	return r, nil
}

// Normalize prices every target in home currency units per one target unit.
//
// rates are quoted per one unit of base. When base is the home currency the
// price is 1/rate[target]; otherwise it is the cross rate
// rate[home]/rate[target], and rate[home] must be present. The home
// currency itself is always exactly 1. Targets absent from rates are
// skipped.
func Normalize(rates map[string]float64, base, home string, targets []string) ([]asset.PricedAsset, error) {
	rateOf := func(code string) (float64, bool, error) {
		r, ok := rates[code]
		if !ok {
			if code == base {
				return 1, true, nil
			}
			return 0, false, nil
		}
		if r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
			return 0, false, fetcher.NewDecodeError(fmt.Sprintf("invalid rate %v for %s", r, code), nil)
		}
		return r, true, nil
	}

	anchor := 1.0
	if base != home {
		h, ok, err := rateOf(home)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fetcher.NewMissingBaseRateError(home)
		}
		anchor = h
	}

	out := make([]asset.PricedAsset, 0, len(targets))
	for _, code := range targets {
		if code == home {
			out = append(out, asset.PricedAsset{Code: code, DisplayName: DisplayName(code), Price: 1.0})
			continue
		}

		r, ok, err := rateOf(code)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		out = append(out, asset.PricedAsset{
			Code:        code,
			DisplayName: DisplayName(code),
			Price:       anchor / r,
		})
	}

	return out, nil
}
