package metalprice

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"resty.dev/v3"

	"pricetracker/internal/asset"
	"pricetracker/internal/fetcher"
	"pricetracker/internal/fx"
	"pricetracker/internal/pipeline"
	"pricetracker/internal/ratelimit"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.metalpriceapi.com/v1"

// GramsPerTroyOunce converts troy ounces to grams.
const GramsPerTroyOunce = 31.1034768

// QuoteCurrency is the base every request asks rates against.
const QuoteCurrency = "USD"

// Response represents the /latest response. Rates are inverse quoted: troy
// ounces of metal per one unit of the base currency.
type Response struct {
	Success *bool              `json:"success"`
	Base    string             `json:"base"`
	Rates   map[string]float64 `json:"rates"`
	Error   *APIError          `json:"error,omitempty"`
}

// APIError is the error object sent alongside success false.
type APIError struct {
	Code int    `json:"statusCode"`
	Info string `json:"message"`
}

// Params holds what a metals request needs.
type Params struct {
	APIKey  string
	Home    string
	Symbols []string
}

var names = map[string]string{
	"XAU": "Gold",
	"XAG": "Silver",
	"XPT": "Platinum",
	"XPD": "Palladium",
}

// DisplayName returns the metal name of a ticker symbol, or the symbol.
func DisplayName(symbol string) string {
	if n, ok := names[symbol]; ok {
		return n
	}
	return symbol
}

// NewMetalsFetcher creates the metals pipeline. Prices are converted from
// USD into the home currency with rates from src.
func NewMetalsFetcher(params Params, src fx.Source, baseURL string, opts ...pipeline.Option) *pipeline.Pipeline[Response] {
	params = params.normalized()

	return pipeline.New(baseURL, pipeline.Endpoint[Response]{
		API:    ratelimit.APIMetalPrice,
		ID:     params.Home,
		Path:   "/latest",
		Build:  params.build,
		Decode: Decode,
		Normalize: func(ctx context.Context, r Response) ([]asset.PricedAsset, error) {
			usd, err := src.Rate(ctx, QuoteCurrency)
			if err != nil {
				return nil, err
			}
			return Normalize(r.Rates, params.Symbols, usd)
		},
	}, opts...)
}

func (p Params) normalized() Params {
	p.Home = strings.ToUpper(strings.TrimSpace(p.Home))

	symbols := make([]string, 0, len(p.Symbols))
	seen := make(map[string]struct{}, len(p.Symbols))
	for _, s := range p.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		symbols = append(symbols, s)
	}
	p.Symbols = symbols
	return p
}

func (p Params) build(r *resty.Request) *resty.Request {
	return r.SetQueryParams(map[string]string{
		"api_key":    p.APIKey,
		"base":       QuoteCurrency,
		"currencies": strings.Join(p.Symbols, ","),
	})
}

// Decode parses a /latest response. A payload flagged as failed is reported
// as rejected rather than malformed.
func Decode(body []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(body, &r); err != nil {
		return r, fetcher.NewDecodeError("invalid metals payload", err)
	}
	if r.Success == nil {
		return r, fetcher.NewDecodeError("metals payload has no success flag", nil)
	}
	if !*r.Success {
		if r.Error != nil {
			return r, fetcher.NewUpstreamRejectedError(r.Error.Code, r.Error.Info)
		}
		return r, fetcher.NewUpstreamRejectedError(0, "")
	}
	if r.Rates == nil {
		return r, fetcher.NewDecodeError("metals payload has no rates object", nil)
	}
	return r, nil
}

// PricePerGram converts an inverse quoted rate u, in troy ounces per USD,
// to home currency per gram given usdToHome home units per USD.
func PricePerGram(u, usdToHome float64) float64 {
	return (1 / u) / GramsPerTroyOunce * usdToHome
}

// Normalize prices every symbol present in rates per gram of metal.
func Normalize(rates map[string]float64, symbols []string, usdToHome float64) ([]asset.PricedAsset, error) {
	if usdToHome <= 0 || math.IsNaN(usdToHome) || math.IsInf(usdToHome, 0) {
		return nil, fetcher.NewDecodeError(fmt.Sprintf("invalid USD rate %v", usdToHome), nil)
	}

	out := make([]asset.PricedAsset, 0, len(symbols))
	for _, s := range symbols {
		u, ok := rates[s]
		if !ok {
			continue
		}
		if u <= 0 || math.IsNaN(u) || math.IsInf(u, 0) {
			return nil, fetcher.NewDecodeError(fmt.Sprintf("invalid rate %v for %s", u, s), nil)
		}
		out = append(out, asset.PricedAsset{
			Code:        s,
			DisplayName: DisplayName(s),
			Price:       PricePerGram(u, usdToHome),
		})
	}
	return out, nil
}
