package coingecko

import (
	"context"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"resty.dev/v3"

	"pricetracker/internal/asset"
	"pricetracker/internal/fetcher"
	"pricetracker/internal/pipeline"
	"pricetracker/internal/ratelimit"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// Quote is one coin's entry in a /simple/price response.
type Quote struct {
	Price     float64
	Change24h *float64
}

// PriceResponse maps coin id to its quote. Only ids that carried a usable
// price are present.
type PriceResponse map[string]Quote

// Params holds what a price request needs.
type Params struct {
	// APIKey is an optional demo key
	APIKey string
	// IDs are CoinGecko coin ids such as "bitcoin"
	IDs []string
	// Home is the vs_currency prices are quoted in
	Home          string
	IncludeChange bool
}

// NewPriceFetcher creates the cryptocurrency pipeline.
func NewPriceFetcher(params Params, baseURL string, opts ...pipeline.Option) *pipeline.Pipeline[PriceResponse] {
	params = params.normalized()

	return pipeline.New(baseURL, pipeline.Endpoint[PriceResponse]{
		API:   ratelimit.APICoinGecko,
		ID:    params.Home,
		Path:  "/simple/price",
		Build: params.build,
		Decode: func(body []byte) (PriceResponse, error) {
			return Decode(body, params.IDs, params.Home)
		},
		Normalize: func(_ context.Context, r PriceResponse) ([]asset.PricedAsset, error) {
			return Normalize(r, params.IDs), nil
		},
	}, opts...)
}

func (p Params) normalized() Params {
	p.Home = strings.ToLower(strings.TrimSpace(p.Home))

	ids := make([]string, 0, len(p.IDs))
	seen := make(map[string]struct{}, len(p.IDs))
	for _, id := range p.IDs {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	p.IDs = ids
	return p
}

func (p Params) build(r *resty.Request) *resty.Request {
	r.SetQueryParams(map[string]string{
		"ids":                 strings.Join(p.IDs, ","),
		"vs_currencies":       p.Home,
		"include_24hr_change": strconv.FormatBool(p.IncludeChange),
	})
	if p.APIKey != "" {
		r.SetHeader("x-cg-demo-api-key", p.APIKey)
	}
	return r
}

// Decode reads the quotes for ids out of a /simple/price body. The body must
// be a JSON object; anything inside it that does not look like a quote for a
// requested id is ignored, so a partial payload yields a partial result.
func Decode(body []byte, ids []string, home string) (PriceResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, fetcher.NewDecodeError("invalid price payload", nil)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fetcher.NewDecodeError("price payload is not an object", nil)
	}

	out := make(PriceResponse, len(ids))
	for _, id := range ids {
		coin := root.Get(gjson.Escape(id))
		if !coin.IsObject() {
			continue
		}

		price := coin.Get(gjson.Escape(home))
		if price.Type != gjson.Number {
			continue
		}

		q := Quote{Price: price.Float()}
		if change := coin.Get(gjson.Escape(home + "_24h_change")); change.Type == gjson.Number {
			c := change.Float()
			q.Change24h = &c
		}
		out[id] = q
	}

	return out, nil
}

// Normalize turns quotes into assets, in ids order, skipping ids without a
// quote.
func Normalize(quotes PriceResponse, ids []string) []asset.PricedAsset {
	title := cases.Title(language.English)

	out := make([]asset.PricedAsset, 0, len(quotes))
	for _, id := range ids {
		q, ok := quotes[id]
		if !ok {
			continue
		}
		out = append(out, asset.PricedAsset{
			Code:        strings.ToUpper(id),
			DisplayName: title.String(id),
			Price:       q.Price,
			Change24h:   q.Change24h,
		})
	}
	return out
}
