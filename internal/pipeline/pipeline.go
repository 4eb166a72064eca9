// Package pipeline implements the fetch, decode and normalize sequence shared
// by every upstream price API. Each API package supplies a request builder,
// a decoder for its payload schema and a normalizer into asset.PricedAsset.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"resty.dev/v3"

	"pricetracker/internal/asset"
	"pricetracker/internal/fetcher"
	"pricetracker/internal/ratelimit"
)

// RequestBuilder sets query parameters and headers on an outgoing request.
type RequestBuilder func(r *resty.Request) *resty.Request

// Decoder parses a raw response body into the upstream's schema.
type Decoder[R any] func(body []byte) (R, error)

// Normalizer converts a decoded payload into priced assets in the home
// currency and unit.
type Normalizer[R any] func(ctx context.Context, raw R) ([]asset.PricedAsset, error)

// Endpoint describes one upstream API.
type Endpoint[R any] struct {
	// API selects the rate limit bucket and is the source part of the key
	API ratelimit.API
	// ID is the identifier part of the key
	ID   string
	Path string

	Build     RequestBuilder
	Decode    Decoder[R]
	Normalize Normalizer[R]
}

type options struct {
	client        *resty.Client
	clientOptions fetcher.ClientOptions
	limiter       *ratelimit.Limiter
}

// Option configures a Pipeline.
type Option func(*options)

// WithClient uses an existing client instead of building one.
func WithClient(c *resty.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// WithClientOptions sets the retry and timeout settings of the client the
// pipeline builds for itself.
func WithClientOptions(co fetcher.ClientOptions) Option {
	return func(o *options) {
		o.clientOptions = co
	}
}

// WithLimiter gates every request through l.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(o *options) {
		o.limiter = l
	}
}

// Pipeline fetches one asset class. It implements fetcher.Fetcher.
type Pipeline[R any] struct {
	key      string
	endpoint Endpoint[R]
	client   *resty.Client
	limiter  *ratelimit.Limiter
}

var _ fetcher.Fetcher = (*Pipeline[struct{}])(nil)

// New creates a pipeline against baseURL.
func New[R any](baseURL string, ep Endpoint[R], opts ...Option) *Pipeline[R] {
	o := options{clientOptions: fetcher.DefaultClientOptions()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = fetcher.NewHTTPClient(baseURL, o.clientOptions)
	}
	if ep.Build == nil {
		ep.Build = func(r *resty.Request) *resty.Request { return r }
	}

	return &Pipeline[R]{
		key:      fmt.Sprintf("fetcher:%s:%s", ep.API, ep.ID),
		endpoint: ep,
		client:   o.client,
		limiter:  o.limiter,
	}
}

// Key returns the key for this pipeline
func (p *Pipeline[R]) Key() string {
	return p.key
}

// Fetch runs one fetch, decode and normalize cycle.
func (p *Pipeline[R]) Fetch(ctx context.Context) ([]asset.PricedAsset, error) {
	if err := p.limiter.Wait(ctx, p.endpoint.API); err != nil {
		return nil, fmt.Errorf("%s: waiting for rate limiter: %w", p.key, fetcher.ClassifyTransportError(err))
	}

	body, err := p.get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.key, err)
	}

	raw, err := p.endpoint.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.key, asFetchError(err, "invalid payload"))
	}

	assets, err := p.endpoint.Normalize(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.key, asFetchError(err, "normalization failed"))
	}

	sorted, err := asset.Normalize(assets)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.key, fetcher.NewDecodeError(err.Error(), err))
	}

	return sorted, nil
}

func (p *Pipeline[R]) get(ctx context.Context) ([]byte, error) {
	req := p.endpoint.Build(p.client.R().SetContext(ctx))

	resp, err := req.Get(p.endpoint.Path)
	if err != nil {
		return nil, fetcher.ClassifyTransportError(err)
	}

	if !resp.IsSuccess() {
		return nil, fetcher.ClassifyHTTPError(resp.StatusCode())
	}

	body := resp.Bytes()
	if len(body) == 0 {
		return nil, fetcher.NewDecodeError("empty response body", nil)
	}

	return body, nil
}

// asFetchError keeps typed errors from decoders and normalizers and turns
// anything else into a decode error.
func asFetchError(err error, msg string) error {
	var fe *fetcher.FetchError
	if errors.As(err, &fe) {
		return err
	}
	return fetcher.NewDecodeError(fmt.Sprintf("%s: %v", msg, err), err)
}
