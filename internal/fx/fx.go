// Package fx supplies exchange rates into the home currency to pipelines
// that quote in a foreign currency.
package fx

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"pricetracker/internal/asset"
	"pricetracker/internal/fetcher"
	"pricetracker/internal/logger"
)

// DefaultTTL is how long an observed rate stays usable.
const DefaultTTL = 15 * time.Minute

// Source returns how many home currency units one unit of code is worth.
type Source interface {
	Rate(ctx context.Context, code string) (float64, error)
}

// Static is a fixed rate table, keyed by upper case currency code.
type Static map[string]float64

// Rate implements Source.
func (s Static) Rate(_ context.Context, code string) (float64, error) {
	r, ok := s[strings.ToUpper(code)]
	if !ok {
		return 0, fetcher.NewMissingBaseRateError(code)
	}
	return r, nil
}

// CurrencySource serves rates observed from the currency pipeline. Its
// assets are priced in home units per foreign unit, which is exactly a
// Source rate, so they are cached as is.
type CurrencySource struct {
	home     string
	cache    *gocache.Cache
	fallback fetcher.Fetcher

	group singleflight.Group
}

// NewCurrencySource creates a source for home. On a cache miss it runs
// fallback, if not nil, and retries the lookup.
func NewCurrencySource(home string, ttl time.Duration, fallback fetcher.Fetcher) *CurrencySource {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CurrencySource{
		home:     strings.ToUpper(home),
		cache:    gocache.New(ttl, 2*ttl),
		fallback: fallback,
	}
}

// Observe records the prices of a successful currency fetch.
func (s *CurrencySource) Observe(assets []asset.PricedAsset) {
	for _, a := range assets {
		if a.Price > 0 {
			s.cache.Set(a.Code, a.Price, gocache.DefaultExpiration)
		}
	}
}

// Rate implements Source.
func (s *CurrencySource) Rate(ctx context.Context, code string) (float64, error) {
	code = strings.ToUpper(code)
	if code == s.home {
		return 1, nil
	}
	if r, ok := s.lookup(code); ok {
		return r, nil
	}
	if s.fallback == nil {
		return 0, fetcher.NewMissingBaseRateError(code)
	}

	// concurrent misses share one fetch
	_, err, _ := s.group.Do(s.fallback.Key(), func() (any, error) {
		logger.Debug("fx: no cached rate for %s, fetching %s", code, s.fallback.Key())
		assets, err := s.fallback.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		s.Observe(assets)
		return nil, nil
	})
	if err != nil {
		return 0, fmt.Errorf("fx rate for %s: %w", code, err)
	}

	if r, ok := s.lookup(code); ok {
		return r, nil
	}
	return 0, fetcher.NewMissingBaseRateError(code)
}

func (s *CurrencySource) lookup(code string) (float64, bool) {
	v, ok := s.cache.Get(code)
	if !ok {
		return 0, false
	}
	r, ok := v.(float64)
	return r, ok
}
