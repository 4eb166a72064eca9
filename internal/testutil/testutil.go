package testutil

import (
	"context"
	"sync/atomic"

	"pricetracker/internal/asset"
	"pricetracker/internal/fetcher"
)

// StubFetcher is a hand-written Fetcher for tests that only need canned
// results. Use MockFetcher when call expectations matter.
type StubFetcher struct {
	FetchFunc func(ctx context.Context) ([]asset.PricedAsset, error)
	KeyFunc   func() string

	calls atomic.Int32
}

// Fetch implements the Fetcher interface
func (s *StubFetcher) Fetch(ctx context.Context) ([]asset.PricedAsset, error) {
	s.calls.Add(1)
	if s.FetchFunc != nil {
		return s.FetchFunc(ctx)
	}
	return nil, nil
}

// Key implements the Fetcher interface
func (s *StubFetcher) Key() string {
	if s.KeyFunc != nil {
		return s.KeyFunc()
	}
	return "fetcher:stub:key"
}

// Calls returns how many times Fetch ran.
func (s *StubFetcher) Calls() int {
	return int(s.calls.Load())
}

// NewStubFetcher creates a stub that always returns assets and err.
func NewStubFetcher(key string, assets []asset.PricedAsset, err error) *StubFetcher {
	return &StubFetcher{
		FetchFunc: func(ctx context.Context) ([]asset.PricedAsset, error) {
			return assets, err
		},
		KeyFunc: func() string {
			return key
		},
	}
}

var _ fetcher.Fetcher = (*StubFetcher)(nil)

// Assets builds a list from alternating code and price pairs, using the
// code as display name.
func Assets(pairs ...any) []asset.PricedAsset {
	out := make([]asset.PricedAsset, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		code := pairs[i].(string)
		out = append(out, asset.PricedAsset{Code: code, DisplayName: code, Price: toFloat(pairs[i+1])})
	}
	return out
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		panic("testutil: price must be int or float64")
	}
}
