package fetcher

import (
	"context"

	"pricetracker/internal/asset"
)

// Fetcher is the core interface that every pipeline implements.
// A Fetcher retrieves one batch of prices for a single asset class.
//
//go:generate mockgen -package=testutil -destination=../testutil/mock_fetcher.go -source=fetcher.go Fetcher
type Fetcher interface {
	// Fetch retrieves, decodes and normalizes one batch. The returned list
	// is sorted by code and never partially populated: on error it is nil.
	Fetch(ctx context.Context) ([]asset.PricedAsset, error)

	// Key returns a hierarchical key for this fetcher.
	// Format: fetcher:{source}:{identifier}
	// Examples:
	//   - fetcher:freecurrency:RUB
	//   - fetcher:coingecko:rub
	//   - fetcher:metalprice:RUB
	Key() string
}
