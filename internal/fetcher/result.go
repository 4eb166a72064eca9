package fetcher

import (
	"time"

	"pricetracker/internal/asset"
)

// Result represents the outcome of one fetch cycle.
// Exactly one of Assets and Error is set.
type Result struct {
	// Key is the hierarchical key of the fetcher that produced the result
	Key string

	// Assets is the normalized, sorted list on success
	Assets []asset.PricedAsset

	// Error contains any error that occurred during the fetch operation.
	// If Error is not nil, Assets is nil.
	Error error

	// FetchedAt is when the cycle completed
	FetchedAt time.Time
}

// NewResult builds a Result, dropping assets when err is set.
func NewResult(key string, assets []asset.PricedAsset, err error) Result {
	r := Result{Key: key, Error: err, FetchedAt: time.Now()}
	if err == nil {
		r.Assets = assets
	}
	return r
}

// OK reports whether the cycle succeeded.
func (r Result) OK() bool {
	return r.Error == nil
}
