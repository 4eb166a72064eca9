package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// API represents the different external APIs we interact with
type API string

const (
	// APIFreeCurrency represents the freecurrencyapi.com exchange-rate API
	APIFreeCurrency API = "freecurrency"
	// APICoinGecko represents the CoinGecko simple price API
	APICoinGecko API = "coingecko"
	// APIMetalPrice represents the metalpriceapi.com API
	APIMetalPrice API = "metalprice"
)

// Limiter manages rate limits for different APIs
type Limiter struct {
	limiters map[API]*rate.Limiter
	mu       sync.RWMutex
}

// New returns a limiter with one token bucket per API. Each API gets the
// given requests-per-second rate and a burst of one. A non-positive rate
// leaves that API unlimited.
func New(perSecond map[API]float64) *Limiter {
	l := &Limiter{limiters: make(map[API]*rate.Limiter, len(perSecond))}
	for api, rps := range perSecond {
		l.Set(api, rps)
	}
	return l
}

// Defaults returns conservative limits for the free tiers.
func Defaults() map[API]float64 {
	return map[API]float64{
		// freecurrencyapi: 10 requests per minute on the free plan
		APIFreeCurrency: 10.0 / 60.0,
		// CoinGecko public API: roughly 30 calls per minute
		APICoinGecko: 0.5,
		// metalpriceapi: monthly quota, keep it to one call every 10 seconds
		APIMetalPrice: 0.1,
	}
}

// Unlimited returns a limiter that never blocks.
func Unlimited() *Limiter {
	return &Limiter{limiters: make(map[API]*rate.Limiter)}
}

// Set replaces the limit for one API.
func (l *Limiter) Set(api API, perSecond float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if perSecond <= 0 {
		delete(l.limiters, api)
		return
	}
	l.limiters[api] = rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Wait blocks until the rate limiter permits an event for the given API
// It returns an error if the context is canceled before the event can proceed
func (l *Limiter) Wait(ctx context.Context, api API) error {
	if l == nil {
		return nil
	}

	l.mu.RLock()
	limiter, exists := l.limiters[api]
	l.mu.RUnlock()

	if !exists {
		// If no limiter exists for this API, allow the request without limiting
		return nil
	}

	return limiter.Wait(ctx)
}

// Allow reports whether an event for the given API may happen now
func (l *Limiter) Allow(api API) bool {
	if l == nil {
		return true
	}

	l.mu.RLock()
	limiter, exists := l.limiters[api]
	l.mu.RUnlock()

	if !exists {
		// If no limiter exists for this API, allow the request
		return true
	}

	return limiter.Allow()
}
