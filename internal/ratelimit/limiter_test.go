package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnlimited(t *testing.T) {
	l := Unlimited()
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow(APIFreeCurrency))
		require.NoError(t, l.Wait(t.Context(), APIMetalPrice))
	}
}

func TestNilLimiter(t *testing.T) {
	var l *Limiter
	assert.True(t, l.Allow(APICoinGecko))
	assert.NoError(t, l.Wait(t.Context(), APICoinGecko))
}

func TestNew_BurstOfOne(t *testing.T) {
	l := New(map[API]float64{APIMetalPrice: 0.001})

	assert.True(t, l.Allow(APIMetalPrice), "first call uses the burst token")
	assert.False(t, l.Allow(APIMetalPrice), "second call must wait for a refill")
	assert.True(t, l.Allow(APICoinGecko), "unconfigured APIs are unlimited")
}

func TestWait_ContextCanceled(t *testing.T) {
	l := New(map[API]float64{APIFreeCurrency: 0.001})
	require.True(t, l.Allow(APIFreeCurrency))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx, APIFreeCurrency)
	assert.Error(t, err)
}

func TestSet_NonPositiveRemovesLimit(t *testing.T) {
	l := New(map[API]float64{APICoinGecko: 0.001})
	require.True(t, l.Allow(APICoinGecko))
	require.False(t, l.Allow(APICoinGecko))

	l.Set(APICoinGecko, 0)
	assert.True(t, l.Allow(APICoinGecko))
}

func TestDefaults(t *testing.T) {
	d := Defaults()
	for _, api := range []API{APIFreeCurrency, APICoinGecko, APIMetalPrice} {
		assert.Positive(t, d[api], "missing default for %s", api)
	}
}
