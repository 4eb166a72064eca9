package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricetracker/internal/config"
	"pricetracker/internal/metalprice"
)

func jsonServer(t *testing.T, body func(r *http.Request) string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body(r)))
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(currencyURL, cryptoURL, metalsURL string) *config.Config {
	return &config.Config{
		FreecurrencyAPIKey:  "test_freecurrency_key",
		MetalpriceAPIKey:    "test_metalprice_key",
		FreecurrencyBaseURL: currencyURL,
		CoingeckoBaseURL:    cryptoURL,
		MetalpriceBaseURL:   metalsURL,
		HomeCurrency:        "RUB",
		CurrencyBase:        "USD",
		CurrencyTargets:     []string{"USD", "EUR"},
		CryptoIDs:           []string{"bitcoin", "ethereum"},
		CryptoIncludeChange: true,
		MetalSymbols:        []string{"XAU", "XAG"},
		PollInterval:        time.Minute,
		RetryCount:          0,
		HTTPTimeout:         2 * time.Second,
		FXCacheTTL:          time.Minute,
	}
}

// TestIntegration_AllPipelines tests the full flow with all three APIs using mock HTTP servers
func TestIntegration_AllPipelines(t *testing.T) {
	currencyServer := jsonServer(t, func(r *http.Request) string {
		if got := r.URL.Query().Get("apikey"); got != "test_freecurrency_key" {
			t.Errorf("apikey = %q, want test_freecurrency_key", got)
		}
		return `{"data":{"USD":1,"EUR":0.92,"RUB":92}}`
	})
	cryptoServer := jsonServer(t, func(r *http.Request) string {
		return `{"bitcoin":{"rub":6500000,"rub_24h_change":1.5},"ethereum":{"rub":245000,"rub_24h_change":-0.5}}`
	})
	metalsServer := jsonServer(t, func(r *http.Request) string {
		return `{"success":true,"base":"USD","rates":{"XAU":0.0005,"XAG":0.04}}`
	})

	var out bytes.Buffer
	a := newApp(testConfig(currencyServer.URL, cryptoServer.URL, metalsServer.URL), &out)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.fetchOnce(ctx))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	want := []string{
		"fetcher:coingecko:rub:BITCOIN: 6500000.00 RUB (up)",
		"fetcher:coingecko:rub:ETHEREUM: 245000.00 RUB (down)",
		"fetcher:freecurrency:RUB:EUR: 100.00 RUB (flat)",
		"fetcher:freecurrency:RUB:RUB: 1.00 RUB (flat)",
		"fetcher:freecurrency:RUB:USD: 92.00 RUB (flat)",
		"fetcher:metalprice:RUB:XAG: " + formatPrice(metalprice.PricePerGram(0.04, 92)) + " RUB/g (flat)",
		"fetcher:metalprice:RUB:XAU: " + formatPrice(metalprice.PricePerGram(0.0005, 92)) + " RUB/g (flat)",
	}
	assert.Equal(t, want, lines)
}

// TestIntegration_PartialFailure checks that one failing API does not affect the others
func TestIntegration_PartialFailure(t *testing.T) {
	currencyServer := jsonServer(t, func(r *http.Request) string {
		return `{"data":{"USD":1,"EUR":0.92,"RUB":92}}`
	})
	cryptoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer cryptoServer.Close()
	metalsServer := jsonServer(t, func(r *http.Request) string {
		return `{"success":false,"error":{"statusCode":101,"message":"Invalid API key"}}`
	})

	var out bytes.Buffer
	a := newApp(testConfig(currencyServer.URL, cryptoServer.URL, metalsServer.URL), &out)
	require.NoError(t, a.fetchOnce(t.Context()))

	got := out.String()
	assert.Contains(t, got, "fetcher:coingecko:rub: ERROR - ")
	assert.Contains(t, got, "server error (status 500)")
	assert.Contains(t, got, "fetcher:metalprice:RUB: ERROR - ")
	assert.Contains(t, got, "upstream_rejected error")
	assert.Contains(t, got, "fetcher:freecurrency:RUB:USD: 92.00 RUB (flat)")

	for key, tr := range a.tracked {
		if strings.HasPrefix(key, "fetcher:freecurrency") {
			assert.NoError(t, tr.p.LastError())
		} else {
			assert.Error(t, tr.p.LastError(), key)
			assert.Empty(t, tr.p.Assets(), key)
		}
	}
}

// TestIntegration_TrendAcrossRounds checks that the second round compares against the first
func TestIntegration_TrendAcrossRounds(t *testing.T) {
	var calls atomic.Int32
	currencyServer := jsonServer(t, func(r *http.Request) string {
		if calls.Add(1) == 1 {
			return `{"data":{"USD":1,"EUR":0.92,"RUB":92}}`
		}
		return `{"data":{"USD":1,"EUR":0.95,"RUB":93}}`
	})

	cfg := testConfig(currencyServer.URL, "", "")
	cfg.CryptoIDs = nil
	cfg.MetalSymbols = nil

	var out bytes.Buffer
	a := newApp(cfg, &out)

	loopCtx, stop := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		a.loop.Run(loopCtx)
		close(done)
	}()

	for range 2 {
		_, err := a.coord.Run(t.Context())
		require.NoError(t, err)
	}
	a.loop.Dispatch(stop)
	<-done

	got := out.String()
	assert.Contains(t, got, "fetcher:freecurrency:RUB:USD: 93.00 RUB (up)")
	assert.Contains(t, got, "fetcher:freecurrency:RUB:EUR: 97.89 RUB (down)")
	assert.Contains(t, got, "fetcher:freecurrency:RUB:RUB: 1.00 RUB (flat)")

	rate, err := a.fx.Rate(t.Context(), "USD")
	require.NoError(t, err)
	assert.Equal(t, 93.0, rate, "fx source follows the currency presenter")
}
