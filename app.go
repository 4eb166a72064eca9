package main

import (
	"fmt"
	"io"

	"pricetracker/internal/coingecko"
	"pricetracker/internal/config"
	"pricetracker/internal/coordinator"
	"pricetracker/internal/dispatch"
	"pricetracker/internal/fetcher"
	"pricetracker/internal/freecurrency"
	"pricetracker/internal/fx"
	"pricetracker/internal/metalprice"
	"pricetracker/internal/pipeline"
	"pricetracker/internal/presenter"
	"pricetracker/internal/ratelimit"
)

// tracked is one presenter plus the unit its prices are shown in.
type tracked struct {
	p    *presenter.Presenter
	unit string
}

// app wires the pipelines, presenters and owner loop built from one config.
type app struct {
	loop    *dispatch.Loop
	coord   *coordinator.Coordinator
	fx      *fx.CurrencySource
	tracked map[string]tracked
	out     io.Writer
}

func newApp(cfg *config.Config, out io.Writer) *app {
	a := &app{
		loop:    dispatch.NewLoop(),
		tracked: make(map[string]tracked),
		out:     out,
	}

	limiter := ratelimit.New(map[ratelimit.API]float64{
		ratelimit.APIFreeCurrency: cfg.FreecurrencyRateLimit,
		ratelimit.APICoinGecko:    cfg.CoingeckoRateLimit,
		ratelimit.APIMetalPrice:   cfg.MetalpriceRateLimit,
	})
	opts := []pipeline.Option{
		pipeline.WithLimiter(limiter),
		pipeline.WithClientOptions(fetcher.ClientOptions{
			RetryCount: cfg.RetryCount,
			Timeout:    cfg.HTTPTimeout,
		}),
	}

	// USD is all the metals pipeline needs from the fallback
	fxFallback := freecurrency.NewRatesFetcher(freecurrency.Params{
		APIKey:  cfg.FreecurrencyAPIKey,
		Base:    cfg.CurrencyBase,
		Home:    cfg.HomeCurrency,
		Targets: []string{metalprice.QuoteCurrency},
	}, cfg.FreecurrencyBaseURL, opts...)
	a.fx = fx.NewCurrencySource(cfg.HomeCurrency, cfg.FXCacheTTL, fxFallback)

	var refreshers []coordinator.Refresher
	add := func(f fetcher.Fetcher, unit string, popts ...presenter.Option) *presenter.Presenter {
		p := presenter.New(f, append([]presenter.Option{presenter.WithDispatcher(a.loop)}, popts...)...)
		a.tracked[p.Key()] = tracked{p: p, unit: unit}
		refreshers = append(refreshers, p)
		return p
	}

	if len(cfg.CurrencyTargets) > 0 {
		targets := append(append([]string(nil), cfg.CurrencyTargets...), cfg.HomeCurrency)
		currency := add(freecurrency.NewRatesFetcher(freecurrency.Params{
			APIKey:  cfg.FreecurrencyAPIKey,
			Base:    cfg.CurrencyBase,
			Home:    cfg.HomeCurrency,
			Targets: targets,
		}, cfg.FreecurrencyBaseURL, opts...), cfg.HomeCurrency)

		currency.Subscribe(func() {
			a.fx.Observe(currency.Assets())
		})
	}

	if len(cfg.CryptoIDs) > 0 {
		add(coingecko.NewPriceFetcher(coingecko.Params{
			APIKey:        cfg.CoingeckoAPIKey,
			IDs:           cfg.CryptoIDs,
			Home:          cfg.HomeCurrency,
			IncludeChange: cfg.CryptoIncludeChange,
		}, cfg.CoingeckoBaseURL, opts...), cfg.HomeCurrency, presenter.WithTrendPolicy(presenter.TrendFromChange))
	}

	if len(cfg.MetalSymbols) > 0 {
		add(metalprice.NewMetalsFetcher(metalprice.Params{
			APIKey:  cfg.MetalpriceAPIKey,
			Home:    cfg.HomeCurrency,
			Symbols: cfg.MetalSymbols,
		}, a.fx, cfg.MetalpriceBaseURL, opts...), cfg.HomeCurrency+"/g")
	}

	a.coord = coordinator.New(refreshers, coordinator.WithRoundHook(func(results []fetcher.Result) {
		// queued behind the commits of this round
		a.loop.Dispatch(func() { a.report(results) })
	}))

	return a
}

// report prints a round in the format:
//   - Success: "KEY:CODE: PRICE UNIT (TREND)"
//   - Error: "KEY: ERROR - error message"
//
// It runs on the owner loop.
func (a *app) report(results []fetcher.Result) {
	for _, r := range results {
		if r.Error != nil {
			fmt.Fprintf(a.out, "%s: ERROR - %v\n", r.Key, r.Error)
			continue
		}

		t, ok := a.tracked[r.Key]
		if !ok {
			continue
		}
		for _, as := range t.p.Assets() {
			fmt.Fprintf(a.out, "%s:%s: %s %s (%s)\n", r.Key, as.Code, formatPrice(as.Price), t.unit, t.p.Trend(as))
		}
	}
}

func formatPrice(p float64) string {
	switch {
	case p >= 1:
		return fmt.Sprintf("%.2f", p)
	case p >= 0.0001:
		return fmt.Sprintf("%.4f", p)
	default:
		return fmt.Sprintf("%.8f", p)
	}
}
