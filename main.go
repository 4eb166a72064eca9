package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pricetracker/internal/config"
	"pricetracker/internal/logger"
)

func main() {
	var (
		configFile string
		logLevel   string
		timeout    time.Duration
		interval   time.Duration
	)

	// load reads configuration and applies the log level, the flag winning
	// over LOG_LEVEL.
	load := func() *config.Config {
		cfg, err := config.Load(configFile)
		if err != nil {
			logger.Fatal("Failed to load configuration: %v", err)
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		logger.Init(cfg.LogLevel)
		return cfg
	}

	rootCmd := &cobra.Command{
		Use:   "pricetracker",
		Short: "Live currency, cryptocurrency and precious metal prices",
		Long: `pricetracker polls freecurrencyapi, CoinGecko and metalpriceapi and prints
prices in your home currency, per unit of currency or coin and per gram of metal.`,
	}

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch every price once and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := load()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			// Add timeout to prevent hanging indefinitely
			ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
			defer cancelTimeout()

			return newApp(cfg, cmd.OutOrStdout()).fetchOnce(ctx)
		},
	}
	fetchCmd.Flags().DurationVarP(&timeout, "timeout", "t", 60*time.Second, "Give up on the round after this long")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll prices on a fixed interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := load()
			if interval <= 0 {
				interval = cfg.PollInterval
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger.Info("Polling every %s, press Ctrl+C to stop", interval)
			err := newApp(cfg, cmd.OutOrStdout()).watch(ctx, interval)
			logger.Info("Stopped")
			return err
		},
	}
	watchCmd.Flags().DurationVarP(&interval, "interval", "i", 0, "Poll interval (default from POLL_INTERVAL)")

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: ./config.yaml or ~/.pricetracker/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "Log level: debug, info, warn, error (default from LOG_LEVEL)")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(watchCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("Failed to execute command: %v", err)
	}
}

// fetchOnce runs a single round and returns after it has been printed.
func (a *app) fetchOnce(ctx context.Context) error {
	loopCtx, stop := context.WithCancel(context.Background())
	defer stop()

	done := make(chan struct{})
	go func() {
		a.loop.Run(loopCtx)
		close(done)
	}()

	if _, err := a.coord.Run(ctx); err != nil {
		stop()
		<-done
		return fmt.Errorf("fetch failed: %w", err)
	}

	// the report is already queued, stop once it has run
	a.loop.Dispatch(stop)
	<-done
	return nil
}

// watch polls until ctx is done.
func (a *app) watch(ctx context.Context, interval time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		a.loop.Run(ctx)
		close(done)
	}()

	err := a.coord.Poll(ctx, interval)
	cancel()
	<-done

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
