// Command ovtrader runs the automated intraday trading service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
	"go.uber.org/zap"

	"ovtrader/pkg/advisor"
	"ovtrader/pkg/broker"
	"ovtrader/pkg/config"
	"ovtrader/pkg/ledger"
	"ovtrader/pkg/perf"
	"ovtrader/pkg/sched"
	"ovtrader/pkg/store"
)

func main() {
	root := &cobra.Command{
		Use:           "ovtrader",
		Short:         "Automated intraday equity trading service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(), statusCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the trading scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return run(cfg, logger)
		},
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	st, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}

	tracker := perf.NewTracker(st, logger)
	if err := tracker.Load(ctx); err != nil {
		return fmt.Errorf("load performance state: %w", err)
	}

	alpaca := broker.NewAlpaca(cfg.AlpacaAPIKey, cfg.AlpacaAPISecret, cfg.AlpacaBaseURL, logger)

	led := ledger.New(alpaca, sched.MeterOutcomes(tracker), st, logger)
	if err := led.Restore(ctx); err != nil {
		return fmt.Errorf("restore positions: %w", err)
	}
	led.SetParams(tracker.Parameters())

	var adv advisor.Advisor = advisor.Null{}
	if cfg.AdvisorURL != "" {
		adv = advisor.NewHTTP(cfg.AdvisorURL, cfg.AdvisorToken, logger)
	} else {
		logger.Warn("no advisor configured, running in hold-only mode")
	}

	scheduler, err := sched.New(sched.Config{
		Watchlist:       cfg.Watchlist,
		MaxRiskPerTrade: cfg.MaxRiskPerTrade,
		TickEvery:       cfg.TickEvery,
		AnalyzeEvery:    cfg.AnalyzeEvery,
		UpdateEvery:     cfg.UpdateEvery,
	}, alpaca, adv, led, tracker, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(scheduler.Status())
	})
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()

	scheduler.Start()
	logger.Info("service up",
		zap.Strings("watchlist", cfg.Watchlist),
		zap.String("metrics_addr", cfg.MetricsAddr))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the persisted trading state",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := newStore(ctx, cfg)
			if err != nil {
				return err
			}

			out := make(map[string]json.RawMessage)
			for _, key := range []string{
				store.KeyPositions, store.KeyPerformance,
				store.KeyWeights, store.KeyParameters,
			} {
				var raw json.RawMessage
				switch err := st.Get(ctx, key, &raw); {
				case err == nil:
					out[key] = raw
				case errors.Is(err, store.ErrNotFound):
					out[key] = json.RawMessage(`null`)
				default:
					return err
				}
			}

			data, err := json.Marshal(out)
			if err != nil {
				return err
			}
			fmt.Println(string(pretty.Pretty(data)))
			return nil
		},
	}
}

func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.StoreBackend == "redis" {
		return store.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword)
	}
	return store.NewFileStore(cfg.DataDir)
}
