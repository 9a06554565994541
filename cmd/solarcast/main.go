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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/solarcast/internal/device"
	"github.com/rewired-gh/solarcast/internal/httpapi"
	"github.com/rewired-gh/solarcast/internal/kafkasink"
	"github.com/rewired-gh/solarcast/internal/logger"
	"github.com/rewired-gh/solarcast/internal/publish"
	"github.com/rewired-gh/solarcast/internal/realtime"
	"github.com/rewired-gh/solarcast/internal/storage"
	"github.com/rewired-gh/solarcast/internal/store"
	"github.com/rewired-gh/solarcast/internal/telegram"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "solarcast",
		Short: "Solarcast - real-time DC power forecasting for solar field loggers",
		Long: `Polls a field device's latest reading from the remote store, forecasts its
DC power output with a pre-trained model and writes the forecast back next to
the reading.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(predictCmd())
	rootCmd.AddCommand(simulateCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("%v", err)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			logger.Info("Shutdown signal received, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// runCmd starts the poll loop
func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the real-time forecasting loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			env, err := setup(ctx)
			if err != nil {
				return err
			}
			defer env.Close()
			cfg := env.cfg

			opts := realtime.Options{
				DeviceID:  cfg.Device.ID,
				Store:     env.store,
				Builder:   env.builder,
				Engine:    env.engine,
				Publisher: publish.New(env.store, cfg.Device.ID, cfg.Realtime.PredictionField, env.loc),
				Interval:  cfg.Realtime.Interval,
			}

			if cfg.Journal.Enabled {
				journal, err := storage.New(cfg.Journal.MaxRecords, cfg.Journal.DBPath)
				if err != nil {
					return fmt.Errorf("failed to initialize prediction journal: %w", err)
				}
				defer closeLogged("prediction journal", journal.Close)
				opts.Journal = journal
				logger.Info("Prediction journal at %s (max %d records)", cfg.Journal.DBPath, cfg.Journal.MaxRecords)
			}

			if cfg.Kafka.Enabled {
				sink := kafkasink.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.WriteTimeout, env.schema)
				defer closeLogged("kafka writer", sink.Close)
				opts.Events = sink
				logger.Info("Publishing prediction events to %s on %v", cfg.Kafka.Topic, cfg.Kafka.Brokers)
			}

			if cfg.Telegram.Enabled {
				tg, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Device.ID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
				if err != nil {
					return fmt.Errorf("failed to initialize Telegram client: %w", err)
				}
				opts.Notifier = tg
				logger.Info("Telegram client initialized successfully")
			} else {
				logger.Debug("Telegram notifications disabled")
			}

			if cfg.HTTP.MetricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				srv := &http.Server{Addr: cfg.HTTP.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					logger.Info("Metrics listening on %s", cfg.HTTP.MetricsAddr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("Metrics server failed: %v", err)
					}
				}()
				defer shutdown(srv)
			}

			loop, err := realtime.New(opts)
			if err != nil {
				return err
			}
			return loop.Run(ctx)
		},
	}
}

// serveCmd starts the on-demand prediction API
func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve on-demand predictions over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			env, err := setup(ctx)
			if err != nil {
				return err
			}
			defer env.Close()
			cfg := env.cfg
			if addr == "" {
				addr = cfg.HTTP.Addr
			}

			var recent httpapi.RecentSource
			if cfg.Journal.Enabled {
				journal, err := storage.New(cfg.Journal.MaxRecords, cfg.Journal.DBPath)
				if err != nil {
					return fmt.Errorf("failed to open prediction journal: %w", err)
				}
				defer closeLogged("prediction journal", journal.Close)
				recent = journal
			}

			predictor := realtime.NewOnDemand(env.store, cfg.Device.ID, env.builder, env.engine)
			server := httpapi.NewServer(cfg.Device.ID, predictor, recent)
			srv := &http.Server{Addr: addr, Handler: server.Handler(os.Stdout), ReadHeaderTimeout: 5 * time.Second}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Prediction API listening on %s", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				shutdown(srv)
				return nil
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("prediction API failed: %w", err)
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides http.addr)")
	return cmd
}

// predictCmd prints one on-demand prediction
func predictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predict",
		Short: "Print one prediction for the current reading as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			env, err := setup(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			predictor := realtime.NewOnDemand(env.store, env.cfg.Device.ID, env.builder, env.engine)
			snap, err := predictor.Predict(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"sensor_data":        snap.Document,
				"predicted_dc_power": snap.Value,
			})
		},
	}
}

// simulateCmd writes synthetic device readings
func simulateCmd() *cobra.Command {
	var (
		interval time.Duration
		steps    int
		seed     uint64
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write synthetic device readings to the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			env, err := setupStore(ctx, dryRun)
			if err != nil {
				return err
			}
			defer env.Close()
			cfg := env.cfg

			if interval <= 0 {
				interval = cfg.Realtime.Interval
			}
			sim := device.New(env.store, cfg.Device.ID, cfg.Device.Fields, env.loc, seed)

			if steps <= 0 {
				logger.Info("Simulating device %s every %v", cfg.Device.ID, interval)
				return sim.Run(ctx, interval)
			}
			for i := 0; i < steps; i++ {
				entry, err := sim.Step(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", entry)
				if i < steps-1 {
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(interval):
					}
				}
			}
			if mem, ok := env.raw.(*store.Memory); ok {
				logger.Info("Dry run wrote %d documents", len(mem.Paths()))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Write interval (defaults to realtime.interval)")
	cmd.Flags().IntVar(&steps, "steps", 0, "Number of readings to write; 0 runs until interrupted")
	cmd.Flags().Uint64Var(&seed, "seed", uint64(time.Now().UnixNano()), "Noise seed")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Write to an in-memory store instead of the configured backend")
	return cmd
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("Failed to shut down %s: %v", srv.Addr, err)
	}
}

func closeLogged(name string, fn func() error) {
	if err := fn(); err != nil {
		logger.Error("Failed to close %s: %v", name, err)
	}
}
