package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/config"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/engine"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/logger"
	prommetrics "github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/metrics/prometheus"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/server"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/sessions"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/statestore"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/telemetry"
)

const shutdownTimeout = 10 * time.Second

const (
	flagAddr        = "addr"
	flagMetricsAddr = "metrics-addr"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session and moderator guidance API",
	Long: `Starts the HTTP API that mints realtime sessions (POST /api/sessions) and
answers moderator guidance polls (POST /api/moderator/guidance).

Prometheus metrics are served at /metrics on the API, and on a separate
listener when --metrics-addr is set.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String(flagAddr, "", "API listen address (default from config, :8000)")
	serveCmd.Flags().String(flagMetricsAddr, "", "Separate metrics listen address")

	_ = viper.BindPFlag("serve."+flagAddr, serveCmd.Flags().Lookup(flagAddr))
	_ = viper.BindPFlag("serve."+flagMetricsAddr, serveCmd.Flags().Lookup(flagMetricsAddr))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr := viper.GetString("serve." + flagAddr); addr != "" {
		cfg.Server.Addr = addr
	}
	if addr := viper.GetString("serve." + flagMetricsAddr); addr != "" {
		cfg.Metrics.Addr = addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, shutdownTracing, err := setupTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	metrics := prommetrics.NewMetrics(cfg.Metrics.Namespace)
	exporter := prommetrics.NewExporter(cfg.Metrics.Addr, metrics)

	store, closeStore, err := buildStore(ctx, cfg.Server)
	if err != nil {
		return err
	}
	defer closeStore()

	srv, err := buildServer(ctx, cfg, store, metrics, exporter, tp)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("API listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(cfg.Server.Addr); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	if cfg.Metrics.Addr != "" && cfg.Metrics.Addr != cfg.Server.Addr {
		g.Go(func() error {
			logger.Info("Metrics listening", "addr", cfg.Metrics.Addr)
			if err := exporter.Start(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), exporter.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

// setupTracing installs an OTLP tracer provider when an endpoint is set.
func setupTracing(ctx context.Context, cfg *config.Config) (trace.TracerProvider, func(), error) {
	telemetry.SetupPropagation()
	tc := cfg.Telemetry
	if tc.OTLPEndpoint == "" {
		return otel.GetTracerProvider(), func() {}, nil
	}
	tp, err := telemetry.NewTracerProvider(ctx, tc.OTLPEndpoint, tc.ServiceName,
		telemetry.WithSampleRatio(tc.SampleRatio),
		telemetry.WithResourceAttributes(
			attribute.String("voicemod.realtime.provider", cfg.Realtime.Provider),
			attribute.String("voicemod.engine.provider", cfg.Engine.Provider),
		))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}
	otel.SetTracerProvider(tp)
	return tp, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Tracer provider shutdown failed", "error", err)
		}
	}, nil
}

// buildStore opens the configured session store.
func buildStore(ctx context.Context, cfg config.ServerConfig) (statestore.Store, func(), error) {
	switch cfg.StateStore.Type {
	case config.StateStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.StateStore.Redis.Address,
			Password: cfg.StateStore.Redis.Password,
			DB:       cfg.StateStore.Redis.Database,
		})
		store := statestore.NewRedisStore(client,
			statestore.WithTTL(cfg.SessionTTL),
			statestore.WithPrefix(cfg.StateStore.Redis.Prefix))
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil
	default:
		return statestore.NewMemoryStore(statestore.WithMemoryTTL(cfg.SessionTTL)), func() {}, nil
	}
}

// buildServer wires the minter, the engine and the store into the API.
func buildServer(ctx context.Context, cfg *config.Config, store statestore.Store,
	metrics *prommetrics.Metrics, exporter *prommetrics.Exporter, tp trace.TracerProvider,
) (*server.Server, error) {
	minter, err := sessions.FromConfig(ctx, cfg.Realtime)
	if err != nil {
		if !errors.Is(err, sessions.ErrNotConfigured) {
			return nil, err
		}
		logger.Warn("Realtime provider not configured; session minting will fail", "error", err)
		minter = sessions.Unavailable(cfg.Realtime.Provider, err)
	}

	eng, err := engine.FromConfig(ctx, cfg.Engine,
		engine.WithTracerProvider(tp),
		engine.WithObserver(func(generator string, d time.Duration, err error) {
			metrics.RecordEngineAnalysis(generator, d.Seconds(), err)
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to build guidance engine: %w", err)
	}

	return server.NewServer(minter, eng,
		server.WithStore(store),
		server.WithMetrics(metrics),
		server.WithMetricsHandler(exporter.Handler()),
		server.WithCORSOrigins(cfg.Server.CORSOrigins...),
		server.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		server.WithLimiterTTL(cfg.Server.SessionTTL),
		server.WithTracerProvider(tp),
		server.WithSessionDefaults(server.SessionDefaults{
			Model:              cfg.Realtime.Model,
			Voice:              cfg.Realtime.Voice,
			TranscriptionModel: cfg.Realtime.TranscriptionModel,
			Persona:            cfg.Realtime.Instructions,
		}),
	)
}
