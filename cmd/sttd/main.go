// Command sttd is the main entry point for the streaming speech-to-text
// server: it loads configuration, wires the recognizer registry, starts the
// websocket transport and health endpoints, and shuts down cleanly on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/streamstt/internal/config"
	"github.com/MrWong99/streamstt/internal/core"
	"github.com/MrWong99/streamstt/internal/health"
	"github.com/MrWong99/streamstt/internal/observe"
	"github.com/MrWong99/streamstt/internal/recognizer/mock"
	"github.com/MrWong99/streamstt/internal/recognizer/whisper"
	"github.com/MrWong99/streamstt/internal/resilience"
	"github.com/MrWong99/streamstt/internal/wsserver"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration, keep watching it ────────────────────────────
	// The watcher hands every new connection the latest valid config;
	// log level follows reloads live. The listen address is fixed for the
	// process lifetime.
	var logLevel slog.LevelVar
	watcher, err := config.NewWatcher(*configPath, func(_, updated *config.Config) {
		logLevel.Set(slogLevel(updated.Server.LogLevel))
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sttd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sttd: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	// ── Logger ───────────────────────────────────────────────────────────
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(&logLevel))

	slog.Info("sttd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "sttd"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Recognizer registry ─────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinRecognizers(reg, watcher.Current)

	// ── HTTP mux: websocket endpoint + health/metrics ───────────────────
	mux := http.NewServeMux()

	wss := wsserver.NewServer(cfg, reg,
		wsserver.WithMetrics(metrics),
		wsserver.WithConfigSource(watcher.Current),
	)
	mux.Handle("/v1/stream", wss)

	healthHandler := health.New(health.Checker{
		Name: "recognizer_registry",
		Check: func(ctx context.Context) error {
			if watcher.Current().Recognizer.Default == "" {
				return errors.New("no default recognizer configured")
			}
			return nil
		},
	})
	healthHandler.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(metrics)(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-errCh:
		if err != nil {
			slog.Error("server error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "err", err)
		return 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Error("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinRecognizers wires the factory for every recognizer backend
// name the config schema accepts. A "fallback" entry constructs its own
// BaseURL/Model/Language as a NeuralBackend primary and wraps it with a
// circuit breaker around the backend named by its Fallback field, via
// [resilience.RecognizerFallback]. Factories read current() at resolve
// time, so a reloaded config governs the backends of new connections.
func registerBuiltinRecognizers(reg *config.Registry, current func() *config.Config) {
	reg.Register("mock", func(entry config.ProviderEntry) (core.Recognizer, error) {
		return &mock.MockDuration{}, nil
	})

	reg.Register("whisper", func(entry config.ProviderEntry) (core.Recognizer, error) {
		return newWhisperBackend(entry)
	})

	reg.Register("fallback", func(entry config.ProviderEntry) (core.Recognizer, error) {
		primary, err := newWhisperBackend(entry)
		if err != nil {
			return nil, fmt.Errorf("fallback: construct primary: %w", err)
		}

		secondaryEntry, ok := current().Recognizer.Backends[entry.Fallback]
		if !ok {
			return nil, fmt.Errorf("fallback: backend %q is not declared", entry.Fallback)
		}
		secondary, err := reg.CreateRecognizer(secondaryEntry)
		if err != nil {
			return nil, fmt.Errorf("fallback: construct secondary %q: %w", entry.Fallback, err)
		}

		group := resilience.NewRecognizerFallback(primary, "primary", resilience.FallbackConfig{
			Breaker: resilience.BreakerConfig{
				FailureThreshold: 3,
				Cooldown:         30 * time.Second,
			},
		})
		group.AddFallback(entry.Fallback, secondary)
		return group, nil
	})
}

func newWhisperBackend(entry config.ProviderEntry) (*whisper.NeuralBackend, error) {
	opts := []whisper.Option{}
	if entry.Model != "" {
		opts = append(opts, whisper.WithModel(entry.Model))
	}
	if entry.Language != "" {
		opts = append(opts, whisper.WithLanguage(entry.Language))
	}
	return whisper.New(entry.BaseURL, opts...)
}

// ── Logger ───────────────────────────────────────────────────────────────

// newLogger builds the process logger around a shared LevelVar so config
// reloads can raise or lower verbosity without replacing the handler.
func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
