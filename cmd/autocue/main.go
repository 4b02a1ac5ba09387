// Command autocue is the main entry point for the Autocue prompter server.
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
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/autocue/internal/config"
	"github.com/MrWong99/autocue/internal/health"
	"github.com/MrWong99/autocue/internal/motion"
	"github.com/MrWong99/autocue/internal/observe"
	"github.com/MrWong99/autocue/internal/resilience"
	"github.com/MrWong99/autocue/internal/script"
	"github.com/MrWong99/autocue/internal/session"
	"github.com/MrWong99/autocue/internal/store"
	"github.com/MrWong99/autocue/internal/web"
	"github.com/MrWong99/autocue/pkg/provider/stt"
	"github.com/MrWong99/autocue/pkg/provider/stt/deepgram"
	sttmock "github.com/MrWong99/autocue/pkg/provider/stt/mock"
	"github.com/MrWong99/autocue/pkg/provider/stt/whisper"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watchConfig := flag.Bool("watch-config", false, "hot-reload tuning values when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "autocue: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "autocue: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("autocue starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "autocue",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Script store ──────────────────────────────────────────────────────────
	var st store.Store
	var pg *store.Postgres
	if cfg.Store.PostgresDSN != "" {
		pg, err = store.NewPostgres(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect script store", "err", err)
			return 1
		}
		st = pg
		slog.Info("script store ready", "backend", "postgres")
	} else {
		st = store.NewMemory()
		slog.Info("script store ready", "backend", "memory")
	}
	defer st.Close()

	// ── Script ────────────────────────────────────────────────────────────────
	text, scriptID, err := loadScript(ctx, cfg, st)
	if err != nil {
		slog.Error("failed to load script", "err", err)
		return 1
	}
	index := script.NewIndex(text)
	if index.Len() == 0 {
		slog.Error("script contains no words", "script", scriptID)
		return 1
	}
	slog.Info("script loaded", "script", scriptID, "words", index.Len())

	// ── Speech provider ───────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	provider, err := buildSTT(cfg, reg)
	if err != nil {
		slog.Error("failed to build stt provider", "err", err)
		return 1
	}

	// ── Session and web surface ───────────────────────────────────────────────
	svc := web.NewService(st, metrics)

	vp := motion.Viewport{
		Height:          cfg.Viewport.HeightPx,
		PxPerWord:       cfg.Viewport.PxPerWord,
		LeadingPadding:  cfg.Viewport.LeadingPaddingPx,
		TrailingPadding: cfg.Viewport.TrailingPaddingPx,
		WordCount:       index.Len(),
	}
	sess := session.New(scriptID, index, vp, cfg.Tuning, metrics,
		motion.WithOffsetFunc(svc.PushOffset),
		motion.WithStateFunc(func(s motion.State) {
			slog.Info("scroll state changed", "state", s)
			svc.PushState(s)
		}),
	)
	svc.Attach(sess)

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watchConfig {
		watcher, err := config.NewWatcher(*configPath, func(_, next *config.Config) {
			slog.Info("config changed, applying tuning")
			sess.SetTuning(next.Tuning)
		})
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
			return 1
		}
		defer watcher.Stop()
	}

	// ── Transcription stream ──────────────────────────────────────────────────
	handle, err := provider.StartStream(ctx, stt.StreamConfig{
		SampleRate: 16000,
		Channels:   1,
	})
	if err != nil {
		slog.Error("failed to start transcription stream", "err", err)
		return 1
	}
	defer handle.Close()
	svc.SetAudioSink(handle.SendAudio)

	// ── HTTP server ───────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	svc.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	healthHandler := health.New(healthCheckers(pg, provider)...)
	healthHandler.Register(mux)

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	srv := &http.Server{
		Addr:    listenAddr,
		Handler: observe.Middleware(metrics)(mux),
	}

	printStartupSummary(cfg, listenAddr, index.Len())

	// ── Run ───────────────────────────────────────────────────────────────────
	sess.Start(ctx)
	defer sess.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", listenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sess.Pump(gctx, handle)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		slog.Info("shutdown signal received, stopping…")
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in speech provider factories into
// reg. Each factory receives a config.ProviderEntry and constructs the
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.Options["language"]; lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.Options["language"]; lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// mock replays nothing on its own; it exists so the server can run
	// end-to-end without any speech backend, fed via tests or tooling.
	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})

	for _, name := range reg.STTNames() {
		slog.Debug("registered provider", "kind", "stt", "name", name)
	}
}

// buildSTT instantiates the configured speech provider. When the entry's
// options name a fallback provider, the result is wrapped in a failover group
// with per-backend circuit breakers.
func buildSTT(cfg *config.Config, reg *config.Registry) (stt.Provider, error) {
	entry := cfg.Provider.STT
	if entry.Name == "" {
		return nil, errors.New("provider.stt.name is not configured")
	}
	primary, err := reg.CreateSTT(entry)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", entry.Name)

	fallbackName := entry.Options["fallback"]
	if fallbackName == "" {
		return primary, nil
	}

	fbEntry := entry
	fbEntry.Name = fallbackName
	fallback, err := reg.CreateSTT(fbEntry)
	if err != nil {
		return nil, fmt.Errorf("create stt fallback %q: %w", fallbackName, err)
	}

	fb := resilience.NewSTTFallback(primary, entry.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback(fallbackName, fallback)
	slog.Info("stt failover enabled", "primary", entry.Name, "fallback", fallbackName)
	return fb, nil
}

// ── Script loading ────────────────────────────────────────────────────────────

// loadScript resolves the script text from either a file or the store and
// returns it with a display identifier.
func loadScript(ctx context.Context, cfg *config.Config, st store.Store) (text, id string, err error) {
	switch {
	case cfg.Script.Path != "":
		data, err := os.ReadFile(cfg.Script.Path)
		if err != nil {
			return "", "", fmt.Errorf("read script file: %w", err)
		}
		return string(data), cfg.Script.Path, nil

	case cfg.Script.ID != "":
		sc, err := st.Get(ctx, cfg.Script.ID)
		if err != nil {
			return "", "", fmt.Errorf("load script %q from store: %w", cfg.Script.ID, err)
		}
		return sc.Body, sc.ID, nil

	default:
		return "", "", errors.New("either script.path or script.id must be configured")
	}
}

// healthCheckers assembles the readiness checks for the configured backends.
func healthCheckers(pg *store.Postgres, provider stt.Provider) []health.Checker {
	checkers := []health.Checker{
		{
			Name: "stt",
			Check: func(context.Context) error {
				if provider == nil {
					return errors.New("no provider configured")
				}
				return nil
			},
		},
	}
	if pg != nil {
		checkers = append(checkers, health.Checker{Name: "store", Check: pg.Ping})
	}
	return checkers
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, listenAddr string, words int) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Autocue — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("STT", providerLabel(cfg.Provider.STT))
	printRow("Script words", fmt.Sprintf("%d", words))
	if cfg.Store.PostgresDSN != "" {
		printRow("Store", "postgres")
	} else {
		printRow("Store", "memory")
	}
	printRow("Caret", fmt.Sprintf("%.0f%%", cfg.Tuning.CaretPercent*100))
	printRow("Listen addr", listenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(entry config.ProviderEntry) string {
	if entry.Name == "" {
		return "(not configured)"
	}
	if entry.Model != "" {
		return entry.Name + " / " + entry.Model
	}
	return entry.Name
}

func printRow(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
