package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/amelia-orch/amelia/internal/config"
	"github.com/amelia-orch/amelia/internal/driver"
	"github.com/amelia-orch/amelia/internal/driver/provider"
	"github.com/amelia-orch/amelia/internal/events"
	"github.com/amelia-orch/amelia/internal/httpapi"
	"github.com/amelia-orch/amelia/internal/orchestrator"
	"github.com/amelia-orch/amelia/internal/persistence"
	"github.com/amelia-orch/amelia/internal/sandbox"
	"github.com/amelia-orch/amelia/internal/state"
	"github.com/amelia-orch/amelia/internal/telemetry"
	"github.com/amelia-orch/amelia/internal/tracker"
)

var (
	servePort      int
	serveHost      string
	serveStoreKind string
	serveStoreDSN  string
	serveAllowed   []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the amelia API and WebSocket server",
	Long: `Start the REST/WebSocket boundary: loads profiles.yaml, watches it
for hot reload, assembles the driver factory from provider API keys in the
environment, and drives workflows through internal/orchestrator.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", "0.0.0.0", "host to bind to")
	serveCmd.Flags().StringVar(&serveStoreKind, "store", "sqlite", "persistence backend: memory|sqlite|postgres|mysql")
	serveCmd.Flags().StringVar(&serveStoreDSN, "db", "amelia.db", "store DSN/path (ignored for memory)")
	serveCmd.Flags().StringSliceVar(&serveAllowed, "cors-allowed-origin", []string{"*"}, "allowed CORS origins for the dashboard/mobile client")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(verbose)
	defer logger.Sync()

	profilesPath := config.Path(cfgDir)
	profiles, err := config.Load(profilesPath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", profilesPath, err)
	}
	logger.Info("loaded profiles", zap.Int("count", len(profiles)), zap.String("path", profilesPath))

	store, err := openStore(serveStoreKind, serveStoreDSN)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", serveStoreKind, err)
	}
	defer store.Close()

	bus := events.NewBus(store)
	bus.Subscribe(events.NewLogSink(logger))

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	bus.Subscribe(telemetry.NewOTelSink(tp.Tracer("amelia")))

	wsManager := events.NewManager()
	bus.Subscribe(wsManager)
	defer wsManager.Shutdown()

	metrics := telemetry.NewMetrics(nil)
	costTracker := telemetry.NewCostTracker(metrics)

	factory, err := buildDriverFactory(logger, metrics)
	if err != nil {
		return fmt.Errorf("building driver factory: %w", err)
	}

	svc := orchestrator.New(profiles, store, bus, factory, trackerConfigFromEnv(), 5*time.Minute, logger, costTracker)

	watcher, err := config.NewWatcher(profilesPath, logger)
	if err != nil {
		logger.Warn("profile hot reload disabled", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if watcher != nil {
		watcher.Start(ctx)
		defer watcher.Stop()
		go watchProfiles(ctx, watcher, svc, logger)
	}

	sweeper := persistence.NewSweeper(store, persistence.DefaultRetentionConfig(), logger)
	go sweeper.Run(ctx)

	router := httpapi.NewRouter(httpapi.Deps{
		Workflows:       svc,
		Pairing:         store,
		Events:          wsManager,
		EventLog:        store,
		ResolveProvider: resolveProviderFor(profiles),
		Logger:          logger,
		AllowedOrigins:  serveAllowed,
	})
	if cr, ok := router.(chi.Router); ok {
		cr.Handle("/metrics", promhttp.Handler())
	}

	addr := fmt.Sprintf("%s:%d", serveHost, servePort)
	return runHTTPServer(ctx, addr, router, logger)
}

// watchProfiles feeds every successful reload into the orchestrator so
// in-flight workflows keep running against the config captured at Start
// while new workflows pick up the fresh profile set (spec.md §6.3).
func watchProfiles(ctx context.Context, w *config.Watcher, svc *orchestrator.Service, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-w.Updates():
			if u.Err != nil {
				continue
			}
			svc.SetProfiles(u.Profiles)
			logger.Info("profiles reloaded", zap.Int("count", len(u.Profiles)))
		}
	}
}

func openStore(kind, dsn string) (persistence.Store, error) {
	switch strings.ToLower(kind) {
	case "memory":
		return persistence.NewMemStore(), nil
	case "sqlite", "":
		return persistence.NewSQLiteStore(dsn)
	case "postgres", "postgresql":
		return persistence.NewPostgresStore(context.Background(), dsn)
	case "mysql":
		return persistence.NewMySQLStore(dsn)
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}

// buildDriverFactory resolves provider.ChatModel clients from API keys in
// the environment (ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY) plus
// the CLI/container driver knobs, mirroring how stxkxs-cadre's
// internal/provider/anthropic.go and internal/config/loader.go pull
// credentials from the environment rather than the YAML profile itself.
func buildDriverFactory(logger *zap.Logger, metrics *telemetry.Metrics) (driver.Factory, error) {
	var models driver.ProviderModels
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		models.Anthropic = provider.NewAnthropicModel(key, "claude-sonnet-4-5", os.Getenv("ANTHROPIC_BASE_URL"))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		models.OpenAI = provider.NewOpenAIModel(key, "gpt-5", os.Getenv("OPENAI_BASE_URL"))
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		models.Google = provider.NewGoogleModel(key, "gemini-2.5-pro")
	}
	if models.Anthropic == nil && models.OpenAI == nil && models.Google == nil {
		logger.Warn("no provider API keys set; profiles using driver: api will fail to build")
	}

	return driver.Factory{
		Models: models,
		Tools: driver.ToolRegistry{
			"http_request": driver.NewHTTPTool(),
		},
		CLICommand:  envOr("AMELIA_CLI_DRIVER_COMMAND", "claude"),
		CLIBaseArgs: nil,
		Sandbox:     sandbox.NewDockerProvider(),
		WorkerCmd:   envOr("AMELIA_SANDBOX_WORKER_CMD", "amelia-sandbox-worker"),
		Breaker: driver.BreakerConfig{
			MaxFailures: 5,
			OpenTimeout: 30 * time.Second,
			OnStateChange: func(name string, from, to gobreaker.State) {
				metrics.RecordBreakerStateChange(name, to.String())
			},
		},
	}, nil
}

func trackerConfigFromEnv() tracker.Config {
	return tracker.Config{
		BaseURL: os.Getenv("AMELIA_TRACKER_BASE_URL"),
		Token:   os.Getenv("AMELIA_TRACKER_TOKEN"),
		Project: os.Getenv("AMELIA_TRACKER_PROJECT"),
		Owner:   os.Getenv("AMELIA_TRACKER_OWNER"),
		Repo:    os.Getenv("AMELIA_TRACKER_REPO"),
	}
}

// resolveProviderFor builds the sandbox proxy's ResolveProvider: the
// container worker only ever speaks for the profile's developer agent (the
// one role that executes agentic tool calls inside a sandbox), so the
// profile name is enough to pick the right upstream without the container
// itself ever holding a real API key (spec.md §4.3).
func resolveProviderFor(profiles map[string]state.Profile) sandbox.ResolveProvider {
	return func(profileName string) (sandbox.ProviderCreds, error) {
		p, ok := profiles[profileName]
		if !ok {
			return sandbox.ProviderCreds{}, fmt.Errorf("sandbox proxy: unknown profile %q", profileName)
		}
		cfg, ok := p.ResolveAgent(state.RoleDeveloper)
		if !ok {
			return sandbox.ProviderCreds{}, fmt.Errorf("sandbox proxy: profile %q has no developer agent", profileName)
		}
		return providerCreds(cfg.Model)
	}
}

func providerCreds(model string) (sandbox.ProviderCreds, error) {
	switch {
	case strings.HasPrefix(model, "claude"):
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			return sandbox.ProviderCreds{BaseURL: envOr("ANTHROPIC_BASE_URL", "https://api.anthropic.com"), APIKey: key}, nil
		}
	case strings.HasPrefix(model, "gemini"):
		if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
			return sandbox.ProviderCreds{BaseURL: "https://generativelanguage.googleapis.com", APIKey: key}, nil
		}
	default:
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			return sandbox.ProviderCreds{BaseURL: envOr("OPENAI_BASE_URL", "https://api.openai.com"), APIKey: key}, nil
		}
	}
	return sandbox.ProviderCreds{}, fmt.Errorf("sandbox proxy: no API key configured for model %q", model)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLogger(verbose bool) *zap.Logger {
	var logger *zap.Logger
	var err error
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

// runHTTPServer starts handler on addr and blocks until ctx is canceled
// (SIGINT/SIGTERM), then shuts down gracefully within 10s.
func runHTTPServer(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("amelia listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
