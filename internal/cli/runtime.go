package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/loom/internal/config"
	"github.com/harun/loom/internal/logger"
	"github.com/harun/loom/internal/observability"
	"github.com/harun/loom/internal/tracing"
	"github.com/harun/loom/pkg/agent"
	"github.com/harun/loom/pkg/commandqueue"
	"github.com/harun/loom/pkg/coretools"
	"github.com/harun/loom/pkg/model"
	"github.com/harun/loom/pkg/reasoning"
	"github.com/harun/loom/pkg/session"
	"github.com/harun/loom/pkg/tool"
)

// runtime bundles the wired components behind the CLI commands
type runtime struct {
	cfg      *config.Config
	log      *logger.Logger
	store    session.Store
	registry *tool.Registry
	adapter  *model.Adapter
	queue    *commandqueue.Queue
	runner   *agent.Runner

	tracingEnabled bool
	metricsSrv     *http.Server
}

// newRuntime builds the full agent stack from configuration
func newRuntime(cfg *config.Config) (*runtime, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   false,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	observability.EnsureRegistered()
	tracingEnabled := true
	if err := tracing.InitOpenTelemetry("loom"); err != nil {
		lg.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		tracingEnabled = false
	}

	if err := observability.InitAuditLogger(filepath.Join(cfg.DataDir, "audit.log")); err != nil {
		lg.Warn().Err(err).Msg("audit log unavailable")
	}

	store, err := newStore(cfg)
	if err != nil {
		lg.Close()
		return nil, err
	}

	registry := tool.NewRegistry()
	if err := coretools.RegisterCoreTools(registry, coretools.Options{
		DailyRate: cfg.Agent.DailyRate,
	}); err != nil {
		store.Close()
		lg.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	provider, err := model.NewProvider(model.ProviderConfig{
		Provider: cfg.Model.Provider,
		APIKey:   cfg.Model.APIKey,
		BaseURL:  cfg.Model.BaseURL,
	})
	if err != nil {
		store.Close()
		lg.Close()
		return nil, err
	}

	adapter, err := model.NewAdapter(model.AdapterConfig{
		Provider: provider,
		Model:    cfg.Model.Name,
		Markers: reasoning.Markers{
			Open:  cfg.Reasoning.OpenMarker,
			Close: cfg.Reasoning.CloseMarker,
		},
		Temperature:    cfg.Model.Temperature,
		MaxTokens:      cfg.Model.MaxTokens,
		PrimeReasoning: cfg.Reasoning.Prime,
		Logger:         lg.GetZerolog(),
	})
	if err != nil {
		store.Close()
		lg.Close()
		return nil, err
	}

	queue := commandqueue.New()

	runner, err := agent.NewRunner(agent.Config{
		Store:        store,
		Registry:     registry,
		Adapter:      adapter,
		Queue:        queue,
		SystemPrompt: cfg.Agent.SystemPrompt,
		MaxToolTurns: cfg.Agent.MaxToolTurns,
		Logger:       lg.GetZerolog(),
	})
	if err != nil {
		queue.Close()
		store.Close()
		lg.Close()
		return nil, err
	}

	rt := &runtime{
		cfg:            cfg,
		log:            lg,
		store:          store,
		registry:       registry,
		adapter:        adapter,
		queue:          queue,
		runner:         runner,
		tracingEnabled: tracingEnabled,
	}

	if cfg.Metrics.Enabled {
		rt.metricsSrv = &http.Server{
			Addr:    cfg.Metrics.Listen,
			Handler: observability.MetricsHandler(),
		}
		go func() {
			if err := rt.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				lg.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	return rt, nil
}

// newStore creates the conversation store for the configured backend
func newStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Store.Backend {
	case "file":
		return session.NewFileStore(cfg.Store.Dir)
	case "sqlite":
		return session.NewSQLiteStore(cfg.Store.Path)
	case "memory":
		return session.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}

// close releases all runtime resources
func (rt *runtime) close() {
	if rt.metricsSrv != nil {
		rt.metricsSrv.Close()
	}
	rt.queue.Close()
	rt.store.Close()
	if rt.tracingEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = tracing.ShutdownOpenTelemetry(ctx)
		cancel()
	}
	rt.log.Close()
}
