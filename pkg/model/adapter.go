package model

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/loom/internal/observability"
	"github.com/harun/loom/internal/tracing"
	"github.com/harun/loom/pkg/reasoning"
	"github.com/harun/loom/pkg/tool"
)

// Provider is a single inference backend. Stream makes one call and
// returns its event stream; an outright call failure is returned as an
// error before any event is produced.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (*Stream, error)
}

// Adapter wraps a Provider with the protocol conventions of the turn
// loop. The reasoning-block priming is deliberate: every generation is
// seeded with a synthetic assistant turn that opens the hidden block,
// and the open marker is registered as a stop sequence so the model
// halts before starting a second block. That caps each call at one
// reasoning pass and keeps tool-call rounds observable.
type Adapter struct {
	provider    Provider
	model       string
	markers     reasoning.Markers
	temperature float64
	maxTokens   int
	prime       bool
	logger      zerolog.Logger
}

// AdapterConfig configures an Adapter.
type AdapterConfig struct {
	Provider       Provider
	Model          string
	Markers        reasoning.Markers
	Temperature    float64
	MaxTokens      int
	PrimeReasoning bool
	Logger         zerolog.Logger
}

// NewAdapter creates a model adapter.
func NewAdapter(cfg AdapterConfig) (*Adapter, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}
	if cfg.Markers.Open == "" {
		cfg.Markers = reasoning.DefaultMarkers()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	return &Adapter{
		provider:    cfg.Provider,
		model:       cfg.Model,
		markers:     cfg.Markers,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		prime:       cfg.PrimeReasoning,
		logger:      cfg.Logger,
	}, nil
}

// Markers returns the reasoning delimiters the adapter enforces.
func (a *Adapter) Markers() reasoning.Markers {
	return a.markers
}

// ProviderName returns the underlying provider's name.
func (a *Adapter) ProviderName() string {
	return a.provider.Name()
}

// Invoke sends the session state to the model and returns the response
// stream. With tools bound, sampling is forced near-deterministic so
// tool selection stays stable; the reasoning-open marker is always
// passed as a stop sequence. A failed call surfaces as
// *InvocationError; no retry happens here.
func (a *Adapter) Invoke(ctx context.Context, system string, history []Message, tools []tool.Schema) (*Stream, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"loom.model",
		"model.invoke",
		attribute.String("provider", a.provider.Name()),
		attribute.String("model", a.model),
		attribute.Int("tools", len(tools)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, a.logger)

	req := Request{
		Model:       a.model,
		System:      system,
		Messages:    history,
		Tools:       tools,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
		Stop:        []string{a.markers.Open},
	}

	if len(tools) > 0 {
		// Tool dispatch must be reproducible, not creative.
		req.Temperature = 0
		req.TopP = 0.1
		req.TopK = 1
	}

	if a.prime {
		req.Messages = append(append([]Message{}, history...), Message{
			Role:    "assistant",
			Content: a.markers.Open,
		})
	}

	start := time.Now()
	stream, err := a.provider.Stream(ctx, req)
	if err != nil {
		observability.RecordModelCall(a.provider.Name(), time.Since(start), false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Str("provider", a.provider.Name()).Msg("Model invocation failed")
		return nil, &InvocationError{Provider: a.provider.Name(), Err: err}
	}

	observability.RecordModelCall(a.provider.Name(), time.Since(start), true)
	logger.Debug().
		Str("provider", a.provider.Name()).
		Int("messages", len(req.Messages)).
		Msg("Model invoked")

	return stream, nil
}
