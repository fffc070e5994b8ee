// Package gate turns a drawing into a fish/not-fish decision.
//
// The classifier emits a single logit whose positive class is "not fish", so
// the fish probability is the complement of its sigmoid. A drawing is
// accepted when that probability reaches Threshold.
package gate

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/finverse/finverse/pkg/domain"
	"github.com/finverse/finverse/pkg/inference"
	"github.com/finverse/finverse/pkg/normalize"
	"github.com/finverse/finverse/pkg/telemetry"
)

// Threshold is the minimum fish probability for acceptance.
const Threshold = 0.60

// Sigmoid is the logistic function.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// FishProbability maps the model logit to the probability of "fish".
func FishProbability(logit float64) float64 {
	return 1 - Sigmoid(logit)
}

// Accept reports whether p clears the default threshold.
func Accept(p float64) bool {
	return p >= Threshold
}

// Gate evaluates drawings against the shared classifier.
type Gate struct {
	loader    *inference.Loader
	model     string
	threshold float64
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithThreshold overrides the acceptance threshold.
func WithThreshold(t float64) Option {
	return func(g *Gate) { g.threshold = t }
}

// WithModelName labels metrics with the model name.
func WithModelName(name string) Option {
	return func(g *Gate) { g.model = name }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// WithTracer replaces the global tracer.
func WithTracer(tr trace.Tracer) Option {
	return func(g *Gate) { g.tracer = tr }
}

// WithClock replaces time.Now for decision timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New creates a gate backed by loader.
func New(loader *inference.Loader, opts ...Option) *Gate {
	g := &Gate{
		loader:    loader,
		threshold: Threshold,
		logger:    slog.Default(),
		tracer:    telemetry.Tracer(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Threshold returns the acceptance threshold in use.
func (g *Gate) Threshold() float64 { return g.threshold }

// Loader returns the engine loader.
func (g *Gate) Loader() *inference.Loader { return g.loader }

// Evaluate classifies img. seq is the caller's evaluation sequence number and
// is carried into the decision unchanged.
func (g *Gate) Evaluate(ctx context.Context, img image.Image, seq uint64) (domain.Decision, error) {
	ctx, span := g.tracer.Start(ctx, "gate.evaluate", trace.WithAttributes(
		attribute.Int64("gate.sequence", int64(seq)),
	))
	defer span.End()

	start := time.Now()
	d, err := g.evaluate(ctx, img, seq)

	outcome := telemetry.OutcomeReject
	switch {
	case err != nil:
		outcome = telemetry.OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case d.IsFish:
		outcome = telemetry.OutcomeAccept
	}
	telemetry.RecordGateEvaluation(ctx, telemetry.GateMetrics{
		Model:    g.model,
		Outcome:  outcome,
		Duration: time.Since(start),
	})
	if err != nil {
		return domain.Decision{}, err
	}

	telemetry.RecordDecision(span, seq, d.Logit, d.Probability, d.IsFish)
	g.logger.Debug("drawing evaluated",
		"sequence", seq,
		"logit", d.Logit,
		"probability", d.Probability,
		"is_fish", d.IsFish,
	)
	return d, nil
}

func (g *Gate) evaluate(ctx context.Context, img image.Image, seq uint64) (domain.Decision, error) {
	engine, err := g.loader.Load(ctx)
	if err != nil {
		return domain.Decision{}, err
	}

	in := normalize.Normalize(img)
	outputs, err := engine.Run(ctx, inference.Tensor{
		Name:  inference.InputName(engine),
		Shape: in.Shape,
		Data:  in.Data,
	})
	if err != nil {
		return domain.Decision{}, fmt.Errorf("run classifier: %w", err)
	}
	if len(outputs) == 0 || len(outputs[0].Data) == 0 {
		return domain.Decision{}, domain.ErrEmptyOutput
	}

	logit := float64(outputs[0].Data[0])
	p := FishProbability(logit)
	return domain.Decision{
		IsFish:      p >= g.threshold,
		Probability: p,
		Logit:       logit,
		Sequence:    seq,
		EvaluatedAt: g.now(),
	}, nil
}
