package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Gate evaluation outcomes.
const (
	OutcomeAccept = "accept"
	OutcomeReject = "reject"
	OutcomeError  = "error"
)

var (
	metricsOnce           sync.Once
	metricsInitErr        error
	gateEvaluationCounter metric.Int64Counter
	gateLatencyHistogram  metric.Float64Histogram
	gateStaleCounter      metric.Int64Counter
	modelLoadCounter      metric.Int64Counter
	modelLoadHistogram    metric.Float64Histogram
)

// GateMetrics captures one gate evaluation.
type GateMetrics struct {
	Model    string
	Outcome  string
	Duration time.Duration
}

// RecordGateEvaluation counts an evaluation by outcome and records its latency.
func RecordGateEvaluation(ctx context.Context, m GateMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("model.name", m.Model),
		attribute.String("gate.outcome", m.Outcome),
	)
	gateEvaluationCounter.Add(ctx, 1, attrs)
	if m.Duration > 0 {
		gateLatencyHistogram.Record(ctx, float64(m.Duration)/float64(time.Millisecond), attrs)
	}
}

// RecordStaleResult counts an evaluation result discarded because a newer
// one was already applied.
func RecordStaleResult(ctx context.Context) {
	if err := ensureMetrics(); err != nil {
		return
	}
	gateStaleCounter.Add(ctx, 1)
}

// RecordModelLoad counts a model load attempt.
func RecordModelLoad(ctx context.Context, model string, ok bool, d time.Duration) {
	if err := ensureMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model.name", model),
		attribute.Bool("load.success", ok),
	)
	modelLoadCounter.Add(ctx, 1, attrs)
	modelLoadHistogram.Record(ctx, float64(d)/float64(time.Millisecond), attrs)
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(InstrumentationName)

		gateEvaluationCounter, metricsInitErr = meter.Int64Counter(
			"finverse.gate.evaluations_total",
			metric.WithDescription("Drawing evaluations partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		gateLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"finverse.gate.duration_ms",
			metric.WithDescription("Latency of a drawing evaluation including normalization"),
			metric.WithUnit("ms"),
		)
		if metricsInitErr != nil {
			return
		}

		gateStaleCounter, metricsInitErr = meter.Int64Counter(
			"finverse.gate.stale_results_total",
			metric.WithDescription("Evaluation results discarded as out of date"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		modelLoadCounter, metricsInitErr = meter.Int64Counter(
			"finverse.model.loads_total",
			metric.WithDescription("Model load attempts"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		modelLoadHistogram, metricsInitErr = meter.Float64Histogram(
			"finverse.model.load_duration_ms",
			metric.WithDescription("Duration of model load attempts"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}

// RecordDecision attaches the gate result to span as an event.
func RecordDecision(span trace.Span, sequence uint64, logit, probability float64, accepted bool) {
	if span == nil || !span.IsRecording() {
		return
	}

	span.AddEvent("gate.decision", trace.WithAttributes(
		attribute.Int64("gate.sequence", int64(sequence)),
		attribute.Float64("gate.logit", logit),
		attribute.Float64("gate.probability", probability),
		attribute.Bool("gate.accepted", accepted),
	))
}
