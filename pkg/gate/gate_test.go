package gate

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"

	"github.com/finverse/finverse/pkg/domain"
	"github.com/finverse/finverse/pkg/inference"
)

type fakeEngine struct {
	logit   float32
	names   []string
	outputs []inference.Output
	err     error

	gotName  string
	gotShape []int64
	gotLen   int
}

func (f *fakeEngine) Run(_ context.Context, in inference.Tensor) ([]inference.Output, error) {
	f.gotName = in.Name
	f.gotShape = in.Shape
	f.gotLen = len(in.Data)
	if f.err != nil {
		return nil, f.err
	}
	if f.outputs != nil {
		return f.outputs, nil
	}
	return []inference.Output{{Name: "logits", Data: []float32{f.logit}}}, nil
}

type namedFakeEngine struct {
	*fakeEngine
}

func (n namedFakeEngine) InputNames() []string { return n.names }

func blankCanvas() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 400, 300))
}

func TestFishProbability(t *testing.T) {
	assert.Equal(t, 0.5, FishProbability(0))
	assert.False(t, Accept(FishProbability(0)))

	p := FishProbability(-5)
	assert.InDelta(t, 0.9933, p, 1e-4)
	assert.True(t, Accept(p))

	assert.True(t, Accept(Threshold))
}

// Property: a drawing is accepted iff its logit is at most ln(0.4/0.6).
func TestAcceptMatchesClosedFormProperty(t *testing.T) {
	boundary := math.Log(0.4 / 0.6)
	rapid.Check(t, func(t *rapid.T) {
		logit := rapid.Float64Range(-40, 40).Draw(t, "logit")
		if math.Abs(logit-boundary) < 1e-9 {
			t.Skip("too close to the boundary")
		}
		p := FishProbability(logit)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		assert.Equal(t, logit <= boundary, Accept(p))
	})
}

func TestEvaluateBlankCanvasRejected(t *testing.T) {
	engine := &fakeEngine{logit: 0}
	g := New(inference.NewReadyLoader(engine))

	d, err := g.Evaluate(context.Background(), blankCanvas(), 3)
	require.NoError(t, err)

	assert.False(t, d.IsFish)
	assert.Equal(t, 0.5, d.Probability)
	assert.Equal(t, uint64(3), d.Sequence)
	assert.Equal(t, inference.DefaultInputName, engine.gotName)
	assert.Equal(t, []int64{1, 3, 224, 224}, engine.gotShape)
	assert.Equal(t, 3*224*224, engine.gotLen)
}

func TestEvaluateAcceptsFish(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	engine := namedFakeEngine{&fakeEngine{logit: -5, names: []string{"pixel_values"}}}
	g := New(inference.NewReadyLoader(engine), WithClock(func() time.Time { return now }))

	d, err := g.Evaluate(context.Background(), blankCanvas(), 1)
	require.NoError(t, err)

	assert.True(t, d.IsFish)
	assert.InDelta(t, 0.9933, d.Probability, 1e-4)
	assert.Equal(t, -5.0, d.Logit)
	assert.Equal(t, now, d.EvaluatedAt)
	assert.Equal(t, "pixel_values", engine.gotName)
}

func TestEvaluateAwaitsLoader(t *testing.T) {
	release := make(chan struct{})
	engine := &fakeEngine{logit: -5}
	loader := inference.NewLoader(func(ctx context.Context) (inference.Engine, error) {
		<-release
		return engine, nil
	})
	g := New(loader)

	done := make(chan domain.Decision, 1)
	go func() {
		d, err := g.Evaluate(context.Background(), blankCanvas(), 1)
		assert.NoError(t, err)
		done <- d
	}()

	select {
	case <-done:
		t.Fatal("evaluation finished before the model was loaded")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	d := <-done
	assert.True(t, d.IsFish)
}

func TestEvaluateEngineUnavailable(t *testing.T) {
	loader := inference.NewLoader(func(ctx context.Context) (inference.Engine, error) {
		return nil, errors.New("model file missing")
	})
	g := New(loader)

	_, err := g.Evaluate(context.Background(), blankCanvas(), 1)
	assert.ErrorIs(t, err, domain.ErrEngineUnavailable)
}

func TestEvaluateEmptyOutput(t *testing.T) {
	for name, outputs := range map[string][]inference.Output{
		"no outputs": {},
		"no values":  {{Name: "logits"}},
	} {
		t.Run(name, func(t *testing.T) {
			g := New(inference.NewReadyLoader(&fakeEngine{outputs: outputs}))
			_, err := g.Evaluate(context.Background(), blankCanvas(), 1)
			assert.ErrorIs(t, err, domain.ErrEmptyOutput)
		})
	}
}

func TestEvaluateRunError(t *testing.T) {
	boom := errors.New("connection reset")
	g := New(inference.NewReadyLoader(&fakeEngine{err: boom}))

	_, err := g.Evaluate(context.Background(), blankCanvas(), 1)
	assert.ErrorIs(t, err, boom)
}

func TestEvaluateCustomThreshold(t *testing.T) {
	g := New(inference.NewReadyLoader(&fakeEngine{logit: 0}), WithThreshold(0.5))
	assert.Equal(t, 0.5, g.Threshold())

	d, err := g.Evaluate(context.Background(), blankCanvas(), 1)
	require.NoError(t, err)
	assert.True(t, d.IsFish)
}

func TestEvaluateRecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	g := New(inference.NewReadyLoader(&fakeEngine{logit: -5}), WithTracer(tp.Tracer("test")))
	_, err := g.Evaluate(context.Background(), blankCanvas(), 9)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "gate.evaluate", spans[0].Name())
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "gate.decision", spans[0].Events()[0].Name)
}
