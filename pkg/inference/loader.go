package inference

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/finverse/finverse/pkg/domain"
)

// State is the lifecycle state of a Loader.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LoadFunc constructs an engine.
type LoadFunc func(ctx context.Context) (Engine, error)

// Loader lazily constructs a shared Engine. Concurrent Load calls made while
// a load is in flight all wait on that same load. A failed load is retried
// by the next call.
type Loader struct {
	load     LoadFunc
	timeout  time.Duration
	logger   *slog.Logger
	observer func(ok bool, d time.Duration)

	group singleflight.Group

	mu      sync.RWMutex
	state   State
	engine  Engine
	lastErr error

	attempts atomic.Int64
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLoadTimeout bounds a single load attempt.
func WithLoadTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) { l.timeout = d }
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// WithLoadObserver registers a callback invoked after every load attempt.
func WithLoadObserver(fn func(ok bool, d time.Duration)) LoaderOption {
	return func(l *Loader) { l.observer = fn }
}

// NewLoader creates a loader in the unloaded state.
func NewLoader(load LoadFunc, opts ...LoaderOption) *Loader {
	l := &Loader{
		load:   load,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewReadyLoader wraps an already constructed engine.
func NewReadyLoader(e Engine) *Loader {
	l := NewLoader(func(context.Context) (Engine, error) { return e, nil })
	l.state = StateReady
	l.engine = e
	return l
}

// Load returns the shared engine, constructing it if needed. A caller whose
// context ends stops waiting; the load itself keeps running for the others.
func (l *Loader) Load(ctx context.Context) (Engine, error) {
	if e := l.Engine(); e != nil {
		return e, nil
	}

	ch := l.group.DoChan("engine", func() (any, error) {
		if e := l.Engine(); e != nil {
			return e, nil
		}
		return l.doLoad(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrEngineUnavailable, res.Err)
		}
		return res.Val.(Engine), nil
	}
}

func (l *Loader) doLoad(ctx context.Context) (Engine, error) {
	l.setState(StateLoading, nil, nil)
	attempt := l.attempts.Add(1)

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	e, err := l.load(ctx)
	if err == nil && e == nil {
		err = fmt.Errorf("load returned no engine")
	}
	if l.observer != nil {
		l.observer(err == nil, time.Since(start))
	}
	if err != nil {
		l.setState(StateFailed, nil, err)
		l.logger.Warn("model load failed", "attempt", attempt, "error", err)
		return nil, err
	}

	l.setState(StateReady, e, nil)
	l.logger.Info("model loaded", "attempt", attempt, "duration", time.Since(start))
	return e, nil
}

func (l *Loader) setState(s State, e Engine, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
	l.engine = e
	l.lastErr = err
}

// State returns the current lifecycle state.
func (l *Loader) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Engine returns the loaded engine, or nil when not ready.
func (l *Loader) Engine() Engine {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != StateReady {
		return nil
	}
	return l.engine
}

// Err returns the error of the last failed attempt.
func (l *Loader) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastErr
}

// Attempts returns how many times the load function has been invoked.
func (l *Loader) Attempts() int64 {
	return l.attempts.Load()
}
