// Package session ties one drawing surface to the classification gate.
//
// A Session forwards pointer input to its canvas, re-runs the gate after
// every edit that changes the drawing and keeps the resulting view state.
// Evaluations are numbered when the edit happens; a result that arrives
// after a newer one has been applied is dropped, so the state always
// reflects the most recent edit that finished evaluating.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/finverse/finverse/pkg/canvas"
	"github.com/finverse/finverse/pkg/domain"
	"github.com/finverse/finverse/pkg/gate"
	"github.com/finverse/finverse/pkg/logging"
	"github.com/finverse/finverse/pkg/storage"
	"github.com/finverse/finverse/pkg/telemetry"
)

// Hooks receive session events for metrics. Nil hooks are skipped.
type Hooks struct {
	Evaluated func(outcome string)
	Stale     func()
	Active    func(n int)
}

// Session is the drawing context of one page.
type Session struct {
	id       string
	clientID string
	gate     *gate.Gate
	store    storage.ClientStore
	logger   *slog.Logger
	hooks    Hooks
	now      func() time.Time

	mu           sync.Mutex
	canvas       *canvas.Canvas
	state        domain.GateState
	decision     domain.Decision
	seq          uint64
	lastApplied  uint64
	createdAt    time.Time
	lastActivity time.Time
}

func newSession(id, clientID string, c *canvas.Canvas, g *gate.Gate, store storage.ClientStore, logger *slog.Logger, hooks Hooks, now func() time.Time) *Session {
	t := now()
	return &Session{
		id:           id,
		clientID:     clientID,
		gate:         g,
		store:        store,
		logger:       logger.With("session_id", id),
		hooks:        hooks,
		now:          now,
		canvas:       c,
		state:        domain.UnevaluatedState(),
		createdAt:    t,
		lastActivity: t,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// ClientID returns the client whose storage the session writes to.
func (s *Session) ClientID() string { return s.clientID }

// Size returns the canvas dimensions.
func (s *Session) Size() (width, height int) {
	return s.canvas.Width(), s.canvas.Height()
}

// CreatedAt returns the creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastActivity returns the time of the last interaction.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// State returns the current gate state.
func (s *Session) State() domain.GateState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Decision returns the last applied decision and whether one exists.
func (s *Session) Decision() (domain.Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decision, s.lastApplied > 0
}

// Pen returns the active pen.
func (s *Session) Pen() canvas.Pen {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canvas.Pen()
}

// SetPen changes the pen used for subsequent strokes.
func (s *Session) SetPen(p canvas.Pen) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.canvas.SetPen(p)
}

// PointerDown starts a stroke.
func (s *Session) PointerDown(p canvas.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.canvas.Press(p)
}

// PointerMove extends the stroke in progress, if any.
func (s *Session) PointerMove(p canvas.Point) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.canvas.Move(p)
}

// PointerLeave ends the stroke without evaluating the drawing.
func (s *Session) PointerLeave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.canvas.Leave()
}

// PointerUp finishes the stroke and evaluates the drawing. A release with no
// stroke in progress returns the current state unchanged.
func (s *Session) PointerUp(ctx context.Context) (domain.GateState, error) {
	return s.mutate(ctx, "pointer_up", s.canvas.Release)
}

// Undo restores the previous raster and evaluates the drawing.
func (s *Session) Undo(ctx context.Context) (domain.GateState, error) {
	return s.mutate(ctx, "undo", func() bool {
		s.canvas.Undo()
		return true
	})
}

// Clear empties the raster and evaluates the drawing.
func (s *Session) Clear(ctx context.Context) (domain.GateState, error) {
	return s.mutate(ctx, "clear", func() bool {
		s.canvas.Clear()
		return true
	})
}

// Flip mirrors the raster horizontally and evaluates the drawing.
func (s *Session) Flip(ctx context.Context) (domain.GateState, error) {
	return s.mutate(ctx, "flip", func() bool {
		s.canvas.Flip()
		return true
	})
}

// CanvasPNG writes the current raster as PNG.
func (s *Session) CanvasPNG(w io.Writer) error {
	s.mu.Lock()
	img := s.canvas.Snapshot()
	s.mu.Unlock()
	return canvas.EncodeImage(w, img)
}

func (s *Session) touch() {
	s.lastActivity = s.now()
}

// mutate applies change under the lock and, if it reports a change, runs the
// gate on a snapshot without holding the lock.
func (s *Session) mutate(ctx context.Context, action string, change func() bool) (domain.GateState, error) {
	s.mu.Lock()
	s.touch()
	if !change() {
		state := s.state
		s.mu.Unlock()
		return state, nil
	}
	s.seq++
	seq := s.seq
	img := s.canvas.Snapshot()
	s.mu.Unlock()

	d, err := s.gate.Evaluate(ctx, img, seq)

	s.mu.Lock()
	defer s.mu.Unlock()

	logger := logging.WithTrace(ctx, s.logger)
	if err != nil {
		s.hook(telemetry.OutcomeError)
		if errors.Is(err, domain.ErrEngineUnavailable) {
			logger.Warn("classifier unavailable, keeping previous state",
				"action", action,
				"sequence", seq,
				"error", err,
			)
			return s.state, nil
		}
		return s.state, fmt.Errorf("evaluate drawing after %s: %w", action, err)
	}

	if seq <= s.lastApplied {
		logger.Debug("discarding stale evaluation",
			"sequence", seq,
			"last_applied", s.lastApplied,
		)
		telemetry.RecordStaleResult(ctx)
		if s.hooks.Stale != nil {
			s.hooks.Stale()
		}
		return s.state, nil
	}

	if d.IsFish {
		s.hook(telemetry.OutcomeAccept)
	} else {
		s.hook(telemetry.OutcomeReject)
	}
	s.lastApplied = seq
	s.decision = d
	s.state = domain.StateFor(d)
	s.persist(ctx, d)
	return s.state, nil
}

func (s *Session) hook(outcome string) {
	if s.hooks.Evaluated != nil {
		s.hooks.Evaluated(outcome)
	}
}

func (s *Session) persist(ctx context.Context, d domain.Decision) {
	if s.store == nil {
		return
	}
	isFish := "0"
	if d.IsFish {
		isFish = "1"
	}
	values := []struct{ key, value string }{
		{domain.KeyFishProbability, strconv.FormatFloat(d.Probability, 'g', -1, 64)},
		{domain.KeyLastIsFish, isFish},
	}
	for _, v := range values {
		if err := s.store.Set(ctx, s.clientID, v.key, v.value); err != nil {
			s.logger.Warn("failed to persist gate result", "key", v.key, "error", err)
		}
	}
}
