package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnevaluatedStateDisablesMint(t *testing.T) {
	s := UnevaluatedState()
	assert.False(t, s.Evaluated)
	assert.False(t, s.MintEnabled)
	assert.Equal(t, MintTitleUnevaluated, s.MintTitle)
	assert.Empty(t, s.Background)
}

func TestStateFor(t *testing.T) {
	accepted := StateFor(Decision{IsFish: true, Probability: 0.9933, Sequence: 3})
	assert.True(t, accepted.MintEnabled)
	assert.Equal(t, "Fish probability: 99.3%", accepted.ProbabilityText)
	assert.Equal(t, ColorAcceptBackground, accepted.Background)
	assert.Equal(t, ColorAcceptText, accepted.TextColor)
	assert.Equal(t, MintTitleAccepted, accepted.MintTitle)
	assert.Equal(t, uint64(3), accepted.Sequence)

	rejected := StateFor(Decision{IsFish: false, Probability: 0.5})
	assert.False(t, rejected.MintEnabled)
	assert.Equal(t, "Fish probability: 50.0%", rejected.ProbabilityText)
	assert.Equal(t, ColorRejectBackground, rejected.Background)
	assert.Equal(t, MintTitleRejected, rejected.MintTitle)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "SESSION_NOT_FOUND", ErrorCode(fmt.Errorf("lookup: %w", ErrSessionNotFound)))
	assert.Equal(t, "ENGINE_UNAVAILABLE", ErrorCode(ErrEngineUnavailable))
	assert.Equal(t, "CUSTOM", ErrorCode(&DomainError{Err: ErrInvalidInput, Code: "CUSTOM"}))
	assert.Equal(t, "INTERNAL", ErrorCode(errors.New("boom")))
}
