package domain

import (
	"fmt"
	"time"
)

// Client storage keys shared between pages.
const (
	KeyFishProbability = "currentFishProbability"
	KeyLastIsFish      = "lastDrawingIsFish"
	KeyLastMetadata    = "lastFishMetadata"
)

// Colour cues for the two gate outcomes.
const (
	ColorAcceptText       = "#218838"
	ColorRejectText       = "#c0392b"
	ColorAcceptBackground = "#eaffea"
	ColorRejectBackground = "#ffeaea"
)

// Mint button titles.
const (
	MintTitleUnevaluated = "Draw a fish first 🐟"
	MintTitleAccepted    = "Mint your fish as NFT"
	MintTitleRejected    = "Cannot mint: your drawing is not recognized as a fish 🐟"
)

// Decision is the outcome of one classification gate evaluation.
type Decision struct {
	IsFish      bool      `json:"is_fish"`
	Probability float64   `json:"probability"`
	Logit       float64   `json:"logit"`
	Sequence    uint64    `json:"sequence"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// GateState is the view model that drives the probability readout, the
// background cue and the mint action.
type GateState struct {
	Evaluated       bool    `json:"evaluated"`
	Probability     float64 `json:"probability"`
	IsFish          bool    `json:"is_fish"`
	ProbabilityText string  `json:"probability_text,omitempty"`
	TextColor       string  `json:"text_color,omitempty"`
	Background      string  `json:"background,omitempty"`
	MintEnabled     bool    `json:"mint_enabled"`
	MintTitle       string  `json:"mint_title"`
	Sequence        uint64  `json:"sequence"`
}

// UnevaluatedState is the gate state before any evaluation has completed.
func UnevaluatedState() GateState {
	return GateState{MintTitle: MintTitleUnevaluated}
}

// StateFor derives the gate state from a decision. Mint is enabled if and only
// if the decision accepts the drawing.
func StateFor(d Decision) GateState {
	s := GateState{
		Evaluated:       true,
		Probability:     d.Probability,
		IsFish:          d.IsFish,
		ProbabilityText: fmt.Sprintf("Fish probability: %.1f%%", d.Probability*100),
		MintEnabled:     d.IsFish,
		Sequence:        d.Sequence,
	}
	if d.IsFish {
		s.TextColor = ColorAcceptText
		s.Background = ColorAcceptBackground
		s.MintTitle = MintTitleAccepted
	} else {
		s.TextColor = ColorRejectText
		s.Background = ColorRejectBackground
		s.MintTitle = MintTitleRejected
	}
	return s
}
