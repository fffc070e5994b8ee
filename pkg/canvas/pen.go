package canvas

import (
	"fmt"
	"regexp"

	"github.com/finverse/finverse/pkg/domain"
)

// Pen width bounds and default.
const (
	MinLineWidth     = 1
	MaxLineWidth     = 20
	DefaultLineWidth = 6
	DefaultColor     = "#000000"
)

// Palette lists the swatches offered by the drawing page.
var Palette = []string{
	"#000000",
	"#ff0000",
	"#00cc00",
	"#0000ff",
	"#ffff00",
	"#ff8800",
	"#ffffff",
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Pen describes how strokes are rendered.
type Pen struct {
	Color  string  `json:"color"`
	Width  float64 `json:"width"`
	Eraser bool    `json:"eraser"`
}

// DefaultPen returns a black round pen of width 6.
func DefaultPen() Pen {
	return Pen{Color: DefaultColor, Width: DefaultLineWidth}
}

// Validate checks the colour. Widths are clamped rather than rejected.
func (p Pen) Validate() error {
	if !hexColor.MatchString(p.Color) {
		return fmt.Errorf("%w: pen color %q is not a hex colour", domain.ErrInvalidInput, p.Color)
	}
	return nil
}

func clampWidth(w float64) float64 {
	switch {
	case w < MinLineWidth:
		return MinLineWidth
	case w > MaxLineWidth:
		return MaxLineWidth
	default:
		return w
	}
}
