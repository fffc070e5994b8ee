// Package inference defines the boundary to the doodle classifier runtime,
// an open inference protocol client implementing it, and a single-flight
// loader that constructs the engine once per process.
package inference

import (
	"context"
)

// DefaultInputName is used when an engine does not advertise input names.
const DefaultInputName = "input"

// Tensor is a named FP32 model input.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

// Output is one named model output. Engines return outputs in model order.
type Output struct {
	Name string
	Data []float32
}

// Engine runs the classifier.
type Engine interface {
	Run(ctx context.Context, in Tensor) ([]Output, error)
}

// InputNamer is implemented by engines that know their model's input names.
type InputNamer interface {
	InputNames() []string
}

// InputName resolves the name to bind the input tensor to.
func InputName(e Engine) string {
	if n, ok := e.(InputNamer); ok {
		if names := n.InputNames(); len(names) > 0 && names[0] != "" {
			return names[0]
		}
	}
	return DefaultInputName
}
