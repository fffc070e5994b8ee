package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const datatypeFP32 = "FP32"

// HTTPEngine talks to a model server over the open inference protocol
// (KServe v2 REST).
type HTTPEngine struct {
	baseURL string
	model   string
	client  *http.Client

	inputs  []string
	outputs []string
}

// HTTPOption configures an HTTPEngine.
type HTTPOption func(*HTTPEngine)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(e *HTTPEngine) { e.client = c }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(e *HTTPEngine) { e.client.Timeout = d }
}

// NewHTTPEngine creates an engine for model on the server at baseURL. The
// engine is not usable until Load succeeds.
func NewHTTPEngine(baseURL, model string, opts ...HTTPOption) *HTTPEngine {
	e := &HTTPEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HTTPLoadFunc returns a LoadFunc that constructs and loads an HTTPEngine.
func HTTPLoadFunc(baseURL, model string, opts ...HTTPOption) LoadFunc {
	return func(ctx context.Context) (Engine, error) {
		e := NewHTTPEngine(baseURL, model, opts...)
		if err := e.Load(ctx); err != nil {
			return nil, err
		}
		return e, nil
	}
}

type tensorMetadata struct {
	Name     string  `json:"name"`
	Datatype string  `json:"datatype"`
	Shape    []int64 `json:"shape"`
}

type modelMetadata struct {
	Name    string           `json:"name"`
	Inputs  []tensorMetadata `json:"inputs"`
	Outputs []tensorMetadata `json:"outputs"`
}

type inferTensor struct {
	Name     string    `json:"name"`
	Shape    []int64   `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float32 `json:"data"`
}

type inferRequest struct {
	Inputs []inferTensor `json:"inputs"`
}

type inferResponse struct {
	ModelName string        `json:"model_name"`
	Outputs   []inferTensor `json:"outputs"`
}

type serverError struct {
	Error string `json:"error"`
}

func (e *HTTPEngine) modelURL(suffix string) string {
	return e.baseURL + "/v2/models/" + url.PathEscape(e.model) + suffix
}

// Load fetches the model metadata, which also verifies the model is served.
func (e *HTTPEngine) Load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.modelURL(""), nil)
	if err != nil {
		return fmt.Errorf("build metadata request: %w", err)
	}

	var meta modelMetadata
	if err := e.do(req, &meta); err != nil {
		return fmt.Errorf("fetch model metadata for %s: %w", e.model, err)
	}

	e.inputs = e.inputs[:0]
	for _, in := range meta.Inputs {
		e.inputs = append(e.inputs, in.Name)
	}
	e.outputs = e.outputs[:0]
	for _, out := range meta.Outputs {
		e.outputs = append(e.outputs, out.Name)
	}
	return nil
}

// InputNames returns the input names advertised by the model metadata.
func (e *HTTPEngine) InputNames() []string {
	return append([]string(nil), e.inputs...)
}

// OutputNames returns the output names advertised by the model metadata.
func (e *HTTPEngine) OutputNames() []string {
	return append([]string(nil), e.outputs...)
}

// Run performs one inference call.
func (e *HTTPEngine) Run(ctx context.Context, in Tensor) ([]Output, error) {
	body, err := json.Marshal(inferRequest{
		Inputs: []inferTensor{{
			Name:     in.Name,
			Shape:    in.Shape,
			Datatype: datatypeFP32,
			Data:     in.Data,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode infer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.modelURL("/infer"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build infer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp inferResponse
	if err := e.do(req, &resp); err != nil {
		return nil, fmt.Errorf("infer %s: %w", e.model, err)
	}

	outputs := make([]Output, 0, len(resp.Outputs))
	for _, o := range resp.Outputs {
		outputs = append(outputs, Output{Name: o.Name, Data: o.Data})
	}
	return outputs, nil
}

func (e *HTTPEngine) do(req *http.Request, into any) error {
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var se serverError
		if json.Unmarshal(data, &se) == nil && se.Error != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, se.Error)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
