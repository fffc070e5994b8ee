package gallery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const ipfsScheme = "ipfs://"

// DefaultGateways are tried in order for ipfs:// URIs.
var DefaultGateways = []string{
	"https://gateway.pinata.cloud/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
	"https://ipfs.io/ipfs/",
}

// Resolver turns token and image URIs into fetchable HTTP URLs.
type Resolver struct {
	gateways []string
	client   *http.Client
}

// NewResolver creates a resolver. A nil client gets an instrumented one.
func NewResolver(gateways []string, client *http.Client) *Resolver {
	if len(gateways) == 0 {
		gateways = DefaultGateways
	}
	if client == nil {
		client = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		}
	}
	return &Resolver{gateways: gateways, client: client}
}

// Candidates lists the URLs to try for uri, in order.
func (r *Resolver) Candidates(uri string) []string {
	if !strings.HasPrefix(uri, ipfsScheme) {
		return []string{uri}
	}
	path := strings.TrimPrefix(uri, ipfsScheme)
	out := make([]string, 0, len(r.gateways))
	for _, g := range r.gateways {
		out = append(out, g+path)
	}
	return out
}

// Resolve returns the first candidate URL that answers successfully, or ""
// when none does.
func (r *Resolver) Resolve(ctx context.Context, uri string) string {
	if uri == "" {
		return ""
	}
	for _, u := range r.Candidates(uri) {
		if _, err := r.fetch(ctx, u); err == nil {
			return u
		}
	}
	return ""
}

// Fetch returns the body of the first candidate that answers successfully.
func (r *Resolver) Fetch(ctx context.Context, uri string) ([]byte, error) {
	var lastErr error
	for _, u := range r.Candidates(uri) {
		body, err := r.fetch(ctx, u)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("fetch %s: %w", uri, lastErr)
}

func (r *Resolver) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 16<<20))
}
