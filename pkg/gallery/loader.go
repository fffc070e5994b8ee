package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/errgroup"
)

// ContractReader is the read side of the NFT and vote contracts.
type ContractReader interface {
	TokenCounter(ctx context.Context) (uint64, error)
	OwnerOf(ctx context.Context, id uint64) (string, error)
	TokenURI(ctx context.Context, id uint64) (string, error)
	Votes(ctx context.Context, id uint64) (int64, error)
}

// OnChainMetadata is the dynamic metadata record kept by the metadata
// contract.
type OnChainMetadata struct {
	Name      string
	Trait     string
	Likes     int64
	CreatedAt int64 // unix seconds, 0 when unset
	Creator   string
}

// MetadataReader is implemented by readers that can see the metadata
// contract.
type MetadataReader interface {
	Metadata(ctx context.Context, id uint64) (OnChainMetadata, error)
}

// BoostReader is implemented by readers that can see the boost contract.
type BoostReader interface {
	BoostCount(ctx context.Context, id uint64) (int64, error)
}

// TokenMetadata is the off-chain JSON document a token URI points at.
type TokenMetadata struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Image         string          `json:"image"`
	CreatedAt     json.RawMessage `json:"createdAt,omitempty"`
	FishInitScore json.RawMessage `json:"fishInitScore,omitempty"`
}

// Loader builds the gallery list.
type Loader struct {
	reader      ContractReader
	resolver    *Resolver
	concurrency int
	logger      *slog.Logger
	sanitizer   *bluemonday.Policy
}

// NewLoader creates a gallery loader fetching at most concurrency tokens at
// once.
func NewLoader(reader ContractReader, resolver *Resolver, concurrency int, logger *slog.Logger) *Loader {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	if resolver == nil {
		resolver = NewResolver(nil, nil)
	}
	return &Loader{
		reader:      reader,
		resolver:    resolver,
		concurrency: concurrency,
		logger:      logger,
		sanitizer:   bluemonday.StrictPolicy(),
	}
}

// Load reads every minted token. Tokens whose reads fail are skipped; only
// a failure to read the token count fails the whole load.
func (l *Loader) Load(ctx context.Context) ([]NFT, error) {
	total, err := l.reader.TokenCounter(ctx)
	if err != nil {
		return nil, fmt.Errorf("read token counter: %w", err)
	}

	results := make([]*NFT, total)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)

	for id := uint64(0); id < total; id++ {
		g.Go(func() error {
			nft, err := l.loadToken(gctx, id)
			if err != nil {
				l.logger.Warn("skipping token", "token_id", id, "error", err)
				return nil
			}
			results[id] = nft
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]NFT, 0, total)
	for _, n := range results {
		if n != nil {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (l *Loader) loadToken(ctx context.Context, id uint64) (*NFT, error) {
	owner, err := l.reader.OwnerOf(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	uri, err := l.reader.TokenURI(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("token uri: %w", err)
	}

	var meta TokenMetadata
	if body, err := l.resolver.Fetch(ctx, uri); err == nil {
		if err := json.Unmarshal(body, &meta); err != nil {
			l.logger.Debug("token metadata is not JSON", "token_id", id, "error", err)
		}
	} else {
		l.logger.Debug("token metadata unavailable", "token_id", id, "error", err)
	}

	nft := &NFT{
		ID:        id,
		Owner:     owner,
		TokenURI:  uri,
		Name:      l.sanitizer.Sanitize(meta.Name),
		InitScore: parseInitScore(meta.FishInitScore),
		CreatedAt: parseCreatedAt(meta.CreatedAt),
	}
	if meta.Image != "" {
		nft.ImageURL = l.resolver.Resolve(ctx, meta.Image)
	}

	if br, ok := l.reader.(BoostReader); ok {
		boosts, err := br.BoostCount(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("boost: %w", err)
		}
		nft.Boosts = boosts
	}

	votes, err := l.reader.Votes(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("votes: %w", err)
	}
	nft.Votes = votes

	if mr, ok := l.reader.(MetadataReader); ok {
		m, err := mr.Metadata(ctx, id)
		if err != nil {
			l.logger.Debug("on-chain metadata unavailable", "token_id", id, "error", err)
		} else {
			if m.Name != "" {
				nft.Name = l.sanitizer.Sanitize(m.Name)
			}
			nft.Trait = l.sanitizer.Sanitize(m.Trait)
			nft.Likes = m.Likes
			if m.CreatedAt > 0 {
				nft.CreatedAt = time.Unix(m.CreatedAt, 0).UTC()
			}
		}
	}

	nft.TotalScore = nft.InitScore + nft.Likes
	return nft, nil
}

// rawScalar unwraps a JSON number or string into its text form.
func rawScalar(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return strings.TrimSpace(str)
	}
	return s
}

func parseInitScore(raw json.RawMessage) int64 {
	f, err := strconv.ParseFloat(rawScalar(raw), 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

// parseCreatedAt accepts unix seconds or an ISO-8601 timestamp.
func parseCreatedAt(raw json.RawMessage) time.Time {
	s := rawScalar(raw)
	if s == "" {
		return time.Time{}
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs <= 0 {
			return time.Time{}
		}
		return time.UnixMilli(int64(secs * 1000)).UTC()
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func (l *Loader) tokenName(ctx context.Context, id uint64) string {
	uri, err := l.reader.TokenURI(ctx, id)
	if err != nil {
		return ""
	}
	body, err := l.resolver.Fetch(ctx, uri)
	if err != nil {
		return ""
	}
	var meta TokenMetadata
	if json.Unmarshal(body, &meta) != nil {
		return ""
	}
	return l.sanitizer.Sanitize(meta.Name)
}
