// Package gallery assembles the NFT gallery, market and reward views from
// contract reads and token metadata.
package gallery

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// NFT is one gallery card.
type NFT struct {
	ID         uint64    `json:"id"`
	Owner      string    `json:"owner"`
	TokenURI   string    `json:"token_uri"`
	ImageURL   string    `json:"image_url,omitempty"`
	Name       string    `json:"name,omitempty"`
	Trait      string    `json:"trait,omitempty"`
	Votes      int64     `json:"votes"`
	Likes      int64     `json:"likes"`
	InitScore  int64     `json:"init_score"`
	TotalScore int64     `json:"total_score"`
	Boosts     int64     `json:"boosts"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	Hot        bool      `json:"hot"`
}

// SortKey orders the gallery.
type SortKey string

const (
	SortScore     SortKey = "score"
	SortVote      SortKey = "vote"
	SortCreatedAt SortKey = "createdAt"
)

// DefaultSort is used when no sort is selected.
const DefaultSort = SortVote

// ParseSortKey maps a query value to a SortKey, falling back to DefaultSort.
func ParseSortKey(s string) SortKey {
	switch SortKey(s) {
	case SortScore, SortVote, SortCreatedAt:
		return SortKey(s)
	default:
		return DefaultSort
	}
}

func createdMillis(n NFT) int64 {
	if n.CreatedAt.IsZero() {
		return 0
	}
	return n.CreatedAt.UnixMilli()
}

// Sort returns a copy of list ordered descending by key. Ties keep their
// original order; unknown creation times sort as the epoch.
func Sort(list []NFT, key SortKey) []NFT {
	out := append([]NFT(nil), list...)
	var less func(a, b NFT) bool
	switch ParseSortKey(string(key)) {
	case SortScore:
		less = func(a, b NFT) bool { return a.TotalScore > b.TotalScore }
	case SortCreatedAt:
		less = func(a, b NFT) bool { return createdMillis(a) > createdMillis(b) }
	default:
		less = func(a, b NFT) bool { return a.Votes > b.Votes }
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// DefaultHotCount is how many cards carry the hot label.
const DefaultHotCount = 3

// MarkHot sets Hot on the top n cards ranked by votes, then boosts, then
// total score, and clears it on every other card. list is modified in place.
func MarkHot(list []NFT, n int) {
	idx := make([]int, len(list))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := list[idx[i]], list[idx[j]]
		if a.Votes != b.Votes {
			return a.Votes > b.Votes
		}
		if a.Boosts != b.Boosts {
			return a.Boosts > b.Boosts
		}
		return a.TotalScore > b.TotalScore
	})
	for rank, i := range idx {
		list[i].Hot = rank < n
	}
}

// Vote stamp colour ramp.
const (
	StampNoVotes  = "#ccc"
	StampMaxVotes = 20
)

// VoteStampColor returns the stamp background for a vote count. The colour
// moves from light pink towards pure red as votes approach StampMaxVotes.
func VoteStampColor(votes int64) string {
	if votes <= 0 {
		return StampNoVotes
	}
	ratio := math.Min(float64(votes)/StampMaxVotes, 1)
	g := int(math.Floor(182 * (1 - ratio)))
	b := int(math.Floor(193 * (1 - ratio)))
	return fmt.Sprintf("rgb(255,%d,%d)", g, b)
}

// ShortAddress abbreviates an account address as 0x1234...abcd.
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// SameAddress compares account addresses case-insensitively.
func SameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
