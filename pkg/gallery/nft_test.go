package gallery

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func ids(list []NFT) []uint64 {
	out := make([]uint64, len(list))
	for i, n := range list {
		out[i] = n.ID
	}
	return out
}

func sampleNFTs() []NFT {
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	return []NFT{
		{ID: 0, Votes: 2, Boosts: 1, TotalScore: 80, CreatedAt: t0},
		{ID: 1, Votes: 9, Boosts: 0, TotalScore: 50},
		{ID: 2, Votes: 2, Boosts: 3, TotalScore: 10, CreatedAt: t0.Add(48 * time.Hour)},
		{ID: 3, Votes: 0, Boosts: 0, TotalScore: 99, CreatedAt: t0.Add(time.Hour)},
		{ID: 4, Votes: 2, Boosts: 1, TotalScore: 95},
	}
}

func TestSort(t *testing.T) {
	list := sampleNFTs()

	tests := []struct {
		key  SortKey
		want []uint64
	}{
		{SortVote, []uint64{1, 0, 2, 4, 3}},
		{SortScore, []uint64{3, 4, 0, 1, 2}},
		{SortCreatedAt, []uint64{2, 3, 0, 1, 4}},
		{"bogus", []uint64{1, 0, 2, 4, 3}},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ids(Sort(list, tt.key))); diff != "" {
				t.Errorf("Sort(%s) mismatch (-want +got):\n%s", tt.key, diff)
			}
		})
	}

	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, ids(list), "input untouched")
}

func TestParseSortKey(t *testing.T) {
	assert.Equal(t, SortScore, ParseSortKey("score"))
	assert.Equal(t, SortCreatedAt, ParseSortKey("createdAt"))
	assert.Equal(t, DefaultSort, ParseSortKey(""))
}

func TestMarkHot(t *testing.T) {
	list := sampleNFTs()
	MarkHot(list, DefaultHotCount)

	hot := map[uint64]bool{}
	for _, n := range list {
		hot[n.ID] = n.Hot
	}
	// 1 leads on votes; 2 beats 0 and 4 on boosts; 4 beats 0 on score.
	want := map[uint64]bool{0: false, 1: true, 2: true, 3: false, 4: true}
	if diff := cmp.Diff(want, hot); diff != "" {
		t.Errorf("MarkHot mismatch (-want +got):\n%s", diff)
	}

	MarkHot(list, 0)
	for _, n := range list {
		assert.False(t, n.Hot)
	}
}

func TestVoteStampColor(t *testing.T) {
	assert.Equal(t, "#ccc", VoteStampColor(0))
	assert.Equal(t, "rgb(255,172,183)", VoteStampColor(1))
	assert.Equal(t, "rgb(255,91,96)", VoteStampColor(10))
	assert.Equal(t, "rgb(255,0,0)", VoteStampColor(20))
	assert.Equal(t, "rgb(255,0,0)", VoteStampColor(500))
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "0x5FbD...0aa3", ShortAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"))
	assert.Equal(t, "0x12", ShortAddress("0x12"))
	assert.True(t, SameAddress("0xABCD", "0xabcd"))
	assert.False(t, SameAddress("", ""))
}

func TestInitScore(t *testing.T) {
	assert.Equal(t, 99, InitScore("0.9933071490757153"))
	assert.Equal(t, 50, InitScore("0.5"))
	assert.Equal(t, 100, InitScore(" 0.996 "))
	assert.Equal(t, 0, InitScore(""))
	assert.Equal(t, 0, InitScore("NaN"))
	assert.Equal(t, 0, InitScore("fish"))
}
