package gallery

import (
	"context"
	"fmt"
)

// RewardToken is one of the viewer's tokens on the rewards page.
type RewardToken struct {
	TokenID uint64 `json:"token_id"`
	Claimed bool   `json:"claimed"`
}

// RewardSummary is the reward page state for a viewer.
type RewardSummary struct {
	Tokens        []RewardToken `json:"tokens"`
	Claimable     []uint64      `json:"claimable"`
	ClaimAllLabel string        `json:"claim_all_label"`
	CanClaimAll   bool          `json:"can_claim_all"`
}

// Rewards builds the reward summary. owners maps token IDs to their owner;
// claimed reports which tokens have already been claimed. Only tokens owned
// by viewer are listed, and the owned, unclaimed ones are claimable.
func Rewards(viewer string, owners map[uint64]string, claimed map[uint64]bool, total uint64) RewardSummary {
	s := RewardSummary{Tokens: []RewardToken{}, Claimable: []uint64{}}
	for id := uint64(0); id < total; id++ {
		if !SameAddress(viewer, owners[id]) {
			continue
		}
		s.Tokens = append(s.Tokens, RewardToken{TokenID: id, Claimed: claimed[id]})
		if !claimed[id] {
			s.Claimable = append(s.Claimable, id)
		}
	}
	s.ClaimAllLabel = ClaimAllLabel(len(s.Claimable))
	s.CanClaimAll = len(s.Claimable) > 0
	return s
}

// ClaimAllLabel is the text of the claim-all button.
func ClaimAllLabel(n int) string {
	if n == 0 {
		return "No Rewards to Claim"
	}
	return fmt.Sprintf("Claim All (%d) Rewards", n)
}

// ClaimReader is the read side of the reward contract.
type ClaimReader interface {
	HasClaimed(ctx context.Context, tokenID uint64) (bool, error)
}

// Rewards reads ownership and claim status of every token and summarises
// them for viewer. Tokens whose reads fail are skipped.
func (l *Loader) Rewards(ctx context.Context, cr ClaimReader, viewer string) (RewardSummary, error) {
	total, err := l.reader.TokenCounter(ctx)
	if err != nil {
		return RewardSummary{}, fmt.Errorf("read token counter: %w", err)
	}

	owners := map[uint64]string{}
	claimed := map[uint64]bool{}
	for id := uint64(0); id < total; id++ {
		owner, err := l.reader.OwnerOf(ctx, id)
		if err != nil {
			l.logger.Warn("skipping token", "token_id", id, "error", err)
			continue
		}
		owners[id] = owner
		if !SameAddress(viewer, owner) {
			continue
		}
		c, err := cr.HasClaimed(ctx, id)
		if err != nil {
			l.logger.Warn("skipping token", "token_id", id, "error", err)
			delete(owners, id)
			continue
		}
		claimed[id] = c
	}
	return Rewards(viewer, owners, claimed, total), nil
}
