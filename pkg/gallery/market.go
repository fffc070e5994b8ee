package gallery

import (
	"context"
	"fmt"
	"math/big"
	"strings"
)

// Listing is a market listing as returned by the market contract.
type Listing struct {
	TokenID  uint64   `json:"token_id"`
	Seller   string   `json:"seller"`
	PriceWei *big.Int `json:"price_wei"`
	Active   bool     `json:"active"`
}

// MarketAction is an action offered on a market card.
type MarketAction string

const (
	ActionBuy    MarketAction = "buy"
	ActionCancel MarketAction = "cancel"
	ActionUpdate MarketAction = "update"
)

// MarketItem is one market card as seen by a viewer.
type MarketItem struct {
	Listing
	Name        string         `json:"name"`
	SellerShort string         `json:"seller_short"`
	PriceEth    string         `json:"price_eth"`
	Actions     []MarketAction `json:"actions"`
}

// MarketView filters out inactive listings and decides, per listing, which
// actions viewer gets: sellers manage their own listings, everyone else may
// buy. names maps token IDs to display names.
func MarketView(listings []Listing, viewer string, names map[uint64]string) []MarketItem {
	out := make([]MarketItem, 0, len(listings))
	for _, l := range listings {
		if !l.Active {
			continue
		}
		name := names[l.TokenID]
		if name == "" {
			name = fmt.Sprintf("Fish #%d", l.TokenID)
		}
		item := MarketItem{
			Listing:     l,
			Name:        name,
			SellerShort: ShortAddress(l.Seller),
			PriceEth:    FormatEther(l.PriceWei),
		}
		if SameAddress(viewer, l.Seller) {
			item.Actions = []MarketAction{ActionCancel, ActionUpdate}
		} else {
			item.Actions = []MarketAction{ActionBuy}
		}
		out = append(out, item)
	}
	return out
}

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// FormatEther renders a wei amount in ether without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	neg := wei.Sign() < 0
	abs := new(big.Int).Abs(wei)
	whole, frac := new(big.Int).QuoRem(abs, weiPerEther, new(big.Int))

	s := whole.String()
	if frac.Sign() != 0 {
		f := strings.TrimRight(fmt.Sprintf("%018s", frac.String()), "0")
		s += "." + f
	}
	if neg {
		s = "-" + s
	}
	return s
}

// ParseEther converts a decimal ether amount into wei.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 18 {
		return nil, fmt.Errorf("too many decimals in %q", s)
	}
	digits := whole + frac + strings.Repeat("0", 18-len(frac))
	wei, ok := new(big.Int).SetString(digits, 10)
	if !ok || whole == "" && frac == "" {
		return nil, fmt.Errorf("invalid ether amount %q", s)
	}
	return wei, nil
}

// MarketReader is the read side of the market contract.
type MarketReader interface {
	Listing(ctx context.Context, tokenID uint64) (Listing, error)
}

// Market reads the listing of every minted token and renders the market
// view for viewer. A failing listing read fails the whole view.
func (l *Loader) Market(ctx context.Context, mr MarketReader, viewer string) ([]MarketItem, error) {
	total, err := l.reader.TokenCounter(ctx)
	if err != nil {
		return nil, fmt.Errorf("read token counter: %w", err)
	}

	listings := make([]Listing, 0, total)
	names := map[uint64]string{}
	for id := uint64(0); id < total; id++ {
		listing, err := mr.Listing(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read listing %d: %w", id, err)
		}
		listing.TokenID = id
		listings = append(listings, listing)
		if listing.Active {
			names[id] = l.tokenName(ctx, id)
		}
	}
	return MarketView(listings, viewer, names), nil
}
