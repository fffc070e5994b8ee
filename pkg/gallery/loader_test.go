package gallery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "0xA11CE00000000000000000000000000000000001"
	bob   = "0xB0B0000000000000000000000000000000000002"
)

type fakeChain struct {
	total     uint64
	owners    map[uint64]string
	uris      map[uint64]string
	votes     map[uint64]int64
	failOwner map[uint64]bool
	countErr  error
}

func (f *fakeChain) TokenCounter(context.Context) (uint64, error) { return f.total, f.countErr }

func (f *fakeChain) OwnerOf(_ context.Context, id uint64) (string, error) {
	if f.failOwner[id] {
		return "", errors.New("owner query reverted")
	}
	return f.owners[id], nil
}

func (f *fakeChain) TokenURI(_ context.Context, id uint64) (string, error) { return f.uris[id], nil }

func (f *fakeChain) Votes(_ context.Context, id uint64) (int64, error) { return f.votes[id], nil }

type fakeChainWithExtras struct {
	*fakeChain
	meta    map[uint64]OnChainMetadata
	boosts  map[uint64]int64
	list    map[uint64]Listing
	claimed map[uint64]bool
}

func (f *fakeChainWithExtras) Metadata(_ context.Context, id uint64) (OnChainMetadata, error) {
	m, ok := f.meta[id]
	if !ok {
		return OnChainMetadata{}, errors.New("no metadata")
	}
	return m, nil
}

func (f *fakeChainWithExtras) BoostCount(_ context.Context, id uint64) (int64, error) {
	return f.boosts[id], nil
}

func (f *fakeChainWithExtras) Listing(_ context.Context, id uint64) (Listing, error) {
	return f.list[id], nil
}

func (f *fakeChainWithExtras) HasClaimed(_ context.Context, id uint64) (bool, error) {
	return f.claimed[id], nil
}

func metadataServer(t *testing.T) *httptest.Server {
	t.Helper()
	docs := map[string]string{
		"/meta/0.json":       `{"name":"<b>Nemo</b>","image":"ipfs://img0","createdAt":1700000000,"fishInitScore":99}`,
		"/meta/1.json":       `{"name":"Dory","image":"ipfs://img1","createdAt":"2024-01-02T03:04:05Z","fishInitScore":"75"}`,
		"/meta/2.json":       `{"name":"Bruce","image":"ipfs://missing"}`,
		"/gw-ok/img0":        "png-bytes",
		"/gw-ok/img1":        "png-bytes",
		"/gw-ok/meta-3.json": `{"name":"Gill"}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := docs[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestLoader(t *testing.T, reader ContractReader) (*Loader, *httptest.Server) {
	srv := metadataServer(t)
	resolver := NewResolver([]string{srv.URL + "/gw-down/", srv.URL + "/gw-ok/"}, srv.Client())
	return NewLoader(reader, resolver, 2, nil), srv
}

func TestResolverCandidates(t *testing.T) {
	r := NewResolver(nil, nil)
	assert.Equal(t, []string{
		"https://gateway.pinata.cloud/ipfs/bafy/1.png",
		"https://cloudflare-ipfs.com/ipfs/bafy/1.png",
		"https://ipfs.io/ipfs/bafy/1.png",
	}, r.Candidates("ipfs://bafy/1.png"))
	assert.Equal(t, []string{"https://example.test/a.json"}, r.Candidates("https://example.test/a.json"))
}

func TestResolverFallsBackToReachableGateway(t *testing.T) {
	srv := metadataServer(t)
	r := NewResolver([]string{srv.URL + "/gw-down/", srv.URL + "/gw-ok/"}, srv.Client())

	assert.Equal(t, srv.URL+"/gw-ok/img0", r.Resolve(context.Background(), "ipfs://img0"))
	assert.Equal(t, "", r.Resolve(context.Background(), "ipfs://missing"))
	assert.Equal(t, "", r.Resolve(context.Background(), ""))
}

func TestLoaderLoad(t *testing.T) {
	chain := &fakeChain{
		total:     4,
		owners:    map[uint64]string{0: alice, 1: bob, 2: alice, 3: bob},
		votes:     map[uint64]int64{0: 3, 1: 5, 2: 0},
		failOwner: map[uint64]bool{3: true},
	}
	reader := &fakeChainWithExtras{
		fakeChain: chain,
		meta: map[uint64]OnChainMetadata{
			0: {Name: "Nemo II", Trait: "striped", Likes: 4},
			2: {Likes: 1, CreatedAt: 1710000000},
		},
		boosts: map[uint64]int64{1: 2},
	}
	loader, srv := newTestLoader(t, reader)
	for id := uint64(0); id < 4; id++ {
		chain.uris = mergeURI(chain.uris, id, fmt.Sprintf("%s/meta/%d.json", srv.URL, id))
	}

	got, err := loader.Load(context.Background())
	require.NoError(t, err)

	want := []NFT{
		{
			ID: 0, Owner: alice, TokenURI: srv.URL + "/meta/0.json", ImageURL: srv.URL + "/gw-ok/img0",
			Name: "Nemo II", Trait: "striped", Votes: 3, Likes: 4, InitScore: 99, TotalScore: 103,
			CreatedAt: time.Unix(1700000000, 0).UTC(),
		},
		{
			ID: 1, Owner: bob, TokenURI: srv.URL + "/meta/1.json", ImageURL: srv.URL + "/gw-ok/img1",
			Name: "Dory", Votes: 5, InitScore: 75, TotalScore: 75, Boosts: 2,
			CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{
			ID: 2, Owner: alice, TokenURI: srv.URL + "/meta/2.json",
			Name: "Bruce", Likes: 1, TotalScore: 1,
			CreatedAt: time.Unix(1710000000, 0).UTC(),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
}

func mergeURI(m map[uint64]string, id uint64, uri string) map[uint64]string {
	if m == nil {
		m = map[uint64]string{}
	}
	m[id] = uri
	return m
}

func TestLoaderSanitizesMetadata(t *testing.T) {
	chain := &fakeChain{total: 1, owners: map[uint64]string{0: alice}}
	loader, srv := newTestLoader(t, chain)
	chain.uris = map[uint64]string{0: srv.URL + "/meta/0.json"}

	got, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Nemo", got[0].Name)
	assert.False(t, strings.Contains(got[0].Name, "<"))
}

func TestLoaderTokenCounterError(t *testing.T) {
	loader, _ := newTestLoader(t, &fakeChain{countErr: errors.New("rpc down")})
	_, err := loader.Load(context.Background())
	assert.Error(t, err)
}

func TestLoaderEmpty(t *testing.T) {
	loader, _ := newTestLoader(t, &fakeChain{})
	got, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseCreatedAt(t *testing.T) {
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), parseCreatedAt([]byte(`"1700000000"`)))
	assert.Equal(t, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), parseCreatedAt([]byte(`"2024-05-06"`)))
	assert.True(t, parseCreatedAt([]byte(`"Unknown"`)).IsZero())
	assert.True(t, parseCreatedAt(nil).IsZero())
	assert.True(t, parseCreatedAt([]byte(`0`)).IsZero())
}

func TestLoaderMarket(t *testing.T) {
	chain := &fakeChain{total: 4}
	reader := &fakeChainWithExtras{
		fakeChain: chain,
		list: map[uint64]Listing{
			0: {Seller: alice, PriceWei: big.NewInt(1_500_000_000_000_000_000), Active: true},
			1: {Seller: bob, PriceWei: big.NewInt(1), Active: false},
			3: {Seller: bob, PriceWei: big.NewInt(250_000_000_000_000_000), Active: true},
		},
	}
	loader, srv := newTestLoader(t, reader)
	chain.uris = map[uint64]string{0: srv.URL + "/meta/1.json", 3: "ipfs://meta-3.json"}

	items, err := loader.Market(context.Background(), reader, strings.ToLower(alice))
	require.NoError(t, err)

	want := []MarketItem{
		{
			Listing:     Listing{TokenID: 0, Seller: alice, PriceWei: big.NewInt(1_500_000_000_000_000_000), Active: true},
			Name:        "Dory",
			SellerShort: "0xA11C...0001",
			PriceEth:    "1.5",
			Actions:     []MarketAction{ActionCancel, ActionUpdate},
		},
		{
			Listing:     Listing{TokenID: 3, Seller: bob, PriceWei: big.NewInt(250_000_000_000_000_000), Active: true},
			Name:        "Gill",
			SellerShort: "0xB0B0...0002",
			PriceEth:    "0.25",
			Actions:     []MarketAction{ActionBuy},
		},
	}
	if diff := cmp.Diff(want, items, cmp.Comparer(func(a, b *big.Int) bool { return a.Cmp(b) == 0 })); diff != "" {
		t.Errorf("Market mismatch (-want +got):\n%s", diff)
	}
}

func TestMarketViewDefaultName(t *testing.T) {
	items := MarketView([]Listing{{TokenID: 7, Seller: bob, PriceWei: big.NewInt(0), Active: true}}, "", nil)
	require.Len(t, items, 1)
	assert.Equal(t, "Fish #7", items[0].Name)
	assert.Equal(t, []MarketAction{ActionBuy}, items[0].Actions)
}

func TestLoaderRewards(t *testing.T) {
	chain := &fakeChain{
		total:     5,
		owners:    map[uint64]string{0: alice, 1: bob, 2: alice, 3: alice, 4: alice},
		failOwner: map[uint64]bool{4: true},
	}
	reader := &fakeChainWithExtras{fakeChain: chain, claimed: map[uint64]bool{2: true}}
	loader, _ := newTestLoader(t, reader)

	summary, err := loader.Rewards(context.Background(), reader, alice)
	require.NoError(t, err)

	want := RewardSummary{
		Tokens:        []RewardToken{{TokenID: 0}, {TokenID: 2, Claimed: true}, {TokenID: 3}},
		Claimable:     []uint64{0, 3},
		ClaimAllLabel: "Claim All (2) Rewards",
		CanClaimAll:   true,
	}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Errorf("Rewards mismatch (-want +got):\n%s", diff)
	}

	none, err := loader.Rewards(context.Background(), reader, "0x0000000000000000000000000000000000000009")
	require.NoError(t, err)
	assert.Equal(t, "No Rewards to Claim", none.ClaimAllLabel)
	assert.False(t, none.CanClaimAll)
	if diff := cmp.Diff(RewardSummary{Tokens: []RewardToken{}, Claimable: []uint64{}, ClaimAllLabel: "No Rewards to Claim"}, none, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("empty Rewards mismatch (-want +got):\n%s", diff)
	}
}

func TestEther(t *testing.T) {
	assert.Equal(t, "0", FormatEther(nil))
	assert.Equal(t, "0.000000000000000001", FormatEther(big.NewInt(1)))
	assert.Equal(t, "2", FormatEther(new(big.Int).Mul(big.NewInt(2), weiPerEther)))

	wei, err := ParseEther("1.25")
	require.NoError(t, err)
	assert.Equal(t, "1250000000000000000", wei.String())

	_, err = ParseEther("abc")
	assert.Error(t, err)
	_, err = ParseEther("")
	assert.Error(t, err)
	_, err = ParseEther("0.0000000000000000001")
	assert.Error(t, err)
}
