package policy

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/finverse/finverse/pkg/domain"
)

// Action is a user action gated by policy.
type Action string

const (
	ActionMint   Action = "mint"
	ActionLike   Action = "like"
	ActionBoost  Action = "boost"
	ActionVote   Action = "vote"
	ActionBuy    Action = "buy"
	ActionList   Action = "list"
	ActionCancel Action = "cancel"
	ActionUpdate Action = "update"
	ActionClaim  Action = "claim"
)

// Input describes an attempted action and the facts it depends on. Fields
// irrelevant to the action are ignored.
type Input struct {
	Action Action `json:"action"`
	// Actor is the connected wallet address.
	Actor string `json:"actor"`
	// Owner is the current owner of the token acted on.
	Owner string `json:"owner,omitempty"`
	// Seller is the seller of the token's market listing.
	Seller         string `json:"seller,omitempty"`
	Listed         bool   `json:"listed,omitempty"`
	Claimed        bool   `json:"claimed,omitempty"`
	RemainingVotes int64  `json:"remaining_votes,omitempty"`
	GateAccepted   bool   `json:"gate_accepted,omitempty"`
	// DisableCache bypasses the decision cache.
	DisableCache bool `json:"-"`
}

// Decision is the policy verdict for one Input.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons"`
}

// Err returns nil when the action is allowed and an error wrapping
// domain.ErrActionDenied otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrActionDenied, strings.Join(d.Reasons, "; "))
}

// Evaluator decides whether an action is allowed.
type Evaluator interface {
	Evaluate(ctx context.Context, input Input) (Decision, error)
}

//go:embed rego/*.rego
var builtinModules embed.FS

// ActionsEntrypoint is the decision path of the built-in action rules.
const ActionsEntrypoint = "finverse/actions/decision"

// BuiltinModules returns the embedded Rego modules keyed by file name.
func BuiltinModules() (map[string]string, error) {
	entries, err := fs.ReadDir(builtinModules, "rego")
	if err != nil {
		return nil, fmt.Errorf("read embedded policies: %w", err)
	}
	modules := make(map[string]string, len(entries))
	for _, e := range entries {
		data, err := builtinModules.ReadFile("rego/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read embedded policy %s: %w", e.Name(), err)
		}
		modules[e.Name()] = string(data)
	}
	return modules, nil
}

// NewDefaultEngine builds an engine over the built-in action rules.
func NewDefaultEngine(ctx context.Context) (*Engine, error) {
	modules, err := BuiltinModules()
	if err != nil {
		return nil, err
	}
	return NewEngine(ctx, EngineOptions{Entrypoint: ActionsEntrypoint, Modules: modules})
}
