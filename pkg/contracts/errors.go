package contracts

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failed contract interaction.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindUserRejected
	KindVoteLimitReached
	KindInsufficientFunds
	KindNotOwner
	KindNotListed
	KindAlreadyClaimed
	KindRevertedWithoutReason
	KindChainMismatch
)

// Wallet provider error codes.
const (
	CodeUserRejected  = 4001
	CodeChainNotAdded = 4902
)

var kindNames = map[ErrorKind]string{
	KindUnknown:               "unknown",
	KindUserRejected:          "user_rejected",
	KindVoteLimitReached:      "vote_limit_reached",
	KindInsufficientFunds:     "insufficient_funds",
	KindNotOwner:              "not_owner",
	KindNotListed:             "not_listed",
	KindAlreadyClaimed:        "already_claimed",
	KindRevertedWithoutReason: "reverted_without_reason",
	KindChainMismatch:         "chain_mismatch",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// ParseErrorKind is the inverse of String.
func ParseErrorKind(s string) (ErrorKind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return KindUnknown, false
}

// ErrorData is the nested payload wallet providers attach to errors.
type ErrorData struct {
	Reason  string     `json:"reason,omitempty"`
	Message string     `json:"message,omitempty"`
	Data    *ErrorData `json:"data,omitempty"`
}

// RPCError mirrors the error object returned by a wallet provider or node.
type RPCError struct {
	Code    int        `json:"code,omitempty"`
	Message string     `json:"message,omitempty"`
	Reason  string     `json:"reason,omitempty"`
	Data    *ErrorData `json:"data,omitempty"`
	Inner   *RPCError  `json:"error,omitempty"`
}

func (e *RPCError) Error() string {
	if r := e.RevertReason(); r != "" {
		return r
	}
	return fmt.Sprintf("rpc error %d", e.Code)
}

// RevertReason extracts the most specific human-readable reason, walking
// the nested payloads in order of specificity.
func (e *RPCError) RevertReason() string {
	candidates := []string{}
	if e.Data != nil {
		if e.Data.Data != nil {
			candidates = append(candidates, e.Data.Data.Reason)
		}
		candidates = append(candidates, e.Data.Reason)
	}
	if e.Inner != nil && e.Inner.Data != nil {
		candidates = append(candidates, e.Inner.Data.Reason)
	}
	candidates = append(candidates, e.Reason, e.Message)
	if e.Inner != nil {
		candidates = append(candidates, e.Inner.Message)
	}
	if e.Data != nil {
		candidates = append(candidates, e.Data.Message)
	}

	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

func (e *RPCError) code() int {
	if e.Code != 0 {
		return e.Code
	}
	if e.Inner != nil {
		return e.Inner.code()
	}
	return 0
}

// reasonKinds is consulted only after structured codes, in order.
var reasonKinds = []struct {
	needle string
	kind   ErrorKind
}{
	{"user rejected", KindUserRejected},
	{"user denied", KindUserRejected},
	{"vote limit reached", KindVoteLimitReached},
	{"insufficient funds", KindInsufficientFunds},
	{"not the owner", KindNotOwner},
	{"not owner", KindNotOwner},
	{"not listed", KindNotListed},
	{"not for sale", KindNotListed},
	{"already claimed", KindAlreadyClaimed},
	{"reverted without a reason", KindRevertedWithoutReason},
}

// Classify maps err to an ErrorKind. Structured provider codes win; the
// extracted revert reason is matched against known phrases only afterwards.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	reason := err.Error()
	var rpc *RPCError
	if errors.As(err, &rpc) {
		switch rpc.code() {
		case CodeUserRejected:
			return KindUserRejected
		case CodeChainNotAdded:
			return KindChainMismatch
		}
		reason = rpc.RevertReason()
		if reason == "" || reason == "0x" {
			return KindRevertedWithoutReason
		}
	}

	lower := strings.ToLower(reason)
	for _, rk := range reasonKinds {
		if strings.Contains(lower, rk.needle) {
			return rk.kind
		}
	}
	return KindUnknown
}

// Reason returns the revert reason carried by err, if any.
func Reason(err error) string {
	var rpc *RPCError
	if errors.As(err, &rpc) {
		return rpc.RevertReason()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// UserMessage renders the notice shown after action failed with err.
func UserMessage(action string, err error) string {
	kind := Classify(err)
	switch kind {
	case KindUserRejected:
		return "Transaction rejected by user"
	case KindVoteLimitReached:
		return "Vote limit reached"
	case KindChainMismatch:
		return "Wallet is not connected to the expected network"
	case KindRevertedWithoutReason:
		return action + " failed: Transaction reverted without a reason string"
	}

	reason := Reason(err)
	if reason == "" {
		return action + " failed"
	}
	return action + " failed: " + reason
}
