// Package policy decides whether a wallet may perform a gallery, market or
// mint action.
//
// The rules are written in Rego and evaluated by an embedded OPA instance,
// so deployments can replace them without rebuilding. Prepared queries are
// compiled once per entrypoint and decisions are cached in a bounded LRU.
package policy
