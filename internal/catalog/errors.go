package catalog

import "errors"

// ErrNegativeStock is the store-layer trip wire behind the ledger's validation
// guard: an adjustment that would drive stock below zero is refused outright.
// Reaching it means the applier let an unsafe decrement through, so callers
// surface it as an internal-consistency failure rather than user error.
var ErrNegativeStock = errors.New("catalog: stock adjustment would go negative")

// ErrProductNotFound indicates a missing product row.
var ErrProductNotFound = errors.New("catalog: product not found")
