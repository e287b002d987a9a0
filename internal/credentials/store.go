package credentials

import "context"

// Store defines the contract for the external credential store.
//
// Get reads the full record; a store with no record yet returns an empty Record.
// Update merges only the given fields into the stored record, relying on the
// store's per-key atomicity. There is no in-process cache: the store is the
// single source of truth for token state.
type Store interface {
	Get(ctx context.Context) (*Record, error)
	Update(ctx context.Context, fields map[string]interface{}) error
}
