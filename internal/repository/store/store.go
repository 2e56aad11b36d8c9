// Package store is the byte-addressed cache store behind tile payloads,
// cube/layer records, render-job status and query results. Key
// construction is the caller's responsibility; see keys.go for the
// namespace prefixes.
package store

import "context"

// Store is a dumb keyed byte map. Absence is a normal return value,
// never an error. Incr atomically increments a numeric counter key and
// returns the new value.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)
}
