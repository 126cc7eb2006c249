package interfaces

import (
	"context"

	"ibkr-sma-scanner/internal/types"
)

type CacheStore interface {
	// Replace overwrites the whole table.
	Replace(ctx context.Context, records []types.SmaRecord) error
	// LoadAll returns every row. A store that was never written returns an
	// error wrapping smacache.ErrCacheNotFound.
	LoadAll(ctx context.Context) ([]types.SmaRecord, error)
	Close() error
}
