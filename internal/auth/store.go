package auth

import (
	"context"
	"errors"

	"github.com/jonandersen/tda/internal/logging"
)

// Store persists a TokenRecord. Save replaces the whole record.
type Store interface {
	Load(ctx context.Context) (TokenRecord, error)
	Save(ctx context.Context, rec TokenRecord) error
}

// LoadOrEmpty loads the record from store, returning EmptyRecord on any
// failure. Missing credentials lead to a new login rather than an error.
func LoadOrEmpty(ctx context.Context, store Store, logger logging.Logger) TokenRecord {
	rec, err := store.Load(ctx)
	if err == nil {
		return rec
	}
	if errors.Is(err, ErrNotFound) {
		logger.Debug(ctx, "no persisted token record")
	} else {
		logger.Warn(ctx, "discarding unreadable token record", "error", err)
	}
	return EmptyRecord()
}
