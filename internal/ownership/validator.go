// Package ownership guards every by-ID access to tenant records. A record
// outside the caller's yacht reads as not found (404, never 403) so
// cross-tenant IDs cannot be enumerated.
package ownership

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrNotFound means the record does not exist under the caller's yacht.
	ErrNotFound = errors.New("record not found")

	// ErrCheckFailed means the validation itself could not run, distinct
	// from a failed validation. Surfaced as a 500.
	ErrCheckFailed = errors.New("ownership validation could not be completed")
)

// RecordStore is the lookup dependency, implemented by the tenant store.
type RecordStore interface {
	OwnsRecord(ctx context.Context, table, id, yachtID string) (bool, error)
}

type Validator struct {
	store  RecordStore
	logger *zap.Logger
}

func NewValidator(store RecordStore, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{store: store, logger: logger}
}

// Validate confirms the record belongs to the caller's yacht.
func (v *Validator) Validate(ctx context.Context, table, id, yachtID string) error {
	if id == "" || yachtID == "" {
		return ErrNotFound
	}

	owns, err := v.store.OwnsRecord(ctx, table, id, yachtID)
	if err != nil {
		v.logger.Error("ownership check failed",
			zap.String("table", table),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrCheckFailed, err)
	}
	if !owns {
		return ErrNotFound
	}
	return nil
}
