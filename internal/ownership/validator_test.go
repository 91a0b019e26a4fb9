package ownership

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeRecordStore struct {
	owns  bool
	err   error
	calls int
}

func (f *fakeRecordStore) OwnsRecord(_ context.Context, _, _, _ string) (bool, error) {
	f.calls++
	return f.owns, f.err
}

func TestValidateOwnedRecord(t *testing.T) {
	store := &fakeRecordStore{owns: true}
	v := NewValidator(store, nil)

	err := v.Validate(context.Background(), "pms_equipment", "eq-1", "y-1")

	assert.NoError(t, err)
	assert.Equal(t, 1, store.calls)
}

func TestValidateForeignRecordReadsAsNotFound(t *testing.T) {
	store := &fakeRecordStore{owns: false}
	v := NewValidator(store, nil)

	err := v.Validate(context.Background(), "pms_equipment", "eq-1", "y-1")

	// Never a permission error: not-found keeps foreign IDs unenumerable.
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateLookupFailureIsDistinct(t *testing.T) {
	store := &fakeRecordStore{err: errors.New("connection refused")}
	v := NewValidator(store, nil)

	err := v.Validate(context.Background(), "pms_equipment", "eq-1", "y-1")

	assert.ErrorIs(t, err, ErrCheckFailed)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestValidateRejectsEmptyInputsWithoutLookup(t *testing.T) {
	store := &fakeRecordStore{owns: true}
	v := NewValidator(store, nil)

	assert.ErrorIs(t, v.Validate(context.Background(), "pms_equipment", "", "y-1"), ErrNotFound)
	assert.ErrorIs(t, v.Validate(context.Background(), "pms_equipment", "eq-1", ""), ErrNotFound)
	assert.Zero(t, store.calls)
}
