package idempotency

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckUnknownKeyIsClean(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)

	res, err := svc.Check(context.Background(), "k1", "y-1", "create_work_order", "hash-a")

	require.NoError(t, err)
	assert.False(t, res.IsReplay)
}

func TestCheckInFlight(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	ctx := context.Background()

	require.NoError(t, svc.Begin(ctx, "k1", "y-1", "create_work_order", "hash-a"))

	_, err := svc.Check(ctx, "k1", "y-1", "create_work_order", "hash-a")
	assert.ErrorIs(t, err, ErrInFlight)
}

func TestCheckReplaysCompletedResponse(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	ctx := context.Background()

	require.NoError(t, svc.Begin(ctx, "k1", "y-1", "create_work_order", "hash-a"))
	require.NoError(t, svc.Complete(ctx, "k1", "y-1", "create_work_order", 201, []byte(`{"id":"wo-1"}`)))

	res, err := svc.Check(ctx, "k1", "y-1", "create_work_order", "hash-a")

	require.NoError(t, err)
	assert.True(t, res.IsReplay)
	assert.Equal(t, 201, res.ResponseStatus)
	assert.JSONEq(t, `{"id":"wo-1"}`, string(res.ResponseBody))
}

func TestCheckConflictOnDifferentBody(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	ctx := context.Background()

	require.NoError(t, svc.Begin(ctx, "k1", "y-1", "create_work_order", "hash-a"))
	require.NoError(t, svc.Complete(ctx, "k1", "y-1", "create_work_order", 201, nil))

	_, err := svc.Check(ctx, "k1", "y-1", "create_work_order", "hash-b")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestKeysAreScopedPerYachtAndAction(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	ctx := context.Background()

	require.NoError(t, svc.Begin(ctx, "k1", "y-1", "create_work_order", "hash-a"))

	// Same key under another yacht or action is a fresh request.
	res, err := svc.Check(ctx, "k1", "y-2", "create_work_order", "hash-zzz")
	require.NoError(t, err)
	assert.False(t, res.IsReplay)

	res, err = svc.Check(ctx, "k1", "y-1", "ingest_document", "hash-zzz")
	require.NoError(t, err)
	assert.False(t, res.IsReplay)
}

func TestBeginRefusesDuplicateClaim(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	ctx := context.Background()

	require.NoError(t, svc.Begin(ctx, "k1", "y-1", "create_work_order", "hash-a"))
	assert.Error(t, svc.Begin(ctx, "k1", "y-1", "create_work_order", "hash-a"))
}

func TestCompleteUnknownRecordFails(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	assert.Error(t, svc.Complete(context.Background(), "nope", "y-1", "create_work_order", 200, nil))
}
