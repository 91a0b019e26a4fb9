// Package idempotency implements the three-phase check / create / complete
// protocol for mutating API calls. Records are keyed by
// (key, yacht_id, action_id) and live on the master database so replay
// detection stays consistent regardless of tenant connection pools.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yachtops/pms-backend/internal/storage/models"
)

var (
	// ErrConflict reports a reused key with a different request body; the
	// handler surfaces it as HTTP 409.
	ErrConflict = errors.New("idempotency key reused with different request")

	// ErrInFlight reports a record that was created but never completed,
	// usually a concurrent duplicate still being processed.
	ErrInFlight = errors.New("request with this idempotency key is in flight")
)

const (
	statusPending   = "pending"
	statusCompleted = "completed"
)

// Store is the persistence contract, implemented by the master Postgres
// store and by the in-process memory store.
type Store interface {
	GetRecord(ctx context.Context, key, yachtID, actionID string) (*models.IdempotencyRecord, error)
	CreateRecord(ctx context.Context, rec *models.IdempotencyRecord) error
	CompleteRecord(ctx context.Context, key, yachtID, actionID string, responseStatus int, responseBody []byte) error
}

// CheckResult is the verdict for one incoming request.
type CheckResult struct {
	IsReplay       bool
	ResponseStatus int
	ResponseBody   []byte
}

type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// Check is phase one: look up the key. A completed record with the same
// request hash replays the cached response; the same key with a different
// hash is a conflict; an unfinished record is in flight.
func (s *Service) Check(ctx context.Context, key, yachtID, actionID, requestHash string) (CheckResult, error) {
	rec, err := s.store.GetRecord(ctx, key, yachtID, actionID)
	if err != nil {
		return CheckResult{}, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	if rec == nil {
		return CheckResult{}, nil
	}

	if rec.RequestHash != requestHash {
		s.logger.Warn("idempotency conflict",
			zap.String("key", key),
			zap.String("yacht_id", yachtID),
			zap.String("action_id", actionID),
		)
		return CheckResult{}, ErrConflict
	}

	if rec.Status != statusCompleted {
		return CheckResult{}, ErrInFlight
	}

	return CheckResult{
		IsReplay:       true,
		ResponseStatus: rec.ResponseStatus,
		ResponseBody:   rec.ResponseBody,
	}, nil
}

// Begin is phase two: claim the key before doing the work.
func (s *Service) Begin(ctx context.Context, key, yachtID, actionID, requestHash string) error {
	rec := &models.IdempotencyRecord{
		Key:         key,
		YachtID:     yachtID,
		ActionID:    actionID,
		RequestHash: requestHash,
		Status:      statusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to create idempotency record: %w", err)
	}
	return nil
}

// Complete is phase three: persist the response for future replays.
func (s *Service) Complete(ctx context.Context, key, yachtID, actionID string, responseStatus int, responseBody []byte) error {
	if err := s.store.CompleteRecord(ctx, key, yachtID, actionID, responseStatus, responseBody); err != nil {
		return fmt.Errorf("failed to complete idempotency record: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store used in tests and as a degraded
// fallback when the master database is unavailable at startup.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]*models.IdempotencyRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]*models.IdempotencyRecord)}
}

func memKey(key, yachtID, actionID string) string {
	return key + "\x00" + yachtID + "\x00" + actionID
}

func (m *MemoryStore) GetRecord(_ context.Context, key, yachtID, actionID string) (*models.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[memKey(key, yachtID, actionID)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) CreateRecord(_ context.Context, rec *models.IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey(rec.Key, rec.YachtID, rec.ActionID)
	if _, exists := m.recs[k]; exists {
		return fmt.Errorf("idempotency record already exists")
	}
	cp := *rec
	m.recs[k] = &cp
	return nil
}

func (m *MemoryStore) CompleteRecord(_ context.Context, key, yachtID, actionID string, responseStatus int, responseBody []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[memKey(key, yachtID, actionID)]
	if !ok {
		return fmt.Errorf("idempotency record not found")
	}
	now := time.Now().UTC()
	rec.Status = statusCompleted
	rec.ResponseStatus = responseStatus
	rec.ResponseBody = responseBody
	rec.CompletedAt = &now
	return nil
}
