package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/yachtops/pms-backend/internal/audit"
	"github.com/yachtops/pms-backend/internal/storage/models"
	"github.com/yachtops/pms-backend/pkg/logger"
)

// MasterStore is the fleet-wide database holding idempotency records and
// the audit log, on a separate physical database from tenant data.
type MasterStore struct {
	db *sql.DB
}

func NewMasterStore(dsn string, maxOpen, maxIdle int) (*MasterStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open master database: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping master database: %w", err)
	}

	logger.Info("master store initialized")
	return &MasterStore{db: db}, nil
}

func (s *MasterStore) Close() error {
	return s.db.Close()
}

func (s *MasterStore) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS idempotency_records (
		key TEXT NOT NULL,
		yacht_id TEXT NOT NULL,
		action_id TEXT NOT NULL,
		request_hash TEXT NOT NULL,
		status TEXT NOT NULL,
		response_status INTEGER,
		response_body BYTEA,
		created_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		PRIMARY KEY (key, yacht_id, action_id)
	);

	CREATE TABLE IF NOT EXISTS pms_audit_log (
		id TEXT PRIMARY KEY,
		yacht_id TEXT NOT NULL,
		user_id TEXT,
		action TEXT NOT NULL,
		object_table TEXT,
		object_id TEXT,
		detail JSONB,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_yacht ON pms_audit_log(yacht_id);
	CREATE INDEX IF NOT EXISTS idx_audit_created ON pms_audit_log(created_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize master schema: %w", err)
	}
	return nil
}

func (s *MasterStore) GetRecord(ctx context.Context, key, yachtID, actionID string) (*models.IdempotencyRecord, error) {
	rec := &models.IdempotencyRecord{}
	var responseStatus sql.NullInt64
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT key, yacht_id, action_id, request_hash, status,
		       response_status, response_body, created_at, completed_at
		FROM idempotency_records
		WHERE key = $1 AND yacht_id = $2 AND action_id = $3`,
		key, yachtID, actionID,
	).Scan(&rec.Key, &rec.YachtID, &rec.ActionID, &rec.RequestHash, &rec.Status,
		&responseStatus, &rec.ResponseBody, &rec.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read idempotency record: %w", err)
	}

	rec.ResponseStatus = int(responseStatus.Int64)
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return rec, nil
}

func (s *MasterStore) CreateRecord(ctx context.Context, rec *models.IdempotencyRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_records
			(key, yacht_id, action_id, request_hash, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.Key, rec.YachtID, rec.ActionID, rec.RequestHash, rec.Status, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create idempotency record: %w", err)
	}
	return nil
}

func (s *MasterStore) CompleteRecord(ctx context.Context, key, yachtID, actionID string, responseStatus int, responseBody []byte) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_records
		SET status = 'completed', response_status = $4, response_body = $5, completed_at = NOW()
		WHERE key = $1 AND yacht_id = $2 AND action_id = $3`,
		key, yachtID, actionID, responseStatus, responseBody,
	)
	if err != nil {
		return fmt.Errorf("failed to complete idempotency record: %w", err)
	}
	return nil
}

// InsertAuditEntries batch-inserts audit rows in one multi-VALUES statement.
func (s *MasterStore) InsertAuditEntries(ctx context.Context, entries []audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO pms_audit_log
		(id, yacht_id, user_id, action, object_table, object_id, detail, created_at) VALUES `)

	args := make([]interface{}, 0, len(entries)*8)
	for i, e := range entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 8
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))

		detail, err := json.Marshal(e.Detail)
		if err != nil {
			detail = []byte("{}")
		}
		args = append(args, e.ID, e.YachtID, e.UserID, e.Action,
			e.ObjectTable, e.ObjectID, detail, e.CreatedAt)
	}

	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to insert audit batch: %w", err)
	}
	return nil
}
