package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/yachtops/pms-backend/internal/search"
	"github.com/yachtops/pms-backend/internal/storage/models"
	"github.com/yachtops/pms-backend/pkg/logger"
)

// TenantStore is the yacht-scoped Postgres connection. It executes wave
// statements, ownership probes, and the few tenant writes the API exposes.
type TenantStore struct {
	db *sql.DB
}

// tenantTables whitelists the table names accepted in dynamic positions
// (ownership checks, wave statements). Anything else is refused before SQL
// assembly.
var tenantTables = map[string]bool{
	"pms_parts":       true,
	"pms_equipment":   true,
	"pms_faults":      true,
	"pms_work_orders": true,
	"search_index":    true,
}

func NewTenantStore(dsn string, maxOpen, maxIdle, statementTimeoutMS int) (*TenantStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open tenant database: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping tenant database: %w", err)
	}

	if statementTimeoutMS > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET statement_timeout = %d", statementTimeoutMS)); err != nil {
			logger.Warn("failed to set statement timeout", zap.Error(err))
		}
	}

	logger.Info("tenant store initialized")
	return &TenantStore{db: db}, nil
}

func (s *TenantStore) Close() error {
	return s.db.Close()
}

// Ping backs the readiness probe.
func (s *TenantStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ExecuteStatement runs one wave probe. The statement arrives fully
// parameterized from the router; the store only refuses unknown tables.
func (s *TenantStore) ExecuteStatement(ctx context.Context, st search.Statement) ([]search.Row, error) {
	if !tenantTables[st.Table] {
		return nil, fmt.Errorf("unknown tenant table %q", st.Table)
	}

	rows, err := s.db.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, fmt.Errorf("wave query failed: %w", err)
	}
	defer rows.Close()

	var out []search.Row
	for rows.Next() {
		var r search.Row
		var label, snippet sql.NullString
		if err := rows.Scan(&r.ID, &label, &snippet); err != nil {
			return nil, fmt.Errorf("failed to scan wave row: %w", err)
		}
		r.Table = st.Table
		r.Label = label.String
		r.Snippet = snippet.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("wave row iteration failed: %w", err)
	}
	return out, nil
}

// OwnsRecord reports whether the record exists under the caller's yacht.
// The same shape backs the ownership validator: a miss is indistinguishable
// from a record that never existed.
func (s *TenantStore) OwnsRecord(ctx context.Context, table, id, yachtID string) (bool, error) {
	if !tenantTables[table] {
		return false, fmt.Errorf("unknown tenant table %q", table)
	}

	var found string
	query := fmt.Sprintf("SELECT id::text FROM %s WHERE id = $1 AND yacht_id = $2", table)
	err := s.db.QueryRowContext(ctx, query, id, yachtID).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ownership query failed: %w", err)
	}
	return true, nil
}

func (s *TenantStore) InsertWorkOrder(ctx context.Context, wo *models.WorkOrder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pms_work_orders
			(id, yacht_id, number, title, description, equipment_id, equipment_name,
			 status, priority, assigned_to, due_date, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		wo.ID, wo.YachtID, wo.Number, wo.Title, wo.Description, wo.EquipmentID,
		wo.EquipmentName, wo.Status, wo.Priority, wo.AssignedTo, wo.DueDate,
		wo.CreatedBy, wo.CreatedAt, wo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert work order: %w", err)
	}
	return nil
}

func (s *TenantStore) EquipmentName(ctx context.Context, id, yachtID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM pms_equipment WHERE id = $1 AND yacht_id = $2", id, yachtID,
	).Scan(&name)
	if err != nil {
		return "", fmt.Errorf("failed to load equipment name: %w", err)
	}
	return name, nil
}

func (s *TenantStore) InsertSearchDocument(ctx context.Context, doc *models.SearchDocument) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_index
			(id, yacht_id, doc_id, title, content, doc_type, chunk_index, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, title = EXCLUDED.title`,
		doc.ID, doc.YachtID, doc.DocID, doc.Title, doc.Content, doc.DocType,
		doc.ChunkIndex, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert search document: %w", err)
	}
	return nil
}
