// Package audit persists security events and fans them out to the
// service's event sinks (MQTT, InfluxDB, websocket subscribers, Prometheus).
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/database"
)

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timestampLayout is fixed-width so created_at sorts lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	UserID    string         `json:"userId,omitempty"`
	CompanyID string         `json:"companyId,omitempty"`
	Module    string         `json:"module,omitempty"`
	Target    string         `json:"target,omitempty"`
	IP        string         `json:"ip,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Filter controls which audit logs to return.
type Filter struct {
	Action    string // optional: login_failed, account_locked, permission_denied, ...
	UserID    string
	CompanyID string
	Since     time.Time
	Limit     int // default 50, max 200
	Offset    int
}

// ListResult contains the paginated audit log results.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLRepository stores audit logs in SQLite or Postgres.
type SQLRepository struct {
	db *database.DB
}

// NewSQLRepository creates a new audit log repository.
func NewSQLRepository(db *database.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

type auditRow struct {
	ID        string         `db:"id"`
	Action    string         `db:"action"`
	UserID    sql.NullString `db:"user_id"`
	CompanyID sql.NullString `db:"company_id"`
	Module    sql.NullString `db:"module"`
	Target    sql.NullString `db:"target"`
	IP        sql.NullString `db:"ip"`
	Reason    sql.NullString `db:"reason"`
	Details   sql.NullString `db:"details"`
	CreatedAt string         `db:"created_at"`
}

// Create inserts a new audit log entry. The ID and CreatedAt are generated if empty.
func (r *SQLRepository) Create(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	var details sql.NullString
	if len(log.Details) > 0 {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO audit_logs (id, action, user_id, company_id, module, target, ip, reason, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		log.ID, log.Action,
		nullable(log.UserID), nullable(log.CompanyID), nullable(log.Module),
		nullable(log.Target), nullable(log.IP), nullable(log.Reason),
		details,
		log.CreatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// List returns audit logs matching the filter, most recent first.
func (r *SQLRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.CompanyID != "" {
		conditions = append(conditions, "company_id = ?")
		args = append(args, filter.CompanyID)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(timestampLayout))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := r.db.Rebind("SELECT COUNT(*) FROM audit_logs " + where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	query := r.db.Rebind(
		"SELECT id, action, user_id, company_id, module, target, ip, reason, details, created_at FROM audit_logs " +
			where + " ORDER BY created_at DESC LIMIT ? OFFSET ?")
	args = append(args, filter.Limit, filter.Offset)

	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}

	logs := make([]AuditLog, 0, len(rows))
	for _, row := range rows {
		log, err := row.log()
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	return &ListResult{
		Logs:   logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func (row auditRow) log() (AuditLog, error) {
	log := AuditLog{
		ID:        row.ID,
		Action:    row.Action,
		UserID:    row.UserID.String,
		CompanyID: row.CompanyID.String,
		Module:    row.Module.String,
		Target:    row.Target.String,
		IP:        row.IP.String,
		Reason:    row.Reason.String,
	}
	if row.Details.Valid && row.Details.String != "" {
		var details map[string]any
		if json.Unmarshal([]byte(row.Details.String), &details) == nil {
			log.Details = details
		}
	}

	t, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return log, fmt.Errorf("parsing audit log timestamp %q: %w", row.CreatedAt, err)
	}
	log.CreatedAt = t
	return log, nil
}
