package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"school-portal/internal/models"

	"github.com/jmoiron/sqlx"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 500
)

type AuditRepository interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, filter models.AuditFilter) ([]*models.AuditLog, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]*models.AuditLog, error)
}

type auditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (user_id, user_type, action, entity, entity_id, changes, ip_address, user_agent, created_at)
		VALUES (:user_id, :user_type, :action, :entity, :entity_id, :changes, :ip_address, :user_agent, :created_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

const auditColumns = "id, user_id, user_type, action, entity, entity_id, changes, ip_address, user_agent, created_at"

func (r *auditRepository) List(ctx context.Context, filter models.AuditFilter) ([]*models.AuditLog, error) {
	var (
		conds []string
		args  []any
	)
	addCond := func(expr string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}

	if filter.UserID != "" {
		addCond("user_id = $%d", filter.UserID)
	}
	if filter.Action != "" {
		addCond("action = $%d", filter.Action)
	}
	if filter.From != nil {
		addCond("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		addCond("created_at < $%d", *filter.To)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditPageSize
	}
	if limit > maxAuditPageSize {
		limit = maxAuditPageSize
	}

	query := "SELECT " + auditColumns + " FROM audit_logs"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var entries []*models.AuditLog
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return entries, nil
}

func (r *auditRepository) ListBetween(ctx context.Context, from, to time.Time) ([]*models.AuditLog, error) {
	query := "SELECT " + auditColumns + " FROM audit_logs WHERE created_at >= $1 AND created_at < $2 ORDER BY id"

	var entries []*models.AuditLog
	if err := r.db.SelectContext(ctx, &entries, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return entries, nil
}
