package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

func (l AuditLog) validate() error {
	if l.Action == "" || l.Entity == "" || l.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	return nil
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if err := log.validate(); err != nil {
		return err
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		log.Actor, log.Action, log.Entity, log.EntityID, metaJSON, nullTime(log.At))
	return err
}

// SlogAuditor writes audit records to a structured logger. It backs stores
// without an audit_logs table.
type SlogAuditor struct {
	logger *slog.Logger
}

// NewSlogAuditor wraps logger.
func NewSlogAuditor(logger *slog.Logger) *SlogAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditor{logger: logger}
}

// Record logs the entry at info level.
func (a *SlogAuditor) Record(ctx context.Context, log AuditLog) error {
	if err := log.validate(); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "audit",
		slog.String("actor", log.Actor),
		slog.String("action", log.Action),
		slog.String("entity", log.Entity),
		slog.String("entity_id", log.EntityID),
		slog.Any("meta", log.Meta),
		slog.Time("at", log.At))
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
