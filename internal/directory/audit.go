package directory

import (
	"context"
	"database/sql"
	"strconv"
	"time"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAudit(ctx context.Context, q execer, e AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_logs (actor_id, action, target_type, target_id, detail, origin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ActorID, e.Action, e.TargetType, e.TargetID, e.Detail, e.Origin, e.CreatedAt)
	return err
}

// AppendAudit writes a single audit entry. Entries are append-only.
func (r *Repository) AppendAudit(ctx context.Context, e AuditEntry) error {
	return insertAudit(ctx, r.db, e)
}

// ListAudit returns audit entries most-recent-first, bounded by limit.
func (r *Repository) ListAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	return r.listAudit(ctx, nil, limit)
}

// ListAuditByActions returns entries whose action is in actions,
// most-recent-first, bounded by limit.
func (r *Repository) ListAuditByActions(ctx context.Context, actions []string, limit int) ([]AuditEntry, error) {
	return r.listAudit(ctx, actions, limit)
}

func (r *Repository) listAudit(ctx context.Context, actions []string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, actor_id, action, target_type, target_id, detail, origin, created_at
		FROM audit_logs`
	args := []any{}
	if len(actions) > 0 {
		query += ` WHERE action = ANY($1)`
		args = append(args, actions)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.TargetType, &e.TargetID, &e.Detail, &e.Origin, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// CountAuditByActions counts entries with one of the given actions, and how
// many of those were written since the given time.
func (r *Repository) CountAuditByActions(ctx context.Context, actions []string, since time.Time) (total, recent int64, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE created_at >= $2)
		FROM audit_logs WHERE action = ANY($1)
	`, actions, since).Scan(&total, &recent)
	return total, recent, err
}
