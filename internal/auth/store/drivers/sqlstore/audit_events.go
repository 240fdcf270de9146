package sqlstore

import (
	"context"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
)

type auditEventsRepo struct {
	c conn
}

func (r *auditEventsRepo) CreateAuditEvent(ctx context.Context, e domain.AuditEvent) error {
	metadata, err := encodeMetadata(e.Metadata)
	if err != nil {
		return err
	}
	_, err = r.c.exec(ctx,
		`INSERT INTO audit_events (id, action, actor_id, user_id, ip, user_agent, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Action), e.ActorID, e.UserID, e.IP, e.UserAgent, metadata, millis(e.CreatedAt))
	return r.c.d.mapWriteError(err)
}

func (r *auditEventsRepo) ListUserAuditEvents(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.c.query(ctx,
		`SELECT id, action, actor_id, user_id, ip, user_agent, metadata, created_at
		 FROM audit_events WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEvent
	for rows.Next() {
		var (
			e                domain.AuditEvent
			action, metadata string
			createdAt        int64
		)
		if err := rows.Scan(&e.ID, &action, &e.ActorID, &e.UserID, &e.IP, &e.UserAgent, &metadata, &createdAt); err != nil {
			return nil, err
		}
		e.Action = domain.AuditAction(action)
		e.Metadata = decodeMetadata(metadata)
		e.CreatedAt = fromMillis(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
