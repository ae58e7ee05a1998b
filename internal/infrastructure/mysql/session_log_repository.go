package mysql

import (
	"context"
	"database/sql"

	"broadcast-console/internal/domain"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLSessionLogRepository is the append-only history of broadcast
// session events: connects, disconnects, stream transitions, and
// divergence detections.
type MySQLSessionLogRepository struct {
	db *sql.DB
}

func NewMySQLSessionLogRepository(db *sql.DB) *MySQLSessionLogRepository {
	return &MySQLSessionLogRepository{db: db}
}

func (r *MySQLSessionLogRepository) AppendEvent(ctx context.Context, event *domain.SessionEvent) error {
	query := `
        INSERT INTO broadcast_session_events (id, event_type, detail, occurred_at)
        VALUES (?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		event.ID, string(event.Type), event.Detail, event.OccurredAt)
	return err
}

func (r *MySQLSessionLogRepository) RecentEvents(ctx context.Context, limit int) ([]*domain.SessionEvent, error) {
	query := `
        SELECT id, event_type, detail, occurred_at
        FROM broadcast_session_events
        ORDER BY occurred_at DESC
        LIMIT ?
    `

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.SessionEvent
	for rows.Next() {
		var event domain.SessionEvent
		var eventType string

		err := rows.Scan(&event.ID, &eventType, &event.Detail, &event.OccurredAt)
		if err != nil {
			return nil, err
		}

		event.Type = domain.SessionEventType(eventType)
		result = append(result, &event)
	}

	return result, rows.Err()
}
