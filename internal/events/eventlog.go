package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// Record is one row of event_log.
type Record struct {
	Seq       int64
	SiteID    string
	Type      string
	Key       string
	DataJSON  string
	CreatedAt int64
}

// EventLog appends lifecycle events to the event_log table.
type EventLog struct {
	db     *sql.DB
	siteID string
	now    func() time.Time
}

func NewEventLog(db *sql.DB, siteID string) *EventLog {
	if siteID == "" {
		siteID = "local"
	}
	return &EventLog{db: db, siteID: siteID, now: time.Now}
}

func (l *EventLog) Publish(ctx context.Context, e quiz.Event) error {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("event log: marshal %s: %w", e.Type, err)
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		l.siteID, e.Type, e.Key, string(data), l.now().Unix())
	if err != nil {
		return fmt.Errorf("event log: append %s: %w", e.Type, err)
	}
	return nil
}

// Since returns events with seq greater than after, oldest first.
func (l *EventLog) Since(ctx context.Context, after int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, created_at FROM event_log
		 WHERE seq > $1 ORDER BY seq LIMIT $2`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Seq, &r.SiteID, &r.Type, &r.Key, &r.DataJSON, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
