package db

import (
	"context"
	"time"
)

// AuditEntry is one row of the event audit log.
type AuditEntry struct {
	ID        int64
	EventType string
	UserID    int64
	SheetRow  int
	Detail    string
	CreatedAt time.Time
}

// AppendAudit records a domain event.
func (db *DB) AppendAudit(ctx context.Context, eventType string, userID int64, sheetRow int, detail string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, user_id, sheet_row, detail)
		VALUES (?, ?, ?, ?)`,
		eventType, userID, sheetRow, detail)
	return err
}

// RecentAudit returns the latest entries, newest first.
func (db *DB) RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, event_type, COALESCE(user_id, 0), COALESCE(sheet_row, 0),
		       COALESCE(detail, ''), created_at
		FROM audit_log
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.EventType, &e.UserID, &e.SheetRow, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneAudit deletes entries older than the given duration.
// Returns the number of deleted rows.
func (db *DB) PruneAudit(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := db.ExecContext(ctx, `
		DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
