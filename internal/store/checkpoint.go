package store

import (
	"database/sql"
	"time"
)

// SetNotifyCheckpoint remembers the lastUpdated instant of the newest
// conversation change already surfaced as a notification, so restarts
// do not renotify old messages.
func (db *DB) SetNotifyCheckpoint(conversationID string, lastNotified time.Time) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO notify_checkpoints (conversation_id, last_notified_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET last_notified_at = excluded.last_notified_at, updated_at = excluded.updated_at`,
		conversationID, lastNotified.UnixMilli(), now)
	return err
}

// NotifyCheckpoint returns the stored checkpoint, zero time when absent.
func (db *DB) NotifyCheckpoint(conversationID string) (time.Time, error) {
	var millis int64
	err := db.QueryRow(`SELECT last_notified_at FROM notify_checkpoints WHERE conversation_id = ?`, conversationID).Scan(&millis)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}
