package store

import (
	"database/sql"
	"time"
)

// SetUnreadCache stores the derived unread count for a conversation.
// The cache exists for UI speed only and is corrected opportunistically
// whenever a fresh snapshot is available.
func (db *DB) SetUnreadCache(conversationID string, count int) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO unread_cache (conversation_id, count, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET count = excluded.count, updated_at = excluded.updated_at`,
		conversationID, count, now)
	return err
}

// UnreadCache returns the cached unread count for a conversation, zero
// when absent.
func (db *DB) UnreadCache(conversationID string) (int, error) {
	var count int
	err := db.QueryRow(`SELECT count FROM unread_cache WHERE conversation_id = ?`, conversationID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// TotalUnread sums all cached unread counts.
func (db *DB) TotalUnread() (int, error) {
	var total int
	err := db.QueryRow(`SELECT COALESCE(SUM(count), 0) FROM unread_cache`).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}
