package store

import "time"

// MuteConversation suppresses notification delivery for a conversation.
// Idempotent.
func (db *DB) MuteConversation(conversationID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO muted_conversations (conversation_id, muted_at)
		VALUES (?, ?)
		ON CONFLICT(conversation_id) DO NOTHING`,
		conversationID, now)
	return err
}

// UnmuteConversation re-enables notification delivery. Idempotent.
func (db *DB) UnmuteConversation(conversationID string) error {
	_, err := db.Exec(`DELETE FROM muted_conversations WHERE conversation_id = ?`, conversationID)
	return err
}

// IsMuted reports whether a conversation's notifications are suppressed.
func (db *DB) IsMuted(conversationID string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(1) FROM muted_conversations WHERE conversation_id = ?`, conversationID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MutedConversations returns all muted conversation ids.
func (db *DB) MutedConversations() ([]string, error) {
	rows, err := db.Query(`SELECT conversation_id FROM muted_conversations ORDER BY muted_at ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
