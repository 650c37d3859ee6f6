package store

import (
	"database/sql"
	"time"
)

// Preferences are the process-wide notification settings. Absence of a
// stored key implies the default (everything enabled).
type Preferences struct {
	Enabled      bool
	SoundEnabled bool
	BadgeEnabled bool
}

// DefaultPreferences returns the settings used before the user changes
// anything.
func DefaultPreferences() Preferences {
	return Preferences{Enabled: true, SoundEnabled: true, BadgeEnabled: true}
}

const (
	keyEnabled      = "notifications_enabled"
	keySoundEnabled = "sound_enabled"
	keyBadgeEnabled = "badge_enabled"
	keyBadgeCount   = "badge_count"
)

// GetPreferences loads the stored preferences, filling defaults for
// absent keys.
func (db *DB) GetPreferences() (Preferences, error) {
	prefs := DefaultPreferences()
	for _, entry := range []struct {
		key string
		dst *bool
	}{
		{keyEnabled, &prefs.Enabled},
		{keySoundEnabled, &prefs.SoundEnabled},
		{keyBadgeEnabled, &prefs.BadgeEnabled},
	} {
		var value string
		err := db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, entry.key).Scan(&value)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return prefs, err
		}
		*entry.dst = value == "1"
	}
	return prefs, nil
}

// SetPreferences persists the preferences immediately.
func (db *DB) SetPreferences(prefs Preferences) error {
	for _, entry := range []struct {
		key   string
		value bool
	}{
		{keyEnabled, prefs.Enabled},
		{keySoundEnabled, prefs.SoundEnabled},
		{keyBadgeEnabled, prefs.BadgeEnabled},
	} {
		if err := db.setKey(entry.key, boolValue(entry.value)); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) setKey(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO preferences (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

func boolValue(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
