package store

import (
	"database/sql"
	"strconv"
)

// BadgeCount returns the device badge integer. A best-effort UX aid,
// not a source of truth.
func (db *DB) BadgeCount() (int, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, keyBadgeCount).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	count, err := strconv.Atoi(value)
	if err != nil {
		return 0, nil
	}
	return count, nil
}

// SetBadgeCount stores the badge integer, clamped at zero.
func (db *DB) SetBadgeCount(count int) error {
	if count < 0 {
		count = 0
	}
	return db.setKey(keyBadgeCount, strconv.Itoa(count))
}

// IncrementBadge bumps the badge by one and returns the new value.
func (db *DB) IncrementBadge() (int, error) {
	count, err := db.BadgeCount()
	if err != nil {
		return 0, err
	}
	count++
	if err := db.SetBadgeCount(count); err != nil {
		return 0, err
	}
	return count, nil
}

// DecrementBadge lowers the badge by one, never below zero, and returns
// the new value.
func (db *DB) DecrementBadge() (int, error) {
	count, err := db.BadgeCount()
	if err != nil {
		return 0, err
	}
	count--
	if count < 0 {
		count = 0
	}
	if err := db.SetBadgeCount(count); err != nil {
		return 0, err
	}
	return count, nil
}
