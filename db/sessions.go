package db

import (
	"database/sql"
	"time"
)

const (
	// AuthSessionDuration is the default login-session lifetime (30 days)
	AuthSessionDuration = 30 * 24 * time.Hour
)

// AuthSession is a password-login session (distinct from an agent Session).
type AuthSession struct {
	ID         string
	CreatedAt  int64
	ExpiresAt  int64
	LastUsedAt int64
}

// NowMs returns the current time as epoch milliseconds.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// CreateAuthSession creates a new login session in the database
func CreateAuthSession(id string) (*AuthSession, error) {
	db := GetDB()
	now := NowMs()
	expiresAt := time.Now().Add(AuthSessionDuration).UnixMilli()

	_, err := db.Exec(`
		INSERT INTO auth_sessions (id, created_at, expires_at, last_used_at)
		VALUES (?, ?, ?, ?)
	`, id, now, expiresAt, now)
	if err != nil {
		return nil, err
	}

	return &AuthSession{
		ID:         id,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
		LastUsedAt: now,
	}, nil
}

// GetAuthSession retrieves a login session by ID, returns nil if not found or expired
func GetAuthSession(id string) (*AuthSession, error) {
	db := GetDB()

	var s AuthSession
	err := db.QueryRow(`
		SELECT id, created_at, expires_at, last_used_at
		FROM auth_sessions
		WHERE id = ? AND expires_at > ?
	`, id, NowMs()).Scan(&s.ID, &s.CreatedAt, &s.ExpiresAt, &s.LastUsedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// TouchAuthSession updates the last_used_at timestamp for a login session
func TouchAuthSession(id string) error {
	db := GetDB()

	_, err := db.Exec(`
		UPDATE auth_sessions
		SET last_used_at = ?
		WHERE id = ?
	`, NowMs(), id)

	return err
}

// DeleteAuthSession removes a login session from the database
func DeleteAuthSession(id string) error {
	db := GetDB()

	_, err := db.Exec(`DELETE FROM auth_sessions WHERE id = ?`, id)
	return err
}

// DeleteExpiredAuthSessions removes all expired login sessions
func DeleteExpiredAuthSessions() (int64, error) {
	db := GetDB()

	result, err := db.Exec(`DELETE FROM auth_sessions WHERE expires_at <= ?`, NowMs())
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// ExtendAuthSession extends the expiration time of a login session
func ExtendAuthSession(id string) error {
	db := GetDB()
	expiresAt := time.Now().Add(AuthSessionDuration).UnixMilli()

	_, err := db.Exec(`
		UPDATE auth_sessions
		SET expires_at = ?, last_used_at = ?
		WHERE id = ?
	`, expiresAt, NowMs(), id)

	return err
}
