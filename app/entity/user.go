package entity

import (
	"database/sql"
	"time"
)

type Role string

const (
	RoleRegular Role = "user"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleRegular || r == RoleAdmin
}

type User struct {
	ID           uint64
	Username     string
	Email        string
	PasswordHash string
	Confirmed    bool
	Role         Role
	Avatar       sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken is the audit record of one issued refresh credential. Rows are
// revoked, never deleted.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt sql.NullTime
	IPAddress string
	UserAgent string
}

func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.RevokedAt.Valid && now.Before(t.ExpiresAt)
}
