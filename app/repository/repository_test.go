package repository_test

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

const (
	insertUserQuery         = `(?s)INSERT INTO users \(username, email, password_hash, confirmed, role, avatar, created_at, updated_at\)\s+VALUES \(\?, \?, \?, \?, \?, \?, \?, \?\)`
	findByUsernameQuery     = `(?s)SELECT id, username, email, password_hash, confirmed, role, avatar, created_at, updated_at\s+FROM users WHERE username = \?`
	findByEmailQuery        = `(?s)SELECT id, username, email, password_hash, confirmed, role, avatar, created_at, updated_at\s+FROM users WHERE email = \?`
	confirmEmailQuery       = `UPDATE users SET confirmed = 1, updated_at = \? WHERE id = \? AND confirmed = 0`
	insertRefreshTokenQuery = `(?s)INSERT INTO refresh_tokens \(user_id, token_hash, issued_at, expires_at, ip_address, user_agent\)\s+VALUES \(\?, \?, \?, \?, \?, \?\)`
	findActiveRefreshToken  = `(?s)SELECT id, user_id, token_hash, issued_at, expires_at, revoked_at, ip_address, user_agent\s+FROM refresh_tokens WHERE token_hash = \? AND revoked_at IS NULL AND expires_at > \? FOR UPDATE`
	revokeRefreshTokenQuery = `UPDATE refresh_tokens SET revoked_at = \? WHERE id = \? AND revoked_at IS NULL`
	revokeAllRefreshTokens  = `UPDATE refresh_tokens SET revoked_at = \? WHERE user_id = \? AND revoked_at IS NULL AND expires_at > \?`
	insertContactQuery      = `(?s)INSERT INTO contacts \(user_id, first_name, last_name, email, phone_number, birthday, additional_info, created_at, updated_at\)\s+VALUES \(\?, \?, \?, \?, \?, \?, \?, \?, \?\)`
	findContactByIDQuery    = `(?s)SELECT id, user_id, first_name, last_name, email, phone_number, birthday, additional_info, created_at, updated_at\s+FROM contacts WHERE id = \? AND user_id = \?`
	searchContactsQuery     = `(?s)FROM contacts\s+WHERE user_id = \? AND \(LOWER\(first_name\) LIKE \? OR LOWER\(last_name\) LIKE \? OR LOWER\(email\) LIKE \?\)\s+ORDER BY id\s+LIMIT \? OFFSET \?`
	updateContactQuery      = `(?s)UPDATE contacts SET\s+first_name = \?,\s+last_name = \?,\s+email = \?,\s+phone_number = \?,\s+birthday = \?,\s+additional_info = \?,\s+updated_at = \?\s+WHERE id = \? AND user_id = \?`
	deleteContactQuery      = `DELETE FROM contacts WHERE id = \? AND user_id = \?`
)

var userColumns = []string{
	"id",
	"username",
	"email",
	"password_hash",
	"confirmed",
	"role",
	"avatar",
	"created_at",
	"updated_at",
}

var refreshTokenColumns = []string{
	"id",
	"user_id",
	"token_hash",
	"issued_at",
	"expires_at",
	"revoked_at",
	"ip_address",
	"user_agent",
}

var contactColumns = []string{
	"id",
	"user_id",
	"first_name",
	"last_name",
	"email",
	"phone_number",
	"birthday",
	"additional_info",
	"created_at",
	"updated_at",
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { _ = db.Close() }
}
