package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-contacts/app/entity"
	"github.com/vibast-solutions/ms-go-contacts/app/repository"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRefreshTokenRepository_Create(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewRefreshTokenRepository(db)
	now := time.Now()
	token := &entity.RefreshToken{
		UserID:    1,
		TokenHash: "abc",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
		IPAddress: "10.0.0.1",
		UserAgent: "curl/8.0",
	}

	mock.ExpectExec(insertRefreshTokenQuery).
		WithArgs(uint64(1), "abc", now, now.Add(time.Hour), "10.0.0.1", "curl/8.0").
		WillReturnResult(sqlmock.NewResult(5, 1))

	if err := repo.Create(context.Background(), token); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if token.ID != 5 {
		t.Fatalf("expected ID 5, got %d", token.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshTokenRepository_FindActiveByHashForUpdate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(findActiveRefreshToken).
		WithArgs("abc", now).
		WillReturnRows(sqlmock.NewRows(refreshTokenColumns).AddRow(
			uint64(5),
			uint64(1),
			"abc",
			now.Add(-time.Minute),
			now.Add(time.Hour),
			nil,
			"10.0.0.1",
			"curl/8.0",
		))
	mock.ExpectCommit()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	token, err := repository.NewRefreshTokenRepository(tx).FindActiveByHashForUpdate(context.Background(), "abc", now)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if token == nil || token.ID != 5 || token.RevokedAt.Valid {
		t.Fatalf("unexpected token: %#v", token)
	}
	if !token.IsActive(now) {
		t.Fatalf("expected token to be active")
	}
	if err = tx.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshTokenRepository_RevokeIsCompareAndSet(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewRefreshTokenRepository(db)
	now := time.Now()

	mock.ExpectExec(revokeRefreshTokenQuery).
		WithArgs(now, uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(revokeRefreshTokenQuery).
		WithArgs(now, uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	revoked, err := repo.Revoke(context.Background(), 5, now)
	if err != nil || !revoked {
		t.Fatalf("expected first revoke to win, got %v %v", revoked, err)
	}
	revoked, err = repo.Revoke(context.Background(), 5, now)
	if err != nil || revoked {
		t.Fatalf("expected second revoke to lose, got %v %v", revoked, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshTokenRepository_RevokeAllByUserID(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewRefreshTokenRepository(db)
	now := time.Now()

	mock.ExpectExec(revokeAllRefreshTokens).
		WithArgs(now, uint64(1), now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.RevokeAllByUserID(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 revoked tokens, got %d", count)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
