package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-contacts/app/entity"

	"github.com/jmoiron/sqlx"
)

const contactSelectColumns = `id, user_id, first_name, last_name, email, phone_number, birthday, additional_info, created_at, updated_at`

type ContactRepository struct {
	db *sqlx.DB
}

func NewContactRepository(db *sqlx.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

type contactRow struct {
	ID             uint64         `db:"id"`
	UserID         uint64         `db:"user_id"`
	FirstName      string         `db:"first_name"`
	LastName       string         `db:"last_name"`
	Email          string         `db:"email"`
	PhoneNumber    string         `db:"phone_number"`
	Birthday       sql.NullTime   `db:"birthday"`
	AdditionalInfo sql.NullString `db:"additional_info"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func newContactRow(c *entity.Contact) contactRow {
	return contactRow{
		ID:             c.ID,
		UserID:         c.UserID,
		FirstName:      c.FirstName,
		LastName:       c.LastName,
		Email:          c.Email,
		PhoneNumber:    c.PhoneNumber,
		Birthday:       c.Birthday,
		AdditionalInfo: c.AdditionalInfo,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func (r contactRow) toEntity() *entity.Contact {
	return &entity.Contact{
		ID:             r.ID,
		UserID:         r.UserID,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		Email:          r.Email,
		PhoneNumber:    r.PhoneNumber,
		Birthday:       r.Birthday,
		AdditionalInfo: r.AdditionalInfo,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (r *ContactRepository) Create(ctx context.Context, contact *entity.Contact) error {
	query := `
		INSERT INTO contacts (user_id, first_name, last_name, email, phone_number, birthday, additional_info, created_at, updated_at)
		VALUES (:user_id, :first_name, :last_name, :email, :phone_number, :birthday, :additional_info, :created_at, :updated_at)
	`
	result, err := r.db.NamedExecContext(ctx, query, newContactRow(contact))
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	contact.ID = uint64(id)
	return nil
}

func (r *ContactRepository) FindByID(ctx context.Context, userID, id uint64) (*entity.Contact, error) {
	query := `
		SELECT ` + contactSelectColumns + `
		FROM contacts WHERE id = ? AND user_id = ?
	`
	var row contactRow
	if err := r.db.GetContext(ctx, &row, query, id, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return row.toEntity(), nil
}

func (r *ContactRepository) List(ctx context.Context, userID uint64, limit, offset int) ([]*entity.Contact, error) {
	query := `
		SELECT ` + contactSelectColumns + `
		FROM contacts WHERE user_id = ?
		ORDER BY id
		LIMIT ? OFFSET ?
	`
	return r.selectContacts(ctx, query, userID, limit, offset)
}

// Search matches the query as a case-insensitive substring of first name, last name or email.
func (r *ContactRepository) Search(ctx context.Context, userID uint64, term string, limit, offset int) ([]*entity.Contact, error) {
	query := `
		SELECT ` + contactSelectColumns + `
		FROM contacts
		WHERE user_id = ? AND (LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ?)
		ORDER BY id
		LIMIT ? OFFSET ?
	`
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	return r.selectContacts(ctx, query, userID, pattern, pattern, pattern, limit, offset)
}

func (r *ContactRepository) ListWithBirthday(ctx context.Context, userID uint64) ([]*entity.Contact, error) {
	query := `
		SELECT ` + contactSelectColumns + `
		FROM contacts WHERE user_id = ? AND birthday IS NOT NULL
		ORDER BY id
	`
	return r.selectContacts(ctx, query, userID)
}

func (r *ContactRepository) Update(ctx context.Context, contact *entity.Contact) error {
	query := `
		UPDATE contacts SET
			first_name = :first_name,
			last_name = :last_name,
			email = :email,
			phone_number = :phone_number,
			birthday = :birthday,
			additional_info = :additional_info,
			updated_at = :updated_at
		WHERE id = :id AND user_id = :user_id
	`
	_, err := r.db.NamedExecContext(ctx, query, newContactRow(contact))
	return err
}

func (r *ContactRepository) Delete(ctx context.Context, userID, id uint64) (bool, error) {
	query := `DELETE FROM contacts WHERE id = ? AND user_id = ?`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *ContactRepository) selectContacts(ctx context.Context, query string, args ...interface{}) ([]*entity.Contact, error) {
	var rows []contactRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	contacts := make([]*entity.Contact, 0, len(rows))
	for _, row := range rows {
		contacts = append(contacts, row.toEntity())
	}
	return contacts, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
