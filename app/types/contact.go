package types

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-contacts/app/entity"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPageLimit    = 10
	MaxPageLimit        = 100
	DefaultBirthdayDays = 7
	MaxBirthdayDays     = 366

	birthdayLayout = "2006-01-02"
)

// ContactRequest is the body of both create and update calls.
type ContactRequest struct {
	ID             uint64  `json:"-"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Email          string  `json:"email"`
	PhoneNumber    string  `json:"phone_number"`
	Birthday       *string `json:"birthday"`
	AdditionalInfo *string `json:"additional_info"`

	birthday *time.Time
}

func NewContactRequestFromContext(ctx echo.Context) (*ContactRequest, error) {
	var body ContactRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	if raw := ctx.Param("id"); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			return nil, err
		}
		body.ID = id
	}

	body.FirstName = strings.TrimSpace(body.FirstName)
	body.LastName = strings.TrimSpace(body.LastName)
	body.Email = normalizeEmail(body.Email)
	body.PhoneNumber = strings.TrimSpace(body.PhoneNumber)
	return &body, nil
}

func (r *ContactRequest) Validate() error {
	if r.FirstName == "" || r.LastName == "" || r.Email == "" || r.PhoneNumber == "" {
		return errors.New("first_name, last_name, email and phone_number are required")
	}
	if len(r.FirstName) > 50 || len(r.LastName) > 50 {
		return errors.New("first_name and last_name must be at most 50 characters long")
	}
	if len(r.PhoneNumber) > 20 {
		return errors.New("phone_number must be at most 20 characters long")
	}
	if err := validateEmail(r.Email); err != nil {
		return err
	}

	r.birthday = nil
	if r.Birthday != nil && strings.TrimSpace(*r.Birthday) != "" {
		birthday, err := time.Parse(birthdayLayout, strings.TrimSpace(*r.Birthday))
		if err != nil {
			return errors.New("birthday must be a date in YYYY-MM-DD format")
		}
		if birthday.After(time.Now()) {
			return errors.New("birthday cannot be in the future")
		}
		r.birthday = &birthday
	}

	return nil
}

// BirthdayDate is the parsed birthday. It is only populated after Validate succeeds.
func (r *ContactRequest) BirthdayDate() *time.Time {
	return r.birthday
}

type ContactIDRequest struct {
	ID uint64
}

func NewContactIDRequestFromContext(ctx echo.Context) (*ContactIDRequest, error) {
	id, err := parseID(ctx.Param("id"))
	if err != nil {
		return nil, err
	}

	return &ContactIDRequest{ID: id}, nil
}

type ListContactsRequest struct {
	Query  string `query:"query"`
	Limit  int    `query:"limit"`
	Offset int    `query:"offset"`
}

func NewListContactsRequestFromContext(ctx echo.Context) (*ListContactsRequest, error) {
	var body ListContactsRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Query = strings.TrimSpace(body.Query)
	if body.Limit == 0 {
		body.Limit = DefaultPageLimit
	}
	return &body, nil
}

func (r *ListContactsRequest) Validate() error {
	if r.Limit < 1 || r.Limit > MaxPageLimit {
		return errors.New("limit must be between 1 and 100")
	}
	if r.Offset < 0 {
		return errors.New("offset must not be negative")
	}

	return nil
}

type UpcomingBirthdaysRequest struct {
	Days int `query:"days"`
}

func NewUpcomingBirthdaysRequestFromContext(ctx echo.Context) (*UpcomingBirthdaysRequest, error) {
	body := UpcomingBirthdaysRequest{Days: DefaultBirthdayDays}
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *UpcomingBirthdaysRequest) Validate() error {
	if r.Days < 1 || r.Days > MaxBirthdayDays {
		return errors.New("days must be between 1 and 366")
	}

	return nil
}

type ContactResponse struct {
	ID             uint64    `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	PhoneNumber    string    `json:"phone_number"`
	Birthday       *string   `json:"birthday"`
	AdditionalInfo *string   `json:"additional_info"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func NewContactResponse(c *entity.Contact) *ContactResponse {
	resp := &ContactResponse{
		ID:          c.ID,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Email:       c.Email,
		PhoneNumber: c.PhoneNumber,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	if c.Birthday.Valid {
		birthday := c.Birthday.Time.Format(birthdayLayout)
		resp.Birthday = &birthday
	}
	if c.AdditionalInfo.Valid {
		info := c.AdditionalInfo.String
		resp.AdditionalInfo = &info
	}
	return resp
}

func NewContactListResponse(contacts []*entity.Contact) []*ContactResponse {
	resp := make([]*ContactResponse, 0, len(contacts))
	for _, c := range contacts {
		resp = append(resp, NewContactResponse(c))
	}
	return resp
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}
