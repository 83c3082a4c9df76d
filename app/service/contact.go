package service

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/vibast-solutions/ms-go-contacts/app/entity"
	"github.com/vibast-solutions/ms-go-contacts/app/types"
)

type contactRepository interface {
	Create(ctx context.Context, contact *entity.Contact) error
	FindByID(ctx context.Context, userID, id uint64) (*entity.Contact, error)
	List(ctx context.Context, userID uint64, limit, offset int) ([]*entity.Contact, error)
	Search(ctx context.Context, userID uint64, term string, limit, offset int) ([]*entity.Contact, error)
	ListWithBirthday(ctx context.Context, userID uint64) ([]*entity.Contact, error)
	Update(ctx context.Context, contact *entity.Contact) error
	Delete(ctx context.Context, userID, id uint64) (bool, error)
}

type ContactService interface {
	Create(ctx context.Context, userID uint64, req *types.ContactRequest) (*types.ContactResponse, error)
	Get(ctx context.Context, userID, id uint64) (*types.ContactResponse, error)
	List(ctx context.Context, userID uint64, req *types.ListContactsRequest) ([]*types.ContactResponse, error)
	Update(ctx context.Context, userID uint64, req *types.ContactRequest) (*types.ContactResponse, error)
	Delete(ctx context.Context, userID, id uint64) error
	UpcomingBirthdays(ctx context.Context, userID uint64, days int) ([]*types.ContactResponse, error)
}

type contactService struct {
	contactRepo contactRepository
	now         func() time.Time
}

func NewContactService(contactRepo contactRepository) ContactService {
	return &contactService{contactRepo: contactRepo, now: time.Now}
}

func (s *contactService) Create(ctx context.Context, userID uint64, req *types.ContactRequest) (*types.ContactResponse, error) {
	now := s.now()
	contact := &entity.Contact{UserID: userID, CreatedAt: now, UpdatedAt: now}
	applyContactRequest(contact, req)

	if err := s.contactRepo.Create(ctx, contact); err != nil {
		return nil, err
	}

	return types.NewContactResponse(contact), nil
}

func (s *contactService) Get(ctx context.Context, userID, id uint64) (*types.ContactResponse, error) {
	contact, err := s.find(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	return types.NewContactResponse(contact), nil
}

// List pages through the user's contacts. A non-empty query switches to a substring search.
func (s *contactService) List(ctx context.Context, userID uint64, req *types.ListContactsRequest) ([]*types.ContactResponse, error) {
	var (
		contacts []*entity.Contact
		err      error
	)
	if req.Query != "" {
		contacts, err = s.contactRepo.Search(ctx, userID, req.Query, req.Limit, req.Offset)
	} else {
		contacts, err = s.contactRepo.List(ctx, userID, req.Limit, req.Offset)
	}
	if err != nil {
		return nil, err
	}

	return types.NewContactListResponse(contacts), nil
}

func (s *contactService) Update(ctx context.Context, userID uint64, req *types.ContactRequest) (*types.ContactResponse, error) {
	contact, err := s.find(ctx, userID, req.ID)
	if err != nil {
		return nil, err
	}

	applyContactRequest(contact, req)
	contact.UpdatedAt = s.now()
	if err = s.contactRepo.Update(ctx, contact); err != nil {
		return nil, err
	}

	return types.NewContactResponse(contact), nil
}

func (s *contactService) Delete(ctx context.Context, userID, id uint64) error {
	deleted, err := s.contactRepo.Delete(ctx, userID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrContactNotFound
	}
	return nil
}

// UpcomingBirthdays returns contacts whose next birthday falls in [today, today+days),
// ordered by date.
func (s *contactService) UpcomingBirthdays(ctx context.Context, userID uint64, days int) ([]*types.ContactResponse, error) {
	contacts, err := s.contactRepo.ListWithBirthday(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := truncateToDate(s.now())
	end := today.AddDate(0, 0, days)

	type upcoming struct {
		contact *entity.Contact
		date    time.Time
	}
	var matches []upcoming
	for _, c := range contacts {
		if !c.Birthday.Valid {
			continue
		}
		next := nextBirthday(c.Birthday.Time, today)
		if next.Before(end) {
			matches = append(matches, upcoming{contact: c, date: next})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].date.Before(matches[j].date)
	})

	result := make([]*entity.Contact, 0, len(matches))
	for _, m := range matches {
		result = append(result, m.contact)
	}
	return types.NewContactListResponse(result), nil
}

func (s *contactService) find(ctx context.Context, userID, id uint64) (*entity.Contact, error) {
	contact, err := s.contactRepo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, ErrContactNotFound
	}
	return contact, nil
}

func applyContactRequest(contact *entity.Contact, req *types.ContactRequest) {
	contact.FirstName = req.FirstName
	contact.LastName = req.LastName
	contact.Email = req.Email
	contact.PhoneNumber = req.PhoneNumber

	contact.Birthday = sql.NullTime{}
	if birthday := req.BirthdayDate(); birthday != nil {
		contact.Birthday = sql.NullTime{Time: *birthday, Valid: true}
	}

	contact.AdditionalInfo = sql.NullString{}
	if req.AdditionalInfo != nil && *req.AdditionalInfo != "" {
		contact.AdditionalInfo = sql.NullString{String: *req.AdditionalInfo, Valid: true}
	}
}

// nextBirthday returns the first anniversary of birthday on or after today.
// Feb 29 birthdays fall on Mar 1 in common years.
func nextBirthday(birthday, today time.Time) time.Time {
	next := anniversary(birthday, today.Year(), today.Location())
	if next.Before(today) {
		next = anniversary(birthday, today.Year()+1, today.Location())
	}
	return next
}

func anniversary(birthday time.Time, year int, loc *time.Location) time.Time {
	// time.Date normalises Feb 29 of a common year to Mar 1.
	return time.Date(year, birthday.Month(), birthday.Day(), 0, 0, 0, 0, loc)
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
