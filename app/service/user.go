package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-contacts/app/entity"
	"github.com/vibast-solutions/ms-go-contacts/app/types"

	"github.com/sirupsen/logrus"
)

var ErrUnsupportedAvatar = fmt.Errorf("%w: avatar must be a png, jpeg, gif or webp image", ErrValidation)

var avatarContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

type profileRepository interface {
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
	UpdateAvatar(ctx context.Context, userID uint64, avatarURL string) error
	UpdateRole(ctx context.Context, userID uint64, role entity.Role) error
}

type sessionRevoker interface {
	RevokeAllByUserID(ctx context.Context, userID uint64, revokedAt time.Time) (int64, error)
}

type avatarUploader interface {
	Upload(ctx context.Context, username string, body io.Reader, contentType string) (string, error)
}

type UserService interface {
	Me(ctx context.Context, user *entity.User) *types.UserResponse
	UpdateAvatar(ctx context.Context, user *entity.User, body io.Reader, contentType string) (*types.UserResponse, error)
	SetRole(ctx context.Context, req *types.UpdateRoleRequest) (*types.UserResponse, error)
	RevokeSessions(ctx context.Context, username string) (int64, error)
}

type userService struct {
	userRepo    profileRepository
	refreshRepo sessionRevoker
	cache       sessionCache
	avatars     avatarUploader
}

func NewUserService(userRepo profileRepository, refreshRepo sessionRevoker, cache sessionCache, avatars avatarUploader) UserService {
	return &userService{
		userRepo:    userRepo,
		refreshRepo: refreshRepo,
		cache:       cache,
		avatars:     avatars,
	}
}

func (s *userService) Me(_ context.Context, user *entity.User) *types.UserResponse {
	return types.NewUserResponse(user)
}

func (s *userService) UpdateAvatar(ctx context.Context, user *entity.User, body io.Reader, contentType string) (*types.UserResponse, error) {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if !avatarContentTypes[mediaType] {
		return nil, ErrUnsupportedAvatar
	}

	url, err := s.avatars.Upload(ctx, user.Username, body, mediaType)
	if err != nil {
		return nil, err
	}

	if err = s.userRepo.UpdateAvatar(ctx, user.ID, url); err != nil {
		return nil, err
	}
	s.cache.EvictUser(ctx, user.Username)

	updated := *user
	updated.Avatar.String, updated.Avatar.Valid = url, true
	return types.NewUserResponse(&updated), nil
}

func (s *userService) SetRole(ctx context.Context, req *types.UpdateRoleRequest) (*types.UserResponse, error) {
	role := entity.Role(req.Role)
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	user, err := s.findUser(ctx, req.Username)
	if err != nil {
		return nil, err
	}

	if user.Role != role {
		if err = s.userRepo.UpdateRole(ctx, user.ID, role); err != nil {
			return nil, err
		}
		s.cache.EvictUser(ctx, user.Username)

		logrus.WithFields(logrus.Fields{
			"username": user.Username,
			"from":     user.Role,
			"to":       role,
		}).Info("User role changed")
		user.Role = role
	}

	return types.NewUserResponse(user), nil
}

// RevokeSessions revokes every active refresh token of the user. Outstanding access
// tokens stay valid until they expire.
func (s *userService) RevokeSessions(ctx context.Context, username string) (int64, error) {
	user, err := s.findUser(ctx, username)
	if err != nil {
		return 0, err
	}

	return s.refreshRepo.RevokeAllByUserID(ctx, user.ID, time.Now())
}

func (s *userService) findUser(ctx context.Context, username string) (*entity.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
