package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-contacts/app/entity"
	"github.com/vibast-solutions/ms-go-contacts/app/mail"
	"github.com/vibast-solutions/ms-go-contacts/app/repository"
	"github.com/vibast-solutions/ms-go-contacts/app/security"
	"github.com/vibast-solutions/ms-go-contacts/app/types"
	"github.com/vibast-solutions/ms-go-contacts/config"

	"github.com/sirupsen/logrus"
)

const (
	mailSendTimeout = 5 * time.Second

	msgConfirmationSent = "if the account exists and is not confirmed, a confirmation email has been sent"
	msgResetSent        = "if the email is registered, a password reset link has been sent"
)

type userRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByID(ctx context.Context, id uint64) (*entity.User, error)
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	ConfirmEmail(ctx context.Context, userID uint64) (bool, error)
}

type refreshTokenRepository interface {
	Create(ctx context.Context, token *entity.RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*entity.RefreshToken, error)
	Revoke(ctx context.Context, id uint64, revokedAt time.Time) (bool, error)
}

type refreshTokenCreator interface {
	Create(ctx context.Context, token *entity.RefreshToken) error
}

// sessionCache is the revocation set plus the read-through user cache.
// Implementations swallow their own failures.
type sessionCache interface {
	IsRevoked(ctx context.Context, token string) bool
	Revoke(ctx context.Context, token string, expiresAt time.Time)
	Claim(ctx context.Context, token string, expiresAt time.Time) bool
	GetUser(ctx context.Context, username string) (*entity.User, bool)
	PutUser(ctx context.Context, user *entity.User)
	EvictUser(ctx context.Context, username string)
}

type UserAuthService interface {
	Register(ctx context.Context, req *types.RegisterRequest) (*types.UserResponse, error)
	Login(ctx context.Context, req *types.LoginRequest) (*types.TokenPairResponse, error)
	RefreshToken(ctx context.Context, req *types.RefreshTokenRequest) (*types.TokenPairResponse, error)
	Logout(ctx context.Context, req *types.LogoutRequest) error
	IsAuthenticated(ctx context.Context, accessToken string) (*entity.User, error)
	ConfirmEmail(ctx context.Context, req *types.ConfirmEmailRequest) error
	RequestEmailConfirmation(ctx context.Context, req *types.RequestEmailRequest) (*types.MessageResponse, error)
	RequestPasswordReset(ctx context.Context, req *types.RequestPasswordResetRequest) (*types.MessageResponse, error)
	ResetPassword(ctx context.Context, req *types.ResetPasswordRequest) error
	ChangePassword(ctx context.Context, userID uint64, req *types.ChangePasswordRequest) error
}

type AsyncRunner func(task func())

type UserAuthServiceOption func(*userAuthService)

type userAuthService struct {
	db               *sql.DB
	userRepo         userRepository
	refreshTokenRepo refreshTokenRepository
	cache            sessionCache
	hasher           security.PasswordHasher
	codec            *security.TokenCodec
	mailer           mail.Mailer
	cfg              *config.Config
	asyncRunner      AsyncRunner
	now              func() time.Time
}

func NewUserAuthService(
	db *sql.DB,
	userRepo userRepository,
	refreshTokenRepo refreshTokenRepository,
	cache sessionCache,
	hasher security.PasswordHasher,
	codec *security.TokenCodec,
	mailer mail.Mailer,
	cfg *config.Config,
	opts ...UserAuthServiceOption,
) UserAuthService {
	svc := &userAuthService{
		db:               db,
		userRepo:         userRepo,
		refreshTokenRepo: refreshTokenRepo,
		cache:            cache,
		hasher:           hasher,
		codec:            codec,
		mailer:           mailer,
		cfg:              cfg,
		asyncRunner: func(task func()) {
			go task()
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func WithAsyncRunner(runner AsyncRunner) UserAuthServiceOption {
	return func(s *userAuthService) {
		if runner != nil {
			s.asyncRunner = runner
		}
	}
}

func WithClock(now func() time.Time) UserAuthServiceOption {
	return func(s *userAuthService) {
		if now != nil {
			s.now = now
		}
	}
}

func (s *userAuthService) Register(ctx context.Context, req *types.RegisterRequest) (*types.UserResponse, error) {
	existing, err := s.userRepo.FindByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	existing, err = s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	if err = s.cfg.Password.Policy.Validate(req.Password); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &entity.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Confirmed:    false,
		Role:         entity.RoleRegular,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err = s.userRepo.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration between the lookups and the insert.
		if repository.IsDuplicateEntry(err) {
			if strings.HasSuffix(repository.DuplicateKey(err), "email") {
				return nil, ErrEmailTaken
			}
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	s.dispatchMail(user, mail.KindConfirmEmail)

	return types.NewUserResponse(user), nil
}

func (s *userAuthService) Login(ctx context.Context, req *types.LoginRequest) (*types.TokenPairResponse, error) {
	user, err := s.userRepo.FindByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnknownUser
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !user.Confirmed {
		return nil, ErrEmailNotConfirmed
	}

	return s.issueTokenPair(ctx, s.refreshTokenRepo, user, req.IPAddress, req.UserAgent)
}

func (s *userAuthService) RefreshToken(ctx context.Context, req *types.RefreshTokenRequest) (*types.TokenPairResponse, error) {
	claims, err := s.codec.Verify(req.RefreshToken, security.PurposeRefresh)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	txRefreshRepo := repository.NewRefreshTokenRepository(tx)
	now := s.now()

	stored, err := txRefreshRepo.FindActiveByHashForUpdate(ctx, security.HashToken(req.RefreshToken), now)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ErrInvalidToken
	}

	user, err := repository.NewUserRepository(tx).FindByID(ctx, stored.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Username != claims.Subject {
		return nil, ErrInvalidToken
	}

	revoked, err := txRefreshRepo.Revoke(ctx, stored.ID, now)
	if err != nil {
		return nil, err
	}
	if !revoked {
		return nil, ErrInvalidToken
	}

	pair, err := s.issueTokenPair(ctx, txRefreshRepo, user, req.IPAddress, req.UserAgent)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return pair, nil
}

// Logout blacklists the access token and revokes the refresh token. Unknown or already
// revoked refresh tokens are not an error, and tokens owned by another user are left alone.
func (s *userAuthService) Logout(ctx context.Context, req *types.LogoutRequest) error {
	claims, err := s.codec.Verify(req.AccessToken, security.PurposeAccess)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	s.cache.Revoke(ctx, req.AccessToken, claims.ExpiresAtTime())

	stored, err := s.refreshTokenRepo.FindByHash(ctx, security.HashToken(req.RefreshToken))
	if err != nil {
		return err
	}
	if stored == nil || !stored.IsActive(s.now()) {
		return nil
	}

	user, err := s.resolveUser(ctx, claims.Subject)
	if err != nil {
		return err
	}
	if user == nil || user.ID != stored.UserID {
		logrus.WithField("username", claims.Subject).Warn("Logout with a refresh token of another user ignored")
		return nil
	}

	_, err = s.refreshTokenRepo.Revoke(ctx, stored.ID, s.now())
	return err
}

func (s *userAuthService) IsAuthenticated(ctx context.Context, accessToken string) (*entity.User, error) {
	claims, err := s.codec.Verify(accessToken, security.PurposeAccess)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if s.cache.IsRevoked(ctx, accessToken) {
		return nil, ErrTokenRevoked
	}

	user, err := s.resolveUser(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnknownUser
	}

	return user, nil
}

func (s *userAuthService) ConfirmEmail(ctx context.Context, req *types.ConfirmEmailRequest) error {
	claims, err := s.codec.Verify(req.Token, security.PurposeEmailConfirm)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	user, err := s.userRepo.FindByEmail(ctx, claims.Subject)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if user.Confirmed {
		return ErrAccountAlreadyConfirmed
	}

	changed, err := s.userRepo.ConfirmEmail(ctx, user.ID)
	if err != nil {
		return err
	}
	if !changed {
		return ErrAccountAlreadyConfirmed
	}

	s.cache.EvictUser(ctx, user.Username)
	return nil
}

func (s *userAuthService) RequestEmailConfirmation(ctx context.Context, req *types.RequestEmailRequest) (*types.MessageResponse, error) {
	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if user != nil && !user.Confirmed {
		s.dispatchMail(user, mail.KindConfirmEmail)
	}

	return &types.MessageResponse{Message: msgConfirmationSent}, nil
}

func (s *userAuthService) RequestPasswordReset(ctx context.Context, req *types.RequestPasswordResetRequest) (*types.MessageResponse, error) {
	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		s.dispatchMail(user, mail.KindResetPassword)
	}

	return &types.MessageResponse{Message: msgResetSent}, nil
}

// ResetPassword replaces the password and ends every session of the user. A reset token
// works once: it is claimed in the revocation set before the password is written, so a
// second use fails even when both run at the same time.
func (s *userAuthService) ResetPassword(ctx context.Context, req *types.ResetPasswordRequest) error {
	claims, err := s.codec.Verify(req.Token, security.PurposePasswordReset)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	passwordHash, err := s.hashNewPassword(req.NewPassword)
	if err != nil {
		return err
	}

	user, err := s.userRepo.FindByEmail(ctx, claims.Subject)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if !s.cache.Claim(ctx, req.Token, claims.ExpiresAtTime()) {
		return ErrTokenRevoked
	}

	return s.replacePassword(ctx, user, passwordHash)
}

func (s *userAuthService) ChangePassword(ctx context.Context, userID uint64, req *types.ChangePasswordRequest) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if !s.hasher.Verify(req.OldPassword, user.PasswordHash) {
		return ErrPasswordMismatch
	}

	passwordHash, err := s.hashNewPassword(req.NewPassword)
	if err != nil {
		return err
	}

	return s.replacePassword(ctx, user, passwordHash)
}

func (s *userAuthService) hashNewPassword(newPassword string) (string, error) {
	if err := s.cfg.Password.Policy.Validate(newPassword); err != nil {
		return "", fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}
	return s.hasher.Hash(newPassword)
}

func (s *userAuthService) replacePassword(ctx context.Context, user *entity.User, passwordHash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now()
	if err = repository.NewUserRepository(tx).UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return err
	}

	revoked, err := repository.NewRefreshTokenRepository(tx).RevokeAllByUserID(ctx, user.ID, now)
	if err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	s.cache.EvictUser(ctx, user.Username)

	logrus.WithFields(logrus.Fields{
		"user_id":        user.ID,
		"revoked_tokens": revoked,
	}).Info("Password replaced")
	return nil
}

// resolveUser is the cache-aside lookup by username. A nil user means it does not exist.
func (s *userAuthService) resolveUser(ctx context.Context, username string) (*entity.User, error) {
	if user, ok := s.cache.GetUser(ctx, username); ok {
		return user, nil
	}

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user != nil {
		s.cache.PutUser(ctx, user)
	}
	return user, nil
}

func (s *userAuthService) issueTokenPair(ctx context.Context, repo refreshTokenCreator, user *entity.User, ipAddress, userAgent string) (*types.TokenPairResponse, error) {
	accessToken, err := s.codec.Issue(user.Username, security.PurposeAccess, s.cfg.JWT.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.codec.Issue(user.Username, security.PurposeRefresh, s.cfg.JWT.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err = repo.Create(ctx, &entity.RefreshToken{
		UserID:    user.ID,
		TokenHash: security.HashToken(refreshToken),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.JWT.RefreshTokenTTL),
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}); err != nil {
		return nil, err
	}

	return &types.TokenPairResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    types.TokenTypeBearer,
		ExpiresIn:    int64(s.cfg.JWT.AccessTokenTTL.Seconds()),
	}, nil
}

// dispatchMail issues a single-purpose token for the user's email and hands the message
// to the mailer in the background. Failures are logged, never returned.
func (s *userAuthService) dispatchMail(user *entity.User, kind mail.Kind) {
	purpose, ttl := security.PurposeEmailConfirm, s.cfg.Tokens.ConfirmTTL
	if kind == mail.KindResetPassword {
		purpose, ttl = security.PurposePasswordReset, s.cfg.Tokens.ResetTTL
	}

	token, err := s.codec.Issue(user.Email, purpose, ttl)
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("failed to issue mail token")
		return
	}

	msg := mail.Message{
		Kind:     kind,
		To:       user.Email,
		Username: user.Username,
		Token:    token,
		Link:     mail.Link(s.cfg.Mail.AppBaseURL, kind, token),
	}

	s.asyncRunner(func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), mailSendTimeout)
		defer cancel()

		if sendErr := s.mailer.Send(sendCtx, msg); sendErr != nil {
			logrus.WithError(sendErr).WithFields(logrus.Fields{
				"user_id": user.ID,
				"kind":    kind,
			}).Error("failed to send mail")
		}
	})
}
