package types

import (
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
)

const (
	usernameMinLength = 3
	usernameMaxLength = 50

	TokenTypeBearer = "bearer"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func NewRegisterRequestFromContext(ctx echo.Context) (*RegisterRequest, error) {
	var body RegisterRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Username = strings.TrimSpace(body.Username)
	body.Email = normalizeEmail(body.Email)
	return &body, nil
}

func (r *RegisterRequest) Validate() error {
	if r.Username == "" || r.Email == "" || strings.TrimSpace(r.Password) == "" {
		return errors.New("username, email and password are required")
	}
	if n := utf8.RuneCountInString(r.Username); n < usernameMinLength || n > usernameMaxLength {
		return errors.New("username must be between 3 and 50 characters long")
	}

	return validateEmail(r.Email)
}

type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`

	IPAddress string `json:"-" form:"-"`
	UserAgent string `json:"-" form:"-"`
}

// NewLoginRequestFromContext accepts both JSON and form bodies so OAuth2 password-flow clients work unchanged.
func NewLoginRequestFromContext(ctx echo.Context) (*LoginRequest, error) {
	var body LoginRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Username = strings.TrimSpace(body.Username)
	body.IPAddress = ctx.RealIP()
	body.UserAgent = ctx.Request().UserAgent()
	return &body, nil
}

func (r *LoginRequest) Validate() error {
	if r.Username == "" || r.Password == "" {
		return errors.New("username and password are required")
	}

	return nil
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`

	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

func NewRefreshTokenRequestFromContext(ctx echo.Context) (*RefreshTokenRequest, error) {
	var body RefreshTokenRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.IPAddress = ctx.RealIP()
	body.UserAgent = ctx.Request().UserAgent()
	return &body, nil
}

func (r *RefreshTokenRequest) Validate() error {
	if strings.TrimSpace(r.RefreshToken) == "" {
		return errors.New("refresh_token is required")
	}

	return nil
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`

	// AccessToken is taken from the Authorization header, never from the body.
	AccessToken string `json:"-"`
}

func NewLogoutRequestFromContext(ctx echo.Context) (*LogoutRequest, error) {
	var body LogoutRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.AccessToken, _ = ctx.Get("access_token").(string)
	return &body, nil
}

func (r *LogoutRequest) Validate() error {
	if strings.TrimSpace(r.RefreshToken) == "" {
		return errors.New("refresh_token is required")
	}

	return nil
}

type ConfirmEmailRequest struct {
	Token string `json:"token"`
}

func NewConfirmEmailRequestFromContext(ctx echo.Context) (*ConfirmEmailRequest, error) {
	var body ConfirmEmailRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *ConfirmEmailRequest) Validate() error {
	if strings.TrimSpace(r.Token) == "" {
		return errors.New("token is required")
	}

	return nil
}

type RequestEmailRequest struct {
	Email string `json:"email"`
}

func NewRequestEmailRequestFromContext(ctx echo.Context) (*RequestEmailRequest, error) {
	var body RequestEmailRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Email = normalizeEmail(body.Email)
	return &body, nil
}

func (r *RequestEmailRequest) Validate() error {
	if r.Email == "" {
		return errors.New("email is required")
	}

	return validateEmail(r.Email)
}

type RequestPasswordResetRequest struct {
	Email string `json:"email"`
}

func NewRequestPasswordResetRequestFromContext(ctx echo.Context) (*RequestPasswordResetRequest, error) {
	var body RequestPasswordResetRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Email = normalizeEmail(body.Email)
	return &body, nil
}

func (r *RequestPasswordResetRequest) Validate() error {
	if r.Email == "" {
		return errors.New("email is required")
	}

	return validateEmail(r.Email)
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func NewResetPasswordRequestFromContext(ctx echo.Context) (*ResetPasswordRequest, error) {
	var body ResetPasswordRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *ResetPasswordRequest) Validate() error {
	if strings.TrimSpace(r.Token) == "" || strings.TrimSpace(r.NewPassword) == "" {
		return errors.New("token and new_password are required")
	}

	return nil
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func NewChangePasswordRequestFromContext(ctx echo.Context) (*ChangePasswordRequest, error) {
	var body ChangePasswordRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *ChangePasswordRequest) Validate() error {
	if strings.TrimSpace(r.OldPassword) == "" || strings.TrimSpace(r.NewPassword) == "" {
		return errors.New("old_password and new_password are required")
	}

	return nil
}

type TokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("email is not a valid address")
	}

	return nil
}
