package controller

import (
	"errors"
	"net/http"

	"github.com/vibast-solutions/ms-go-contacts/app/dto"
	"github.com/vibast-solutions/ms-go-contacts/app/middleware"
	"github.com/vibast-solutions/ms-go-contacts/app/service"
	"github.com/vibast-solutions/ms-go-contacts/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const genericLoginError = "incorrect username or password"

type UserAuthController struct {
	userAuthService    service.UserAuthService
	genericLoginErrors bool
}

// NewUserAuthController builds the auth endpoints. With genericLoginErrors set, an unknown
// username and a wrong password produce the same response.
func NewUserAuthController(userAuthService service.UserAuthService, genericLoginErrors bool) *UserAuthController {
	return &UserAuthController{
		userAuthService:    userAuthService,
		genericLoginErrors: genericLoginErrors,
	}
}

func (c *UserAuthController) Register(ctx echo.Context) error {
	req, err := types.NewRegisterRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind register request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("username", req.Username).Debug("Register validation failed")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("username", req.Username).Info("Register request received")
	result, err := c.userAuthService.Register(ctx.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrUsernameTaken) {
			logrus.WithField("username", req.Username).Warn("Register failed: username taken")
			return ctx.JSON(http.StatusConflict, dto.ErrorResponse{Error: "User already exists"})
		}
		if errors.Is(err, service.ErrEmailTaken) {
			logrus.WithField("username", req.Username).Warn("Register failed: email taken")
			return ctx.JSON(http.StatusConflict, dto.ErrorResponse{Error: "Email already exists"})
		}
		if errors.Is(err, service.ErrWeakPassword) {
			logrus.WithField("username", req.Username).Warn("Register failed: weak password")
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		}
		logrus.WithError(err).WithField("username", req.Username).Error("Register failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  result.ID,
		"username": result.Username,
	}).Info("User registered")

	return ctx.JSON(http.StatusCreated, result)
}

func (c *UserAuthController) Login(ctx echo.Context) error {
	req, err := types.NewLoginRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind login request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("username", req.Username).Debug("Login validation failed")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("username", req.Username).Info("Login request received")
	result, err := c.userAuthService.Login(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownUser):
			logrus.WithField("username", req.Username).Warn("Login failed: unknown user")
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: c.loginError("Wrong username or password")})
		case errors.Is(err, service.ErrInvalidCredentials):
			logrus.WithField("username", req.Username).Warn("Login failed: invalid credentials")
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: c.loginError("Incorrect username or password")})
		case errors.Is(err, service.ErrEmailNotConfirmed):
			logrus.WithField("username", req.Username).Warn("Login failed: email not confirmed")
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "Email not confirmed"})
		}
		logrus.WithError(err).WithField("username", req.Username).Error("Login failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithField("username", req.Username).Info("Login successful")
	return ctx.JSON(http.StatusOK, result)
}

func (c *UserAuthController) loginError(message string) string {
	if c.genericLoginErrors {
		return genericLoginError
	}
	return message
}

func (c *UserAuthController) RefreshToken(ctx echo.Context) error {
	req, err := types.NewRefreshTokenRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind refresh token request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Refresh token validation failed")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	logrus.Info("Refresh token request received")
	result, err := c.userAuthService.RefreshToken(ctx.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			logrus.WithError(err).Warn("Refresh token failed")
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "could not validate credentials"})
		}
		logrus.WithError(err).Error("Refresh token failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.Info("Refresh token successful")
	return ctx.JSON(http.StatusOK, result)
}

func (c *UserAuthController) Logout(ctx echo.Context) error {
	req, err := types.NewLogoutRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind logout request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Logout validation failed")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		logrus.Warn("Logout failed: missing user in context")
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "could not validate credentials"})
	}

	logrus.WithField("username", user.Username).Info("Logout request received")
	if err = c.userAuthService.Logout(ctx.Request().Context(), req); err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			logrus.WithError(err).WithField("username", user.Username).Warn("Logout failed")
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "could not validate credentials"})
		}
		logrus.WithError(err).WithField("username", user.Username).Error("Logout failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithField("username", user.Username).Info("Logout successful")
	return ctx.NoContent(http.StatusNoContent)
}

func (c *UserAuthController) ConfirmEmail(ctx echo.Context) error {
	req, err := types.NewConfirmEmailRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind confirm email request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Confirm email validation failed")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	logrus.Info("Confirm email request received")
	err = c.userAuthService.ConfirmEmail(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAccountAlreadyConfirmed):
			logrus.Warn("Confirm email failed: account already confirmed")
			return ctx.JSON(http.StatusConflict, dto.ErrorResponse{Error: "account is already confirmed"})
		case errors.Is(err, service.ErrUserNotFound):
			logrus.Warn("Confirm email failed: user not found")
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		case errors.Is(err, service.ErrUnauthorized):
			logrus.WithError(err).Warn("Confirm email failed: invalid token")
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid or expired token"})
		}
		logrus.WithError(err).Error("Confirm email failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.Info("Email confirmed")
	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "email confirmed successfully"})
}

func (c *UserAuthController) RequestEmailConfirmation(ctx echo.Context) error {
	req, err := types.NewRequestEmailRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind request email")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Request email validation failed")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("email", req.Email).Info("Confirmation email requested")
	result, err := c.userAuthService.RequestEmailConfirmation(ctx.Request().Context(), req)
	if err != nil {
		logrus.WithError(err).WithField("email", req.Email).Error("Request email failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, result)
}

func (c *UserAuthController) RequestPasswordReset(ctx echo.Context) error {
	req, err := types.NewRequestPasswordResetRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind request password reset")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Request password reset validation failed")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("email", req.Email).Info("Password reset requested")
	result, err := c.userAuthService.RequestPasswordReset(ctx.Request().Context(), req)
	if err != nil {
		logrus.WithError(err).WithField("email", req.Email).Error("Request password reset failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, result)
}

func (c *UserAuthController) ResetPassword(ctx echo.Context) error {
	req, err := types.NewResetPasswordRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind reset password request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Reset password validation failed")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	logrus.Info("Reset password request received")
	err = c.userAuthService.ResetPassword(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWeakPassword):
			logrus.Warn("Reset password failed: weak password")
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, service.ErrUserNotFound):
			logrus.Warn("Reset password failed: user not found")
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		case errors.Is(err, service.ErrUnauthorized):
			logrus.WithError(err).Warn("Reset password failed: invalid token")
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid or expired token"})
		}
		logrus.WithError(err).Error("Reset password failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.Info("Password reset successful")
	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "password reset successfully"})
}

func (c *UserAuthController) ChangePassword(ctx echo.Context) error {
	req, err := types.NewChangePasswordRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind change password request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Change password validation failed")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		logrus.Warn("Change password failed: missing user in context")
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "could not validate credentials"})
	}

	logrus.WithField("user_id", user.ID).Info("Change password request received")
	err = c.userAuthService.ChangePassword(ctx.Request().Context(), user.ID, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPasswordMismatch):
			logrus.WithField("user_id", user.ID).Warn("Change password failed: old password mismatch")
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "old password is incorrect"})
		case errors.Is(err, service.ErrWeakPassword):
			logrus.WithField("user_id", user.ID).Warn("Change password failed: weak password")
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, service.ErrUserNotFound):
			logrus.WithField("user_id", user.ID).Warn("Change password failed: user not found")
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		}
		logrus.WithError(err).WithField("user_id", user.ID).Error("Change password failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithField("user_id", user.ID).Info("Password changed")
	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "password changed successfully"})
}
