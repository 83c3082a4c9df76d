package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/vibast-solutions/ms-go-contacts/app/dto"
	"github.com/vibast-solutions/ms-go-contacts/app/entity"
	"github.com/vibast-solutions/ms-go-contacts/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	ContextUserKey        = "user"
	ContextAccessTokenKey = "access_token"
)

type accessTokenAuthenticator interface {
	IsAuthenticated(ctx context.Context, accessToken string) (*entity.User, error)
}

type AuthMiddleware struct {
	authService accessTokenAuthenticator
}

func NewAuthMiddleware(authService accessTokenAuthenticator) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			logrus.Debug("Missing authorization header")
			return c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "missing authorization header"})
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			logrus.Debug("Invalid authorization header format")
			return c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid authorization header format"})
		}

		tokenString := parts[1]
		user, err := m.authService.IsAuthenticated(c.Request().Context(), tokenString)
		if err != nil {
			if errors.Is(err, service.ErrUnauthorized) {
				logrus.WithError(err).Debug("Access token rejected")
				return c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "could not validate credentials"})
			}
			logrus.WithError(err).Error("Access token check failed")
			return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
		}

		c.Set(ContextUserKey, user)
		c.Set(ContextAccessTokenKey, tokenString)

		return next(c)
	}
}

// RequireAdmin must run after RequireAuth.
func (m *AuthMiddleware) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := CurrentUser(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "could not validate credentials"})
		}
		if user.Role != entity.RoleAdmin {
			logrus.WithField("username", user.Username).Warn("Admin route denied")
			return c.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "insufficient permissions"})
		}

		return next(c)
	}
}

func CurrentUser(c echo.Context) (*entity.User, bool) {
	user, ok := c.Get(ContextUserKey).(*entity.User)
	return user, ok && user != nil
}
