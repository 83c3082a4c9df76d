package controller

import (
	"errors"
	"net/http"

	"github.com/vibast-solutions/ms-go-contacts/app/dto"
	"github.com/vibast-solutions/ms-go-contacts/app/middleware"
	"github.com/vibast-solutions/ms-go-contacts/app/service"
	"github.com/vibast-solutions/ms-go-contacts/app/storage"
	"github.com/vibast-solutions/ms-go-contacts/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const avatarFormField = "file"

type UserController struct {
	userService    service.UserService
	maxAvatarBytes int64
}

func NewUserController(userService service.UserService, maxAvatarBytes int64) *UserController {
	return &UserController{userService: userService, maxAvatarBytes: maxAvatarBytes}
}

func (c *UserController) Me(ctx echo.Context) error {
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		return unauthorized(ctx)
	}

	return ctx.JSON(http.StatusOK, c.userService.Me(ctx.Request().Context(), user))
}

func (c *UserController) UpdateAvatar(ctx echo.Context) error {
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		return unauthorized(ctx)
	}

	file, err := ctx.FormFile(avatarFormField)
	if err != nil {
		logrus.WithError(err).Debug("Avatar upload without file")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "file is required"})
	}
	if c.maxAvatarBytes > 0 && file.Size > c.maxAvatarBytes {
		logrus.WithFields(logrus.Fields{
			"username": user.Username,
			"size":     file.Size,
		}).Warn("Avatar upload too large")
		return ctx.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Error: "file is too large"})
	}

	src, err := file.Open()
	if err != nil {
		logrus.WithError(err).Error("Failed to open uploaded avatar")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}
	defer src.Close()

	logrus.WithField("username", user.Username).Info("Avatar upload received")
	result, err := c.userService.UpdateAvatar(ctx.Request().Context(), user, src, file.Header.Get(echo.HeaderContentType))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedAvatar):
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, storage.ErrStorageDisabled):
			logrus.Warn("Avatar upload rejected: storage not configured")
			return ctx.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "avatar uploads are not available"})
		}
		logrus.WithError(err).WithField("username", user.Username).Error("Avatar upload failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithField("username", user.Username).Info("Avatar updated")
	return ctx.JSON(http.StatusOK, result)
}

func (c *UserController) UpdateRole(ctx echo.Context) error {
	req, err := types.NewUpdateRoleRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind update role request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	result, err := c.userService.SetRole(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		case service.IsValidation(err):
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		}
		logrus.WithError(err).WithField("username", req.Username).Error("Update role failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithFields(logrus.Fields{
		"username": result.Username,
		"role":     result.Role,
	}).Info("User role updated")
	return ctx.JSON(http.StatusOK, result)
}
