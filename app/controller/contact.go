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

type ContactController struct {
	contactService service.ContactService
}

func NewContactController(contactService service.ContactService) *ContactController {
	return &ContactController{contactService: contactService}
}

func (c *ContactController) List(ctx echo.Context) error {
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		return unauthorized(ctx)
	}

	req, err := types.NewListContactsRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind list contacts request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid query parameters"})
	}
	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	result, err := c.contactService.List(ctx.Request().Context(), user.ID, req)
	if err != nil {
		return c.fail(ctx, user.ID, "List contacts", err)
	}

	return ctx.JSON(http.StatusOK, result)
}

// Search is List with a mandatory query.
func (c *ContactController) Search(ctx echo.Context) error {
	if ctx.QueryParam("query") == "" {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "query is required"})
	}

	return c.List(ctx)
}

func (c *ContactController) UpcomingBirthdays(ctx echo.Context) error {
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		return unauthorized(ctx)
	}

	req, err := types.NewUpcomingBirthdaysRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind upcoming birthdays request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid query parameters"})
	}
	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	result, err := c.contactService.UpcomingBirthdays(ctx.Request().Context(), user.ID, req.Days)
	if err != nil {
		return c.fail(ctx, user.ID, "Upcoming birthdays", err)
	}

	return ctx.JSON(http.StatusOK, result)
}

func (c *ContactController) Get(ctx echo.Context) error {
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		return unauthorized(ctx)
	}

	req, err := types.NewContactIDRequestFromContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	result, err := c.contactService.Get(ctx.Request().Context(), user.ID, req.ID)
	if err != nil {
		return c.fail(ctx, user.ID, "Get contact", err)
	}

	return ctx.JSON(http.StatusOK, result)
}

func (c *ContactController) Create(ctx echo.Context) error {
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		return unauthorized(ctx)
	}

	req, err := types.NewContactRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind create contact request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}
	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	result, err := c.contactService.Create(ctx.Request().Context(), user.ID, req)
	if err != nil {
		return c.fail(ctx, user.ID, "Create contact", err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    user.ID,
		"contact_id": result.ID,
	}).Info("Contact created")
	return ctx.JSON(http.StatusCreated, result)
}

func (c *ContactController) Update(ctx echo.Context) error {
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		return unauthorized(ctx)
	}

	req, err := types.NewContactRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind update contact request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}
	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	result, err := c.contactService.Update(ctx.Request().Context(), user.ID, req)
	if err != nil {
		return c.fail(ctx, user.ID, "Update contact", err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    user.ID,
		"contact_id": result.ID,
	}).Info("Contact updated")
	return ctx.JSON(http.StatusOK, result)
}

func (c *ContactController) Delete(ctx echo.Context) error {
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		return unauthorized(ctx)
	}

	req, err := types.NewContactIDRequestFromContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	if err = c.contactService.Delete(ctx.Request().Context(), user.ID, req.ID); err != nil {
		return c.fail(ctx, user.ID, "Delete contact", err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    user.ID,
		"contact_id": req.ID,
	}).Info("Contact deleted")
	return ctx.NoContent(http.StatusNoContent)
}

func (c *ContactController) fail(ctx echo.Context, userID uint64, action string, err error) error {
	if errors.Is(err, service.ErrContactNotFound) {
		return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "contact not found"})
	}
	logrus.WithError(err).WithField("user_id", userID).Error(action + " failed")
	return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
}

func unauthorized(ctx echo.Context) error {
	return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "could not validate credentials"})
}
