package types

import (
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-contacts/app/entity"

	"github.com/labstack/echo/v4"
)

type UserResponse struct {
	ID        uint64    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Avatar    *string   `json:"avatar"`
	Role      string    `json:"role"`
	Confirmed bool      `json:"confirmed"`
	CreatedAt time.Time `json:"created_at"`
}

func NewUserResponse(u *entity.User) *UserResponse {
	resp := &UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      string(u.Role),
		Confirmed: u.Confirmed,
		CreatedAt: u.CreatedAt,
	}
	if u.Avatar.Valid {
		avatar := u.Avatar.String
		resp.Avatar = &avatar
	}
	return resp
}

type UpdateRoleRequest struct {
	Username string `json:"-" param:"username"`
	Role     string `json:"role"`
}

func NewUpdateRoleRequestFromContext(ctx echo.Context) (*UpdateRoleRequest, error) {
	var body UpdateRoleRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Username = strings.TrimSpace(ctx.Param("username"))
	body.Role = strings.ToLower(strings.TrimSpace(body.Role))
	return &body, nil
}

func (r *UpdateRoleRequest) Validate() error {
	if r.Username == "" {
		return errors.New("username is required")
	}
	if !entity.Role(r.Role).Valid() {
		return errors.New("role must be one of: user, admin")
	}

	return nil
}
