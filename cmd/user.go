package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vibast-solutions/ms-go-contacts/app/repository"
	"github.com/vibast-solutions/ms-go-contacts/app/service"
	"github.com/vibast-solutions/ms-go-contacts/app/types"
	"github.com/vibast-solutions/ms-go-contacts/config"

	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userSetRoleCmd = &cobra.Command{
	Use:   "set-role <username> <role>",
	Short: "Change the role of a user (user or admin)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userService, closeFn, err := newUserServiceForCommands(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		req := &types.UpdateRoleRequest{
			Username: strings.TrimSpace(args[0]),
			Role:     strings.ToLower(strings.TrimSpace(args[1])),
		}
		if err = req.Validate(); err != nil {
			return err
		}

		user, err := userService.SetRole(cmd.Context(), req)
		if err != nil {
			if errors.Is(err, service.ErrUserNotFound) {
				return fmt.Errorf("user %q does not exist", req.Username)
			}
			return err
		}

		fmt.Printf("username: %s\n", user.Username)
		fmt.Printf("role: %s\n", user.Role)
		return nil
	},
}

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage refresh tokens",
}

var tokensRevokeUserCmd = &cobra.Command{
	Use:   "revoke-user <username>",
	Short: "Revoke every active refresh token of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userService, closeFn, err := newUserServiceForCommands(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		username := strings.TrimSpace(args[0])
		count, err := userService.RevokeSessions(cmd.Context(), username)
		if err != nil {
			if errors.Is(err, service.ErrUserNotFound) {
				return fmt.Errorf("user %q does not exist", username)
			}
			return err
		}

		fmt.Printf("revoked %d active refresh token(s) for user %s\n", count, username)
		return nil
	},
}

func init() {
	userCmd.AddCommand(userSetRoleCmd)
	tokensCmd.AddCommand(tokensRevokeUserCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(tokensCmd)
}

func newUserServiceForCommands(ctx context.Context) (service.UserService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err = configureLogging(cfg); err != nil {
		return nil, nil, err
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	sessionCache, redisClient := newCache(cfg)

	userService := service.NewUserService(
		repository.NewUserRepository(db),
		repository.NewRefreshTokenRepository(db),
		sessionCache,
		nil,
	)

	closeFn := func() {
		redisClient.Close()
		db.Close()
	}
	return userService, closeFn, nil
}
