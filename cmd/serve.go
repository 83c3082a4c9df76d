package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-contacts/app/controller"
	contactsgrpc "github.com/vibast-solutions/ms-go-contacts/app/grpc"
	"github.com/vibast-solutions/ms-go-contacts/app/middleware"
	"github.com/vibast-solutions/ms-go-contacts/app/repository"
	"github.com/vibast-solutions/ms-go-contacts/app/security"
	"github.com/vibast-solutions/ms-go-contacts/app/service"
	"github.com/vibast-solutions/ms-go-contacts/config"

	"github.com/awnumar/memguard"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthCheckInterval = 15 * time.Second
	shutdownTimeout     = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  `Start both HTTP (Echo) and gRPC servers for the contacts service.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type application struct {
	userAuth service.UserAuthService
	users    service.UserService
	contacts service.ContactService
	cfg      *config.Config
}

func runServe(_ *cobra.Command, _ []string) {
	defer memguard.Purge()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	sessionCache, redisClient := newCache(cfg)
	defer redisClient.Close()

	codec, err := security.NewTokenCodec(cfg.JWT.Secret)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize token codec")
	}

	mailer := newMailer(cfg)
	defer mailer.Close()

	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	contactRepo := repository.NewContactRepository(sqlx.NewDb(db, "mysql"))

	app := &application{
		userAuth: service.NewUserAuthService(db, userRepo, refreshTokenRepo, sessionCache, security.NewBcryptHasher(0), codec, mailer, cfg),
		users:    service.NewUserService(userRepo, refreshTokenRepo, sessionCache, newAvatarStorage(ctx, cfg)),
		contacts: service.NewContactService(contactRepo),
		cfg:      cfg,
	}

	healthServer := health.NewServer()
	reporter := contactsgrpc.NewHealthReporter(healthServer, map[string]contactsgrpc.Check{
		"mysql": db.PingContext,
		"redis": func(ctx context.Context) error {
			return redisClient.WithContext(ctx).Ping().Err()
		},
	})
	go reporter.Run(ctx, healthCheckInterval)

	grpcServer := newGRPCServer(app, healthServer)
	go startGRPCServer(cfg, grpcServer)

	e := newHTTPServer(app)
	go startHTTPServer(cfg, e)

	<-ctx.Done()
	logrus.Info("Shutting down")

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("HTTP server shutdown failed")
	}
	grpcServer.GracefulStop()
	logrus.Info("Servers stopped")
}

func newHTTPServer(app *application) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	registerRoutes(e, app)
	return e
}

func registerRoutes(e *echo.Echo, app *application) {
	authController := controller.NewUserAuthController(app.userAuth, app.cfg.Auth.GenericLoginErrors)
	userController := controller.NewUserController(app.users, app.cfg.Avatar.MaxBytes)
	contactController := controller.NewContactController(app.contacts)
	authMiddleware := middleware.NewAuthMiddleware(app.userAuth)

	auth := e.Group("/auth")
	auth.POST("/register", authController.Register)
	auth.POST("/login", authController.Login)
	auth.POST("/refresh-token", authController.RefreshToken)
	auth.POST("/confirm-email", authController.ConfirmEmail)
	auth.POST("/request-email", authController.RequestEmailConfirmation)
	auth.POST("/request-password-reset", authController.RequestPasswordReset)
	auth.POST("/reset-password", authController.ResetPassword)

	authProtected := auth.Group("", authMiddleware.RequireAuth)
	authProtected.POST("/logout", authController.Logout)
	authProtected.POST("/change-password", authController.ChangePassword)

	users := e.Group("/users", authMiddleware.RequireAuth)
	users.GET("/me", userController.Me)
	users.PATCH("/avatar", userController.UpdateAvatar, echomiddleware.BodyLimit(bodyLimit(app.cfg.Avatar.MaxBytes)))
	users.PATCH("/:username/role", userController.UpdateRole, authMiddleware.RequireAdmin)

	contacts := e.Group("/contacts", authMiddleware.RequireAuth)
	contacts.GET("", contactController.List)
	contacts.POST("", contactController.Create)
	contacts.GET("/search", contactController.Search)
	contacts.GET("/upcoming-birthdays", contactController.UpcomingBirthdays)
	contacts.GET("/:id", contactController.Get)
	contacts.PUT("/:id", contactController.Update)
	contacts.DELETE("/:id", contactController.Delete)
}

// bodyLimit leaves headroom over the file size for the multipart envelope.
func bodyLimit(maxFileBytes int64) string {
	const envelope = 64 << 10
	return fmt.Sprintf("%dK", (maxFileBytes+envelope)>>10)
}

func startHTTPServer(cfg *config.Config, e *echo.Echo) {
	httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
	logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
	if err := e.Start(httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithError(err).Fatal("Failed to start HTTP server")
	}
}

func newGRPCServer(app *application, healthServer *health.Server) *grpc.Server {
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(contactsgrpc.LoggingUnaryInterceptor()))
	contactsgrpc.RegisterSessionServer(grpcServer, contactsgrpc.NewSessionServer(app.userAuth))
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	return grpcServer
}

func startGRPCServer(cfg *config.Config, grpcServer *grpc.Server) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	logrus.WithField("addr", grpcAddr).Info("Starting gRPC server")
	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logrus.WithError(err).Fatal("Failed to start gRPC server")
	}
}
