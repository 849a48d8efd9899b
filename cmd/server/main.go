package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/vandalsquat/backend/internal/config"
	"github.com/vandalsquat/backend/internal/database"
	"github.com/vandalsquat/backend/internal/handlers"
	"github.com/vandalsquat/backend/internal/middleware"
	"github.com/vandalsquat/backend/internal/services"
	"github.com/vandalsquat/backend/pkg/logger"
	"github.com/vandalsquat/backend/pkg/utils"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	credentialService := services.NewCredentialService(db)
	otpService := services.NewOTPService(db, cfg.Auth.Issuer)
	deviceService := services.NewDeviceTrustService(db, cfg.Auth.TrustedDeviceLimit, cfg.Auth.TrustedDeviceTTL)
	loginService := services.NewLoginService(db, credentialService, otpService, deviceService)

	authHandler := handlers.NewAuthHandler(db, loginService)
	twoFactorHandler := handlers.NewTwoFactorHandler(db, otpService)
	devicesHandler := handlers.NewDevicesHandler(deviceService)
	usersHandler := handlers.NewUsersHandler(db)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.LoginUser)
	authRoutes.Post("/login/second-factor", authHandler.VerifySecondFactor)
	authRoutes.Post("/logout", authMiddleware.RequireAuth, authHandler.Logout)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)
	authRoutes.Put("/email", authMiddleware.RequireAuth, authHandler.UpdateEmail)
	authRoutes.Delete("/account", authMiddleware.RequireAuth, authHandler.DeleteAccount)

	twoFactorRoutes := api.Group("/auth/two-factor", authMiddleware.RequireAuth)
	twoFactorRoutes.Get("/status", twoFactorHandler.Status)
	twoFactorRoutes.Post("/enable", twoFactorHandler.Enable)
	twoFactorRoutes.Post("/verify-setup", twoFactorHandler.VerifySetup)
	twoFactorRoutes.Post("/disable", twoFactorHandler.Disable)
	twoFactorRoutes.Post("/backup-codes", twoFactorHandler.RegenerateBackupCodes)

	deviceRoutes := api.Group("/auth/devices", authMiddleware.RequireAuth)
	deviceRoutes.Get("/", devicesHandler.List)
	deviceRoutes.Delete("/:id", devicesHandler.Revoke)
	deviceRoutes.Delete("/", devicesHandler.RevokeAll)

	userRoutes := api.Group("/users", authMiddleware.RequireAuth, middleware.AdminOnly)
	userRoutes.Get("/", usersHandler.List)
	userRoutes.Get("/:id", usersHandler.Get)
	userRoutes.Delete("/:id", usersHandler.Delete)

	go runSweeper(deviceService, cfg.Auth.SweepInterval)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}

// runSweeper lazily purges expired trusted-device records and consumed
// challenge-token ids. Expired records are already inert; this only bounds
// storage growth.
func runSweeper(devices *services.DeviceTrustService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		utils.CleanupExpiredJTIs()
		if purged, err := devices.DeleteExpired(); err != nil {
			logger.Error("device_sweep_failed", map[string]interface{}{
				"error": err.Error(),
			})
		} else if purged > 0 {
			logger.Info("expired_devices_purged", map[string]interface{}{
				"count": purged,
			})
		}
	}
}
