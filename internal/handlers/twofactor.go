package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/vandalsquat/backend/internal/middleware"
	"github.com/vandalsquat/backend/internal/services"
	"github.com/vandalsquat/backend/pkg/utils"
	"gorm.io/gorm"
)

type TwoFactorHandler struct {
	DB  *gorm.DB
	OTP *services.OTPService
}

func NewTwoFactorHandler(db *gorm.DB, otp *services.OTPService) *TwoFactorHandler {
	return &TwoFactorHandler{DB: db, OTP: otp}
}

func (h *TwoFactorHandler) Status(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"otpEnabled":           user.OTPEnabled,
		"backupCodesRemaining": user.BackupCodeCount,
	})
}

// Enable turns the second factor on and returns the provisioning material:
// the otpauth URI (for the caller to render as a QR code) and the plaintext
// backup codes. Both are shown exactly once.
func (h *TwoFactorHandler) Enable(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	if user.OTPEnabled {
		return utils.Error(c, fiber.StatusConflict, "two-factor authentication is already enabled")
	}

	material, err := h.OTP.Enable(user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to enable two-factor authentication")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"secret":      material.Secret,
		"uri":         material.URI,
		"backupCodes": material.BackupCodes,
	})
}

type verifySetupRequest struct {
	Code string `json:"code"`
}

// VerifySetup lets the user confirm their authenticator app produces valid
// codes right after enabling. It never consumes backup codes.
func (h *TwoFactorHandler) VerifySetup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req verifySetupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if !user.OTPEnabled {
		return utils.Error(c, fiber.StatusBadRequest, "two-factor authentication is not enabled")
	}

	if !h.OTP.VerifyTOTP(user.OTPSecret, req.Code, time.Now()) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid code")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"verified": true})
}

type disableTwoFactorRequest struct {
	Password string `json:"password"`
}

func (h *TwoFactorHandler) Disable(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req disableTwoFactorRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		return utils.Error(c, fiber.StatusBadRequest, "incorrect password")
	}

	if err := h.OTP.Disable(user); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to disable two-factor authentication")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "two-factor authentication disabled"})
}

type regenerateBackupCodesRequest struct {
	Password string `json:"password"`
}

func (h *TwoFactorHandler) RegenerateBackupCodes(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req regenerateBackupCodesRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if !user.OTPEnabled {
		return utils.Error(c, fiber.StatusBadRequest, "two-factor authentication is not enabled")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		return utils.Error(c, fiber.StatusBadRequest, "incorrect password")
	}

	codes, err := h.OTP.RegenerateBackupCodes(user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to regenerate backup codes")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"backupCodes": codes})
}
