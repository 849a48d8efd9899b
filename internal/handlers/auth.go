package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/vandalsquat/backend/internal/middleware"
	"github.com/vandalsquat/backend/internal/models"
	"github.com/vandalsquat/backend/internal/services"
	"github.com/vandalsquat/backend/pkg/logger"
	"github.com/vandalsquat/backend/pkg/utils"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB    *gorm.DB
	Login *services.LoginService
}

func NewAuthHandler(db *gorm.DB, login *services.LoginService) *AuthHandler {
	return &AuthHandler{DB: db, Login: login}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	username := services.NormalizeUsername(req.Username)
	if !isValidUsername(username) {
		return utils.Error(c, fiber.StatusBadRequest, "username must be 3-20 characters of letters, numbers, and underscores")
	}
	if len(req.Password) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}

	var existing models.User
	if err := h.DB.First(&existing, "username = ?", username).Error; err == nil {
		return utils.Error(c, fiber.StatusConflict, "username already taken")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		Username:     username,
		PasswordHash: hash,
		Role:         models.UserRoleUser,
	}
	if email := strings.TrimSpace(strings.ToLower(req.Email)); email != "" {
		user.Email = &email
	}

	if err := h.DB.Create(&user).Error; err != nil {
		return utils.Error(c, fiber.StatusConflict, "failed to create user")
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id":  user.ID.String(),
		"username": user.Username,
	})

	return utils.Success(c, fiber.StatusCreated, fiber.Map{"user": user})
}

type loginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DeviceToken string `json:"deviceToken"`
}

func (h *AuthHandler) LoginUser(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Username == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "username and password are required")
	}

	result, err := h.Login.SubmitCredentials(req.Username, req.Password, req.DeviceToken)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			return utils.Error(c, fiber.StatusUnauthorized, "invalid username or password")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "login failed")
	}

	if result.Status == services.StatusPendingSecondFactor {
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"secondFactorRequired": true,
			"challengeToken":       result.ChallengeToken,
		})
	}

	token, err := utils.GenerateToken(result.User)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"token": token,
		"user":  result.User,
	})
}

type verifySecondFactorRequest struct {
	ChallengeToken string `json:"challengeToken"`
	Code           string `json:"code"`
	RememberDevice bool   `json:"rememberDevice"`
}

func (h *AuthHandler) VerifySecondFactor(c *fiber.Ctx) error {
	var req verifySecondFactorRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.ChallengeToken == "" || req.Code == "" {
		return utils.Error(c, fiber.StatusBadRequest, "challengeToken and code are required")
	}

	result, err := h.Login.SubmitSecondFactor(req.ChallengeToken, req.Code, req.RememberDevice, clientMeta(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionExpiredOrMissing):
			return utils.Error(c, fiber.StatusUnauthorized, "challenge expired or already used")
		case errors.Is(err, services.ErrInvalidOTPCode):
			return utils.Error(c, fiber.StatusUnauthorized, "invalid one-time code")
		default:
			return utils.Error(c, fiber.StatusInternalServerError, "second factor verification failed")
		}
	}

	token, err := utils.GenerateToken(result.User)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	response := fiber.Map{
		"token": token,
		"user":  result.User,
	}
	if result.Device != nil {
		response["deviceToken"] = result.Device.Token
	}

	return utils.Success(c, fiber.StatusOK, response)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	h.Login.Logout(user)
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "logged out"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"user": user})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if !utils.CheckPassword(req.CurrentPassword, user.PasswordHash) {
		return utils.Error(c, fiber.StatusBadRequest, "current password is incorrect")
	}
	if len(req.NewPassword) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	if err := h.DB.Model(user).Update("password_hash", hash).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to update password")
	}

	logger.Info("password_changed", map[string]interface{}{
		"user_id": user.ID.String(),
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password updated"})
}

type updateEmailRequest struct {
	CurrentPassword string `json:"currentPassword"`
	Email           string `json:"email"`
}

func (h *AuthHandler) UpdateEmail(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if !utils.CheckPassword(req.CurrentPassword, user.PasswordHash) {
		return utils.Error(c, fiber.StatusBadRequest, "current password is incorrect")
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	var value *string
	if email != "" {
		value = &email
	}

	if err := h.DB.Model(user).Update("email", value).Error; err != nil {
		return utils.Error(c, fiber.StatusConflict, "failed to update email")
	}

	user.Email = value
	return utils.Success(c, fiber.StatusOK, fiber.Map{"user": user})
}

type deleteAccountRequest struct {
	Password string `json:"password"`
}

func (h *AuthHandler) DeleteAccount(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req deleteAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		return utils.Error(c, fiber.StatusBadRequest, "incorrect password, account not deleted")
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.TrustedDevice{}, "user_id = ?", user.ID).Error; err != nil {
			return err
		}
		return tx.Delete(user).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to delete account")
	}

	logger.Info("account_deleted", map[string]interface{}{
		"user_id": user.ID.String(),
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "account deleted"})
}
