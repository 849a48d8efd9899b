package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/vandalsquat/backend/internal/models"
	"github.com/vandalsquat/backend/pkg/logger"
	"github.com/vandalsquat/backend/pkg/utils"
	"gorm.io/gorm"
)

type AuthStatus string

const (
	StatusAuthenticated       AuthStatus = "authenticated"
	StatusPendingSecondFactor AuthStatus = "pending_second_factor"
)

// AuthResult is the outcome of a credential submission. Exactly one of User
// (StatusAuthenticated) or ChallengeToken (StatusPendingSecondFactor) is set;
// rejections are returned as errors.
type AuthResult struct {
	Status         AuthStatus
	User           *models.User
	ChallengeToken string
}

// SecondFactorResult is the outcome of a successful second-factor submission.
// Device is non-nil only when the caller asked to remember the device; its
// Token is for the client to persist as an opaque value.
type SecondFactorResult struct {
	User   *models.User
	Device *models.TrustedDevice
}

// LoginService drives the login flow: password check, then either direct
// authentication, a trusted-device bypass, or a pending second factor
// embodied in a short-lived one-time challenge token.
type LoginService struct {
	DB          *gorm.DB
	Credentials *CredentialService
	OTP         *OTPService
	Devices     *DeviceTrustService
}

func NewLoginService(db *gorm.DB, credentials *CredentialService, otp *OTPService, devices *DeviceTrustService) *LoginService {
	return &LoginService{DB: db, Credentials: credentials, OTP: otp, Devices: devices}
}

// SubmitCredentials verifies the password and decides whether a second factor
// is owed. deviceToken may be empty; an unrecognized or expired token simply
// means "no trusted device".
func (s *LoginService) SubmitCredentials(username, password, deviceToken string) (*AuthResult, error) {
	user, err := s.Credentials.Verify(username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			logger.Warn("login_failed", map[string]interface{}{
				"username": NormalizeUsername(username),
			})
		}
		return nil, err
	}

	if !user.OTPEnabled {
		logger.Info("login_succeeded", map[string]interface{}{
			"user_id": user.ID.String(),
		})
		return &AuthResult{Status: StatusAuthenticated, User: user}, nil
	}

	if deviceToken != "" {
		device, err := s.Devices.Recognize(user, deviceToken)
		if err != nil {
			return nil, err
		}
		if device != nil {
			logger.Info("login_trusted_device", map[string]interface{}{
				"user_id":   user.ID.String(),
				"device_id": device.ID.String(),
			})
			return &AuthResult{Status: StatusAuthenticated, User: user}, nil
		}
	}

	challenge, err := utils.GenerateChallengeToken(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("generating challenge token: %w", err)
	}

	logger.Info("login_second_factor_required", map[string]interface{}{
		"user_id": user.ID.String(),
	})
	return &AuthResult{Status: StatusPendingSecondFactor, ChallengeToken: challenge}, nil
}

// SubmitSecondFactor completes a pending login. The code is tried as a TOTP
// code first, then as a backup code (consuming it). On failure the challenge
// token stays valid so the user can retry until it expires; it is consumed
// only on success.
func (s *LoginService) SubmitSecondFactor(challengeToken, code string, rememberDevice bool, meta ClientMeta) (*SecondFactorResult, error) {
	claims, err := utils.ValidateChallengeToken(challengeToken)
	if err != nil {
		return nil, ErrSessionExpiredOrMissing
	}
	if !utils.IsJTIValid(claims.JTI) {
		return nil, ErrSessionExpiredOrMissing
	}

	var user models.User
	if err := s.DB.First(&user, "id = ?", claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionExpiredOrMissing
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if user.OTPEnabled {
		ok := s.OTP.VerifyTOTP(user.OTPSecret, code, time.Now())
		if !ok {
			ok, err = s.OTP.VerifyAndConsumeBackupCode(&user, code)
			if err != nil {
				return nil, err
			}
		}
		if !ok {
			logger.Warn("second_factor_failed", map[string]interface{}{
				"user_id": user.ID.String(),
			})
			return nil, ErrInvalidOTPCode
		}
	}

	utils.ConsumeJTI(claims.JTI)

	result := &SecondFactorResult{User: &user}
	if rememberDevice {
		device, err := s.Devices.Issue(&user, meta)
		if err != nil {
			return nil, err
		}
		result.Device = device
	}

	logger.Info("login_second_factor_succeeded", map[string]interface{}{
		"user_id":           user.ID.String(),
		"device_remembered": rememberDevice,
	})
	return result, nil
}

// Logout is client-side for session tokens; the trusted-device record is
// deliberately left in place so the device stays trusted for future logins.
// Callers wanting full revocation use the device endpoints.
func (s *LoginService) Logout(user *models.User) {
	logger.Info("logout", map[string]interface{}{
		"user_id": user.ID.String(),
	})
}
