package services

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/vandalsquat/backend/internal/models"
	"github.com/vandalsquat/backend/pkg/logger"
	"github.com/vandalsquat/backend/pkg/utils"
	"gorm.io/gorm"
)

const (
	totpPeriod = 30
	totpSkew   = 1

	backupCodeCount = 10
	backupCodeBytes = 4
)

// ProvisioningMaterial is returned exactly once, when the second factor is
// enabled or backup codes are regenerated. The plaintext codes are never
// recoverable afterwards; only bcrypt hashes are stored.
type ProvisioningMaterial struct {
	Secret      string   `json:"secret"`
	URI         string   `json:"uri"`
	BackupCodes []string `json:"backupCodes"`
}

type OTPService struct {
	DB     *gorm.DB
	Issuer string
	locks  *userLocks
}

func NewOTPService(db *gorm.DB, issuer string) *OTPService {
	return &OTPService{DB: db, Issuer: issuer, locks: newUserLocks()}
}

// GenerateSecret produces a fresh base32-encoded TOTP secret and the otpauth
// URI external authenticator apps consume.
func (s *OTPService) GenerateSecret(accountName string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: accountName,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("generating TOTP secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// ProvisioningURI rebuilds the otpauth URI for an already stored secret.
func (s *OTPService) ProvisioningURI(secret, accountName string) string {
	params := url.Values{}
	params.Set("secret", secret)
	params.Set("issuer", s.Issuer)
	params.Set("algorithm", "SHA1")
	params.Set("digits", "6")
	params.Set("period", fmt.Sprintf("%d", totpPeriod))

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + s.Issuer + ":" + accountName,
		RawQuery: params.Encode(),
	}
	return u.String()
}

// VerifyTOTP reports whether code matches the secret at any step within the
// drift window (one 30s step each side of at). Pure; comparison is constant
// time inside the otp library.
func (s *OTPService) VerifyTOTP(secret, code string, at time.Time) bool {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// Enable turns the second factor on for a user: a fresh secret, a fresh
// backup-code set, and the enabled flag are written in a single update so no
// partial state is ever observable. Any prior secret or codes are replaced.
func (s *OTPService) Enable(user *models.User) (*ProvisioningMaterial, error) {
	unlock := s.locks.Lock(user.ID)
	defer unlock()

	secret, uri, err := s.GenerateSecret(user.Username)
	if err != nil {
		return nil, err
	}

	codes, hashedJSON, err := generateBackupCodes(backupCodeCount)
	if err != nil {
		return nil, err
	}

	if err := s.DB.Model(user).Updates(map[string]interface{}{
		"otp_secret":        secret,
		"otp_enabled":       true,
		"otp_backup_codes":  hashedJSON,
		"backup_code_count": len(codes),
	}).Error; err != nil {
		return nil, fmt.Errorf("enabling second factor: %w", err)
	}

	user.OTPSecret = secret
	user.OTPEnabled = true
	user.OTPBackupCodes = hashedJSON
	user.BackupCodeCount = len(codes)

	logger.Info("two_factor_enabled", map[string]interface{}{
		"user_id": user.ID.String(),
	})

	return &ProvisioningMaterial{Secret: secret, URI: uri, BackupCodes: codes}, nil
}

// Disable clears the secret, backup codes, and enabled flag together.
func (s *OTPService) Disable(user *models.User) error {
	unlock := s.locks.Lock(user.ID)
	defer unlock()

	if err := s.DB.Model(user).Updates(map[string]interface{}{
		"otp_secret":        "",
		"otp_enabled":       false,
		"otp_backup_codes":  "",
		"backup_code_count": 0,
	}).Error; err != nil {
		return fmt.Errorf("disabling second factor: %w", err)
	}

	user.OTPSecret = ""
	user.OTPEnabled = false
	user.OTPBackupCodes = ""
	user.BackupCodeCount = 0

	logger.Info("two_factor_disabled", map[string]interface{}{
		"user_id": user.ID.String(),
	})
	return nil
}

// RegenerateBackupCodes replaces the user's backup-code set and returns the
// new plaintext codes for one-time display.
func (s *OTPService) RegenerateBackupCodes(user *models.User) ([]string, error) {
	unlock := s.locks.Lock(user.ID)
	defer unlock()

	codes, hashedJSON, err := generateBackupCodes(backupCodeCount)
	if err != nil {
		return nil, err
	}

	if err := s.DB.Model(user).Updates(map[string]interface{}{
		"otp_backup_codes":  hashedJSON,
		"backup_code_count": len(codes),
	}).Error; err != nil {
		return nil, fmt.Errorf("storing backup codes: %w", err)
	}

	user.OTPBackupCodes = hashedJSON
	user.BackupCodeCount = len(codes)

	logger.Info("backup_codes_regenerated", map[string]interface{}{
		"user_id": user.ID.String(),
	})
	return codes, nil
}

// VerifyAndConsumeBackupCode checks the submitted code against the user's
// unused backup codes and, on a match, removes it and persists the shrunken
// set in the same transaction. Strictly one-time use: the per-user lock keeps
// two concurrent submissions of the same code from both succeeding.
func (s *OTPService) VerifyAndConsumeBackupCode(user *models.User, submitted string) (bool, error) {
	unlock := s.locks.Lock(user.ID)
	defer unlock()

	submitted = strings.ToUpper(strings.TrimSpace(submitted))
	if submitted == "" {
		return false, nil
	}

	matched := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var fresh models.User
		if err := tx.First(&fresh, "id = ?", user.ID).Error; err != nil {
			return fmt.Errorf("loading user: %w", err)
		}
		if fresh.OTPBackupCodes == "" {
			return nil
		}

		var hashes []string
		if err := json.Unmarshal([]byte(fresh.OTPBackupCodes), &hashes); err != nil {
			return fmt.Errorf("decoding backup codes: %w", err)
		}

		matchIndex := -1
		for i, hash := range hashes {
			if utils.CheckPassword(submitted, hash) {
				matchIndex = i
				break
			}
		}
		if matchIndex == -1 {
			return nil
		}

		hashes = append(hashes[:matchIndex], hashes[matchIndex+1:]...)
		updated, err := json.Marshal(hashes)
		if err != nil {
			return fmt.Errorf("encoding backup codes: %w", err)
		}
		if err := tx.Model(&fresh).Updates(map[string]interface{}{
			"otp_backup_codes":  string(updated),
			"backup_code_count": len(hashes),
		}).Error; err != nil {
			return fmt.Errorf("consuming backup code: %w", err)
		}

		matched = true
		user.OTPBackupCodes = string(updated)
		user.BackupCodeCount = len(hashes)
		return nil
	})
	if err != nil {
		return false, err
	}

	if matched {
		logger.Info("backup_code_consumed", map[string]interface{}{
			"user_id":   user.ID.String(),
			"remaining": user.BackupCodeCount,
		})
	}
	return matched, nil
}

// generateBackupCodes draws count codes from crypto/rand, rendered as 8
// uppercase hex characters and unique within the batch. Returns the plaintext
// codes and the JSON-encoded bcrypt hashes to store.
func generateBackupCodes(count int) ([]string, string, error) {
	codes := make([]string, 0, count)
	hashes := make([]string, 0, count)
	seen := make(map[string]bool, count)

	for len(codes) < count {
		b := make([]byte, backupCodeBytes)
		if _, err := rand.Read(b); err != nil {
			return nil, "", fmt.Errorf("generating backup code: %w", err)
		}
		code := strings.ToUpper(hex.EncodeToString(b))
		if seen[code] {
			continue
		}
		seen[code] = true

		hash, err := utils.HashPassword(code)
		if err != nil {
			return nil, "", fmt.Errorf("hashing backup code: %w", err)
		}
		codes = append(codes, code)
		hashes = append(hashes, hash)
	}

	encoded, err := json.Marshal(hashes)
	if err != nil {
		return nil, "", fmt.Errorf("encoding backup codes: %w", err)
	}
	return codes, string(encoded), nil
}
