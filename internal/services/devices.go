package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vandalsquat/backend/internal/models"
	"github.com/vandalsquat/backend/pkg/logger"
	"gorm.io/gorm"
)

const deviceTokenBytes = 32

// ClientMeta is advisory request metadata used only for the human-readable
// device description, never for authorization.
type ClientMeta struct {
	UserAgent string
	IPAddress string
}

type DeviceTrustService struct {
	DB     *gorm.DB
	Limit  int
	Window time.Duration
	locks  *userLocks
}

func NewDeviceTrustService(db *gorm.DB, limit int, window time.Duration) *DeviceTrustService {
	return &DeviceTrustService{DB: db, Limit: limit, Window: window, locks: newUserLocks()}
}

// Recognize returns the user's active device exactly matching token, touching
// its last-used time. Expired devices and other users' tokens never match.
// A nil device with nil error means "not trusted".
func (s *DeviceTrustService) Recognize(user *models.User, token string) (*models.TrustedDevice, error) {
	if token == "" {
		return nil, nil
	}

	var device models.TrustedDevice
	err := s.DB.First(&device, "token = ? AND user_id = ? AND expires_at > ?", token, user.ID, time.Now()).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up trusted device: %w", err)
	}

	device.LastUsedAt = time.Now()
	if err := s.DB.Model(&device).Update("last_used_at", device.LastUsedAt).Error; err != nil {
		return nil, fmt.Errorf("touching trusted device: %w", err)
	}

	return &device, nil
}

// Issue creates a trusted device for the user, evicting the least-recently
// used active device first when the user is at the cap. Count, eviction, and
// insert run inside one transaction under the per-user lock, so concurrent
// logins cannot push the active count past the limit.
func (s *DeviceTrustService) Issue(user *models.User, meta ClientMeta) (*models.TrustedDevice, error) {
	unlock := s.locks.Lock(user.ID)
	defer unlock()

	token, err := newDeviceToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	device := &models.TrustedDevice{
		UserID:     user.ID,
		Token:      token,
		ExpiresAt:  now.Add(s.Window),
		LastUsedAt: now,
		UserAgent:  meta.UserAgent,
		IPAddress:  meta.IPAddress,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var active []models.TrustedDevice
		if err := tx.
			Where("user_id = ? AND expires_at > ?", user.ID, now).
			Order("last_used_at ASC, created_at ASC").
			Find(&active).Error; err != nil {
			return fmt.Errorf("counting active devices: %w", err)
		}

		if len(active) >= s.Limit {
			evict := active[:len(active)-s.Limit+1]
			for i := range evict {
				if err := tx.Delete(&evict[i]).Error; err != nil {
					return fmt.Errorf("evicting trusted device: %w", err)
				}
				logger.Info("trusted_device_evicted", map[string]interface{}{
					"user_id":   user.ID.String(),
					"device_id": evict[i].ID.String(),
				})
			}
		}

		if err := tx.Create(device).Error; err != nil {
			return fmt.Errorf("creating trusted device: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("trusted_device_issued", map[string]interface{}{
		"user_id":     user.ID.String(),
		"device_id":   device.ID.String(),
		"description": DescribeUserAgent(meta.UserAgent).String(),
	})
	return device, nil
}

// List returns all of the user's devices, most recently used first. Expired
// records are included; callers can display them as inactive.
func (s *DeviceTrustService) List(user *models.User) ([]models.TrustedDevice, error) {
	var devices []models.TrustedDevice
	err := s.DB.
		Where("user_id = ?", user.ID).
		Order("last_used_at DESC").
		Find(&devices).Error
	if err != nil {
		return nil, fmt.Errorf("listing trusted devices: %w", err)
	}
	return devices, nil
}

// Revoke deletes one of the user's devices by id.
func (s *DeviceTrustService) Revoke(user *models.User, deviceID uuid.UUID) error {
	result := s.DB.Delete(&models.TrustedDevice{}, "id = ? AND user_id = ?", deviceID, user.ID)
	if result.Error != nil {
		return fmt.Errorf("revoking trusted device: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	logger.Info("trusted_device_revoked", map[string]interface{}{
		"user_id":   user.ID.String(),
		"device_id": deviceID.String(),
	})
	return nil
}

// RevokeAll deletes every device belonging to the user.
func (s *DeviceTrustService) RevokeAll(user *models.User) (int64, error) {
	result := s.DB.Delete(&models.TrustedDevice{}, "user_id = ?", user.ID)
	if result.Error != nil {
		return 0, fmt.Errorf("revoking trusted devices: %w", result.Error)
	}

	logger.Info("trusted_devices_revoked_all", map[string]interface{}{
		"user_id": user.ID.String(),
		"count":   result.RowsAffected,
	})
	return result.RowsAffected, nil
}

// DeleteExpired purges expired device records. Expired devices are already
// inert; this only keeps the table from growing unbounded and is run
// periodically from the server process.
func (s *DeviceTrustService) DeleteExpired() (int64, error) {
	result := s.DB.Delete(&models.TrustedDevice{}, "expires_at <= ?", time.Now())
	if result.Error != nil {
		return 0, fmt.Errorf("purging expired devices: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func newDeviceToken() (string, error) {
	b := make([]byte, deviceTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating device token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
