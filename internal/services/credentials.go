package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vandalsquat/backend/internal/models"
	"github.com/vandalsquat/backend/pkg/utils"
	"gorm.io/gorm"
)

// Hash of an unguessable value, compared against when the username does not
// exist so a lookup miss costs the same as a password mismatch.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

type CredentialService struct {
	DB *gorm.DB
}

func NewCredentialService(db *gorm.DB) *CredentialService {
	return &CredentialService{DB: db}
}

// NormalizeUsername lowercases and trims a username the same way it is stored.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Verify checks a username/password pair and returns the matching user.
// Usernames are matched case-insensitively. A missing user and a wrong
// password are indistinguishable to the caller.
func (s *CredentialService) Verify(username, password string) (*models.User, error) {
	var user models.User
	err := s.DB.First(&user, "username = ?", NormalizeUsername(username)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.CheckPassword(password, dummyPasswordHash)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if !utils.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}
