package models

import (
	"time"

	"github.com/google/uuid"
)

// TrustedDevice grants a client a bounded-lifetime exemption from second-factor
// prompts. The token is the only thing the client holds; user agent and address
// feed the human-readable description and are never used for authorization.
type TrustedDevice struct {
	BaseModel
	UserID     uuid.UUID `json:"userID" gorm:"type:uuid;index;not null"`
	Token      string    `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	ExpiresAt  time.Time `json:"expiresAt" gorm:"not null;index"`
	LastUsedAt time.Time `json:"lastUsedAt"`
	UserAgent  string    `json:"-" gorm:"type:text"`
	IPAddress  string    `json:"-" gorm:"type:varchar(45)"`
	DeviceName string    `json:"deviceName,omitempty" gorm:"type:varchar(100)"`
	User       User      `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (d *TrustedDevice) ActiveAt(at time.Time) bool {
	return d.ExpiresAt.After(at)
}

func (d *TrustedDevice) Expired() bool {
	return !d.ActiveAt(time.Now())
}
