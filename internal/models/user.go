package models

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

// User carries the second-factor state directly: OTPSecret is set if and only
// if OTPEnabled is true, and OTPBackupCodes holds a JSON array of bcrypt
// hashes. Enable/disable mutate all three columns in a single update so a
// partial state is never visible.
type User struct {
	BaseModel
	Username        string          `json:"username" gorm:"type:varchar(20);uniqueIndex;not null"`
	Email           *string         `json:"email,omitempty" gorm:"type:varchar(255);uniqueIndex"`
	PasswordHash    string          `json:"-" gorm:"type:text;not null"`
	Role            UserRole        `json:"role" gorm:"type:varchar(20);not null;default:'user'"`
	OTPEnabled      bool            `json:"otpEnabled" gorm:"default:false"`
	OTPSecret       string          `json:"-" gorm:"type:text"`
	OTPBackupCodes  string          `json:"-" gorm:"type:text"`
	BackupCodeCount int             `json:"backupCodesRemaining" gorm:"default:0"`
	TrustedDevices  []TrustedDevice `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}
