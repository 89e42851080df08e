package models

import "time"

// User access levels.
const (
	// LevelSuper grants user administration rights.
	LevelSuper = "super"
	// LevelAdmin grants tenant administration rights.
	LevelAdmin = "admin"
	// LevelOperator marks an end-user account bound to a license.
	LevelOperator = "operator"
)

// User represents a principal stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Code  string `gorm:"type:text;not null;uniqueIndex:idx_users_code_login,priority:1"` // Tenant/group key.
	Login string `gorm:"type:text;not null;uniqueIndex:idx_users_code_login,priority:2"` // Login, unique within a code.
	Level string `gorm:"type:text;not null;default:operator"`                            // Access level: super, admin or operator.

	Password string `gorm:"type:text;not null"` // Hashed password.

	License *License `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // Exclusive license, removed with the user.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
