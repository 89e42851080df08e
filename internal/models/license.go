package models

import "time"

// License status values.
const (
	// StatusPending is declared for parity with stored data; no operation
	// currently creates it (creation enters active directly).
	StatusPending = "pending"
	// StatusActive marks a usable license.
	StatusActive = "active"
	// StatusRevoked marks a license disabled by an operator.
	StatusRevoked = "revoked"
	// StatusExpired marks a dated license past its expiry.
	StatusExpired = "expired"
)

// License represents a usage grant tied to exactly one user.
type License struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex"`                          // Owning user, exclusive.
	User   *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // Associated user record.

	UUID string `gorm:"type:text;not null;uniqueIndex"` // Stable external identifier, assigned once.

	Status string `gorm:"type:text;not null;default:active"` // Lifecycle status.

	StartAt   *time.Time // Validity window start; null for lifetime licenses.
	ExpiresAt *time.Time // Validity window end; null for lifetime licenses.
	Lifetime  bool       `gorm:"not null;default:false"` // Never expires by date when true.

	LastUse *time.Time // Last successful validity check.

	Price      float64 `gorm:"type:decimal(10,2);not null;default:0"` // Sale price.
	Indication *string `gorm:"type:text"`                             // Optional attribution.

	CambistasAtivosCount *int `gorm:"type:smallint"` // Active sub-user metric reported by the client.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// IsValid reports whether the license authorizes use at the given instant.
// Lifetime licenses depend only on status; dated ones are also bounded by
// the end of their expiry day.
func (l *License) IsValid(now time.Time) bool {
	if l.Status != StatusActive {
		return false
	}
	if l.Lifetime {
		return true
	}
	if l.ExpiresAt == nil {
		return false
	}
	return !now.After(EndOfDay(*l.ExpiresAt))
}

// StatusTranslated returns the status label shown to operators.
func (l *License) StatusTranslated() string {
	switch l.Status {
	case StatusActive:
		return "Ativa"
	case StatusPending:
		return "Pendente"
	case StatusRevoked:
		return "Revogada"
	case StatusExpired:
		return "Expirada"
	default:
		return l.Status
	}
}

// SeverityTag returns the UI severity tag for the status.
func (l *License) SeverityTag() string {
	switch l.Status {
	case StatusActive:
		return "success"
	case StatusPending:
		return "warn"
	case StatusRevoked:
		return "danger"
	case StatusExpired:
		return "secondary"
	default:
		return "secondary"
	}
}

// EndOfDay returns the last instant of the calendar day of t.
func EndOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
