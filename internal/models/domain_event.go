package models

import (
	"time"

	"gorm.io/datatypes"
)

// DomainEvent records an outbound notification emitted by a transaction.
// Rows are written inside the transaction that caused them; delivery to the
// broadcast channel happens after commit and is best-effort.
type DomainEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Type    string         `gorm:"type:text;not null;index"` // Event type, e.g. license.revoked.
	Payload datatypes.JSON `gorm:"type:jsonb;not null"`      // Event payload as published.

	PublishedAt *time.Time // Set when the broadcast succeeded.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
