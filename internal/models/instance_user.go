package models

import "time"

// InstanceUser links an instance to an external user with a balance.
type InstanceUser struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AuthID      uint64    `gorm:"not null;index"`                                     // Tenant, must match the owning instance.
	InstanciaID uint64    `gorm:"not null;index"`                                     // Owning instance.
	Instance    *Instance `gorm:"foreignKey:InstanciaID;constraint:OnDelete:CASCADE"` // Owning instance record.

	UsuarioID uint64  `gorm:"not null"`                              // External user reference, not unique across instances.
	Login     string  `gorm:"type:text;not null"`                    // Display login.
	Saldo     float64 `gorm:"type:decimal(10,2);not null;default:0"` // Balance, non-negative.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName keeps the table name used by the existing schema.
func (InstanceUser) TableName() string { return "instancia_usuarios" }
