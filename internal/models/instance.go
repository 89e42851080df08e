package models

import "time"

// Instance is a tenant-owned named group of member records.
type Instance struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Nome   string `gorm:"type:text;not null;uniqueIndex:idx_instancias_auth_nome,priority:2"` // Display name, unique per tenant.
	AuthID uint64 `gorm:"not null;uniqueIndex:idx_instancias_auth_nome,priority:1"`           // Owning tenant.

	InstanceUsers []InstanceUser `gorm:"foreignKey:InstanciaID;constraint:OnDelete:CASCADE"` // Member records, removed with the instance.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName keeps the table name used by the existing schema.
func (Instance) TableName() string { return "instancias" }
