package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/licenciador/licensing-api/internal/models"
	"github.com/licenciador/licensing-api/internal/security"
	"gorm.io/gorm"
)

// Migrate applies the schema for all persisted models.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.User{},
		&models.License{},
		&models.Instance{},
		&models.InstanceUser{},
		&models.DomainEvent{},
	)
}

// SeedSuperUser creates the bootstrap super-level user when it does not
// exist yet. The seeded account has no license; it exists to reach the
// admin API on a fresh database.
func SeedSuperUser(conn *gorm.DB, code, login, password string) error {
	code = strings.TrimSpace(code)
	login = strings.TrimSpace(login)
	if code == "" || login == "" || strings.TrimSpace(password) == "" {
		return nil
	}

	var existing models.User
	errFind := conn.Where("code = ? AND login = ?", code, login).First(&existing).Error
	if errFind == nil {
		return nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: seed lookup: %w", errFind)
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("db: seed hash: %w", errHash)
	}
	user := models.User{
		Code:     code,
		Login:    login,
		Level:    models.LevelSuper,
		Password: hash,
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		return fmt.Errorf("db: seed create: %w", errCreate)
	}
	return nil
}
