// Package user implements the privileged user administration operations.
// Callers must hold the super level; the HTTP layer enforces that before
// any of these run.
package user

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/licenciador/licensing-api/internal/license"
	"github.com/licenciador/licensing-api/internal/models"
	"github.com/licenciador/licensing-api/internal/security"
	"github.com/licenciador/licensing-api/internal/serviceerr"
)

// Service implements user administration over the store.
type Service struct {
	db       *gorm.DB
	licenses *license.Service
}

// NewService wires a user service.
func NewService(db *gorm.DB, licenses *license.Service) *Service {
	return &Service{db: db, licenses: licenses}
}

// CreateParams describes a user created by an admin action.
type CreateParams struct {
	Code     string
	Login    string
	Level    string
	Password string
}

// Create persists a user and its lifetime license in one transaction.
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.User, error) {
	level := params.Level
	if level == "" {
		level = models.LevelOperator
	}
	switch level {
	case models.LevelSuper, models.LevelAdmin, models.LevelOperator:
	default:
		return nil, serviceerr.Validation(fmt.Sprintf("Nível %q inválido.", level))
	}

	var created *models.User
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.User
		errFind := tx.Where("code = ? AND login = ?", params.Code, params.Login).First(&existing).Error
		if errFind == nil {
			return serviceerr.Validation(fmt.Sprintf("Usuário %q já cadastrado para o código %q.", params.Login, params.Code))
		}
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return serviceerr.Unexpected(errFind)
		}

		hash, errHash := security.HashPassword(params.Password)
		if errHash != nil {
			return serviceerr.Unexpected(errHash)
		}
		row := models.User{
			Code:     params.Code,
			Login:    params.Login,
			Level:    level,
			Password: hash,
		}
		if errCreate := tx.Create(&row).Error; errCreate != nil {
			return serviceerr.Unexpected(errCreate)
		}
		if _, errLicense := s.licenses.CreateForUser(tx, row.ID, license.CreateParams{Lifetime: true}); errLicense != nil {
			return errLicense
		}
		created = &row
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return created, nil
}

// UpdateParams describes an administrative user update. Nil pointers leave
// the stored value unchanged.
type UpdateParams struct {
	Code     *string
	Login    *string
	Level    *string
	Password *string
}

// Update rewrites user fields, rejecting a login collision under the
// target code.
func (s *Service) Update(ctx context.Context, userID uint64, params UpdateParams) (*models.User, error) {
	var updated *models.User
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.User
		if errFind := tx.First(&row, userID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return serviceerr.NotFound("Usuário não encontrado.")
			}
			return serviceerr.Unexpected(errFind)
		}

		code := row.Code
		if params.Code != nil {
			code = *params.Code
		}
		login := row.Login
		if params.Login != nil {
			login = *params.Login
		}
		if code != row.Code || login != row.Login {
			var collision models.User
			errCollision := tx.Where("code = ? AND login = ? AND id <> ?", code, login, row.ID).First(&collision).Error
			if errCollision == nil {
				return serviceerr.Validation(fmt.Sprintf("Login %q já cadastrado para o código %q.", login, code))
			}
			if !errors.Is(errCollision, gorm.ErrRecordNotFound) {
				return serviceerr.Unexpected(errCollision)
			}
		}

		updates := map[string]any{"code": code, "login": login}
		if params.Level != nil {
			switch *params.Level {
			case models.LevelSuper, models.LevelAdmin, models.LevelOperator:
				updates["level"] = *params.Level
			default:
				return serviceerr.Validation(fmt.Sprintf("Nível %q inválido.", *params.Level))
			}
		}
		if params.Password != nil {
			hash, errHash := security.HashPassword(*params.Password)
			if errHash != nil {
				return serviceerr.Unexpected(errHash)
			}
			updates["password"] = hash
		}
		if errUpdate := tx.Model(&row).Updates(updates).Error; errUpdate != nil {
			return serviceerr.Unexpected(errUpdate)
		}
		updated = &row
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return updated, nil
}

// Delete removes a user and, by cascade, its license.
func (s *Service) Delete(ctx context.Context, userID uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.User
		if errFind := tx.First(&row, userID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return serviceerr.NotFound("Usuário não encontrado.")
			}
			return serviceerr.Unexpected(errFind)
		}
		if errLicense := tx.Where("user_id = ?", row.ID).Delete(&models.License{}).Error; errLicense != nil {
			return serviceerr.Unexpected(errLicense)
		}
		if errUser := tx.Delete(&models.User{}, row.ID).Error; errUser != nil {
			return serviceerr.Unexpected(errUser)
		}
		return nil
	})
}
