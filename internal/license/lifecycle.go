package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/licenciador/licensing-api/internal/db"
	"github.com/licenciador/licensing-api/internal/models"
	"github.com/licenciador/licensing-api/internal/notify"
	"github.com/licenciador/licensing-api/internal/security"
	"github.com/licenciador/licensing-api/internal/serviceerr"
)

// NewUser describes a user created alongside its license.
type NewUser struct {
	Code     string
	Login    string
	Level    string
	Password string
}

// CreateParams describes a license to be created.
type CreateParams struct {
	Price      float64
	Indication *string
	Lifetime   bool
	StartAt    *time.Time
	ExpiresAt  *time.Time
}

// Store creates the given users and one license per user in a single
// transaction. A duplicate login under the same code fails the whole batch.
func (s *Service) Store(ctx context.Context, users []NewUser, params CreateParams) error {
	if len(users) == 0 {
		return serviceerr.Validation("Nenhum usuário informado.")
	}
	if !params.Lifetime && (params.StartAt == nil || params.ExpiresAt == nil) {
		return serviceerr.Validation("Datas de início e expiração são obrigatórias para licenças não vitalícias.")
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, input := range users {
			var existing models.User
			errFind := tx.Where("login = ? AND code = ?", input.Login, input.Code).First(&existing).Error
			if errFind == nil {
				return serviceerr.Validation(fmt.Sprintf("Usuário %q já cadastrado para o código %q.", input.Login, input.Code))
			}
			if !errors.Is(errFind, gorm.ErrRecordNotFound) {
				return serviceerr.Unexpected(errFind)
			}

			hash, errHash := security.HashPassword(input.Password)
			if errHash != nil {
				return serviceerr.Unexpected(errHash)
			}
			level := input.Level
			if level == "" {
				level = models.LevelOperator
			}
			user := models.User{
				Code:     input.Code,
				Login:    input.Login,
				Level:    level,
				Password: hash,
			}
			if errCreate := tx.Create(&user).Error; errCreate != nil {
				return serviceerr.Unexpected(errCreate)
			}
			if _, errLicense := s.CreateForUser(tx, user.ID, params); errLicense != nil {
				return errLicense
			}
		}
		return nil
	})
	return errTx
}

// Create grants a license to an existing user. Lifetime licenses persist
// with null dates; dated ones require both bounds.
func (s *Service) Create(ctx context.Context, ownerUserID uint64, params CreateParams) (*models.License, error) {
	if !params.Lifetime && (params.StartAt == nil || params.ExpiresAt == nil) {
		return nil, serviceerr.Validation("Datas de início e expiração são obrigatórias para licenças não vitalícias.")
	}

	var created *models.License
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner models.User
		if errFind := tx.First(&owner, ownerUserID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return serviceerr.NotFound("Usuário não encontrado.")
			}
			return serviceerr.Unexpected(errFind)
		}
		row, errCreate := s.CreateForUser(tx, owner.ID, params)
		if errCreate != nil {
			return errCreate
		}
		created = row
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return created, nil
}

// CreateForUser persists a license row inside an open transaction. The uuid
// is assigned here, exactly once.
func (s *Service) CreateForUser(tx *gorm.DB, userID uint64, params CreateParams) (*models.License, error) {
	row := models.License{
		UserID:     userID,
		UUID:       uuid.NewString(),
		Status:     models.StatusActive,
		Lifetime:   params.Lifetime,
		Price:      params.Price,
		Indication: params.Indication,
	}
	if !params.Lifetime {
		row.StartAt = params.StartAt
		row.ExpiresAt = params.ExpiresAt
	}
	if errCreate := tx.Create(&row).Error; errCreate != nil {
		return nil, serviceerr.Unexpected(errCreate)
	}
	return &row, nil
}

// Revoke sets the license status to revoked, from any status, and records
// the revoked event for broadcast after commit.
func (s *Service) Revoke(ctx context.Context, licenseID uint64) (*models.License, error) {
	var revoked *models.License
	var event notify.RevokedEvent
	var eventID uint64

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, errLoad := s.loadByID(tx, licenseID)
		if errLoad != nil {
			return errLoad
		}
		evt, evtID, errRevoke := s.revokeInTx(tx, row)
		if errRevoke != nil {
			return errRevoke
		}
		revoked, event, eventID = row, evt, evtID
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}

	s.publishRevoked(ctx, event, eventID)
	return revoked, nil
}

// revokeInTx flips a loaded license to revoked and writes its outbox row.
func (s *Service) revokeInTx(tx *gorm.DB, row *models.License) (notify.RevokedEvent, uint64, error) {
	now := s.clock.Now()
	if errUpdate := tx.Model(row).Update("status", models.StatusRevoked).Error; errUpdate != nil {
		return notify.RevokedEvent{}, 0, serviceerr.Unexpected(errUpdate)
	}

	event := notify.RevokedEvent{LicenseUUID: row.UUID, RevokedAt: now.UTC()}
	payload, errMarshal := json.Marshal(event)
	if errMarshal != nil {
		return notify.RevokedEvent{}, 0, serviceerr.Unexpected(errMarshal)
	}
	outbox := models.DomainEvent{
		Type:    notify.EventLicenseRevoked,
		Payload: datatypes.JSON(payload),
	}
	if errCreate := tx.Create(&outbox).Error; errCreate != nil {
		return notify.RevokedEvent{}, 0, serviceerr.Unexpected(errCreate)
	}
	return event, outbox.ID, nil
}

// publishRevoked broadcasts a revoked event after commit. Delivery failure
// is logged, never surfaced to the caller.
func (s *Service) publishRevoked(ctx context.Context, event notify.RevokedEvent, eventID uint64) {
	if event.LicenseUUID == "" {
		return
	}
	if errPublish := s.publisher.PublishLicenseRevoked(ctx, event); errPublish != nil {
		log.WithError(errPublish).Warnf("license revoked broadcast failed for %s", shortUUID(event.LicenseUUID))
		return
	}
	now := s.clock.Now().UTC()
	if errMark := s.db.WithContext(ctx).Model(&models.DomainEvent{}).
		Where("id = ?", eventID).
		Update("published_at", &now).Error; errMark != nil {
		log.WithError(errMark).Warn("mark domain event published failed")
	}
}

// Renew reactivates a license. Dated licenses keep their original span,
// re-anchored at today; lifetime licenses only regain active status.
func (s *Service) Renew(ctx context.Context, licenseID uint64) (*models.License, string, error) {
	var renewed *models.License
	var message string
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, errLoad := s.loadByID(tx, licenseID)
		if errLoad != nil {
			return errLoad
		}
		msg, errRenew := s.renewInTx(tx, row)
		if errRenew != nil {
			return errRenew
		}
		renewed, message = row, msg
		return nil
	})
	if errTx != nil {
		return nil, "", errTx
	}
	return renewed, message, nil
}

// renewInTx applies the renewal to a loaded license inside a transaction.
func (s *Service) renewInTx(tx *gorm.DB, row *models.License) (string, error) {
	if row.Lifetime {
		if errUpdate := tx.Model(row).Update("status", models.StatusActive).Error; errUpdate != nil {
			return "", serviceerr.Unexpected(errUpdate)
		}
		return "Licença vitalícia renovada.", nil
	}

	if row.StartAt == nil || row.ExpiresAt == nil {
		return "", serviceerr.Validation("Licença sem datas definidas não pode ser renovada.")
	}
	days := DaysBetween(*row.StartAt, *row.ExpiresAt)
	start := s.startOfToday()
	expires := start.AddDate(0, 0, days-1)
	updates := map[string]any{
		"status":     models.StatusActive,
		"start_at":   &start,
		"expires_at": &expires,
	}
	if errUpdate := tx.Model(row).Updates(updates).Error; errUpdate != nil {
		return "", serviceerr.Unexpected(errUpdate)
	}
	return fmt.Sprintf("Licença renovada por %d dias.", days), nil
}

// SweepExpired transitions every active dated license past its expiry day
// to expired, as one conditional update. Safe to re-run; overlapping
// invocations stay correct because the predicate and the write are atomic.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.License{}).
		Where("status = ? AND lifetime = ? AND expires_at < ?", models.StatusActive, false, s.startOfToday()).
		Update("status", models.StatusExpired)
	if res.Error != nil {
		return 0, serviceerr.Unexpected(res.Error)
	}
	return res.RowsAffected, nil
}

// UpdateParams describes an administrative license update. Nil pointers
// leave the stored value unchanged.
type UpdateParams struct {
	Code       *string
	Login      *string
	StartAt    *time.Time
	ExpiresAt  *time.Time
	Lifetime   *bool
	Price      *float64
	Indication *string
}

// Update rewrites user and license fields in one transaction, then applies
// the single-record expiry check: an active license whose new expiry is
// already past flips to expired before commit.
func (s *Service) Update(ctx context.Context, licenseID uint64, params UpdateParams) (*models.License, error) {
	var updated *models.License
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.License
		if errFind := tx.Preload("User").First(&row, licenseID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return serviceerr.NotFound("Licença não encontrada.")
			}
			return serviceerr.Unexpected(errFind)
		}

		if errUser := s.updateOwner(tx, &row, params); errUser != nil {
			return errUser
		}

		licenseUpdates := map[string]any{}
		if params.Lifetime != nil {
			licenseUpdates["lifetime"] = *params.Lifetime
			if *params.Lifetime {
				licenseUpdates["start_at"] = nil
				licenseUpdates["expires_at"] = nil
			}
		}
		lifetime := row.Lifetime
		if params.Lifetime != nil {
			lifetime = *params.Lifetime
		}
		if !lifetime {
			startAt := row.StartAt
			if params.StartAt != nil {
				startAt = params.StartAt
			}
			expiresAt := row.ExpiresAt
			if params.ExpiresAt != nil {
				expiresAt = params.ExpiresAt
			}
			if startAt == nil || expiresAt == nil {
				return serviceerr.Validation("Datas de início e expiração são obrigatórias para licenças não vitalícias.")
			}
			if params.StartAt != nil {
				licenseUpdates["start_at"] = params.StartAt
			}
			if params.ExpiresAt != nil {
				licenseUpdates["expires_at"] = params.ExpiresAt
			}
		}
		if params.Price != nil {
			licenseUpdates["price"] = *params.Price
		}
		if params.Indication != nil {
			licenseUpdates["indication"] = params.Indication
		}
		if len(licenseUpdates) > 0 {
			if errUpdate := tx.Model(&row).Updates(licenseUpdates).Error; errUpdate != nil {
				return serviceerr.Unexpected(errUpdate)
			}
		}

		if errReload := tx.Preload("User").First(&row, licenseID).Error; errReload != nil {
			return serviceerr.Unexpected(errReload)
		}
		if row.Status == models.StatusActive && !row.Lifetime && row.ExpiresAt != nil && row.ExpiresAt.Before(s.startOfToday()) {
			if errExpire := tx.Model(&row).Update("status", models.StatusExpired).Error; errExpire != nil {
				return serviceerr.Unexpected(errExpire)
			}
		}
		updated = &row
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return updated, nil
}

// updateOwner applies code/login changes to the owning user, rejecting a
// login collision under the same code.
func (s *Service) updateOwner(tx *gorm.DB, row *models.License, params UpdateParams) error {
	if params.Code == nil && params.Login == nil {
		return nil
	}
	if row.User == nil {
		return serviceerr.NotFound("Usuário da licença não encontrado.")
	}

	code := row.User.Code
	if params.Code != nil {
		code = *params.Code
	}
	login := row.User.Login
	if params.Login != nil {
		login = *params.Login
	}

	var collision models.User
	errFind := tx.Where("code = ? AND login = ? AND id <> ?", code, login, row.User.ID).First(&collision).Error
	if errFind == nil {
		return serviceerr.Validation(fmt.Sprintf("Login %q já cadastrado para o código %q.", login, code))
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return serviceerr.Unexpected(errFind)
	}

	updates := map[string]any{"code": code, "login": login}
	if errUpdate := tx.Model(row.User).Updates(updates).Error; errUpdate != nil {
		return serviceerr.Unexpected(errUpdate)
	}
	return nil
}

// RecordMetrics stores the active sub-user count reported by the client.
// Writing the same value twice is a no-op.
func (s *Service) RecordMetrics(ctx context.Context, licenseUUID string, count int) (*models.License, error) {
	var row models.License
	if errFind := s.db.WithContext(ctx).Where("uuid = ?", licenseUUID).First(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, serviceerr.NotFound("Licença não encontrada.")
		}
		return nil, serviceerr.Unexpected(errFind)
	}
	if row.CambistasAtivosCount != nil && *row.CambistasAtivosCount == count {
		return &row, nil
	}
	if errUpdate := s.db.WithContext(ctx).Model(&row).
		Update("cambistas_ativos_count", count).Error; errUpdate != nil {
		return nil, serviceerr.Unexpected(errUpdate)
	}
	return &row, nil
}

// Delete removes a license and its owning user.
func (s *Service) Delete(ctx context.Context, licenseID uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, errLoad := s.loadByID(tx, licenseID)
		if errLoad != nil {
			return errLoad
		}
		if errLicense := tx.Delete(&models.License{}, row.ID).Error; errLicense != nil {
			return serviceerr.Unexpected(errLicense)
		}
		if errUser := tx.Delete(&models.User{}, row.UserID).Error; errUser != nil {
			return serviceerr.Unexpected(errUser)
		}
		return nil
	})
}

// List returns operator licenses with their users, newest first. A non
// empty search narrows by owner login or code.
func (s *Service) List(ctx context.Context, search string) ([]models.License, error) {
	query := s.db.WithContext(ctx).
		Preload("User").
		Joins("JOIN users ON users.id = licenses.user_id").
		Where("users.level = ?", models.LevelOperator)
	if search = strings.TrimSpace(search); search != "" {
		pattern := db.NormalizeLikePattern(s.db, "%"+search+"%")
		query = query.Where(
			s.db.Where(db.CaseInsensitiveLikeExpr(s.db, "users.login"), pattern).
				Or(db.CaseInsensitiveLikeExpr(s.db, "users.code"), pattern),
		)
	}

	var rows []models.License
	if errFind := query.Order("licenses.created_at DESC").Find(&rows).Error; errFind != nil {
		return nil, serviceerr.Unexpected(errFind)
	}
	return rows, nil
}

// loadByID fetches a license or reports NotFound.
func (s *Service) loadByID(tx *gorm.DB, licenseID uint64) (*models.License, error) {
	var row models.License
	if errFind := tx.First(&row, licenseID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, serviceerr.NotFound("Licença não encontrada.")
		}
		return nil, serviceerr.Unexpected(errFind)
	}
	return &row, nil
}

// shortUUID truncates an identifier for log output.
func shortUUID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
