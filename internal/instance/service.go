// Package instance manages tenant-owned instances and converges their
// membership to submitted desired-state lists.
package instance

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/licenciador/licensing-api/internal/models"
	"github.com/licenciador/licensing-api/internal/serviceerr"
)

// cloneSuffix is appended to the name of a cloned instance.
const cloneSuffix = " - Cópia"

// Service implements instance operations over the store.
type Service struct {
	db *gorm.DB
}

// NewService wires an instance service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Member describes one desired membership entry. RecordID refers to an
// existing row; entries without it are inserted.
type Member struct {
	RecordID       *uint64
	ExternalUserID uint64
	Login          string
	Saldo          float64
}

// Store creates an instance with its initial members in one transaction.
func (s *Service) Store(ctx context.Context, authID uint64, nome string, members []Member) (*models.Instance, error) {
	var created *models.Instance
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errName := s.checkNameFree(tx, authID, nome, 0); errName != nil {
			return errName
		}
		row := models.Instance{Nome: nome, AuthID: authID}
		if errCreate := tx.Create(&row).Error; errCreate != nil {
			return serviceerr.Unexpected(errCreate)
		}
		for _, member := range members {
			record := models.InstanceUser{
				AuthID:      authID,
				InstanciaID: row.ID,
				UsuarioID:   member.ExternalUserID,
				Login:       member.Login,
				Saldo:       member.Saldo,
			}
			if errMember := tx.Create(&record).Error; errMember != nil {
				return serviceerr.Unexpected(errMember)
			}
		}
		created = &row
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return created, nil
}

// Reconcile converges the stored membership of an instance to the desired
// list: ownership validation, then upsert per entry, then delete by
// exclusion, all under one transaction with the instance row locked.
// Resubmitting the same list yields the same end state.
func (s *Service) Reconcile(ctx context.Context, authID, instanceID uint64, nome string, desired []Member) error {
	// Cross-tenant references are rejected before any write.
	if errOwnership := s.verifyOwnership(ctx, authID, desired); errOwnership != nil {
		return errOwnership
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Instance
		query := tx.Where("id = ? AND auth_id = ?", instanceID, authID)
		// SQLite serializes writers on its own; FOR UPDATE is postgres-only.
		if tx.Dialector.Name() != "sqlite" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		errLock := query.First(&row).Error
		if errLock != nil {
			if errors.Is(errLock, gorm.ErrRecordNotFound) {
				return serviceerr.NotFound("Instância não encontrada.")
			}
			return serviceerr.Unexpected(errLock)
		}

		if nome != "" && nome != row.Nome {
			if errName := s.checkNameFree(tx, authID, nome, row.ID); errName != nil {
				return errName
			}
			if errRename := tx.Model(&row).Update("nome", nome).Error; errRename != nil {
				return serviceerr.Unexpected(errRename)
			}
		}

		keep := make([]uint64, 0, len(desired))
		for _, member := range desired {
			keep = append(keep, member.ExternalUserID)
			if errUpsert := s.upsertMember(tx, authID, row.ID, member); errUpsert != nil {
				return errUpsert
			}
		}

		// Delete by exclusion: an empty desired list clears the instance.
		del := tx.Where("auth_id = ? AND instancia_id = ?", authID, row.ID)
		if len(keep) > 0 {
			del = del.Where("usuario_id NOT IN ?", keep)
		}
		if errDelete := del.Delete(&models.InstanceUser{}).Error; errDelete != nil {
			return serviceerr.Unexpected(errDelete)
		}
		return nil
	})
}

// verifyOwnership fails when any referenced record belongs to another tenant.
func (s *Service) verifyOwnership(ctx context.Context, authID uint64, desired []Member) error {
	recordIDs := make([]uint64, 0, len(desired))
	for _, member := range desired {
		if member.RecordID != nil {
			recordIDs = append(recordIDs, *member.RecordID)
		}
	}
	if len(recordIDs) == 0 {
		return nil
	}
	var foreign int64
	errCount := s.db.WithContext(ctx).Model(&models.InstanceUser{}).
		Where("id IN ? AND auth_id <> ?", recordIDs, authID).
		Count(&foreign).Error
	if errCount != nil {
		return serviceerr.Unexpected(errCount)
	}
	if foreign > 0 {
		return serviceerr.Unauthorized("Existe algum usuário que não pertence ao usuário autenticado.")
	}
	return nil
}

// upsertMember overwrites an existing record or inserts a new one. Entries
// without a record id are keyed on the external user id, so resubmitting
// the same list overwrites instead of duplicating.
func (s *Service) upsertMember(tx *gorm.DB, authID, instanceID uint64, member Member) error {
	if member.RecordID == nil {
		res := tx.Model(&models.InstanceUser{}).
			Where("auth_id = ? AND instancia_id = ? AND usuario_id = ?", authID, instanceID, member.ExternalUserID).
			Updates(map[string]any{
				"login": member.Login,
				"saldo": member.Saldo,
			})
		if res.Error != nil {
			return serviceerr.Unexpected(res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}
		record := models.InstanceUser{
			AuthID:      authID,
			InstanciaID: instanceID,
			UsuarioID:   member.ExternalUserID,
			Login:       member.Login,
			Saldo:       member.Saldo,
		}
		if errCreate := tx.Create(&record).Error; errCreate != nil {
			return serviceerr.Unexpected(errCreate)
		}
		return nil
	}

	res := tx.Model(&models.InstanceUser{}).
		Where("id = ? AND auth_id = ? AND instancia_id = ?", *member.RecordID, authID, instanceID).
		Updates(map[string]any{
			"usuario_id": member.ExternalUserID,
			"login":      member.Login,
			"saldo":      member.Saldo,
		})
	if res.Error != nil {
		return serviceerr.Unexpected(res.Error)
	}
	if res.RowsAffected == 0 {
		return serviceerr.NotFound(fmt.Sprintf("Usuário %d não encontrado nesta instância.", *member.RecordID))
	}
	return nil
}

// Clone duplicates an instance and its members under the same tenant in one
// transaction. New rows receive fresh ids.
func (s *Service) Clone(ctx context.Context, authID, instanceID uint64) (*models.Instance, error) {
	var cloned *models.Instance
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		original, errLoad := s.loadOwned(tx, authID, instanceID)
		if errLoad != nil {
			return errLoad
		}

		var members []models.InstanceUser
		if errMembers := tx.Where("auth_id = ? AND instancia_id = ?", authID, instanceID).
			Find(&members).Error; errMembers != nil {
			return serviceerr.Unexpected(errMembers)
		}

		name := original.Nome + cloneSuffix
		if errName := s.checkNameFree(tx, authID, name, 0); errName != nil {
			return errName
		}
		copyRow := models.Instance{Nome: name, AuthID: authID}
		if errCreate := tx.Create(&copyRow).Error; errCreate != nil {
			return serviceerr.Unexpected(errCreate)
		}
		for _, member := range members {
			record := models.InstanceUser{
				AuthID:      copyRow.AuthID,
				InstanciaID: copyRow.ID,
				UsuarioID:   member.UsuarioID,
				Login:       member.Login,
				Saldo:       member.Saldo,
			}
			if errMember := tx.Create(&record).Error; errMember != nil {
				return serviceerr.Unexpected(errMember)
			}
		}
		cloned = &copyRow
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return cloned, nil
}

// List returns all instances of the tenant with their members.
func (s *Service) List(ctx context.Context, authID uint64) ([]models.Instance, error) {
	var rows []models.Instance
	errFind := s.db.WithContext(ctx).
		Preload("InstanceUsers").
		Where("auth_id = ?", authID).
		Order("id ASC").
		Find(&rows).Error
	if errFind != nil {
		return nil, serviceerr.Unexpected(errFind)
	}
	return rows, nil
}

// Show returns one instance of the tenant with its members.
func (s *Service) Show(ctx context.Context, authID, instanceID uint64) (*models.Instance, error) {
	var row models.Instance
	errFind := s.db.WithContext(ctx).
		Preload("InstanceUsers").
		Where("id = ? AND auth_id = ?", instanceID, authID).
		First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, serviceerr.NotFound("Instância não encontrada.")
		}
		return nil, serviceerr.Unexpected(errFind)
	}
	return &row, nil
}

// Delete removes an instance and its members.
func (s *Service) Delete(ctx context.Context, authID, instanceID uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, errLoad := s.loadOwned(tx, authID, instanceID)
		if errLoad != nil {
			return errLoad
		}
		if errMembers := tx.Where("auth_id = ? AND instancia_id = ?", authID, row.ID).
			Delete(&models.InstanceUser{}).Error; errMembers != nil {
			return serviceerr.Unexpected(errMembers)
		}
		if errInstance := tx.Delete(&models.Instance{}, row.ID).Error; errInstance != nil {
			return serviceerr.Unexpected(errInstance)
		}
		return nil
	})
}

// loadOwned fetches an instance scoped to the tenant.
func (s *Service) loadOwned(tx *gorm.DB, authID, instanceID uint64) (*models.Instance, error) {
	var row models.Instance
	errFind := tx.Where("id = ? AND auth_id = ?", instanceID, authID).First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, serviceerr.NotFound("Instância não encontrada.")
		}
		return nil, serviceerr.Unexpected(errFind)
	}
	return &row, nil
}

// checkNameFree rejects a duplicate instance name within the tenant.
func (s *Service) checkNameFree(tx *gorm.DB, authID uint64, nome string, selfID uint64) error {
	var existing models.Instance
	query := tx.Where("auth_id = ? AND nome = ?", authID, nome)
	if selfID > 0 {
		query = query.Where("id <> ?", selfID)
	}
	errFind := query.First(&existing).Error
	if errFind == nil {
		return serviceerr.Conflict(fmt.Sprintf("Já existe uma instância com o nome %q.", nome))
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return serviceerr.Unexpected(errFind)
	}
	return nil
}
