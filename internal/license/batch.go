package license

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/licenciador/licensing-api/internal/models"
	"github.com/licenciador/licensing-api/internal/notify"
	"github.com/licenciador/licensing-api/internal/serviceerr"
)

// RevokeBatch revokes every listed license in one transaction. Any missing
// id fails the whole batch; nothing is committed partially.
func (s *Service) RevokeBatch(ctx context.Context, ids []uint64) (string, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return "", serviceerr.Validation("Nenhuma licença informada.")
	}

	var events []notify.RevokedEvent
	var eventIDs []uint64
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, errLoad := s.loadAll(tx, ids)
		if errLoad != nil {
			return errLoad
		}
		for i := range rows {
			event, eventID, errRevoke := s.revokeInTx(tx, &rows[i])
			if errRevoke != nil {
				return errRevoke
			}
			events = append(events, event)
			eventIDs = append(eventIDs, eventID)
		}
		return nil
	})
	if errTx != nil {
		return "", errTx
	}

	for i, event := range events {
		s.publishRevoked(ctx, event, eventIDs[i])
	}
	return countMessage(len(ids), "revogada", "revogadas"), nil
}

// RenewBatch renews every listed license in one transaction, atomically.
func (s *Service) RenewBatch(ctx context.Context, ids []uint64) (string, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return "", serviceerr.Validation("Nenhuma licença informada.")
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, errLoad := s.loadAll(tx, ids)
		if errLoad != nil {
			return errLoad
		}
		for i := range rows {
			if _, errRenew := s.renewInTx(tx, &rows[i]); errRenew != nil {
				return errRenew
			}
		}
		return nil
	})
	if errTx != nil {
		return "", errTx
	}
	return countMessage(len(ids), "renovada", "renovadas"), nil
}

// DeleteBatch removes the listed licenses and their owning users, atomically.
func (s *Service) DeleteBatch(ctx context.Context, ids []uint64) (string, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return "", serviceerr.Validation("Nenhuma licença informada.")
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, errLoad := s.loadAll(tx, ids)
		if errLoad != nil {
			return errLoad
		}
		userIDs := make([]uint64, 0, len(rows))
		for _, row := range rows {
			userIDs = append(userIDs, row.UserID)
		}
		if errLicenses := tx.Where("id IN ?", ids).Delete(&models.License{}).Error; errLicenses != nil {
			return serviceerr.Unexpected(errLicenses)
		}
		if errUsers := tx.Where("id IN ?", userIDs).Delete(&models.User{}).Error; errUsers != nil {
			return serviceerr.Unexpected(errUsers)
		}
		return nil
	})
	if errTx != nil {
		return "", errTx
	}

	if len(ids) == 1 {
		return "1 licença e usuário excluído com sucesso.", nil
	}
	return fmt.Sprintf("%d licenças e usuários excluídos com sucesso.", len(ids)), nil
}

// loadAll fetches all listed licenses, failing with NotFound when any id
// is absent.
func (s *Service) loadAll(tx *gorm.DB, ids []uint64) ([]models.License, error) {
	var rows []models.License
	if errFind := tx.Where("id IN ?", ids).Find(&rows).Error; errFind != nil {
		return nil, serviceerr.Unexpected(errFind)
	}
	if len(rows) != len(ids) {
		return nil, serviceerr.NotFound("Uma ou mais licenças não foram encontradas.")
	}
	return rows, nil
}

// countMessage builds the aggregate success message with singular and
// plural phrasing.
func countMessage(count int, singular, plural string) string {
	if count == 1 {
		return fmt.Sprintf("1 licença %s com sucesso.", singular)
	}
	return fmt.Sprintf("%d licenças %s com sucesso.", count, plural)
}

// dedupe drops repeated ids preserving order.
func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
