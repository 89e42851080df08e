package license

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/licenciador/licensing-api/internal/models"
	"github.com/licenciador/licensing-api/internal/serviceerr"
)

// checkDeniedMessage is deliberately identical for a missing and an invalid
// license so callers cannot probe which uuids exist.
const checkDeniedMessage = "Licença expirada ou inexistente."

// Check answers whether the license identified by uuid currently authorizes
// use, recording last_use on success. The date check is applied directly:
// a license past its expiry day is invalid even before the sweep has
// flipped its stored status.
func (s *Service) Check(ctx context.Context, licenseUUID string) (*models.License, error) {
	var row models.License
	if errFind := s.db.WithContext(ctx).Where("uuid = ?", licenseUUID).First(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, serviceerr.Unauthorized(checkDeniedMessage)
		}
		return nil, serviceerr.Unexpected(errFind)
	}

	if !row.IsValid(s.clock.Now()) {
		return nil, serviceerr.Unauthorized(checkDeniedMessage)
	}

	// Best effort: the check already succeeded, a failed write only loses
	// the usage timestamp.
	now := s.clock.Now()
	if errUpdate := s.db.WithContext(ctx).Model(&row).
		Update("last_use", &now).Error; errUpdate != nil {
		log.WithError(errUpdate).Warnf("record last_use failed for license %s", shortUUID(row.UUID))
	}
	return &row, nil
}
