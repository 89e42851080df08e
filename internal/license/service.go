// Package license owns the license lifecycle: creation, status
// transitions, renewal date arithmetic, the expiry sweep and the
// end-user validity check.
package license

import (
	"time"

	"gorm.io/gorm"

	"github.com/licenciador/licensing-api/internal/clock"
	"github.com/licenciador/licensing-api/internal/notify"
)

// Service implements the license lifecycle operations over the store.
type Service struct {
	db        *gorm.DB
	clock     clock.Clock
	publisher notify.Publisher
}

// NewService wires a lifecycle service with its dependencies.
func NewService(db *gorm.DB, clk clock.Clock, publisher notify.Publisher) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if publisher == nil {
		publisher = notify.Nop{}
	}
	return &Service{db: db, clock: clk, publisher: publisher}
}

// DaysBetween counts the calendar days spanned by the inclusive interval
// [a, b]. A license whose start and expiry fall on the same day spans one
// day.
func DaysBetween(a, b time.Time) int {
	start := truncateToDay(a)
	end := truncateToDay(b)
	if end.Before(start) {
		return 1
	}
	return int(end.Sub(start)/(24*time.Hour)) + 1
}

// truncateToDay normalizes a timestamp to midnight UTC of its calendar day.
func truncateToDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// startOfToday returns midnight of the current day in the clock's location.
func (s *Service) startOfToday() time.Time {
	now := s.clock.Now()
	year, month, day := now.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, now.Location())
}
