package license

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/licenciador/licensing-api/internal/models"
	"github.com/licenciador/licensing-api/internal/notify"
)

type capturePublisher struct {
	events []notify.RevokedEvent
	err    error
}

func (p *capturePublisher) PublishLicenseRevoked(_ context.Context, event notify.RevokedEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func setupLicenseDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:license_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.User{}, &models.License{}, &models.DomainEvent{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func day(year int, month time.Month, dayOfMonth int) time.Time {
	return time.Date(year, month, dayOfMonth, 0, 0, 0, 0, time.UTC)
}

func mustCreateUser(t *testing.T, conn *gorm.DB, code, login string) *models.User {
	t.Helper()
	row := models.User{Code: code, Login: login, Level: models.LevelOperator, Password: "hash"}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return &row
}

func TestDaysBetween(t *testing.T) {
	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		want  int
	}{
		{"same day", day(2024, time.January, 1), day(2024, time.January, 1), 1},
		{"five day span", day(2024, time.January, 1), day(2024, time.January, 5), 5},
		{"across months", day(2024, time.January, 31), day(2024, time.February, 1), 2},
		{"end before start", day(2024, time.January, 5), day(2024, time.January, 1), 1},
		{"time of day ignored", day(2024, time.January, 1).Add(23 * time.Hour), day(2024, time.January, 2).Add(time.Minute), 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DaysBetween(tc.start, tc.end); got != tc.want {
				t.Fatalf("DaysBetween(%v, %v) = %d, want %d", tc.start, tc.end, got, tc.want)
			}
		})
	}
}
