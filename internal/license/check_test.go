package license

import (
	"context"
	"testing"
	"time"

	"github.com/licenciador/licensing-api/internal/clock"
	"github.com/licenciador/licensing-api/internal/models"
	"github.com/licenciador/licensing-api/internal/serviceerr"
)

func TestCheckValidLicenseRecordsLastUse(t *testing.T) {
	conn := setupLicenseDB(t)
	now := day(2024, time.March, 10).Add(14 * time.Hour)
	svc := NewService(conn, clock.Fixed{Instant: now}, nil)
	owner := mustCreateUser(t, conn, "1001", "alpha")
	start := day(2024, time.March, 1)
	expires := day(2024, time.March, 10)
	created, errCreate := svc.Create(context.Background(), owner.ID, CreateParams{StartAt: &start, ExpiresAt: &expires})
	if errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}

	// Expiry day itself still validates: the window closes at end of day.
	row, errCheck := svc.Check(context.Background(), created.UUID)
	if errCheck != nil {
		t.Fatalf("check: %v", errCheck)
	}
	if row.ID != created.ID {
		t.Fatalf("expected license %d, got %d", created.ID, row.ID)
	}

	var reloaded models.License
	if errFind := conn.First(&reloaded, created.ID).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if reloaded.LastUse == nil || !reloaded.LastUse.Equal(now) {
		t.Fatalf("expected last_use %v, got %v", now, reloaded.LastUse)
	}
}

func TestCheckDeniesPastExpiryEvenBeforeSweep(t *testing.T) {
	conn := setupLicenseDB(t)
	svc := NewService(conn, clock.Fixed{Instant: day(2024, time.March, 11)}, nil)
	owner := mustCreateUser(t, conn, "1001", "alpha")
	start := day(2024, time.March, 1)
	expires := day(2024, time.March, 10)
	created, errCreate := svc.Create(context.Background(), owner.ID, CreateParams{StartAt: &start, ExpiresAt: &expires})
	if errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}

	// Stored status is still active; the date alone must deny.
	_, errCheck := svc.Check(context.Background(), created.UUID)
	if serviceerr.KindOf(errCheck) != serviceerr.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", errCheck)
	}
}

func TestCheckDeniesRevokedAndUnknownAlike(t *testing.T) {
	conn := setupLicenseDB(t)
	svc := NewService(conn, clock.Fixed{Instant: day(2024, time.March, 10)}, nil)
	owner := mustCreateUser(t, conn, "1001", "alpha")
	created, errCreate := svc.Create(context.Background(), owner.ID, CreateParams{Lifetime: true})
	if errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}
	if _, errRevoke := svc.Revoke(context.Background(), created.ID); errRevoke != nil {
		t.Fatalf("revoke: %v", errRevoke)
	}

	_, errRevoked := svc.Check(context.Background(), created.UUID)
	if serviceerr.KindOf(errRevoked) != serviceerr.KindUnauthorized {
		t.Fatalf("expected unauthorized for revoked, got %v", errRevoked)
	}
	_, errUnknown := svc.Check(context.Background(), "no-such-uuid")
	if serviceerr.KindOf(errUnknown) != serviceerr.KindUnauthorized {
		t.Fatalf("expected unauthorized for unknown, got %v", errUnknown)
	}
	if errRevoked.Error() != errUnknown.Error() {
		t.Fatalf("denial messages must not differ: %q vs %q", errRevoked.Error(), errUnknown.Error())
	}

	var reloaded models.License
	if errFind := conn.First(&reloaded, created.ID).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if reloaded.LastUse != nil {
		t.Fatal("denied check must not record last_use")
	}
}
