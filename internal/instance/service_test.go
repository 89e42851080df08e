package instance

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/licenciador/licensing-api/internal/models"
	"github.com/licenciador/licensing-api/internal/serviceerr"
)

func setupInstanceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:instance_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Instance{}, &models.InstanceUser{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func memberLogins(t *testing.T, conn *gorm.DB, instanceID uint64) []string {
	t.Helper()
	var rows []models.InstanceUser
	if errFind := conn.Where("instancia_id = ?", instanceID).Find(&rows).Error; errFind != nil {
		t.Fatalf("load members: %v", errFind)
	}
	logins := make([]string, 0, len(rows))
	for _, row := range rows {
		logins = append(logins, row.Login)
	}
	sort.Strings(logins)
	return logins
}

func TestStoreCreatesInstanceWithMembers(t *testing.T) {
	conn := setupInstanceDB(t)
	svc := NewService(conn)

	row, errStore := svc.Store(context.Background(), 7, "banca-01", []Member{
		{ExternalUserID: 100, Login: "cambista-a", Saldo: 50},
		{ExternalUserID: 101, Login: "cambista-b", Saldo: 0},
	})
	if errStore != nil {
		t.Fatalf("store: %v", errStore)
	}

	got := memberLogins(t, conn, row.ID)
	if len(got) != 2 || got[0] != "cambista-a" || got[1] != "cambista-b" {
		t.Fatalf("unexpected members %v", got)
	}
}

func TestStoreRejectsDuplicateNameWithinTenant(t *testing.T) {
	conn := setupInstanceDB(t)
	svc := NewService(conn)

	if _, errFirst := svc.Store(context.Background(), 7, "banca-01", nil); errFirst != nil {
		t.Fatalf("store: %v", errFirst)
	}
	_, errDup := svc.Store(context.Background(), 7, "banca-01", nil)
	if serviceerr.KindOf(errDup) != serviceerr.KindConflict {
		t.Fatalf("expected conflict, got %v", errDup)
	}

	// Same name under another tenant is fine.
	if _, errOther := svc.Store(context.Background(), 8, "banca-01", nil); errOther != nil {
		t.Fatalf("store other tenant: %v", errOther)
	}
}

func TestReconcileUpsertsAndDeletesByExclusion(t *testing.T) {
	conn := setupInstanceDB(t)
	svc := NewService(conn)

	row, errStore := svc.Store(context.Background(), 7, "banca-01", []Member{
		{ExternalUserID: 100, Login: "cambista-a", Saldo: 50},
		{ExternalUserID: 101, Login: "cambista-b", Saldo: 10},
	})
	if errStore != nil {
		t.Fatalf("store: %v", errStore)
	}

	var existing models.InstanceUser
	if errFind := conn.Where("instancia_id = ? AND usuario_id = ?", row.ID, 100).First(&existing).Error; errFind != nil {
		t.Fatalf("load member: %v", errFind)
	}

	// Keep 100 with new saldo, add 102, drop 101.
	desired := []Member{
		{RecordID: &existing.ID, ExternalUserID: 100, Login: "cambista-a", Saldo: 75},
		{ExternalUserID: 102, Login: "cambista-c", Saldo: 5},
	}
	if errReconcile := svc.Reconcile(context.Background(), 7, row.ID, "banca-01", desired); errReconcile != nil {
		t.Fatalf("reconcile: %v", errReconcile)
	}

	got := memberLogins(t, conn, row.ID)
	if len(got) != 2 || got[0] != "cambista-a" || got[1] != "cambista-c" {
		t.Fatalf("unexpected members %v", got)
	}
	var updated models.InstanceUser
	if errFind := conn.First(&updated, existing.ID).Error; errFind != nil {
		t.Fatalf("reload member: %v", errFind)
	}
	if updated.Saldo != 75 {
		t.Fatalf("expected saldo 75, got %v", updated.Saldo)
	}

	// Resubmitting the same list changes nothing.
	if errAgain := svc.Reconcile(context.Background(), 7, row.ID, "banca-01", desired); errAgain != nil {
		t.Fatalf("second reconcile: %v", errAgain)
	}
	if again := memberLogins(t, conn, row.ID); len(again) != 2 {
		t.Fatalf("reconcile must be idempotent, got %v", again)
	}
}

func TestReconcileResubmitWithoutRecordIDsDoesNotDuplicate(t *testing.T) {
	conn := setupInstanceDB(t)
	svc := NewService(conn)

	row, errStore := svc.Store(context.Background(), 7, "banca-01", nil)
	if errStore != nil {
		t.Fatalf("store: %v", errStore)
	}

	desired := []Member{
		{ExternalUserID: 100, Login: "cambista-a", Saldo: 50},
		{ExternalUserID: 101, Login: "cambista-b", Saldo: 10},
	}
	for i := 0; i < 3; i++ {
		if errReconcile := svc.Reconcile(context.Background(), 7, row.ID, "", desired); errReconcile != nil {
			t.Fatalf("reconcile %d: %v", i, errReconcile)
		}
	}

	var count int64
	conn.Model(&models.InstanceUser{}).Where("instancia_id = ?", row.ID).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 member rows after resubmits, got %d", count)
	}

	// A changed entry without record id overwrites the stored row in place.
	desired[0].Saldo = 80
	if errReconcile := svc.Reconcile(context.Background(), 7, row.ID, "", desired); errReconcile != nil {
		t.Fatalf("reconcile with new saldo: %v", errReconcile)
	}
	var member models.InstanceUser
	if errFind := conn.Where("instancia_id = ? AND usuario_id = ?", row.ID, 100).First(&member).Error; errFind != nil {
		t.Fatalf("load member: %v", errFind)
	}
	if member.Saldo != 80 {
		t.Fatalf("expected saldo 80, got %v", member.Saldo)
	}
}

func TestReconcileEmptyListClearsMembership(t *testing.T) {
	conn := setupInstanceDB(t)
	svc := NewService(conn)

	row, errStore := svc.Store(context.Background(), 7, "banca-01", []Member{
		{ExternalUserID: 100, Login: "cambista-a", Saldo: 50},
	})
	if errStore != nil {
		t.Fatalf("store: %v", errStore)
	}

	if errReconcile := svc.Reconcile(context.Background(), 7, row.ID, "", nil); errReconcile != nil {
		t.Fatalf("reconcile: %v", errReconcile)
	}
	if got := memberLogins(t, conn, row.ID); len(got) != 0 {
		t.Fatalf("expected empty membership, got %v", got)
	}
}

func TestReconcileRejectsForeignRecordWithoutWrites(t *testing.T) {
	conn := setupInstanceDB(t)
	svc := NewService(conn)

	mine, errMine := svc.Store(context.Background(), 7, "banca-01", []Member{
		{ExternalUserID: 100, Login: "cambista-a", Saldo: 50},
	})
	if errMine != nil {
		t.Fatalf("store mine: %v", errMine)
	}
	theirs, errTheirs := svc.Store(context.Background(), 8, "banca-02", []Member{
		{ExternalUserID: 200, Login: "estranho", Saldo: 5},
	})
	if errTheirs != nil {
		t.Fatalf("store theirs: %v", errTheirs)
	}

	var foreign models.InstanceUser
	if errFind := conn.Where("instancia_id = ?", theirs.ID).First(&foreign).Error; errFind != nil {
		t.Fatalf("load foreign member: %v", errFind)
	}

	desired := []Member{
		{RecordID: &foreign.ID, ExternalUserID: 200, Login: "hijack", Saldo: 999},
	}
	errReconcile := svc.Reconcile(context.Background(), 7, mine.ID, "", desired)
	if serviceerr.KindOf(errReconcile) != serviceerr.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", errReconcile)
	}

	// Nothing was touched on either side.
	if got := memberLogins(t, conn, mine.ID); len(got) != 1 || got[0] != "cambista-a" {
		t.Fatalf("own membership changed: %v", got)
	}
	var untouched models.InstanceUser
	if errFind := conn.First(&untouched, foreign.ID).Error; errFind != nil {
		t.Fatalf("reload foreign: %v", errFind)
	}
	if untouched.Login != "estranho" || untouched.Saldo != 5 {
		t.Fatalf("foreign member changed: %+v", untouched)
	}
}

func TestReconcileUnknownInstanceFails(t *testing.T) {
	conn := setupInstanceDB(t)
	svc := NewService(conn)

	errReconcile := svc.Reconcile(context.Background(), 7, 999, "", nil)
	if serviceerr.KindOf(errReconcile) != serviceerr.KindNotFound {
		t.Fatalf("expected not found, got %v", errReconcile)
	}
}

func TestReconcileCannotReachOtherTenantsInstance(t *testing.T) {
	conn := setupInstanceDB(t)
	svc := NewService(conn)

	theirs, errStore := svc.Store(context.Background(), 8, "banca-02", nil)
	if errStore != nil {
		t.Fatalf("store: %v", errStore)
	}

	errReconcile := svc.Reconcile(context.Background(), 7, theirs.ID, "renamed", nil)
	if serviceerr.KindOf(errReconcile) != serviceerr.KindNotFound {
		t.Fatalf("expected not found for foreign instance, got %v", errReconcile)
	}
}

func TestCloneCopiesMembersWithFreshIDs(t *testing.T) {
	conn := setupInstanceDB(t)
	svc := NewService(conn)

	original, errStore := svc.Store(context.Background(), 7, "banca-01", []Member{
		{ExternalUserID: 100, Login: "cambista-a", Saldo: 50},
		{ExternalUserID: 101, Login: "cambista-b", Saldo: 10},
		{ExternalUserID: 102, Login: "cambista-c", Saldo: 0},
	})
	if errStore != nil {
		t.Fatalf("store: %v", errStore)
	}

	cloned, errClone := svc.Clone(context.Background(), 7, original.ID)
	if errClone != nil {
		t.Fatalf("clone: %v", errClone)
	}
	if cloned.Nome != "banca-01 - Cópia" {
		t.Fatalf("unexpected clone name %q", cloned.Nome)
	}
	if cloned.ID == original.ID {
		t.Fatal("clone must get a fresh id")
	}

	var originalMembers, clonedMembers []models.InstanceUser
	conn.Where("instancia_id = ?", original.ID).Find(&originalMembers)
	conn.Where("instancia_id = ?", cloned.ID).Find(&clonedMembers)
	if len(clonedMembers) != 3 {
		t.Fatalf("expected 3 cloned members, got %d", len(clonedMembers))
	}
	seen := map[uint64]bool{}
	for _, member := range originalMembers {
		seen[member.ID] = true
	}
	for _, member := range clonedMembers {
		if seen[member.ID] {
			t.Fatalf("cloned member reused id %d", member.ID)
		}
	}

	// A second clone collides on the derived name.
	_, errAgain := svc.Clone(context.Background(), 7, original.ID)
	if serviceerr.KindOf(errAgain) != serviceerr.KindConflict {
		t.Fatalf("expected conflict on repeated clone, got %v", errAgain)
	}
}

func TestDeleteRemovesInstanceAndMembers(t *testing.T) {
	conn := setupInstanceDB(t)
	svc := NewService(conn)

	row, errStore := svc.Store(context.Background(), 7, "banca-01", []Member{
		{ExternalUserID: 100, Login: "cambista-a", Saldo: 50},
	})
	if errStore != nil {
		t.Fatalf("store: %v", errStore)
	}

	if errDelete := svc.Delete(context.Background(), 7, row.ID); errDelete != nil {
		t.Fatalf("delete: %v", errDelete)
	}
	var instances, members int64
	conn.Model(&models.Instance{}).Count(&instances)
	conn.Model(&models.InstanceUser{}).Count(&members)
	if instances != 0 || members != 0 {
		t.Fatalf("expected empty tables, got %d instances and %d members", instances, members)
	}
}
