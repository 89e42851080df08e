package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/licenciador/licensing-api/internal/clock"
	"github.com/licenciador/licensing-api/internal/db"
	"github.com/licenciador/licensing-api/internal/http/handlers"
	"github.com/licenciador/licensing-api/internal/instance"
	"github.com/licenciador/licensing-api/internal/license"
	"github.com/licenciador/licensing-api/internal/models"
	"github.com/licenciador/licensing-api/internal/security"
	"github.com/licenciador/licensing-api/internal/user"
)

const testSecret = "router-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func setupAPI(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	licenses := license.NewService(conn, clock.System{}, nil)
	instances := instance.NewService(conn)
	users := user.NewService(conn, licenses)

	router := NewRouter(RouterDeps{
		JWTSecret: testSecret,
		Auth:      handlers.NewAuthHandler(conn, testSecret, time.Hour),
		Licenses:  handlers.NewLicenseHandler(licenses),
		Instances: handlers.NewInstanceHandler(instances),
		Users:     handlers.NewUserHandler(users),
	})
	return router, conn
}

func seedAccount(t *testing.T, conn *gorm.DB, code, login, password, level string) *models.User {
	t.Helper()
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		t.Fatalf("hash: %v", errHash)
	}
	row := models.User{Code: code, Login: login, Level: level, Password: hash}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return &row
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, errMarshal := json.Marshal(payload)
		if errMarshal != nil {
			t.Fatalf("marshal: %v", errMarshal)
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope map[string]any
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &envelope); errDecode != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), errDecode)
	}
	return envelope
}

func loginToken(t *testing.T, router *gin.Engine, code, login, password string) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"code": code, "login": login, "password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}
	envelope := decodeEnvelope(t, rec)
	data, ok := envelope["data"].(map[string]any)
	if !ok {
		t.Fatalf("missing data in %v", envelope)
	}
	token, ok := data["token"].(string)
	if !ok || token == "" {
		t.Fatalf("missing token in %v", data)
	}
	return token
}

func TestLoginAndProtectedRoutes(t *testing.T) {
	router, conn := setupAPI(t)
	seedAccount(t, conn, "1001", "alpha", "secret", models.LevelOperator)

	if rec := doJSON(t, router, http.MethodGet, "/api/v1/license", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodGet, "/api/v1/license", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}

	badLogin := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"code": "1001", "login": "alpha", "password": "wrong",
	})
	if badLogin.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", badLogin.Code)
	}

	token := loginToken(t, router, "1001", "alpha", "secret")
	rec := doJSON(t, router, http.MethodGet, "/api/v1/license", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rec.Code, rec.Body.String())
	}
	envelope := decodeEnvelope(t, rec)
	if envelope["status"] != "success" {
		t.Fatalf("unexpected envelope %v", envelope)
	}
}

func TestUserRoutesRequireSuperLevel(t *testing.T) {
	router, conn := setupAPI(t)
	seedAccount(t, conn, "1001", "operator", "secret", models.LevelOperator)
	seedAccount(t, conn, "0", "root", "topsecret", models.LevelSuper)

	payload := gin.H{"code": "3003", "login": "novo", "password": "secret"}

	operatorToken := loginToken(t, router, "1001", "operator", "secret")
	if rec := doJSON(t, router, http.MethodPost, "/api/v1/users", operatorToken, payload); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator, got %d", rec.Code)
	}

	superToken := loginToken(t, router, "0", "root", "topsecret")
	rec := doJSON(t, router, http.MethodPost, "/api/v1/users", superToken, payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for super, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCheckEndpoint(t *testing.T) {
	router, conn := setupAPI(t)
	owner := seedAccount(t, conn, "1001", "alpha", "secret", models.LevelOperator)

	licenses := license.NewService(conn, clock.System{}, nil)
	grant, errCreate := licenses.Create(context.Background(), owner.ID, license.CreateParams{Lifetime: true})
	if errCreate != nil {
		t.Fatalf("create license: %v", errCreate)
	}

	token := loginToken(t, router, "1001", "alpha", "secret")

	ok := doJSON(t, router, http.MethodPost, "/api/v1/license/check", token, gin.H{"uuid": grant.UUID})
	if ok.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid license, got %d: %s", ok.Code, ok.Body.String())
	}
	body := decodeEnvelope(t, ok)
	payload, _ := body["data"].(map[string]any)
	rawChecked, _ := payload["checked_at"].(string)
	checkedAt, errParse := time.Parse(time.RFC3339, rawChecked)
	if errParse != nil {
		t.Fatalf("checked_at not RFC3339: %v (%q)", errParse, rawChecked)
	}
	var stored models.License
	if errLoad := conn.First(&stored, grant.ID).Error; errLoad != nil {
		t.Fatalf("reload license: %v", errLoad)
	}
	if stored.LastUse == nil || !checkedAt.Equal(stored.LastUse.UTC().Truncate(time.Second)) {
		t.Fatalf("checked_at %v should match recorded last use %v", checkedAt, stored.LastUse)
	}

	denied := doJSON(t, router, http.MethodPost, "/api/v1/license/check", token, gin.H{"uuid": "no-such"})
	if denied.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown uuid, got %d", denied.Code)
	}

	missing := doJSON(t, router, http.MethodPost, "/api/v1/license/check", token, gin.H{})
	if missing.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for missing uuid, got %d", missing.Code)
	}
}

func TestInstanceTenantScopingViaHeader(t *testing.T) {
	router, conn := setupAPI(t)
	seedAccount(t, conn, "1001", "alpha", "secret", models.LevelOperator)
	token := loginToken(t, router, "1001", "alpha", "secret")

	payload := gin.H{
		"nome": "banca-01",
		"usuarios": []gin.H{
			{"id": 100, "login": "cambista-a", "saldo": 50},
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/instancias", bytes.NewBufferString(mustJSON(t, payload)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Auth-Id", "42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// The same tenant header sees the instance.
	listReq := httptest.NewRequest(http.MethodGet, "/api/v1/instancias", nil)
	listReq.Header.Set("Authorization", "Bearer "+token)
	listReq.Header.Set("X-Auth-Id", "42")
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)
	envelope := decodeEnvelope(t, listRec)
	data, _ := envelope["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("expected 1 instance for tenant 42, got %v", envelope)
	}
	item, _ := data[0].(map[string]any)
	if count, ok := item["usuarios_count"].(float64); !ok || count != 1 {
		t.Fatalf("expected usuarios_count 1, got %v", item["usuarios_count"])
	}
	for _, field := range []string{"created_at", "updated_at"} {
		if value, ok := item[field].(string); !ok || value == "" {
			t.Fatalf("expected %s in payload, got %v", field, item[field])
		}
	}

	// Another tenant sees nothing.
	otherReq := httptest.NewRequest(http.MethodGet, "/api/v1/instancias", nil)
	otherReq.Header.Set("Authorization", "Bearer "+token)
	otherReq.Header.Set("X-Auth-Id", "43")
	otherRec := httptest.NewRecorder()
	router.ServeHTTP(otherRec, otherReq)
	otherEnvelope := decodeEnvelope(t, otherRec)
	otherData, _ := otherEnvelope["data"].([]any)
	if len(otherData) != 0 {
		t.Fatalf("expected no instances for tenant 43, got %v", otherEnvelope)
	}
}

func TestNegativeSaldoRejected(t *testing.T) {
	router, conn := setupAPI(t)
	seedAccount(t, conn, "1001", "alpha", "secret", models.LevelOperator)
	token := loginToken(t, router, "1001", "alpha", "secret")

	payload := gin.H{
		"nome": "banca-01",
		"usuarios": []gin.H{
			{"id": 100, "login": "cambista-a", "saldo": -1},
		},
	}
	rec := doJSON(t, router, http.MethodPost, "/api/v1/instancias", token, payload)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for negative saldo, got %d: %s", rec.Code, rec.Body.String())
	}
}

func mustJSON(t *testing.T, payload any) string {
	t.Helper()
	raw, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		t.Fatalf("marshal: %v", errMarshal)
	}
	return string(raw)
}
