package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/licenciador/licensing-api/internal/license"
	"github.com/licenciador/licensing-api/internal/models"
	"github.com/licenciador/licensing-api/internal/serviceerr"
)

// LicenseHandler handles license administration and check endpoints.
type LicenseHandler struct {
	licenses *license.Service
}

// NewLicenseHandler constructs a LicenseHandler.
func NewLicenseHandler(licenses *license.Service) *LicenseHandler {
	return &LicenseHandler{licenses: licenses}
}

// List returns all operator licenses with their users, optionally
// narrowed by the search query parameter.
func (h *LicenseHandler) List(c *gin.Context) {
	rows, errList := h.licenses.List(c.Request.Context(), c.Query("search"))
	if errList != nil {
		respondError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, serializeLicense(&rows[i]))
	}
	message := "Registros encontrados com sucesso."
	if len(out) == 0 {
		message = "Nenhum registro encontrado."
	}
	respondSuccess(c, http.StatusOK, message, out)
}

// serializeLicense maps a license row into the admin list payload.
func serializeLicense(row *models.License) gin.H {
	lifetimeText := "Não"
	if row.Lifetime {
		lifetimeText = "Sim"
	}
	item := gin.H{
		"id":                     row.ID,
		"uuid":                   row.UUID,
		"status":                 row.Status,
		"status_translated":      row.StatusTranslated(),
		"severity_tag":           row.SeverityTag(),
		"start_at":               formatDateTime(row.StartAt),
		"expires_at":             formatDate(row.ExpiresAt),
		"expires_at_iso":         formatISO(row.ExpiresAt),
		"last_use":               formatDateTime(row.LastUse),
		"last_use_iso":           formatISO(row.LastUse),
		"lifetime":               row.Lifetime,
		"lifetime_text":          lifetimeText,
		"price":                  row.Price,
		"indication":             row.Indication,
		"cambistas_ativos_count": row.CambistasAtivosCount,
		"created_at":             row.CreatedAt.Format("02/01/2006 15:04"),
		"updated_at":             row.UpdatedAt.Format("02/01/2006 15:04"),
	}
	if row.User != nil {
		item["user"] = gin.H{
			"id":    row.User.ID,
			"code":  row.User.Code,
			"login": row.User.Login,
			"level": row.User.Level,
		}
	}
	return item
}

// storeLicenseUser is one user entry in the store payload.
type storeLicenseUser struct {
	Code     string `json:"code"`
	Login    string `json:"login"`
	Level    string `json:"level"`
	Password string `json:"password"`
}

// storeLicenseRequest defines the batch creation payload.
type storeLicenseRequest struct {
	Users      []storeLicenseUser `json:"users"`
	Lifetime   bool               `json:"lifetime"`
	StartAt    string             `json:"start_at"`
	ExpiresAt  string             `json:"expires_at"`
	Price      float64            `json:"price"`
	Indication *string            `json:"indication"`
}

// Store creates users and their licenses in one transaction.
func (h *LicenseHandler) Store(c *gin.Context) {
	var body storeLicenseRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		respondInvalidPayload(c, gin.H{"body": "JSON inválido."})
		return
	}
	if len(body.Users) == 0 {
		respondInvalidPayload(c, gin.H{"users": "Informe ao menos um usuário."})
		return
	}

	users := make([]license.NewUser, 0, len(body.Users))
	for _, entry := range body.Users {
		code := strings.TrimSpace(entry.Code)
		login := strings.TrimSpace(entry.Login)
		password := strings.TrimSpace(entry.Password)
		if code == "" || login == "" || password == "" {
			respondInvalidPayload(c, gin.H{"users": "Cada usuário precisa de código, login e senha."})
			return
		}
		users = append(users, license.NewUser{
			Code:     code,
			Login:    login,
			Level:    strings.TrimSpace(entry.Level),
			Password: password,
		})
	}

	params := license.CreateParams{
		Lifetime:   body.Lifetime,
		Price:      body.Price,
		Indication: body.Indication,
	}
	if !body.Lifetime {
		startAt, okStart := parseDate(body.StartAt)
		expiresAt, okExpires := parseDate(body.ExpiresAt)
		if !okStart || !okExpires {
			respondInvalidPayload(c, gin.H{"dates": "Datas de início e expiração são obrigatórias para licenças não vitalícias."})
			return
		}
		params.StartAt = &startAt
		params.ExpiresAt = &expiresAt
	}

	if errStore := h.licenses.Store(c.Request.Context(), users, params); errStore != nil {
		respondError(c, errStore)
		return
	}
	respondSuccess(c, http.StatusCreated, "Usuários e licenças cadastrados com sucesso.", nil)
}

// updateLicenseRequest defines the update payload; nil fields are kept.
type updateLicenseRequest struct {
	Code       *string  `json:"code"`
	Login      *string  `json:"login"`
	StartAt    *string  `json:"start_at"`
	ExpiresAt  *string  `json:"expires_at"`
	Lifetime   *bool    `json:"lifetime"`
	Price      *float64 `json:"price"`
	Indication *string  `json:"indication"`
}

// Update rewrites license and owner fields.
func (h *LicenseHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body updateLicenseRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		respondInvalidPayload(c, gin.H{"body": "JSON inválido."})
		return
	}

	params := license.UpdateParams{
		Code:       body.Code,
		Login:      body.Login,
		Lifetime:   body.Lifetime,
		Price:      body.Price,
		Indication: body.Indication,
	}
	if body.StartAt != nil {
		startAt, okParse := parseDate(*body.StartAt)
		if !okParse {
			respondInvalidPayload(c, gin.H{"start_at": "Data inválida."})
			return
		}
		params.StartAt = &startAt
	}
	if body.ExpiresAt != nil {
		expiresAt, okParse := parseDate(*body.ExpiresAt)
		if !okParse {
			respondInvalidPayload(c, gin.H{"expires_at": "Data inválida."})
			return
		}
		params.ExpiresAt = &expiresAt
	}

	row, errUpdate := h.licenses.Update(c.Request.Context(), id, params)
	if errUpdate != nil {
		respondError(c, errUpdate)
		return
	}
	respondSuccess(c, http.StatusOK, "Licença atualizada com sucesso.", serializeLicense(row))
}

// Destroy removes a license and its owning user.
func (h *LicenseHandler) Destroy(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if errDelete := h.licenses.Delete(c.Request.Context(), id); errDelete != nil {
		respondError(c, errDelete)
		return
	}
	respondSuccess(c, http.StatusOK, "Licença e usuário removidos com sucesso.", nil)
}

// Revoke revokes a single license.
func (h *LicenseHandler) Revoke(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	row, errRevoke := h.licenses.Revoke(c.Request.Context(), id)
	if errRevoke != nil {
		respondError(c, errRevoke)
		return
	}
	respondSuccess(c, http.StatusOK, "Licença revogada com sucesso.", serializeLicense(row))
}

// Renew renews a single license.
func (h *LicenseHandler) Renew(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	row, message, errRenew := h.licenses.Renew(c.Request.Context(), id)
	if errRenew != nil {
		respondError(c, errRenew)
		return
	}
	respondSuccess(c, http.StatusOK, message, serializeLicense(row))
}

// batchLicenseRequest defines the payload shared by the batch endpoints.
type batchLicenseRequest struct {
	IDs []uint64 `json:"ids"`
}

// bindBatch parses and validates the batch payload.
func bindBatch(c *gin.Context) ([]uint64, bool) {
	var body batchLicenseRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		respondInvalidPayload(c, gin.H{"body": "JSON inválido."})
		return nil, false
	}
	if len(body.IDs) == 0 {
		respondInvalidPayload(c, gin.H{"ids": "Informe ao menos uma licença."})
		return nil, false
	}
	return body.IDs, true
}

// RevokeBatch revokes a set of licenses atomically.
func (h *LicenseHandler) RevokeBatch(c *gin.Context) {
	ids, ok := bindBatch(c)
	if !ok {
		return
	}
	message, errBatch := h.licenses.RevokeBatch(c.Request.Context(), ids)
	if errBatch != nil {
		respondError(c, errBatch)
		return
	}
	respondSuccess(c, http.StatusOK, message, nil)
}

// RenewBatch renews a set of licenses atomically.
func (h *LicenseHandler) RenewBatch(c *gin.Context) {
	ids, ok := bindBatch(c)
	if !ok {
		return
	}
	message, errBatch := h.licenses.RenewBatch(c.Request.Context(), ids)
	if errBatch != nil {
		respondError(c, errBatch)
		return
	}
	respondSuccess(c, http.StatusOK, message, nil)
}

// DestroyBatch removes a set of licenses and owners atomically.
func (h *LicenseHandler) DestroyBatch(c *gin.Context) {
	ids, ok := bindBatch(c)
	if !ok {
		return
	}
	message, errBatch := h.licenses.DeleteBatch(c.Request.Context(), ids)
	if errBatch != nil {
		respondError(c, errBatch)
		return
	}
	respondSuccess(c, http.StatusOK, message, nil)
}

// checkLicenseRequest defines the end-user check payload.
type checkLicenseRequest struct {
	UUID string `json:"uuid"`
}

// Check answers whether the license currently authorizes use.
func (h *LicenseHandler) Check(c *gin.Context) {
	var body checkLicenseRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		respondInvalidPayload(c, gin.H{"body": "JSON inválido."})
		return
	}
	licenseUUID := strings.TrimSpace(body.UUID)
	if licenseUUID == "" {
		respondInvalidPayload(c, gin.H{"uuid": "UUID é obrigatório."})
		return
	}

	row, errCheck := h.licenses.Check(c.Request.Context(), licenseUUID)
	if errCheck != nil {
		respondError(c, errCheck)
		return
	}
	respondSuccess(c, http.StatusOK, "Usuário com licença válida.", gin.H{"checked_at": formatISO(row.LastUse)})
}

// metricsRequest defines the client metrics payload.
type metricsRequest struct {
	UUID                 string `json:"uuid"`
	CambistasAtivosCount *int   `json:"cambistas_ativos_count"`
}

// Metrics records the active sub-user count reported by the client.
func (h *LicenseHandler) Metrics(c *gin.Context) {
	var body metricsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		respondInvalidPayload(c, gin.H{"body": "JSON inválido."})
		return
	}
	licenseUUID := strings.TrimSpace(body.UUID)
	if licenseUUID == "" || body.CambistasAtivosCount == nil {
		respondInvalidPayload(c, gin.H{"payload": "UUID e contagem são obrigatórios."})
		return
	}
	if *body.CambistasAtivosCount < 0 {
		respondError(c, serviceerr.Validation("Contagem não pode ser negativa."))
		return
	}

	if _, errRecord := h.licenses.RecordMetrics(c.Request.Context(), licenseUUID, *body.CambistasAtivosCount); errRecord != nil {
		respondError(c, errRecord)
		return
	}
	respondSuccess(c, http.StatusOK, "Métricas registradas com sucesso.", nil)
}
