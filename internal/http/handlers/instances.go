package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/licenciador/licensing-api/internal/instance"
	"github.com/licenciador/licensing-api/internal/models"
)

// InstanceHandler handles the per-tenant instance endpoints.
type InstanceHandler struct {
	instances *instance.Service
}

// NewInstanceHandler constructs an InstanceHandler.
func NewInstanceHandler(instances *instance.Service) *InstanceHandler {
	return &InstanceHandler{instances: instances}
}

// instanceUserPayload is one membership entry as sent by clients. The id_pk
// field is the stored row id; id is the user id on the client side.
type instanceUserPayload struct {
	IDPk  *uint64 `json:"id_pk"`
	ID    uint64  `json:"id"`
	Login string  `json:"login"`
	Saldo float64 `json:"saldo"`
}

// instanceRequest defines the store and update payload.
type instanceRequest struct {
	Nome     string                `json:"nome"`
	Usuarios []instanceUserPayload `json:"usuarios"`
}

// bindInstance parses and validates the instance payload.
func bindInstance(c *gin.Context) (string, []instance.Member, bool) {
	var body instanceRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		respondInvalidPayload(c, gin.H{"body": "JSON inválido."})
		return "", nil, false
	}
	nome := strings.TrimSpace(body.Nome)
	if nome == "" {
		respondInvalidPayload(c, gin.H{"nome": "Nome é obrigatório."})
		return "", nil, false
	}
	members := make([]instance.Member, 0, len(body.Usuarios))
	for _, entry := range body.Usuarios {
		login := strings.TrimSpace(entry.Login)
		if entry.ID == 0 || login == "" {
			respondInvalidPayload(c, gin.H{"usuarios": "Cada usuário precisa de id e login."})
			return "", nil, false
		}
		if entry.Saldo < 0 {
			respondInvalidPayload(c, gin.H{"usuarios": "Saldo não pode ser negativo."})
			return "", nil, false
		}
		members = append(members, instance.Member{
			RecordID:       entry.IDPk,
			ExternalUserID: entry.ID,
			Login:          login,
			Saldo:          entry.Saldo,
		})
	}
	return nome, members, true
}

// serializeInstance maps an instance and its members into the response shape.
func serializeInstance(row *models.Instance) gin.H {
	users := make([]gin.H, 0, len(row.InstanceUsers))
	for _, member := range row.InstanceUsers {
		users = append(users, gin.H{
			"id_pk": member.ID,
			"id":    member.UsuarioID,
			"login": member.Login,
			"saldo": member.Saldo,
		})
	}
	return gin.H{
		"id":             row.ID,
		"nome":           row.Nome,
		"usuarios":       users,
		"usuarios_count": len(users),
		"created_at":     row.CreatedAt.Format("02/01/2006 15:04"),
		"updated_at":     row.UpdatedAt.Format("02/01/2006 15:04"),
	}
}

// Index lists the authenticated tenant's instances.
func (h *InstanceHandler) Index(c *gin.Context) {
	authID, ok := getAuthID(c)
	if !ok {
		return
	}
	rows, errList := h.instances.List(c.Request.Context(), authID)
	if errList != nil {
		respondError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, serializeInstance(&rows[i]))
	}
	message := "Registros encontrados com sucesso."
	if len(out) == 0 {
		message = "Nenhum registro encontrado."
	}
	respondSuccess(c, http.StatusOK, message, out)
}

// Show returns a single instance owned by the tenant.
func (h *InstanceHandler) Show(c *gin.Context) {
	authID, ok := getAuthID(c)
	if !ok {
		return
	}
	id, okID := paramID(c, "id")
	if !okID {
		return
	}
	row, errShow := h.instances.Show(c.Request.Context(), authID, id)
	if errShow != nil {
		respondError(c, errShow)
		return
	}
	respondSuccess(c, http.StatusOK, "Registro encontrado com sucesso.", serializeInstance(row))
}

// Store creates an instance with its initial members.
func (h *InstanceHandler) Store(c *gin.Context) {
	authID, ok := getAuthID(c)
	if !ok {
		return
	}
	nome, members, okBind := bindInstance(c)
	if !okBind {
		return
	}
	row, errStore := h.instances.Store(c.Request.Context(), authID, nome, members)
	if errStore != nil {
		respondError(c, errStore)
		return
	}
	respondSuccess(c, http.StatusCreated, "Instância cadastrada com sucesso.", serializeInstance(row))
}

// Update reconciles an instance's name and membership with the payload.
// Members present are upserted; members absent are removed.
func (h *InstanceHandler) Update(c *gin.Context) {
	authID, ok := getAuthID(c)
	if !ok {
		return
	}
	id, okID := paramID(c, "id")
	if !okID {
		return
	}
	nome, members, okBind := bindInstance(c)
	if !okBind {
		return
	}
	if errReconcile := h.instances.Reconcile(c.Request.Context(), authID, id, nome, members); errReconcile != nil {
		respondError(c, errReconcile)
		return
	}
	row, errShow := h.instances.Show(c.Request.Context(), authID, id)
	if errShow != nil {
		respondError(c, errShow)
		return
	}
	respondSuccess(c, http.StatusOK, "Instância atualizada com sucesso.", serializeInstance(row))
}

// Clone duplicates an instance and its members under a new name.
func (h *InstanceHandler) Clone(c *gin.Context) {
	authID, ok := getAuthID(c)
	if !ok {
		return
	}
	id, okID := paramID(c, "id")
	if !okID {
		return
	}
	row, errClone := h.instances.Clone(c.Request.Context(), authID, id)
	if errClone != nil {
		respondError(c, errClone)
		return
	}
	respondSuccess(c, http.StatusCreated, "Instância clonada com sucesso.", serializeInstance(row))
}

// Destroy removes an instance and its members.
func (h *InstanceHandler) Destroy(c *gin.Context) {
	authID, ok := getAuthID(c)
	if !ok {
		return
	}
	id, okID := paramID(c, "id")
	if !okID {
		return
	}
	if errDelete := h.instances.Delete(c.Request.Context(), authID, id); errDelete != nil {
		respondError(c, errDelete)
		return
	}
	respondSuccess(c, http.StatusOK, "Instância removida com sucesso.", nil)
}
