package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/licenciador/licensing-api/internal/models"
	"github.com/licenciador/licensing-api/internal/user"
)

// UserHandler handles administrative user management. All routes require
// super level.
type UserHandler struct {
	users *user.Service
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(users *user.Service) *UserHandler {
	return &UserHandler{users: users}
}

// serializeUser maps a user row into the response shape.
func serializeUser(row *models.User) gin.H {
	return gin.H{
		"id":    row.ID,
		"code":  row.Code,
		"login": row.Login,
		"level": row.Level,
	}
}

// createUserRequest defines the creation payload.
type createUserRequest struct {
	Code     string `json:"code"`
	Login    string `json:"login"`
	Level    string `json:"level"`
	Password string `json:"password"`
}

// Store creates a user with its lifetime license.
func (h *UserHandler) Store(c *gin.Context) {
	var body createUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		respondInvalidPayload(c, gin.H{"body": "JSON inválido."})
		return
	}
	code := strings.TrimSpace(body.Code)
	login := strings.TrimSpace(body.Login)
	password := strings.TrimSpace(body.Password)
	if code == "" || login == "" || password == "" {
		respondInvalidPayload(c, gin.H{"payload": "Código, login e senha são obrigatórios."})
		return
	}

	row, errCreate := h.users.Create(c.Request.Context(), user.CreateParams{
		Code:     code,
		Login:    login,
		Level:    strings.TrimSpace(body.Level),
		Password: password,
	})
	if errCreate != nil {
		respondError(c, errCreate)
		return
	}
	respondSuccess(c, http.StatusCreated, "Usuário cadastrado com sucesso.", serializeUser(row))
}

// updateUserRequest defines the update payload; nil fields are kept.
type updateUserRequest struct {
	Code     *string `json:"code"`
	Login    *string `json:"login"`
	Level    *string `json:"level"`
	Password *string `json:"password"`
}

// Update rewrites user fields.
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body updateUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		respondInvalidPayload(c, gin.H{"body": "JSON inválido."})
		return
	}

	row, errUpdate := h.users.Update(c.Request.Context(), id, user.UpdateParams{
		Code:     body.Code,
		Login:    body.Login,
		Level:    body.Level,
		Password: body.Password,
	})
	if errUpdate != nil {
		respondError(c, errUpdate)
		return
	}
	respondSuccess(c, http.StatusOK, "Usuário atualizado com sucesso.", serializeUser(row))
}

// Destroy removes a user and its license.
func (h *UserHandler) Destroy(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if errDelete := h.users.Delete(c.Request.Context(), id); errDelete != nil {
		respondError(c, errDelete)
		return
	}
	respondSuccess(c, http.StatusOK, "Usuário removido com sucesso.", nil)
}
