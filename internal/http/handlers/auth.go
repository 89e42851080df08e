package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/licenciador/licensing-api/internal/models"
	"github.com/licenciador/licensing-api/internal/security"
	"github.com/licenciador/licensing-api/internal/serviceerr"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	db        *gorm.DB
	jwtSecret string
	jwtExpiry time.Duration
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtSecret string, jwtExpiry time.Duration) *AuthHandler {
	return &AuthHandler{db: db, jwtSecret: jwtSecret, jwtExpiry: jwtExpiry}
}

// loginRequest defines the request body for login.
type loginRequest struct {
	Code     string `json:"code"`
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Login authenticates a user and issues a JWT.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		respondInvalidPayload(c, gin.H{"body": "JSON inválido."})
		return
	}
	code := strings.TrimSpace(body.Code)
	login := strings.TrimSpace(body.Login)
	password := strings.TrimSpace(body.Password)
	if code == "" || login == "" || password == "" {
		respondInvalidPayload(c, gin.H{"credentials": "Código, login e senha são obrigatórios."})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("code = ? AND login = ?", code, login).
		First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			respondError(c, serviceerr.Unauthorized("Credenciais inválidas."))
			return
		}
		respondError(c, serviceerr.Unexpected(errFind))
		return
	}
	if !security.CheckPassword(user.Password, password) {
		respondError(c, serviceerr.Unauthorized("Credenciais inválidas."))
		return
	}

	token, errToken := security.GenerateToken(h.jwtSecret, user.ID, user.Login, user.Code, user.Level, h.jwtExpiry)
	if errToken != nil {
		respondError(c, serviceerr.Unexpected(errToken))
		return
	}
	respondSuccess(c, http.StatusOK, "Login efetuado com sucesso.", gin.H{
		"token":      token,
		"expires_in": int(h.jwtExpiry.Seconds()),
		"user": gin.H{
			"id":    user.ID,
			"code":  user.Code,
			"login": user.Login,
			"level": user.Level,
		},
	})
}

// RefreshToken reissues a JWT for the authenticated caller.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	claims := getClaims(c)
	if claims == nil {
		respondError(c, serviceerr.Unauthorized("Credenciais inválidas."))
		return
	}
	token, errToken := security.GenerateToken(h.jwtSecret, claims.UserID, claims.Login, claims.Code, claims.Level, h.jwtExpiry)
	if errToken != nil {
		respondError(c, serviceerr.Unexpected(errToken))
		return
	}
	respondSuccess(c, http.StatusOK, "Token renovado com sucesso.", gin.H{
		"token":      token,
		"expires_in": int(h.jwtExpiry.Seconds()),
	})
}

// Logged reports the authenticated user.
func (h *AuthHandler) Logged(c *gin.Context) {
	claims := getClaims(c)
	if claims == nil {
		respondError(c, serviceerr.Unauthorized("Credenciais inválidas."))
		return
	}
	respondSuccess(c, http.StatusOK, "Usuário autenticado.", gin.H{
		"id":    claims.UserID,
		"code":  claims.Code,
		"login": claims.Login,
		"level": claims.Level,
	})
}

// Logout acknowledges a logout. Tokens are stateless; clients discard them.
func (h *AuthHandler) Logout(c *gin.Context) {
	respondSuccess(c, http.StatusOK, "Logout efetuado com sucesso.", nil)
}
