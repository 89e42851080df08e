package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/licenciador/licensing-api/internal/http/handlers"
	"github.com/licenciador/licensing-api/internal/models"
	"github.com/licenciador/licensing-api/internal/security"
)

// AuthMiddleware validates the Bearer token and stores the claims and the
// resolved tenant identifier in the request context. The X-Auth-Id header,
// when present, overrides the tenant derived from the token.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "Token de acesso ausente.",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		claims, errParse := security.ParseToken(jwtSecret, token)
		if errParse != nil {
			message := "Token de acesso inválido."
			if errors.Is(errParse, security.ErrExpiredToken) {
				message = "Token de acesso expirado."
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": message,
			})
			return
		}

		authID := claims.UserID
		if override := strings.TrimSpace(c.GetHeader("X-Auth-Id")); override != "" {
			parsed, errHeader := strconv.ParseUint(override, 10, 64)
			if errHeader != nil || parsed == 0 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"status":  "error",
					"message": "Cabeçalho X-Auth-Id inválido.",
				})
				return
			}
			authID = parsed
		}

		c.Set(handlers.ContextClaims, claims)
		c.Set(handlers.ContextAuthID, authID)
		c.Next()
	}
}

// RequireSuper allows only users at super level past this point.
func RequireSuper() gin.HandlerFunc {
	return func(c *gin.Context) {
		val, exists := c.Get(handlers.ContextClaims)
		claims, ok := val.(*security.Claims)
		if !exists || !ok || claims.Level != models.LevelSuper {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"status":  "error",
				"message": "Usuário não possui permissão necessária para esta ação.",
			})
			return
		}
		c.Next()
	}
}

// RequestLogger emits one structured line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).String(),
			"client":  c.ClientIP(),
		}).Info("request handled")
	}
}
