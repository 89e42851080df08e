package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/licenciador/licensing-api/internal/security"
	"github.com/licenciador/licensing-api/internal/serviceerr"
)

// Context keys set by the auth middleware.
const (
	// ContextClaims holds the parsed *security.Claims.
	ContextClaims = "claims"
	// ContextAuthID holds the resolved tenant identifier.
	ContextAuthID = "authID"
)

// getClaims extracts the authenticated claims from gin context.
func getClaims(c *gin.Context) *security.Claims {
	val, exists := c.Get(ContextClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*security.Claims)
	if !ok {
		return nil
	}
	return claims
}

// getAuthID extracts the tenant identifier from gin context.
func getAuthID(c *gin.Context) (uint64, bool) {
	val, exists := c.Get(ContextAuthID)
	if !exists {
		respondError(c, serviceerr.Unauthorized("Não autenticado."))
		return 0, false
	}
	id, ok := val.(uint64)
	if !ok || id == 0 {
		respondError(c, serviceerr.Unauthorized("Não autenticado."))
		return 0, false
	}
	return id, true
}

// paramID parses a numeric path parameter.
func paramID(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		respondError(c, serviceerr.Validation("Identificador inválido."))
		return 0, false
	}
	return id, true
}

// respondSuccess writes the success envelope.
func respondSuccess(c *gin.Context, httpStatus int, message string, data any) {
	body := gin.H{
		"status":  "success",
		"message": message,
	}
	if data != nil {
		body["data"] = data
	}
	c.JSON(httpStatus, body)
}

// respondError maps a service error kind to its HTTP status and writes the
// error envelope.
func respondError(c *gin.Context, err error) {
	httpStatus := http.StatusInternalServerError
	message := "Erro inesperado."
	switch serviceerr.KindOf(err) {
	case serviceerr.KindValidation, serviceerr.KindConflict:
		httpStatus = http.StatusBadRequest
		message = err.Error()
	case serviceerr.KindNotFound:
		httpStatus = http.StatusNotFound
		message = err.Error()
	case serviceerr.KindUnauthorized:
		httpStatus = http.StatusUnauthorized
		message = err.Error()
	case serviceerr.KindForbidden:
		httpStatus = http.StatusForbidden
		message = err.Error()
	}
	c.JSON(httpStatus, gin.H{
		"status":  "error",
		"message": message,
	})
}

// respondInvalidPayload writes the request-validation envelope.
func respondInvalidPayload(c *gin.Context, errs gin.H) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"status":  "error",
		"message": "Dados inválidos.",
		"errors":  errs,
	})
}

// Date layouts accepted in request payloads.
var dateLayouts = []string{"2006-01-02", time.RFC3339, "02/01/2006"}

// parseDate parses a payload date in any accepted layout.
func parseDate(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if parsed, errParse := time.Parse(layout, trimmed); errParse == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// formatDateTime renders a timestamp as d/m/Y H:i, or "-" when absent.
func formatDateTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("02/01/2006 15:04")
}

// formatDate renders a timestamp as d/m/Y, or "-" when absent.
func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("02/01/2006")
}

// formatISO renders a timestamp as ISO-8601, or "-" when absent.
func formatISO(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
