package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/licenciador/licensing-api/internal/http/handlers"
)

// RouterDeps carries the handlers wired into the route tree.
type RouterDeps struct {
	JWTSecret string
	Auth      *handlers.AuthHandler
	Licenses  *handlers.LicenseHandler
	Instances *handlers.InstanceHandler
	Users     *handlers.UserHandler
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestLogger())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api/v1")

	api.POST("/auth/login", deps.Auth.Login)

	authed := api.Group("")
	authed.Use(AuthMiddleware(deps.JWTSecret))

	authed.POST("/auth/refresh-token", deps.Auth.RefreshToken)
	authed.GET("/auth/logged", deps.Auth.Logged)
	authed.POST("/auth/logout", deps.Auth.Logout)

	authed.GET("/license", deps.Licenses.List)
	authed.POST("/license", deps.Licenses.Store)
	authed.PUT("/license/:id", deps.Licenses.Update)
	authed.DELETE("/license/:id", deps.Licenses.Destroy)
	authed.POST("/license/:id/revoke", deps.Licenses.Revoke)
	authed.POST("/license/:id/renew", deps.Licenses.Renew)
	authed.POST("/license/revoke-batch", deps.Licenses.RevokeBatch)
	authed.POST("/license/renew-batch", deps.Licenses.RenewBatch)
	authed.POST("/license/delete-batch", deps.Licenses.DestroyBatch)
	authed.POST("/license/check", deps.Licenses.Check)
	authed.POST("/license/metrics", deps.Licenses.Metrics)

	authed.GET("/instancias", deps.Instances.Index)
	authed.GET("/instancias/:id", deps.Instances.Show)
	authed.POST("/instancias", deps.Instances.Store)
	authed.PUT("/instancias/:id", deps.Instances.Update)
	authed.POST("/instancias/:id/clone", deps.Instances.Clone)
	authed.DELETE("/instancias/:id", deps.Instances.Destroy)

	admin := authed.Group("/users")
	admin.Use(RequireSuper())
	admin.POST("", deps.Users.Store)
	admin.PUT("/:id", deps.Users.Update)
	admin.DELETE("/:id", deps.Users.Destroy)

	return engine
}
