package http

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	swaggerfiles "github.com/swaggo/files"
	ginswagger "github.com/swaggo/gin-swagger"

	"github.com/Johnmelogay/reparai-app-sub000/internal/config"
	"github.com/Johnmelogay/reparai-app-sub000/internal/http/handlers"
	"github.com/Johnmelogay/reparai-app-sub000/internal/http/middleware"
)

func NewRouter(cfg config.Config, logger zerolog.Logger, h *handlers.Handler) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = cfg.MaxUploadSizeMB << 20
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.DefaultConfig()
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = splitOrigins(cfg.CORSAllowed)
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", "X-Admin-Key", "X-Request-ID")
	corsCfg.MaxAge = 12 * time.Hour
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.POST("/funnel", h.FunnelStart)
		api.GET("/funnel/:id", h.FunnelGet)
		api.POST("/funnel/:id/answer", h.FunnelAnswer)
		api.POST("/funnel/:id/manual", h.FunnelManualText)
		api.POST("/funnel/:id/redo", h.FunnelRedo)
		api.POST("/funnel/:id/submit", h.FunnelSubmit)
		api.DELETE("/funnel/:id", h.FunnelCancel)

		api.GET("/requests", h.RequestsList)
		api.GET("/requests/:id", h.RequestDetails)
		api.GET("/providers", h.ProvidersList)

		admin := api.Group("")
		admin.Use(middleware.AdminKey(cfg.AdminKey))
		{
			admin.POST("/providers/import", h.ProvidersImport)
			admin.POST("/providers/regeocode", h.RegeocodeProviders)
		}
	}

	r.GET("/swagger/*any", ginswagger.WrapHandler(swaggerfiles.Handler))

	return r
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
