package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/timmy/vismatch/internal/api/handler"
	"github.com/timmy/vismatch/internal/api/middleware"
	"github.com/timmy/vismatch/internal/service"
)

// RouterConfig holds the HTTP-level settings of the router.
type RouterConfig struct {
	Mode        string
	MaxUploadMB int
	JWTSecret   string // empty disables authentication
	CORS        middleware.CORSConfig
}

// Services are the application services the routes expose. History may be nil.
type Services struct {
	Match    *service.MatchService
	Catalog  *service.CatalogService
	History  *service.HistoryService
	Strategy string
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(svc *Services, cfg *RouterConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	maxBytes := int64(cfg.MaxUploadMB) << 20
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}

	r := gin.New()
	r.MaxMultipartMemory = maxBytes

	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Metrics())

	healthHandler := handler.NewHealthHandler(svc.Strategy)
	matchHandler := handler.NewMatchHandler(svc.Match, maxBytes)
	productHandler := handler.NewProductHandler(svc.Catalog, maxBytes)
	adminHandler := handler.NewAdminHandler(svc.Catalog)

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(middleware.OptionalAuth(cfg.JWTSecret))
	{
		api.GET("/health", healthHandler.APIHealth)
		api.POST("/match", matchHandler.Match)
		api.GET("/products", productHandler.List)
		api.POST("/products/add", productHandler.Add)

		if svc.History != nil {
			historyHandler := handler.NewHistoryHandler(svc.History)
			api.GET("/history", middleware.RequireAuth(cfg.JWTSecret), historyHandler.List)
		}

		admin := api.Group("/admin", middleware.RequireAuth(cfg.JWTSecret))
		admin.POST("/precompute", adminHandler.TriggerPrecompute)
		admin.GET("/precompute/status", adminHandler.GetPrecomputeStatus)
	}

	return r
}
