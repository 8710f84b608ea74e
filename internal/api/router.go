package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facereg/internal/activity"
	"github.com/your-org/facereg/internal/analyzer"
	"github.com/your-org/facereg/internal/api/handlers"
	"github.com/your-org/facereg/internal/api/ws"
	"github.com/your-org/facereg/internal/auth"
	"github.com/your-org/facereg/internal/engine"
	"github.com/your-org/facereg/internal/queue"
	"github.com/your-org/facereg/internal/storage"
)

type RouterConfig struct {
	APIKey   string
	DB       *storage.PostgresStore
	Images   *storage.ImageStore
	Producer *queue.Producer
	Hub      *ws.Hub
	Engine   *engine.Engine
	Analyzer *analyzer.Client
	Activity *activity.Log
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.Images, cfg.Producer, cfg.Analyzer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Identity check
	checkH := handlers.NewCheckHandler(cfg.Engine, cfg.Analyzer, cfg.Images)
	v1.POST("/check", checkH.Check)

	// Identities
	identityH := handlers.NewIdentityHandler(cfg.DB, cfg.Activity, cfg.Images)
	v1.GET("/identities", identityH.List)
	v1.GET("/identities/:id", identityH.Get)
	v1.GET("/identities/:id/events", identityH.Events)
	v1.GET("/identities/:id/image", identityH.Image)

	// Activity
	activityH := handlers.NewActivityHandler(cfg.Activity, cfg.Images)
	v1.GET("/events/recent", activityH.Recent)
	v1.GET("/events/:id/snapshot", activityH.Snapshot)
	v1.GET("/stats", activityH.Stats)

	return r
}
