package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/querymesh/querymesh/internal/dbpool"
	"github.com/querymesh/querymesh/internal/middleware"
	"github.com/querymesh/querymesh/internal/plan"
	"github.com/querymesh/querymesh/internal/ws"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log         *logrus.Logger
	Pool        *dbpool.Pool
	Hub         *ws.Hub
	Sources     SourceRepository
	Schemas     SchemaRepository
	Ontology    OntologyRepository
	Watch       WatchController
	Classifier  QuestionClassifier
	Builder     PlanBuilder
	Optimizer   plan.Optimizer
	CORSOrigins []string
	APIKey      string
	Version     string
}

// maxBodySize bounds request payloads.
const maxBodySize = 1 << 20 // 1 MB

// setupMiddleware configures all middleware on the Gin engine.
func setupMiddleware(r *gin.Engine, deps *RouterDeps) {
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestID(deps.Log))
	r.Use(ginLogger(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(maxBodySize))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		MaxAge:           1 * time.Hour,
		AllowCredentials: false,
	}))
	r.Use(middleware.Metrics())

	// Metrics endpoint (unauthenticated, like health).
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// registerRoutes sets up all API route handlers on the given router group.
func registerRoutes(ctx context.Context, api *gin.RouterGroup, deps *RouterDeps) {
	log := deps.Log

	health := NewHealthHandler(deps.Pool, deps.Hub, log, deps.Version)
	sources := NewSourceHandler(deps.Sources, deps.Schemas, deps.Watch, log)
	ontology := NewOntologyHandler(deps.Ontology, log)
	query := NewQueryHandler(deps.Classifier, deps.Builder, deps.Optimizer, deps.Schemas, log)

	// Health and readiness are unauthenticated.
	api.GET("/health", health.Liveness)
	api.GET("/ready", health.Readiness)

	// All other API routes require authentication when a key is configured.
	api.Use(middleware.APIKeyAuth(deps.APIKey, log))

	// Sources and schema versions.
	api.GET("/sources", sources.List)
	api.POST("/sources", sources.Register)
	api.GET("/sources/:id", sources.Get)
	api.DELETE("/sources/:id", sources.Deregister)
	api.POST("/sources/:id/check", sources.ForceCheck)
	api.POST("/sources/check", sources.ForceCheckAll)
	api.GET("/sources/:id/schema", sources.CurrentSchema)
	api.GET("/sources/:id/versions", sources.Versions)

	// Watcher status.
	api.GET("/watchers", sources.Watchers)

	// Classification and planning.
	api.POST("/classify", query.Classify)
	api.POST("/plan", query.Plan)

	// Ontology mappings.
	api.GET("/ontology", ontology.List)
	api.POST("/ontology", ontology.Put)
	api.DELETE("/ontology/:id", ontology.Delete)

	// WebSocket endpoint.
	api.GET("/ws", wsHandler(ctx, log, deps.Hub, deps.CORSOrigins))
}

// NewRouter creates and configures the Gin engine with all middleware and routes.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(r, deps)
	registerRoutes(ctx, r.Group("/api/v1"), deps)

	return r
}
