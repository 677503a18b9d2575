package api

import (
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/sale-promotion/config"
	_ "github.com/d60-Lab/sale-promotion/docs"
	"github.com/d60-Lab/sale-promotion/internal/api/handler"
	"github.com/d60-Lab/sale-promotion/internal/api/middleware"
	"github.com/d60-Lab/sale-promotion/pkg/errtrack"
	"github.com/d60-Lab/sale-promotion/pkg/metrics"
)

// NewRouter 组装中间件与路由
func NewRouter(cfg *config.Config, h *handler.Handler, m *metrics.Metrics) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if errtrack.Enabled() {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true, Timeout: 2 * time.Second}))
	}
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(
		middleware.RequestLogger(),
		middleware.Metrics(m),
		cors.New(corsConfig(cfg.Server.AllowedOrigins)),
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/webhooks"})),
	)

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.POST("/webhooks/payment",
		middleware.WebhookSignature(cfg.Payment.WebhookSecret, cfg.Payment.WebhookTolerance),
		h.PaymentWebhook,
	)

	auth := middleware.Auth(cfg.JWT.Secret, cfg.JWT.Issuer)

	drafts := r.Group("/drafts", auth)
	{
		drafts.POST("/publish", h.Publish)
		drafts.PUT("/:draftKey", h.SaveDraft)
		drafts.GET("/:draftKey", h.GetDraft)
	}

	admin := r.Group("/admin", auth, middleware.RequireRole(middleware.RoleAdmin))
	{
		admin.GET("/events", h.ListUnprocessedEvents)
		admin.POST("/events/:eventId/replay", h.ReplayEvent)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	return c
}
