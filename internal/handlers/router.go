package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pricewatch/internal/middleware"
)

// RouterConfig holds what the HTTP surface serves.
type RouterConfig struct {
	Products *ProductHandler
	Status   *StatusHandler
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// APIKey guards /api/v1 when set.
	APIKey string
	Logger *zap.SugaredLogger
}

// NewRouter builds the Gin engine with logging, error rendering and CORS.
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging(log))
	router.Use(middleware.ErrorHandler(log))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	router.GET("/api/health", cfg.Status.Health)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.APIKey(cfg.APIKey))
	v1.GET("/status", cfg.Status.Status)

	products := v1.Group("/products")
	products.GET("", cfg.Products.ListProducts)
	products.GET("/:alias", cfg.Products.GetProduct)
	products.GET("/:alias/history", cfg.Products.GetHistory)
	products.GET("/:alias/best", cfg.Products.GetBestPrices)

	return router
}
