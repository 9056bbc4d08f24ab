package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/sungminna/upbit-scalping-bot/internal/api/handler"
	"github.com/sungminna/upbit-scalping-bot/internal/api/middleware"
)

// Config holds router configuration
type Config struct {
	State   handler.StateReader
	Tickers handler.TickerSource
	Logger  zerolog.Logger
}

// Setup sets up the Gin router
func Setup(cfg *Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(cfg.Logger))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		statusHandler := handler.NewStatusHandler(cfg.State)
		api.GET("/state", statusHandler.GetState)
		api.GET("/markets/scheduled", statusHandler.GetScheduledMarkets)

		if cfg.Tickers != nil {
			marketHandler := handler.NewMarketHandler(cfg.Tickers)
			api.GET("/ticker", marketHandler.GetTicker)
		}
	}

	return r
}
