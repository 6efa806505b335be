package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opstracker/opstracker-backend-go/internal/config"
	"github.com/opstracker/opstracker-backend-go/internal/handler"
	"github.com/opstracker/opstracker-backend-go/internal/middleware"
	"github.com/opstracker/opstracker-backend-go/internal/service"
)

// CORS 中间件
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func newEngine(name string, reg *prometheus.Registry, logger *log.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(logger), cors())

	if reg != nil {
		r.Use(middleware.NewHTTPMetrics(reg, name).Handler())
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}
	return r
}

// SetupGPSRouter 设置 GPS 读取接口路由
//
// reg may be nil to disable metrics. done stops the rate limiter cleanup.
func SetupGPSRouter(cfg config.ServerConfig, gpsService *service.GpsService, reg *prometheus.Registry, logger *log.Logger, done <-chan struct{}) *gin.Engine {
	r := newEngine("gps", reg, logger)

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "GPS API is running",
		})
	})

	data := r.Group("")
	if cfg.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimit, 10*time.Minute)
		go limiter.Run(time.Minute, done)
		data.Use(middleware.RateLimit(limiter))
	}
	if cfg.JWTSecret != "" {
		data.Use(middleware.JWTAuth([]byte(cfg.JWTSecret)))
	}

	gpsHandler := handler.NewGpsHandler(gpsService)
	data.GET("/gps_data", gpsHandler.Latest)
	data.GET("/gps_data/:uid/track", gpsHandler.Track)
	data.GET("/export/gps_data.csv", gpsHandler.ExportCSV)

	return r
}

// SetupAlertRouter 设置告警接口路由
//
// The upstream routes are registered only when the service has an upstream.
func SetupAlertRouter(cfg config.AlertsConfig, alertService *service.AlertService, reg *prometheus.Registry, logger *log.Logger) *gin.Engine {
	r := newEngine("alerts", reg, logger)

	alertHandler := handler.NewAlertHandler(alertService, cfg.NotFoundStatus)
	r.GET("/", alertHandler.Root)
	r.GET("/alerts", alertHandler.List)
	r.GET("/alerts/:id", alertHandler.Get)

	if alertService.UpstreamEnabled() {
		r.POST("/auth-obvious", alertHandler.Authenticate)
		r.GET("/alarms", alertHandler.RequireToken(), alertHandler.Alarms)
		r.GET("/self", alertHandler.RequireToken(), alertHandler.Self)
	}

	return r
}
