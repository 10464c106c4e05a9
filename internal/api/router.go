// Package api exposes the synced balances, transaction history and metrics
// of a running watch over HTTP.
package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// LogWriter is the subset of the application logger used here.
// Satisfied by *config.Logger.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// NewRouter wires the routes. metrics may be nil to leave /metrics out and
// log may be nil to run silently.
func NewRouter(h *Handler, metrics http.Handler, log LogWriter) *gin.Engine {
	router := gin.New()
	if log != nil {
		router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
			log.Error("api: panic serving %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
			c.AbortWithStatus(http.StatusInternalServerError)
		}))
		router.Use(requestLogger(log))
	} else {
		router.Use(gin.RecoveryWithWriter(io.Discard))
	}
	router.Use(cors.Default())

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/balances", h.ListBalances)
		v1.GET("/balances/:account", h.GetBalance)
		v1.POST("/balances/refresh", h.RefreshAll)
		v1.POST("/balances/:account/refresh", h.RefreshAccount)
		v1.GET("/history/:account", h.History)
	}

	return router
}

// requestLogger logs one debug line per request.
func requestLogger(log LogWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("api: %s %s %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
