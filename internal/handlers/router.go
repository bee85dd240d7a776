package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Request-ID"

// NewRouter wires every endpoint onto a gin engine.
func NewRouter(h *Handler, log *logrus.Logger) *gin.Engine {
	rg := gin.New()
	rg.Use(gin.Recovery(), RequestID(), RequestLogger(log))

	rg.GET("/health", h.Health)
	rg.GET("/stock/:ticker", h.GetStock)
	rg.POST("/buy", h.Buy)
	rg.POST("/sell", h.Sell)
	rg.GET("/stocks", h.ListStocks)
	rg.GET("/money", h.GetMoney)
	rg.POST("/init_user", h.InitUser)
	rg.DELETE("/delete_all_users", h.DeleteAllUsers)
	return rg
}

// RequestID tags each request with an id, reusing the caller's X-Request-ID
// when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func RequestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
		})
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("request completed")
		case status >= 400:
			entry.Warn("request completed")
		default:
			entry.Info("request completed")
		}
	}
}
