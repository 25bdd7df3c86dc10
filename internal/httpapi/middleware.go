package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	// HeaderRequestID задаёт заголовок корреляции запроса.
	HeaderRequestID = "X-Request-ID"

	ctxRequestIDKey = "request_id"
	ctxLoggerKey    = "logger"
)

// requestContext назначает запросу request id (или берёт входящий) и кладёт в контекст logger с ним.
func requestContext(base *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(ctxRequestIDKey, id)
		c.Set(ctxLoggerKey, base.WithField("request_id", id))
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// accessLog пишет одну запись на запрос.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := loggerFrom(c).WithFields(log.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Warn("request served with error")
		default:
			entry.Debug("request served")
		}
	}
}

// recovery превращает panic обработчика в 500 в конверте API.
func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		loggerFrom(c).WithField("panic", recovered).Error("handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
			Status:    newStatus(http.StatusInternalServerError),
			Error:     http.StatusText(http.StatusInternalServerError),
			RequestID: requestID(c),
		})
	})
}

func requestID(c *gin.Context) string {
	return c.GetString(ctxRequestIDKey)
}
