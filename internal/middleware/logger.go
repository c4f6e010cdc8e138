package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"appointments/internal/pkg/logger"
	"appointments/internal/pkg/response"
)

// ErrorLogger logs errors attached with c.Error, 5xx responses and panics.
// Panics are recovered and answered with a generic INTERNAL_ERROR body; the
// stack only goes to the log.
func ErrorLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				logRequestError(log, c, start, "panic", fmt.Sprintf("%v", recovered), "stack", string(debug.Stack()))
				if !c.Writer.Written() {
					response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
				}
				c.Abort()
				return
			}

			if len(c.Errors) == 0 {
				if c.Writer.Status() >= http.StatusInternalServerError {
					logRequestError(log, c, start, "http_error", fmt.Sprintf("status=%d", c.Writer.Status()))
				}
				return
			}

			for _, err := range c.Errors {
				kv := []interface{}{}
				if err.Meta != nil {
					kv = append(kv, "meta", err.Meta)
				}
				logRequestError(log, c, start, "request_error", err.Error(), kv...)
			}
		}()

		c.Next()
	}
}

func logRequestError(log logger.Logger, c *gin.Context, start time.Time, kind, message string, extra ...interface{}) {
	kv := []interface{}{
		"type", kind,
		"status", c.Writer.Status(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"query", c.Request.URL.RawQuery,
		"client_ip", c.ClientIP(),
		"request_id", requestID(c),
		"latency", time.Since(start),
		"error", message,
	}
	log.Error("request failed", append(kv, extra...)...)
}
