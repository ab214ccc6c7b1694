package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Logger is a Gin middleware that logs every request with method, path,
// status code, and latency.
func Logger() gin.HandlerFunc {
	log := logrus.WithField("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"client":   c.ClientIP(),
			"status":   c.Writer.Status(),
			"latency":  time.Since(start),
		}).Info("request")
	}
}

// Recovery wraps Gin's default recovery but logs panics in a structured way.
func Recovery() gin.HandlerFunc {
	log := logrus.WithField("component", "http")
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.WithField("panic", err).Error("panic recovered")
				c.AbortWithStatusJSON(500, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
