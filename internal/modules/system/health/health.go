package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/TravisBrace/formspree/internal/pkg/redis"
	"gorm.io/gorm"
)

// RegisterRoutes mounts the liveness endpoint. Redis going away only
// degrades the report: submissions still relay without it, so the
// process keeps answering 200 as long as the database is reachable.
func RegisterRoutes(r gin.IRoutes, db *gorm.DB, rdb *redis.Client) {
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		dbOK := false
		if sqlDB, err := db.DB(); err == nil {
			dbOK = sqlDB.PingContext(ctx) == nil
		}

		redisOK := rdb != nil && rdb.Raw().Ping(ctx).Err() == nil

		status := "ok"
		code := http.StatusOK
		if !dbOK {
			status = "degraded"
			code = http.StatusServiceUnavailable
		} else if !redisOK {
			status = "degraded"
		}

		c.JSON(code, gin.H{
			"status":   status,
			"database": dbOK,
			"redis":    redisOK,
		})
	})
}
