package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimit returns a middleware that enforces a per-IP, per-minute
// submission rate using a fixed redis window. Authenticated dashboard
// calls are not limited. A redis outage fails open so form posts keep
// flowing.
func RateLimit(rdb *redis.Client, perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		perMinute = 120
	}
	return func(c *gin.Context) {
		if IsAuthenticated(c) {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" || rdb == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		window := time.Now().Unix() / 60
		key := fmt.Sprintf("forms:rate:%s:%d", ip, window)

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			rdb.Expire(ctx, key, 2*time.Minute)
		}

		if count > int64(perMinute) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"ok":      0,
				"code":    http.StatusTooManyRequests,
				"message": "too many submissions from this address, slow down",
			})
			return
		}

		c.Next()
	}
}
