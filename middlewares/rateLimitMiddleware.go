package middlewares

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/DhruviKhanpara/LMS-sub001/utils"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed window request counter kept in Redis, shared by
// every replica.
type RateLimiter struct {
	client redis.Cmdable
	limit  int64
	window time.Duration
}

func NewRateLimiter(client redis.Cmdable, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// key counts signed-in callers by user id and everyone else by IP.
func (rl *RateLimiter) key(c *gin.Context) string {
	if id, ok := utils.GetUserIdFromContext(c.Request.Context()); ok {
		return "ratelimit:user:" + strconv.Itoa(id)
	}
	return "ratelimit:ip:" + c.ClientIP()
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := rl.key(c)

		count, err := rl.client.Incr(ctx, key).Result()
		if err != nil {
			// fail open while Redis is unavailable
			c.Next()
			return
		}
		if count == 1 {
			rl.client.Expire(ctx, key, rl.window)
		}

		if count > rl.limit {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("rate limit exceeded, try again in %d seconds", int(rl.window.Seconds())),
			})
			return
		}
		c.Next()
	}
}
