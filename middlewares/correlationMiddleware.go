package middlewares

import (
	"github.com/DhruviKhanpara/LMS-sub001/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const CorrelationHeader = "X-Correlation-ID"

// CorrelationMiddleware tags the request with the caller's correlation id or
// a new one. Outbox rows and audit entries written by the request carry it.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Request.Header.Get(CorrelationHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), id))
		c.Header(CorrelationHeader, id)
		c.Next()
	}
}
