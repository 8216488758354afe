package middlewares

import (
	"errors"
	"net/http"

	"github.com/DhruviKhanpara/LMS-sub001/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// ErrorHandler turns the last error a handler attached with c.Error into a
// JSON response. Unexpected errors are logged and hidden from the client.
func ErrorHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		var verrs validator.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": utils.ProcessValidationErrors(err)})
		case utils.IsNotFound(err):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case utils.IsBadRequest(err):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case utils.IsConflict(err):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			correlationId, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{
				"field":          "ErrorHandler",
				"method":         c.Request.Method,
				"path":           c.FullPath(),
				"correlation_id": correlationId,
			}).Error(err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
	}
}
