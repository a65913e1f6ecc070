package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/servicehub/marketplace-backend/internal/middleware"
	"github.com/servicehub/marketplace-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// respondError writes err using its kind's status. Server faults are logged
// and their message is not exposed.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	svcErr := services.AsError(err)
	status := svcErr.HTTPStatus()

	message := svcErr.Message
	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithFields(logrus.Fields{
			"path":   c.FullPath(),
			"method": c.Request.Method,
			"code":   svcErr.Code,
		}).Error("Request failed")
		if svcErr.Kind == services.KindServerFault {
			message = "Something went wrong"
		}
	}

	_ = c.Error(err)
	c.JSON(status, ErrorResponse{
		Error:   string(svcErr.Kind),
		Message: message,
		Code:    svcErr.Code,
	})
}

// respondValidation rejects a request body that failed binding
func respondValidation(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   string(services.KindInvalidInput),
		Message: err.Error(),
		Code:    services.CodeInvalidInput,
	})
}

// uuidParam parses a path parameter, writing a 400 when it is not a UUID
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   string(services.KindInvalidInput),
			Message: "invalid " + name,
			Code:    services.CodeInvalidInput,
		})
		return uuid.Nil, false
	}
	return id, true
}

// actor returns the authenticated caller
func actor(c *gin.Context) services.Actor {
	userCtx := middleware.MustGetUserContext(c)
	return services.Actor{UserID: userCtx.UserID, Admin: userCtx.IsAdmin()}
}
