package handler

import (
	"errors"
	"net/http"

	"backoffice/internal/apperr"
	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

// actor returns the authenticated caller or answers 401 and returns false.
func actor(c *gin.Context) (model.Actor, bool) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
		return model.Actor{}, false
	}
	return a, true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, string(apperr.KindInvalidInput), "Invalid request payload: "+err.Error()))
		return false
	}
	return true
}

// writeError maps a service error onto the response envelope. Domain errors
// keep their kind; anything else is logged and reported as a 500.
func writeError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	code := string(apperr.KindOf(err))

	var convErr *service.ConversionError
	if errors.As(err, &convErr) && code == "" {
		code = "conversion_" + string(convErr.Stage)
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, response.ErrorWithCode(status, code, apperr.UserMessage(err)))
}
