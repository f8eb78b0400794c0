package handler

import (
	"errors"
	"net/http"

	"github.com/Sandro385/expert-tune/internal/apperr"
	"github.com/Sandro385/expert-tune/internal/model"
	"github.com/Sandro385/expert-tune/pkg/log"

	"github.com/gin-gonic/gin"
)

func ok(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"code": status, "message": message})
}

// failWithError maps an application error to its HTTP status. Validation messages
// are shown as is; anything else gets a generic message.
func failWithError(c *gin.Context, op string, err error) {
	var valErr *apperr.ValidationError
	var trainErr *apperr.TrainingProcessError
	switch {
	case errors.As(err, &valErr):
		fail(c, http.StatusBadRequest, valErr.Error())
	case errors.Is(err, apperr.ErrNotFound):
		fail(c, http.StatusNotFound, "not found")
	case errors.As(err, &trainErr):
		log.Errorf("%s: %v", op, err)
		fail(c, http.StatusBadGateway, "training process failed")
	case apperr.IsStorage(err):
		log.Errorf("%s: %v", op, err)
		fail(c, http.StatusInternalServerError, "storage unavailable")
	default:
		log.Errorf("%s: %v", op, err)
		fail(c, http.StatusInternalServerError, "internal error")
	}
}

// currentUser returns the user stored by AuthMiddleware.
func currentUser(c *gin.Context) *model.User {
	v, _ := c.Get("user")
	user, _ := v.(*model.User)
	return user
}
