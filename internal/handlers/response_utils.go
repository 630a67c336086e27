package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"impact-service/internal/models"
)

// RespondWithError sends a standardized JSON error response.
func RespondWithError(c *gin.Context, httpStatus int, appErrorCode string, message string, details interface{}) {
	errResp := models.APIError{
		Code:    appErrorCode,
		Message: message,
		Details: details,
	}
	c.JSON(httpStatus, errResp)
}

// RespondWithSuccess sends a standardized JSON success response.
// For 204 No Content, pass nil data and no body is sent.
func RespondWithSuccess(c *gin.Context, httpStatus int, data interface{}) {
	if data != nil {
		c.JSON(httpStatus, data)
	} else {
		c.Status(httpStatus)
	}
}

// respondDomainError translates the service layer's error taxonomy into the
// API error surface: validation 400, not found 404, conflict 409, storage
// 503 (retryable), anything else 500.
func respondDomainError(c *gin.Context, err error) {
	var vErr *models.ValidationError
	var nfErr *models.NotFoundError
	var cErr *models.ConflictError
	var sErr *models.StorageError

	switch {
	case errors.As(err, &vErr):
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, vErr.Error(), gin.H{"field": vErr.Field})
	case errors.As(err, &nfErr):
		code := models.ErrorCodeNotFound
		switch nfErr.Resource {
		case "metric":
			code = models.ErrorCodeMetricNotFound
		case "goal":
			code = models.ErrorCodeGoalNotFound
		}
		RespondWithError(c, http.StatusNotFound, code, nfErr.Error(), gin.H{"id": nfErr.ID})
	case errors.As(err, &cErr):
		RespondWithError(c, http.StatusConflict, models.ErrorCodeConflict, cErr.Error(), nil)
	case errors.As(err, &sErr):
		RespondWithError(c, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable, "Storage temporarily unavailable, retry later.", nil)
	default:
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Internal server error.", nil)
	}
}
