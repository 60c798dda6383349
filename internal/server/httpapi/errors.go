package httpapi

import (
	"errors"
	"net/http"

	"github.com/devsoc/devsoc-backend/internal/common"
	"github.com/gin-gonic/gin"
)

const (
	msgGeneric        = "We're having trouble processing your registration. Please try again."
	msgAssetHost      = "There was an issue uploading your payment screenshot. Please try again."
	msgUnavailable    = "Registration service is temporarily unavailable. Please try again later."
	msgTooManyRetries = "Too many attempts. Please wait a few minutes and try again."
	msgRateLimited    = "Too many registration attempts. Please try again later."
)

// registrationError maps a registration failure to a status code and the
// message shown to the registrant.
func registrationError(err error) (int, string) {
	msg, hasMsg := common.UserMessage(err)

	switch {
	case errors.Is(err, common.ErrValidation):
		if !hasMsg {
			msg = "Invalid input"
		}
		return http.StatusBadRequest, msg
	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests, msgTooManyRetries
	case errors.Is(err, common.ErrDuplicateRegistration), errors.Is(err, common.ErrDuplicateTransaction):
		if !hasMsg {
			msg = err.Error()
		}
		return http.StatusInternalServerError, msg
	case errors.Is(err, common.ErrAssetHost):
		return http.StatusInternalServerError, msgAssetHost
	case errors.Is(err, common.ErrConfiguration):
		return http.StatusInternalServerError, msgUnavailable
	}
	return http.StatusInternalServerError, msgGeneric
}

// adminError maps failures of admin and read endpoints. fallback is used
// for errors that carry no user-facing message.
func adminError(err error, fallback string) (int, string) {
	msg, hasMsg := common.UserMessage(err)
	if !hasMsg {
		msg = fallback
	}

	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, msg
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, msg
	case errors.Is(err, common.ErrorNotFound),
		errors.Is(err, common.ErrPaymentNotFound),
		errors.Is(err, common.ErrSettingNotFound):
		return http.StatusNotFound, msg
	}
	return http.StatusInternalServerError, fallback
}

func abortWith(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
