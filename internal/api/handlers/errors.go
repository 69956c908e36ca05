package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/stockdash/internal/middleware"
	"github.com/irfndi/stockdash/internal/utils"
	"github.com/sirupsen/logrus"
)

// StatusForError maps the error taxonomy to an HTTP status code.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, utils.ErrInvalidTicker):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrDataInsufficient):
		return http.StatusUnprocessableEntity
	case errors.Is(err, utils.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage is the text shown to clients. Upstream and internal details
// stay in the logs.
func errorMessage(err error, status int) string {
	switch status {
	case http.StatusServiceUnavailable:
		return "market data is temporarily unavailable, please try again"
	case http.StatusInternalServerError:
		return "internal server error"
	default:
		return err.Error()
	}
}

func respondError(c *gin.Context, logger logrus.FieldLogger, err error) {
	status := StatusForError(err)
	middleware.RecordError(c, err, http.StatusText(status))

	entry := logger.WithFields(logrus.Fields{
		"path":       c.Request.URL.Path,
		"status":     status,
		"request_id": middleware.GetRequestID(c),
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	c.JSON(status, gin.H{
		"success": false,
		"error":   errorMessage(err, status),
	})
}
