package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/unseen/internal/browser"
	"github.com/nao1215/unseen/internal/container"
	"github.com/nao1215/unseen/internal/page"
	"github.com/nao1215/unseen/internal/permission"
	"github.com/nao1215/unseen/internal/routing"
	"github.com/nao1215/unseen/internal/tor"
)

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, page.ErrUnknownPage),
		errors.Is(err, page.ErrNoActivePage),
		errors.Is(err, container.ErrUnknownContainer),
		errors.Is(err, routing.ErrUnknownContainer):
		return http.StatusNotFound
	case errors.Is(err, page.ErrEmptyInput),
		errors.Is(err, page.ErrUnsupportedScheme),
		errors.Is(err, page.ErrOnionWithoutTor),
		errors.Is(err, tor.ErrInvalidOnionAddress),
		errors.Is(err, tor.ErrV2AddressDeprecated),
		errors.Is(err, container.ErrInvalidName),
		errors.Is(err, permission.ErrEmptyHost),
		errors.Is(err, permission.ErrUnknownCapability):
		return http.StatusBadRequest
	case errors.Is(err, page.ErrNoHistory):
		return http.StatusConflict
	case errors.Is(err, routing.ErrStartThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, browser.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusOf(err), gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// errString returns err's message, "" for nil.
func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
