package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sestoltzf/strava-integration-at/internal/auth"
	"github.com/sestoltzf/strava-integration-at/internal/logging"
	"github.com/sestoltzf/strava-integration-at/internal/store"
	"github.com/sestoltzf/strava-integration-at/internal/strava"
)

type handler struct {
	pipeline        Pipeline
	logger          logging.Logger
	landingURL      string
	schedulerHeader string
	schedulerValue  string
}

// authorize serves GET /. Without a code the browser is sent to the consent
// screen; with one the callback is completed.
func (h *handler) authorize(c *gin.Context) {
	ctx := c.Request.Context()

	if denied := c.Query("error"); denied != "" {
		h.logger.Warn(ctx, "athlete declined authorization", "reason", denied)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authorization was not granted"})
		return
	}

	code := c.Query("code")
	if code == "" {
		consentURL, err := h.pipeline.BeginAuthorization(ctx)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Redirect(http.StatusFound, consentURL)
		return
	}

	result, err := h.pipeline.CompleteAuthorization(ctx, code, c.Query("state"))
	if err != nil {
		h.fail(c, err)
		return
	}

	if h.landingURL != "" {
		c.Redirect(http.StatusFound, h.landingURL)
		return
	}
	c.JSON(http.StatusOK, result)
}

// scheduled serves POST /, which is only accepted from the scheduler
func (h *handler) scheduled(c *gin.Context) {
	if c.GetHeader(h.schedulerHeader) != h.schedulerValue {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method Not Allowed"})
		return
	}

	result, err := h.pipeline.ScheduledRefresh(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) fail(c *gin.Context, err error) {
	h.logger.Error(c.Request.Context(), "request failed",
		"path", c.Request.URL.Path,
		"request_id", c.GetString("request_id"),
		"error", err,
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": publicMessage(err)})
}

// publicMessage names the failed step without leaking provider or store
// response bodies to the browser.
func publicMessage(err error) string {
	var (
		exErr       *auth.TokenExchangeError
		profileErr  *strava.ProfileFetchError
		activityErr *strava.ActivityFetchError
		writeErr    *store.StoreWriteError
	)
	switch {
	case errors.Is(err, auth.ErrInvalidState):
		return "Invalid authorization state"
	case errors.As(err, &exErr):
		return "Failed to exchange authorization code"
	case errors.As(err, &profileErr):
		return "Failed to fetch athlete profile"
	case errors.As(err, &activityErr):
		return "Failed to fetch activities"
	case errors.As(err, &writeErr):
		return "Failed to store data"
	default:
		return "Failed to process Strava authentication"
	}
}
