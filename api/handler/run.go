package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pagehealth/artifacts"
	"github.com/use-agent/pagehealth/models"
	"github.com/use-agent/pagehealth/webhook"
)

// Runner executes one analysis. *analyzer.Analyzer implements it.
type Runner interface {
	Analyze(ctx context.Context, req *models.RunRequest) *models.Analysis
}

// Notifier delivers webhook events. *webhook.Dispatcher implements it.
type Notifier interface {
	DeliverAsync(url, secret string, event *webhook.Event) <-chan struct{}
}

// Run returns a handler for POST /api/v1/run.
//
// Only a malformed body, a missing field or an unsafe run_id is a 400.
// Everything else, an unusable URL included, is a 200 with an Analysis.
func Run(an Runner, notifier Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.NewErrorResponse(models.ErrCodeInvalidInput, err.Error()))
			return
		}
		if err := artifacts.ValidateRunID(req.RunID); err != nil {
			c.JSON(http.StatusBadRequest, models.NewErrorResponse(models.ErrCodeInvalidInput, err.Error()))
			return
		}

		result := an.Analyze(c.Request.Context(), &req)

		if req.WebhookURL != "" && notifier != nil {
			notifier.DeliverAsync(req.WebhookURL, req.WebhookSecret, webhook.NewRunCompleted(req.URL, result))
		}
		c.JSON(http.StatusOK, result)
	}
}
