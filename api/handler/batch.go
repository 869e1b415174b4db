package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/use-agent/sieve/models"
	"github.com/use-agent/sieve/webhook"
)

// PostBatch returns a handler for POST /api/v1/batch/scrape.
// Every URL is scraped with the shared options, at most concurrency at a
// time, and the results are returned in request order. A failing URL never
// aborts the others. When the request names a webhook the response is also
// delivered there.
func PostBatch(sc Scraper, concurrency int, notifier *webhook.Notifier) gin.HandlerFunc {
	if concurrency <= 0 {
		concurrency = 5
	}
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err)
			return
		}

		ctx := c.Request.Context()
		resp := models.BatchResponse{Results: make([]*models.ScrapeResult, len(req.URLs))}

		var g errgroup.Group
		g.SetLimit(concurrency)
		for i, target := range req.URLs {
			g.Go(func() error {
				// Failed results carry their own error.
				res, _ := sc.Scrape(ctx, req.Request(target))
				resp.Results[i] = res
				return nil
			})
		}
		_ = g.Wait()

		resp.Summarize()
		if req.WebhookURL != "" && notifier != nil {
			notifier.DeliverAsync(req.WebhookURL, req.WebhookSecret, &webhook.Event{
				Type:      "batch.completed",
				Timestamp: time.Now().Unix(),
				Data:      resp,
			}, nil)
		}
		c.JSON(http.StatusOK, resp)
	}
}
