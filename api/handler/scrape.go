package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/sieve/models"
)

// Scraper runs a scrape. *engine.Engine implements it.
type Scraper interface {
	Scrape(ctx context.Context, req *models.ScrapeRequest) (*models.ScrapeResult, error)
	Stats() models.EngineStats
}

// Scrape returns a handler for POST /api/v1/scrape.
//
// A failed result is returned with 200 unless the request set
// continue_on_fail to false, in which case the status reflects the error
// kind.
func Scrape(sc Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err)
			return
		}

		res, err := sc.Scrape(c.Request.Context(), &req)
		if err != nil {
			c.JSON(statusFor(models.AsScrapeError(err)), res)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// respondBadRequest writes a failed result for a body that could not be
// bound.
func respondBadRequest(c *gin.Context, err error) {
	se := models.NewScrapeError(models.KindValidation, models.ErrCodeInvalidInput, err.Error(), err).
		WithSuggestion("Fix the request body and try again.")
	c.JSON(http.StatusBadRequest, models.ScrapeResult{Success: false, Error: se})
}

// statusFor translates an error kind to an HTTP status code.
func statusFor(e *models.ScrapeError) int {
	switch e.Kind {
	case models.KindValidation:
		return http.StatusBadRequest // 400
	case models.KindPermission:
		return http.StatusForbidden // 403
	case models.KindParsing:
		return http.StatusUnprocessableEntity // 422
	case models.KindNetwork:
		return http.StatusBadGateway // 502
	case models.KindTimeout:
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}
