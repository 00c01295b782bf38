package server

import (
	"net/http"

	"stock-cache/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *APIServer) getStocks(c *gin.Context) {
	names := splitNames(c.QueryArray("name"))

	stocks, err := s.Stocks.ListInstruments(c.Request.Context(), names)
	if err != nil {
		s.Logger.Error("Listing stocks failed: %v", err)
		c.JSON(http.StatusInternalServerError, models.MErrorsMessage{Errors: []string{"internal error"}})
		return
	}
	if stocks == nil {
		stocks = []models.MInstrument{}
	}
	c.JSON(http.StatusOK, gin.H{"data": stocks})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getPrices(c *gin.Context) {
	var q pricesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, models.MErrorsMessage{Errors: []string{err.Error()}})
		return
	}

	filter, errs := s.parsePricesQuery(q)
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, models.MErrorsMessage{Errors: errs})
		return
	}

	prices, err := s.Stocks.QueryPrices(c.Request.Context(), filter)
	if err != nil {
		s.Logger.Error("Price query failed: %v", err)
		c.JSON(http.StatusInternalServerError, models.MErrorsMessage{Errors: []string{"internal error"}})
		return
	}
	if prices == nil {
		prices = []models.MPriceRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"data": prices})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getHealth(c *gin.Context) {
	body := gin.H{
		"status":      "ok",
		"connections": s.Connections(),
		"version":     s.Config.Version,
		"provider":    s.ProviderName,
	}

	stats, err := s.Stocks.Stats(c.Request.Context())
	if err != nil {
		s.Logger.Warning("Health stats failed: %v", err)
		body["status"] = "degraded"
	} else {
		body["instruments"] = stats.Instruments
		body["today_rows"] = stats.TodayRows
		body["historical_rows"] = stats.HistoricalRows
	}
	c.JSON(http.StatusOK, body)
}
