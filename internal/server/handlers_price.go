package server

import (
	"github.com/labstack/echo/v4"
)

func (s *Server) registerPriceRoutes(api *echo.Group) {
	price := api.Group("/dbp-price")
	price.GET("/current", s.handleCurrentPrice)
	price.GET("/history", s.handlePriceHistory)
	price.GET("/stats", s.handleMarketStats)
}

func (s *Server) handleCurrentPrice(c echo.Context) error {
	quote, err := s.prices.Current(c.Request().Context())
	if err != nil {
		return err
	}
	return respond(c, "", quote)
}

func (s *Server) handlePriceHistory(c echo.Context) error {
	limit, err := queryLimit(c, defaultLeaderboardLimit, maxLeaderboardLimit)
	if err != nil {
		return err
	}

	view, err := s.prices.History(c.Request().Context(), c.QueryParam("timeframe"), limit)
	if err != nil {
		return err
	}
	return respond(c, "", view)
}

func (s *Server) handleMarketStats(c echo.Context) error {
	stats, err := s.prices.MarketStats(c.Request().Context())
	if err != nil {
		return err
	}
	return respond(c, "", stats)
}
