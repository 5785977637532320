package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-price-tracker/internal/fetcher"
	"crypto-price-tracker/internal/service"
	"crypto-price-tracker/internal/storage"
	"crypto-price-tracker/internal/token"
	"crypto-price-tracker/internal/version"
)

const (
	defaultStoredLimit  = 10
	defaultHistoryLimit = 24
	maxLimit            = 1000
)

type handler struct {
	prices PriceQueries
	alerts AlertCommands
	logger zerolog.Logger
}

type sampleResponse struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

type pointResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

type alertResponse struct {
	ID          string    `json:"id"`
	Token       string    `json:"token"`
	TargetPrice float64   `json:"targetPrice"`
	Email       string    `json:"email"`
	Triggered   bool      `json:"triggered"`
	CreatedAt   time.Time `json:"createdAt"`
}

type createAlertRequest struct {
	Token       string           `json:"token"`
	TargetPrice *decimal.Decimal `json:"targetPrice"`
	Email       string           `json:"email"`
}

type testEmailRequest struct {
	Email string `json:"email"`
}

func (h *handler) banner(c *gin.Context) {
	c.String(http.StatusOK, "Crypto Price Tracker API")
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": version.Service,
		"version": version.Version,
	})
}

func (h *handler) currentPrices(c *gin.Context) {
	prices, err := h.prices.Current(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make(map[string]float64, len(prices))
	for tok, price := range prices {
		out[tok.String()] = price.InexactFloat64()
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) storedPrices(c *gin.Context) {
	limit, err := parseLimit(c, defaultStoredLimit)
	if err != nil {
		h.fail(c, err)
		return
	}
	samples, err := h.prices.Recent(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSamples(samples))
}

func (h *handler) hourlyPrices(c *gin.Context) {
	grouped, err := h.prices.LastDay(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make(map[string][]pointResponse, len(grouped))
	for tok, samples := range grouped {
		points := make([]pointResponse, 0, len(samples))
		for _, s := range samples {
			points = append(points, pointResponse{Timestamp: s.Timestamp, Price: s.Price.InexactFloat64()})
		}
		out[tok.String()] = points
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) tokenHistory(c *gin.Context) {
	limit, err := parseLimit(c, defaultHistoryLimit)
	if err != nil {
		h.fail(c, err)
		return
	}
	samples, err := h.prices.History(c.Request.Context(), c.Param("token"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSamples(samples))
}

func (h *handler) createAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: malformed request body", service.ErrValidation))
		return
	}
	alert, err := h.alerts.Create(c.Request.Context(), service.AlertInput{
		Token:       req.Token,
		TargetPrice: req.TargetPrice,
		Email:       req.Email,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAlert(alert))
}

func (h *handler) pendingAlerts(c *gin.Context) {
	alerts, err := h.alerts.Pending(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlert(a))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) testEmail(c *gin.Context) {
	var req testEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: malformed request body", service.ErrValidation))
		return
	}
	if err := h.alerts.SendTestEmail(c.Request.Context(), req.Email); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Test email requested for " + strings.TrimSpace(req.Email),
	})
}

func (h *handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": details(err)})
	case errors.Is(err, token.ErrUnsupported):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, fetcher.ErrUpstream):
		h.logger.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("price source unavailable")
		c.JSON(http.StatusBadGateway, gin.H{"error": "price source unavailable"})
	default:
		h.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func details(err error) []string {
	lines := strings.Split(err.Error(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimPrefix(line, service.ErrValidation.Error()+": ")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func parseLimit(c *gin.Context, def int) (int, error) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", service.ErrValidation)
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}

func toSamples(samples []storage.PriceSample) []sampleResponse {
	out := make([]sampleResponse, 0, len(samples))
	for _, s := range samples {
		out = append(out, sampleResponse{
			ID:        s.ID,
			Token:     s.Token.String(),
			Price:     s.Price.InexactFloat64(),
			Timestamp: s.Timestamp,
		})
	}
	return out
}

func toAlert(a storage.Alert) alertResponse {
	return alertResponse{
		ID:          a.ID.String(),
		Token:       a.Token.String(),
		TargetPrice: a.TargetPrice.InexactFloat64(),
		Email:       a.Email,
		Triggered:   a.Triggered,
		CreatedAt:   a.CreatedAt,
	}
}
