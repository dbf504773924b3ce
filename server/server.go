// Package server exposes the oracle's HTTP surface: the manual keyword
// trigger, the cycle trigger, and item lookup. The deep scan always runs in
// the background; callers get a prompt cached/scraping answer and poll for
// price updates.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"grail-oracle/models"
	"grail-oracle/services"
	"grail-oracle/storage"
)

// Trigger enqueues background scans; the scheduler implements it.
type Trigger interface {
	TriggerKeyword(keyword string) bool
	TriggerCycle() bool
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	store     storage.Store
	catalog   *services.CatalogManager
	trigger   Trigger
	freshness time.Duration
	logger    *logrus.Logger
}

// New builds a Server with the given freshness window for manual-scan
// caching.
func New(store storage.Store, catalog *services.CatalogManager, trigger Trigger, freshness time.Duration, logger *logrus.Logger) *Server {
	return &Server{
		store:     store,
		catalog:   catalog,
		trigger:   trigger,
		freshness: freshness,
		logger:    logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api/v1")
	{
		api.POST("/scan", s.handleScan)
		api.POST("/cycle", s.handleCycle)
		api.GET("/items/:ticker", s.handleGetItem)
	}
	return r
}

type scanRequest struct {
	Keyword string `json:"keyword" binding:"required"`
}

type scanResponse struct {
	Status string   `json:"status"`
	ItemID string   `json:"item_id"`
	Ticker string   `json:"ticker"`
	Item   *itemDTO `json:"item,omitempty"`
}

// handleScan upserts the keyword as a tracked item and enqueues a scan,
// unless the item was already scanned inside the freshness window, in
// which case the cached row is returned without launching a new scrape.
func (s *Server) handleScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keyword is required"})
		return
	}

	existing, err := s.store.GetItemByTitle(req.Keyword)
	if err != nil {
		s.logger.WithError(err).Error("server: item lookup failed")
	}
	if existing != nil && time.Since(existing.LastScannedAt) < s.freshness {
		c.JSON(http.StatusOK, scanResponse{
			Status: "cached",
			ItemID: existing.ID,
			Ticker: existing.Ticker,
			Item:   toDTO(existing),
		})
		return
	}

	item := s.catalog.UpsertKeyword(req.Keyword)
	if item == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register keyword"})
		return
	}

	if !s.trigger.TriggerKeyword(req.Keyword) {
		s.logger.Warn("server: trigger queue full, scan deferred to next cycle")
	}

	c.JSON(http.StatusAccepted, scanResponse{
		Status: "scraping",
		ItemID: item.ID,
		Ticker: item.Ticker,
	})
}

// handleCycle kicks a full batch cycle, the same entry cron uses.
func (s *Server) handleCycle(c *gin.Context) {
	if !s.trigger.TriggerCycle() {
		c.JSON(http.StatusConflict, gin.H{"status": "busy"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cycle queued"})
}

func (s *Server) handleGetItem(c *gin.Context) {
	item, err := s.store.GetItemByTicker(c.Param("ticker"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown ticker"})
		return
	}
	c.JSON(http.StatusOK, toDTO(item))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type itemDTO struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Ticker         string   `json:"ticker"`
	CanonicalPrice *float64 `json:"canonical_price"`
	ConditionGrade string   `json:"condition_grade"`
	ConditionScore float64  `json:"condition_score"`
	AINotes        string   `json:"ai_notes,omitempty"`
	LastUpdated    string   `json:"last_updated"`
}

func toDTO(item *models.TrackedItem) *itemDTO {
	return &itemDTO{
		ID:             item.ID,
		Title:          item.Title,
		Ticker:         item.Ticker,
		CanonicalPrice: item.CanonicalPrice,
		ConditionGrade: string(item.ConditionGrade),
		ConditionScore: item.ConditionScore,
		AINotes:        item.AINotes,
		LastUpdated:    item.LastUpdated.Format(time.RFC3339),
	}
}
