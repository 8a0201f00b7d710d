// HTTP query surface: request fields map one to one onto SearchQuery.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"parliasearch/internal/pkg/logger"
	"parliasearch/internal/pkg/models"
)

// The query service behind POST /search.
type Searcher interface {
	Search(ctx context.Context, q models.SearchQuery) (models.SearchResult, error)
}

// Health probe against the document store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	engine      *gin.Engine
	searcher    Searcher
	pinger      Pinger
	defaultSize int
}

func NewServer(searcher Searcher, pinger Pinger, defaultSize int) *Server {
	if defaultSize < models.MinPageSize || defaultSize > models.MaxPageSize {
		defaultSize = 10
	}

	s := &Server{
		engine:      gin.New(),
		searcher:    searcher,
		pinger:      pinger,
		defaultSize: defaultSize,
	}
	s.engine.Use(gin.Recovery())

	s.engine.POST("/search", s.handleSearch)
	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return s
}

// Exposed for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Run(port string) error {
	logger.Log.Info("HTTP query service listening", zap.String("address", ":"+port))
	return s.engine.Run(":" + port)
}

type searchRequest struct {
	SearchTerms string   `json:"search_terms" form:"search_terms"`
	Source      []string `json:"source" form:"source"`
	DocType     []string `json:"doc_type" form:"doc_type"`
	DateFrom    string   `json:"date_from" form:"date_from"`
	DateTo      string   `json:"date_to" form:"date_to"`
	Page        int      `json:"page" form:"page"`
	Size        int      `json:"size" form:"size"`
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q := models.SearchQuery{
		Text:     req.SearchTerms,
		Sources:  req.Source,
		DocTypes: req.DocType,
		DateFrom: req.DateFrom,
		DateTo:   req.DateTo,
		Page:     req.Page,
		Size:     req.Size,
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Size < models.MinPageSize {
		q.Size = s.defaultSize
	}
	if q.Size > models.MaxPageSize {
		q.Size = models.MaxPageSize
	}

	result, err := s.searcher.Search(c.Request.Context(), q)
	if err != nil {
		// Store unavailability is the only failure mode here; zero matches
		// is a successful empty result.
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search backend unavailable"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleHealthz(c *gin.Context) {
	if err := s.pinger.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
