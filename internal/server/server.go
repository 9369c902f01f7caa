// Package server exposes the moderation flows over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/raine/review-moderator/internal/media"
	"github.com/raine/review-moderator/internal/moderation"
)

const (
	// DefaultMaxProductImages caps product image uploads per request.
	DefaultMaxProductImages = 5
	// DefaultMaxFileSize caps each uploaded image.
	DefaultMaxFileSize = media.DefaultMaxImageSize
)

// Moderator runs the moderation flows.
type Moderator interface {
	Moderate(ctx context.Context, req moderation.ModerationRequest) (*moderation.ModerationVerdict, error)
	ExplainRejections(ctx context.Context, req moderation.ExplanationRequest) (*moderation.ExplanationResult, error)
	DraftPrompt(ctx context.Context, req moderation.DraftPromptRequest) (*moderation.DraftPromptResult, error)
}

// DecisionLister lists recorded decisions, newest first.
type DecisionLister interface {
	ListDecisions(ctx context.Context, limit int) ([]moderation.Decision, error)
}

// APIResponse is the envelope for every JSON response.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Server holds the HTTP handlers.
type Server struct {
	moderator        Moderator
	decisions        DecisionLister
	maxProductImages int
	maxFileSize      int64
	startedAt        time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithDecisions enables GET /api/v1/decisions.
func WithDecisions(l DecisionLister) Option {
	return func(s *Server) { s.decisions = l }
}

// WithUploadLimits overrides the multipart upload limits.
func WithUploadLimits(maxProductImages int, maxFileSize int64) Option {
	return func(s *Server) {
		s.maxProductImages = maxProductImages
		s.maxFileSize = maxFileSize
	}
}

// New creates a Server.
func New(m Moderator, opts ...Option) *Server {
	s := &Server{
		moderator:        m,
		maxProductImages: DefaultMaxProductImages,
		maxFileSize:      DefaultMaxFileSize,
		startedAt:        time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// maxBodySize bounds any request body: every image at the file size limit,
// base64-encoded for JSON, plus room for the text fields.
func (s *Server) maxBodySize() int64 {
	return s.maxFileSize*int64(s.maxProductImages+1)*4/3 + bodyOverhead
}

// Router builds the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = s.maxFileSize * int64(s.maxProductImages+1)

	router.Use(requestLogger())
	router.Use(recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	v1 := router.Group("/api/v1", bodyLimit(s.maxBodySize()))
	{
		v1.GET("/health", s.health)
		v1.POST("/moderate", s.moderate)
		v1.POST("/explain", s.explain)
		v1.POST("/draft-prompt", s.draftPrompt)
		v1.GET("/decisions", s.listDecisions)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, APIResponse{Success: false, Error: "Not found"})
	})

	return router
}
