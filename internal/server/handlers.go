package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/raine/review-moderator/internal/media"
	"github.com/raine/review-moderator/internal/moderation"
	"github.com/rs/zerolog/log"
)

const (
	productDetailsKey = "productDetails"
	productImagesKey  = "productImages"
	customerImageKey  = "customerImage"

	maxDecisionLimit = 500
)

// errUpload marks client-side upload problems.
var errUpload = errors.New("invalid upload")

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data: gin.H{
			"status": "ok",
			"uptime": time.Since(s.startedAt).Round(time.Second).String(),
		},
	})
}

func (s *Server) moderate(c *gin.Context) {
	var req moderation.ModerationRequest
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		parsed, err := s.parseModerationForm(c)
		if err != nil {
			respondError(c, err)
			return
		}
		req = *parsed
	} else if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}

	verdict, err := s.moderator.Moderate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: verdict})
}

func (s *Server) explain(c *gin.Context) {
	var req moderation.ExplanationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}

	res, err := s.moderator.ExplainRejections(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: res})
}

func (s *Server) draftPrompt(c *gin.Context) {
	var req moderation.DraftPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadJSON(c, err)
		return
	}

	res, err := s.moderator.DraftPrompt(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: res})
}

func (s *Server) listDecisions(c *gin.Context) {
	if s.decisions == nil {
		c.JSON(http.StatusNotFound, APIResponse{Success: false, Error: "Decision log is not enabled"})
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxDecisionLimit {
			c.JSON(http.StatusBadRequest, APIResponse{
				Success: false,
				Error:   "Invalid request",
				Detail:  fmt.Sprintf("limit must be between 1 and %d", maxDecisionLimit),
			})
			return
		}
		limit = n
	}

	decisions, err := s.decisions.ListDecisions(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: decisions})
}

// parseModerationForm reads a multipart moderation request and converts
// uploaded files to data URIs.
func (s *Server) parseModerationForm(c *gin.Context) (*moderation.ModerationRequest, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse form data: %w", errUpload, err)
	}

	products := form.File[productImagesKey]
	if len(products) > s.maxProductImages {
		return nil, fmt.Errorf("%w: at most %d product images are allowed, got %d", errUpload, s.maxProductImages, len(products))
	}

	req := &moderation.ModerationRequest{
		ProductDetails: c.PostForm(productDetailsKey),
	}
	for i, fh := range products {
		uri, err := s.readImage(fh)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", productImagesKey, i, err)
		}
		req.ProductImages = append(req.ProductImages, uri)
	}

	if customer := form.File[customerImageKey]; len(customer) > 0 {
		uri, err := s.readImage(customer[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", customerImageKey, err)
		}
		req.CustomerImage = uri
	}

	return req, nil
}

func (s *Server) readImage(fh *multipart.FileHeader) (string, error) {
	if fh.Size > s.maxFileSize {
		return "", fmt.Errorf("%w: %s is larger than %d MB", errUpload, fh.Filename, s.maxFileSize/(1024*1024))
	}

	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("%w: failed to open %s: %v", errUpload, fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.maxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read %s: %v", errUpload, fh.Filename, err)
	}
	if int64(len(data)) > s.maxFileSize {
		return "", fmt.Errorf("%w: %s is larger than %d MB", errUpload, fh.Filename, s.maxFileSize/(1024*1024))
	}

	uri := media.FromBytes(data)
	asset, err := media.Parse(uri)
	if err != nil || !media.IsImage(asset.MIMEType) {
		return "", fmt.Errorf("%w: %s is not an image", errUpload, fh.Filename)
	}
	return uri, nil
}

func respondBadJSON(c *gin.Context, err error) {
	if tooLarge(err) {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusBadRequest, APIResponse{
		Success: false,
		Error:   "Invalid request",
		Detail:  err.Error(),
	})
}

// respondError maps moderation errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	var (
		inputErr     *moderation.InputValidationError
		outputErr    *moderation.ModelOutputError
		transportErr *moderation.TransportError
	)

	status := http.StatusInternalServerError
	notice := "Internal server error"
	switch {
	case tooLarge(err):
		status = http.StatusRequestEntityTooLarge
		notice = "Request body too large"
	case errors.As(err, &inputErr), errors.Is(err, errUpload):
		status = http.StatusBadRequest
		notice = "Invalid request"
	case errors.As(err, &outputErr):
		status = http.StatusBadGateway
		notice = "The model returned an unexpected response"
	case errors.As(err, &transportErr) && transportErr.Timeout():
		status = http.StatusGatewayTimeout
		notice = "The model did not respond in time"
	case errors.As(err, &transportErr):
		status = http.StatusServiceUnavailable
		notice = "The model is currently unavailable"
	}

	if status >= 500 {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}

	c.JSON(status, APIResponse{Success: false, Error: notice, Detail: err.Error()})
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
