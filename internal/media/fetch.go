package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultFetchTimeout is the default timeout for image downloads
	DefaultFetchTimeout = 30 * time.Second
	// DefaultMaxImageSize matches the dashboard's 5MB upload limit
	DefaultMaxImageSize = 5 * 1024 * 1024
)

// Fetcher downloads remote images and encodes them as data URIs.
type Fetcher struct {
	httpClient *resty.Client
	maxSize    int64
}

// NewFetcher creates a Fetcher with default timeout and size limit.
func NewFetcher() *Fetcher {
	return &Fetcher{
		httpClient: resty.New().
			SetDebug(false).
			SetTimeout(DefaultFetchTimeout).
			SetHeader("Accept", "image/*").
			SetResponseBodyLimit(DefaultMaxImageSize),
		maxSize: DefaultMaxImageSize,
	}
}

// WithTimeout sets a custom timeout for downloads.
func (f *Fetcher) WithTimeout(timeout time.Duration) *Fetcher {
	f.httpClient.SetTimeout(timeout)
	return f
}

// WithMaxSize sets a custom maximum image size.
func (f *Fetcher) WithMaxSize(maxSize int64) *Fetcher {
	f.maxSize = maxSize
	f.httpClient.SetResponseBodyLimit(int(maxSize))
	return f
}

// FromURL downloads an image and returns it as a data URI. Reading stops
// once the body exceeds the size limit.
func (f *Fetcher) FromURL(ctx context.Context, imageURL string) (string, error) {
	log.Debug().Str("url", imageURL).Msg("fetching image")

	res, err := f.httpClient.R().
		SetContext(ctx).
		Get(imageURL)
	if errors.Is(err, resty.ErrResponseBodyTooLarge) {
		return "", fmt.Errorf("image too large: exceeds limit of %d bytes: %w", f.maxSize, err)
	}
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	if res.IsError() {
		return "", fmt.Errorf("download failed: %s (status: %d)", imageURL, res.StatusCode())
	}

	contentType := res.Header().Get("Content-Type")
	if contentType != "" && !IsImage(contentType) {
		return "", fmt.Errorf("invalid content type: expected image/*, got %s", contentType)
	}

	body := res.Body()
	if int64(len(body)) > f.maxSize {
		return "", fmt.Errorf("image too large: %d bytes exceeds limit of %d bytes", len(body), f.maxSize)
	}

	uri := FromBytes(body)
	asset, err := Parse(uri)
	if err != nil {
		return "", err
	}
	if !IsImage(asset.MIMEType) {
		return "", fmt.Errorf("invalid content: expected image, got %s", asset.MIMEType)
	}
	return uri, nil
}

// Resolve turns a CLI-style reference into a data URI. References may be
// a data URI, an http(s) URL or a local file path.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, dataURIPrefix):
		if _, err := Parse(ref); err != nil {
			return "", err
		}
		return ref, nil
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return f.FromURL(ctx, ref)
	default:
		return FromFile(ref)
	}
}
