package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const dataURIPrefix = "data:"

var (
	ErrNotDataURI     = errors.New("not a data URI")
	ErrMissingMIME    = errors.New("data URI has no MIME type")
	ErrNotBase64      = errors.New("data URI is not base64 encoded")
	ErrInvalidPayload = errors.New("data URI payload is not valid base64")
)

// Asset is a parsed image data URI. Data holds the base64 payload as it
// appeared in the URI; it is never decoded to binary here.
type Asset struct {
	MIMEType string
	Data     string
}

// String renders the asset back to data:<mime>;base64,<payload> form.
func (a Asset) String() string {
	return dataURIPrefix + a.MIMEType + ";base64," + a.Data
}

// Parse validates a data URI of the form data:<mime>;base64,<payload>.
func Parse(uri string) (Asset, error) {
	if !strings.HasPrefix(uri, dataURIPrefix) {
		return Asset{}, ErrNotDataURI
	}
	header, payload, ok := strings.Cut(uri[len(dataURIPrefix):], ",")
	if !ok {
		return Asset{}, ErrNotDataURI
	}

	params := strings.Split(header, ";")
	mimeType := params[0]
	if !validMIME(mimeType) {
		return Asset{}, ErrMissingMIME
	}
	if len(params) < 2 || params[len(params)-1] != "base64" {
		return Asset{}, ErrNotBase64
	}
	if payload == "" {
		return Asset{}, ErrInvalidPayload
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return Asset{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	return Asset{MIMEType: mimeType, Data: payload}, nil
}

func validMIME(s string) bool {
	typ, sub, ok := strings.Cut(s, "/")
	return ok && typ != "" && sub != "" && !strings.ContainsAny(s, " ,")
}

// FromBytes encodes raw file content as a data URI. The MIME type is
// sniffed from the content.
func FromBytes(data []byte) string {
	mimeType := mimetype.Detect(data).String()
	// Drop parameters such as "; charset=utf-8" so the header stays
	// data:<mime>;base64.
	if i := strings.Index(mimeType, ";"); i != -1 {
		mimeType = mimeType[:i]
	}
	return Asset{
		MIMEType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}.String()
}

// FromFile reads a local file and encodes it as a data URI.
func FromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	return FromBytes(data), nil
}

// IsImage reports whether a data URI or MIME type denotes an image.
func IsImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}
