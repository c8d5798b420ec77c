// Package imaging normalizes uploaded images before they are forwarded.
package imaging

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/nfnt/resize"
	log "github.com/sirupsen/logrus"

	"pantrychef/internal/recipe"
)

// Hash returns the hex encoded SHA-256 of the image bytes.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Extension maps a MIME type to a file extension.
func Extension(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	case "image/heif":
		return ".heif"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}

// DefaultMaxPixels bounds the decoded size of an image the Resizer will
// touch. Larger images are forwarded untouched.
const DefaultMaxPixels = 40_000_000

// Resizer downscales JPEG and PNG images wider than MaxWidth.
type Resizer struct {
	MaxWidth  uint
	MaxPixels int
}

// NewResizer returns a Resizer; a zero width disables resizing and a
// non-positive pixel cap selects DefaultMaxPixels.
func NewResizer(maxWidth, maxPixels int) *Resizer {
	if maxWidth < 0 {
		maxWidth = 0
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Resizer{MaxWidth: uint(maxWidth), MaxPixels: maxPixels}
}

// Process returns img unchanged unless it is a decodable JPEG or PNG wider
// than MaxWidth and within MaxPixels, in which case a re-encoded
// downscaled copy is returned.
func (r *Resizer) Process(img recipe.Image) recipe.Image {
	if r == nil || r.MaxWidth == 0 {
		return img
	}
	mimeType := strings.ToLower(img.MIMEType)
	if mimeType != "image/jpeg" && mimeType != "image/jpg" && mimeType != "image/png" {
		return img
	}

	// Only the header is read here; the pixel buffer is allocated by Decode.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		log.WithError(err).WithField("mime_type", img.MIMEType).Debug("imaging: decode failed, forwarding original")
		return img
	}
	if uint(cfg.Width) <= r.MaxWidth {
		return img
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(r.MaxPixels) {
		log.WithFields(log.Fields{
			"width":  cfg.Width,
			"height": cfg.Height,
		}).Warn("imaging: image too large to resize, forwarding original")
		return img
	}

	decoded, format, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		log.WithError(err).WithField("mime_type", img.MIMEType).Debug("imaging: decode failed, forwarding original")
		return img
	}

	resized := resize.Resize(r.MaxWidth, 0, decoded, resize.Lanczos3)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 90})
	case "png":
		err = png.Encode(&buf, resized)
	default:
		return img
	}
	if err != nil {
		log.WithError(err).Warn("imaging: encode failed, forwarding original")
		return img
	}

	return recipe.Image{MIMEType: "image/" + format, Data: buf.Bytes()}
}
