package avatar

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"net/http"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxUploadSize caps the raw multipart body accepted for an avatar.
	MaxUploadSize = 1 << 20

	// DefaultKey is the object every account falls back to when it has no
	// uploaded avatar.
	DefaultKey = "avatar-default.jpg"

	size        = 512
	jpegQuality = 85
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

type Uploader interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
	URL(key string) string
}

// Processor turns arbitrary uploaded images into normalized square JPEG
// avatars and stores them in object storage.
type Processor struct {
	uploader Uploader
}

func New(uploader Uploader) *Processor {
	return &Processor{uploader: uploader}
}

// ProcessAndUpload validates, normalizes and stores an avatar image, and
// returns the public URL of the stored object. Accepted input formats are
// JPEG, PNG and WebP; everything is re-encoded as a 512x512 JPEG. The owner
// is a stable account identifier (user id, or Google id during federated
// signup) that keys the stored object.
func (p *Processor) ProcessAndUpload(ctx context.Context, owner string, raw []byte) (string, error) {
	const op = "avatar.ProcessAndUpload"

	processed, err := Normalize(raw)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	url, err := p.uploader.Put(ctx, Key(owner), processed, "image/jpeg")
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return url, nil
}

// DefaultURL returns the public URL of the fallback avatar.
func (p *Processor) DefaultURL() string {
	return p.uploader.URL(DefaultKey)
}

// Normalize decodes an image, center-crops it to a square, scales it to
// 512x512 and re-encodes it as JPEG.
func Normalize(raw []byte) ([]byte, error) {
	if !allowedType(http.DetectContentType(raw)) {
		return nil, ErrUnsupportedFormat
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, ErrUnsupportedFormat
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, coverRect(src.Bounds()), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Key derives a stable object key from the owner id, so re-uploads overwrite
// the previous avatar.
func Key(owner string) string {
	sum := md5.Sum([]byte(owner))
	return fmt.Sprintf("avatar-%s.jpg", hex.EncodeToString(sum[:])[:12])
}

func allowedType(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/webp":
		return true
	}

	return false
}

// coverRect is the largest centered square inside the source bounds, which
// gives "fit: cover" crop semantics when scaled into the square destination.
func coverRect(b image.Rectangle) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if w == h {
		return b
	}

	if w > h {
		off := (w - h) / 2
		return image.Rect(b.Min.X+off, b.Min.Y, b.Min.X+off+h, b.Max.Y)
	}

	off := (h - w) / 2
	return image.Rect(b.Min.X, b.Min.Y+off, b.Max.X, b.Min.Y+off+w)
}
