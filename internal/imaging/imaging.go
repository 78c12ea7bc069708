// Package imaging decodes client frames and prepares crops for the model
// providers.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxImageBytes bounds the decoded payload accepted from clients.
	MaxImageBytes = 10 * 1024 * 1024
	// MaxImagePixels bounds width*height as declared by the image header.
	MaxImagePixels = 40_000_000
)

var ErrInvalidImage = errors.New("invalid image")

// DecodeBase64 accepts either a data URL ("data:image/jpeg;base64,...") or
// bare base64 and returns the decoded image.
func DecodeBase64(s string) (image.Image, error) {
	data, err := Base64Bytes(s)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Base64Bytes strips an optional data URL prefix and decodes the payload.
func Base64Bytes(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}
	if strings.HasPrefix(s, "data:") {
		idx := strings.Index(s, ",")
		if idx < 0 {
			return nil, fmt.Errorf("%w: malformed data url", ErrInvalidImage)
		}
		s = s[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
	}
	if len(data) > MaxImageBytes {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrInvalidImage, MaxImageBytes)
	}
	return data, nil
}

// Decode decodes jpeg, png or webp bytes.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrInvalidImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, MaxImagePixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: zero-sized image", ErrInvalidImage)
	}
	return img, nil
}

// ToRGBA converts any decoded image (paletted, gray, alpha, YCbCr) into an
// RGBA copy with its origin at (0,0).
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Crop clamps r to the image bounds and returns a copy of that region. ok is
// false when the clamped region is empty.
func Crop(img image.Image, r image.Rectangle) (image.Image, bool) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return nil, false
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Copy(dst, image.Point{}, img, r, draw.Src, nil)
	return dst, true
}

// Fit downsizes img so that neither side exceeds maxSide. Smaller images are
// returned unchanged.
func Fit(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return img
	}

	scale := float64(maxSide) / float64(max(w, h))
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// EncodeJPEG encodes img for providers that accept raw bytes.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNG encodes img losslessly.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeDataURL returns img as a jpeg data URL.
func EncodeDataURL(img image.Image) (string, error) {
	data, err := EncodeJPEG(img, 90)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}
