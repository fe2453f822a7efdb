// Package rasterize renders the first page of an uploaded document into a PNG preview.
package rasterize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"time"

	xdraw "golang.org/x/image/draw"
)

const (
	// DefaultScale is the upscale factor applied to the page's native size.
	DefaultScale = 2.5
	// MinScale keeps previews legible for people and vision models.
	MinScale = 2.0
	// DefaultEncodeTimeout bounds the wait for the encoder.
	DefaultEncodeTimeout = 5 * time.Second

	ContentType = "image/png"
)

var (
	// ErrSurfaceUnsupported means no renderer is available in this process.
	ErrSurfaceUnsupported = errors.New("rendering surface unsupported")
	// ErrEncodeTimeout means the encoder did not finish within the configured wait.
	ErrEncodeTimeout = errors.New("image encode timed out")
)

// ConversionError wraps an unsupported or corrupt document.
type ConversionError struct {
	Cause error
}

func (e *ConversionError) Error() string {
	return "conversion failed: " + e.Cause.Error()
}

func (e *ConversionError) Unwrap() error {
	return e.Cause
}

// Page is a rendered first page plus its native size in PDF points.
type Page struct {
	Image        image.Image
	NativeWidth  float64
	NativeHeight float64
}

// PageRenderer renders the first page of a document at roughly scale times its native size.
type PageRenderer interface {
	RenderFirstPage(doc []byte, scale float64) (Page, error)
}

// Encoder writes img to w.
type Encoder func(w io.Writer, img image.Image) error

// Result is an encoded preview.
type Result struct {
	Image       []byte
	Width       int
	Height      int
	ContentType string
}

// Rasterizer turns documents into preview images.
type Rasterizer struct {
	Renderer      PageRenderer
	Encode        Encoder
	Scale         float64
	EncodeTimeout time.Duration
}

// New returns a Rasterizer backed by renderer with PNG encoding.
func New(renderer PageRenderer, scale float64, encodeTimeout time.Duration) *Rasterizer {
	return &Rasterizer{
		Renderer:      renderer,
		Encode:        png.Encode,
		Scale:         scale,
		EncodeTimeout: encodeTimeout,
	}
}

func (r *Rasterizer) scale() float64 {
	if r.Scale < MinScale {
		if r.Scale <= 0 {
			return DefaultScale
		}
		return MinScale
	}
	return r.Scale
}

func (r *Rasterizer) encodeTimeout() time.Duration {
	if r.EncodeTimeout <= 0 {
		return DefaultEncodeTimeout
	}
	return r.EncodeTimeout
}

// Rasterize renders the document's first page, sizes it to the native page size times the
// scale factor and encodes it. It never panics; every failure comes back as an error.
func (r *Rasterizer) Rasterize(ctx context.Context, doc []byte) (res Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res = Result{}
			err = &ConversionError{Cause: fmt.Errorf("panic: %v", rec)}
		}
	}()

	if r == nil || r.Renderer == nil {
		return Result{}, ErrSurfaceUnsupported
	}
	if len(doc) == 0 {
		return Result{}, &ConversionError{Cause: errors.New("empty document")}
	}

	scale := r.scale()
	page, err := r.Renderer.RenderFirstPage(doc, scale)
	if err != nil {
		if errors.Is(err, ErrSurfaceUnsupported) {
			return Result{}, err
		}
		return Result{}, &ConversionError{Cause: err}
	}
	if page.Image == nil {
		return Result{}, &ConversionError{Cause: errors.New("renderer returned no image")}
	}

	img := fitToScale(page, scale)

	encode := r.Encode
	if encode == nil {
		encode = png.Encode
	}
	data, err := encodeWithTimeout(ctx, encode, img, r.encodeTimeout())
	if err != nil {
		return Result{}, err
	}

	b := img.Bounds()
	return Result{
		Image:       data,
		Width:       b.Dx(),
		Height:      b.Dy(),
		ContentType: ContentType,
	}, nil
}

// TargetSize is the pixel size of a page of the given native size at scale.
func TargetSize(nativeWidth, nativeHeight, scale float64) (int, int) {
	return int(math.Round(nativeWidth * scale)), int(math.Round(nativeHeight * scale))
}

func fitToScale(page Page, scale float64) image.Image {
	src := page.Image
	if page.NativeWidth <= 0 || page.NativeHeight <= 0 {
		return src
	}
	w, h := TargetSize(page.NativeWidth, page.NativeHeight, scale)
	sb := src.Bounds()
	if w <= 0 || h <= 0 || (sb.Dx() == w && sb.Dy() == h) {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, xdraw.Src, nil)
	return dst
}

type encodeResult struct {
	data []byte
	err  error
}

// encodeWithTimeout resolves exactly once: with the encoder's output, with ErrEncodeTimeout,
// or with the context error. A late encoder result is dropped into the buffered channel.
func encodeWithTimeout(ctx context.Context, encode Encoder, img image.Image, timeout time.Duration) ([]byte, error) {
	done := make(chan encodeResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- encodeResult{err: &ConversionError{Cause: fmt.Errorf("encoder panic: %v", rec)}}
			}
		}()
		var buf bytes.Buffer
		if err := encode(&buf, img); err != nil {
			done <- encodeResult{err: &ConversionError{Cause: fmt.Errorf("encode: %w", err)}}
			return
		}
		done <- encodeResult{data: buf.Bytes()}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.data, res.err
	case <-timer.C:
		return nil, ErrEncodeTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
