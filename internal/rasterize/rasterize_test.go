package rasterize

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRenderer struct {
	width, height int
	err           error
	panicWith     any
}

func (f fakeRenderer) RenderFirstPage(doc []byte, scale float64) (Page, error) {
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.err != nil {
		return Page{}, f.err
	}
	// Render at the native size so the rasterizer has to upscale.
	img := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
	for x := 0; x < f.width; x++ {
		img.Set(x, x%f.height, color.Black)
	}
	return Page{Image: img, NativeWidth: float64(f.width), NativeHeight: float64(f.height)}, nil
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestRasterizeScalesWithFactor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		scale         float64
		width, height int
		wantW, wantH  int
	}{
		{name: "default", scale: 2.5, width: 100, height: 140, wantW: 250, wantH: 350},
		{name: "double", scale: 2, width: 61, height: 79, wantW: 122, wantH: 158},
		{name: "below minimum clamps to 2", scale: 1, width: 50, height: 50, wantW: 100, wantH: 100},
		{name: "triple", scale: 3, width: 40, height: 20, wantW: 120, wantH: 60},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := New(fakeRenderer{width: tt.width, height: tt.height}, tt.scale, time.Second)
			res, err := r.Rasterize(context.Background(), []byte("%PDF"))
			if err != nil {
				t.Fatalf("Rasterize: %v", err)
			}
			w, h := decodeSize(t, res.Image)
			if w != tt.wantW || h != tt.wantH {
				t.Fatalf("got %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
			if res.Width != w || res.Height != h || res.ContentType != ContentType {
				t.Fatalf("result metadata mismatch: %+v", res)
			}
		})
	}
}

func TestRasterizeCorruptDocument(t *testing.T) {
	r := New(fakeRenderer{err: errors.New("invalid pdf header")}, DefaultScale, time.Second)
	_, err := r.Rasterize(context.Background(), []byte("garbage"))
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected ConversionError, got %v", err)
	}
	if err.Error() != "conversion failed: invalid pdf header" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestRasterizeRecoversFromPanic(t *testing.T) {
	r := New(fakeRenderer{panicWith: "nil dereference"}, DefaultScale, time.Second)
	_, err := r.Rasterize(context.Background(), []byte("%PDF"))
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected ConversionError after panic, got %v", err)
	}
	if !strings.Contains(err.Error(), "nil dereference") {
		t.Fatalf("expected panic cause in message, got %q", err.Error())
	}
}

func TestRasterizeUnsupportedSurface(t *testing.T) {
	r := &Rasterizer{}
	if _, err := r.Rasterize(context.Background(), []byte("%PDF")); !errors.Is(err, ErrSurfaceUnsupported) {
		t.Fatalf("expected ErrSurfaceUnsupported, got %v", err)
	}
	if ErrSurfaceUnsupported.Error() != "rendering surface unsupported" {
		t.Fatalf("unexpected message %q", ErrSurfaceUnsupported.Error())
	}
}

func TestRasterizeEncodeTimeoutResolvesOnce(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	var calls int32
	r := &Rasterizer{
		Renderer:      fakeRenderer{width: 10, height: 10},
		Scale:         2,
		EncodeTimeout: 20 * time.Millisecond,
		Encode: func(w io.Writer, img image.Image) error {
			atomic.AddInt32(&calls, 1)
			<-release
			return nil
		},
	}

	start := time.Now()
	_, err := r.Rasterize(context.Background(), []byte("%PDF"))
	if !errors.Is(err, ErrEncodeTimeout) {
		t.Fatalf("expected ErrEncodeTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout took too long: %s", elapsed)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected encoder invoked once, got %d", got)
	}
}

func TestRasterizeEncoderError(t *testing.T) {
	r := &Rasterizer{
		Renderer: fakeRenderer{width: 10, height: 10},
		Scale:    2,
		Encode: func(w io.Writer, img image.Image) error {
			return errors.New("out of memory")
		},
	}
	_, err := r.Rasterize(context.Background(), []byte("%PDF"))
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected ConversionError, got %v", err)
	}
}

func TestRasterizeEmptyDocument(t *testing.T) {
	r := New(fakeRenderer{width: 10, height: 10}, 2, time.Second)
	if _, err := r.Rasterize(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty document")
	}
}

func TestUniPDFRejectsGarbage(t *testing.T) {
	r := New(UniPDF{}, DefaultScale, time.Second)
	_, err := r.Rasterize(context.Background(), []byte("definitely not a pdf"))
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected ConversionError, got %v", err)
	}
}
