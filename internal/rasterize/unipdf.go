package rasterize

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/model"
	"github.com/unidoc/unipdf/v3/render"
)

// SetLicenseKey registers a UniDoc metered license key. Rendering fails without one.
func SetLicenseKey(key string) error {
	if key == "" {
		return nil
	}
	if err := license.SetMeteredKey(key); err != nil {
		return fmt.Errorf("unidoc license: %w", err)
	}
	return nil
}

// UniPDF renders PDF pages with unipdf.
type UniPDF struct{}

// RenderFirstPage implements PageRenderer.
func (UniPDF) RenderFirstPage(doc []byte, scale float64) (Page, error) {
	reader, err := model.NewPdfReader(bytes.NewReader(doc))
	if err != nil {
		return Page{}, fmt.Errorf("read pdf: %w", err)
	}

	encrypted, err := reader.IsEncrypted()
	if err != nil {
		return Page{}, fmt.Errorf("check encryption: %w", err)
	}
	if encrypted {
		ok, err := reader.Decrypt([]byte(""))
		if err != nil || !ok {
			return Page{}, errors.New("pdf is password protected")
		}
	}

	numPages, err := reader.GetNumPages()
	if err != nil {
		return Page{}, fmt.Errorf("get page count: %w", err)
	}
	if numPages == 0 {
		return Page{}, errors.New("pdf has no pages")
	}

	page, err := reader.GetPage(1)
	if err != nil {
		return Page{}, fmt.Errorf("get page 1: %w", err)
	}
	box, err := page.GetMediaBox()
	if err != nil {
		return Page{}, fmt.Errorf("media box: %w", err)
	}

	device := render.NewImageDevice()
	device.OutputWidth = int(math.Round(box.Width() * scale))
	img, err := device.Render(page)
	if err != nil {
		return Page{}, fmt.Errorf("render page 1: %w", err)
	}

	return Page{
		Image:        img,
		NativeWidth:  box.Width(),
		NativeHeight: box.Height(),
	}, nil
}

var _ PageRenderer = UniPDF{}
