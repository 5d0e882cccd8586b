// Package assemble normalizes kept images to a common page geometry
// and concatenates them, by ordinal, into the final PDF document.
package assemble

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	_ "image/gif"
	_ "image/png"

	"github.com/jung-kurt/gofpdf"
	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/hyperifyio/articlepdf/internal/fetch"
)

// ErrNoPages is returned when there are zero candidates to assemble.
// An empty document is never produced.
var ErrNoPages = errors.New("no images to assemble")

// A4 geometry. Pixel sizes are the page at 150 dpi; millimeter sizes
// drive the PDF placement.
const (
	DefaultPageWidthPx  = 1240
	DefaultPageHeightPx = 1754
	pageWidthMM         = 210.0
	pageHeightMM        = 297.0
)

// fixedCreationDate pins the PDF metadata so identical inputs produce
// byte-identical output.
var fixedCreationDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Assembler renders candidates into a paginated PDF. Every image is
// scaled to the fixed page width preserving aspect ratio; images taller
// than one page are split across consecutive pages at the fixed page
// height, and the final partial page is padded to full height with
// white. The split policy is applied uniformly; normalization is a pure
// function of the input image and these parameters.
type Assembler struct {
	// PageWidthPx and PageHeightPx define the normalized page geometry.
	// Zero means the A4-at-150dpi defaults.
	PageWidthPx  int
	PageHeightPx int
	// JPEGQuality for the normalized page images. Zero means 90.
	JPEGQuality int
}

// Build produces the document byte stream from the ordered candidates.
// Callers pass only the images that should appear; an empty list is
// ErrNoPages.
func (a *Assembler) Build(cands []*fetch.Candidate) ([]byte, error) {
	if len(cands) == 0 {
		return nil, ErrNoPages
	}
	pageW := a.PageWidthPx
	if pageW <= 0 {
		pageW = DefaultPageWidthPx
	}
	pageH := a.PageHeightPx
	if pageH <= 0 {
		pageH = DefaultPageHeightPx
	}
	quality := a.JPEGQuality
	if quality <= 0 {
		quality = 90
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(fixedCreationDate)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	pageIndex := 0
	for _, c := range cands {
		img, _, err := image.Decode(bytes.NewReader(c.Data))
		if err != nil {
			return nil, fmt.Errorf("decode image %d: %w", c.Ordinal, err)
		}
		for _, page := range paginate(img, pageW, pageH) {
			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, page, &jpeg.Options{Quality: quality}); err != nil {
				return nil, fmt.Errorf("encode page: %w", err)
			}
			name := fmt.Sprintf("page-%d", pageIndex)
			pageIndex++

			opts := gofpdf.ImageOptions{ImageType: "JPG", ReadDpi: false}
			pdf.RegisterImageOptionsReader(name, opts, &buf)
			pdf.AddPage()
			pdf.ImageOptions(name, 0, 0, pageWidthMM, pageHeightMM, false, opts, 0, "")
		}
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return out.Bytes(), nil
}

// paginate scales img to the page width and slices it into page-height
// strips, padding the last strip with white.
func paginate(img image.Image, pageW, pageH int) []*image.RGBA {
	scaled := scaleToWidth(img, pageW)
	h := scaled.Bounds().Dy()

	pages := (h + pageH - 1) / pageH
	if pages < 1 {
		pages = 1
	}
	out := make([]*image.RGBA, 0, pages)
	for p := 0; p < pages; p++ {
		page := image.NewRGBA(image.Rect(0, 0, pageW, pageH))
		// White canvas so the final partial strip ends on a clean page.
		fillWhite(page)
		top := p * pageH
		strip := image.Rect(0, top, pageW, min(top+pageH, h))
		xdraw.Draw(page, image.Rect(0, 0, pageW, strip.Dy()), scaled, strip.Min, xdraw.Src)
		out = append(out, page)
	}
	return out
}

// scaleToWidth resizes img to width w preserving aspect ratio, with
// Catmull-Rom interpolation. The result depends only on the input
// pixels and w.
func scaleToWidth(img image.Image, w int) *image.RGBA {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return image.NewRGBA(image.Rect(0, 0, w, 1))
	}
	h := int(float64(b.Dy())*float64(w)/float64(b.Dx()) + 0.5)
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

func fillWhite(img *image.RGBA) {
	b := img.Bounds()
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, white)
		}
	}
}
