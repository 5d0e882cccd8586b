package assemble

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/hyperifyio/articlepdf/internal/fetch"
)

func pngCandidate(t *testing.T, ordinal, w, h int) *fetch.Candidate {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return &fetch.Candidate{
		Ordinal:     ordinal,
		SourceURL:   fmt.Sprintf("https://img.example.com/%d.png", ordinal),
		Data:        buf.Bytes(),
		ContentType: "image/png",
		Width:       w,
		Height:      h,
	}
}

func pageCount(t *testing.T, pdf []byte) int {
	t.Helper()
	for n := 1; n < 100; n++ {
		if bytes.Contains(pdf, []byte(fmt.Sprintf("/Count %d", n))) {
			return n
		}
	}
	t.Fatalf("no page count found in output")
	return 0
}

func TestBuild_EmptyInput(t *testing.T) {
	a := &Assembler{}
	if _, err := a.Build(nil); !errors.Is(err, ErrNoPages) {
		t.Fatalf("expected ErrNoPages, got %v", err)
	}
}

func TestBuild_ProducesPDF(t *testing.T) {
	a := &Assembler{}
	out, err := a.Build([]*fetch.Candidate{pngCandidate(t, 0, 400, 300)})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF, starts with %q", out[:min(8, len(out))])
	}
	if got := pageCount(t, out); got != 1 {
		t.Fatalf("expected 1 page, got %d", got)
	}
}

func TestBuild_SplitsTallImageAcrossPages(t *testing.T) {
	// Scaled to 1240 wide the image is 4000 tall, which needs three
	// 1754-pixel pages.
	a := &Assembler{}
	out, err := a.Build([]*fetch.Candidate{pngCandidate(t, 0, 620, 2000)})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := pageCount(t, out); got != 3 {
		t.Fatalf("expected 3 pages, got %d", got)
	}
}

func TestBuild_OnePagePerImage(t *testing.T) {
	cands := []*fetch.Candidate{
		pngCandidate(t, 0, 400, 300),
		pngCandidate(t, 1, 300, 400),
		pngCandidate(t, 2, 500, 200),
	}
	a := &Assembler{}
	out, err := a.Build(cands)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := pageCount(t, out); got != 3 {
		t.Fatalf("expected 3 pages, got %d", got)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	cands := []*fetch.Candidate{
		pngCandidate(t, 0, 400, 300),
		pngCandidate(t, 1, 620, 2000),
	}
	a := &Assembler{}
	first, err := a.Build(cands)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	second, err := a.Build(cands)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("identical input produced differing documents (%d vs %d bytes)", len(first), len(second))
	}
}

func TestBuild_UndecodableData(t *testing.T) {
	c := pngCandidate(t, 0, 100, 100)
	c.Data = []byte("not an image")
	a := &Assembler{}
	if _, err := a.Build([]*fetch.Candidate{c}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestPaginate_PadsLastStrip(t *testing.T) {
	// 1.5 pages of content. The second page's lower half must be white.
	img := image.NewRGBA(image.Rect(0, 0, 100, 150))
	for y := 0; y < 150; y++ {
		for x := 0; x < 100; x++ {
			img.SetRGBA(x, y, color.RGBA{A: 255})
		}
	}
	pages := paginate(img, 100, 100)
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	r, g, b, _ := pages[1].At(50, 80).RGBA()
	if r != 0xffff || g != 0xffff || b != 0xffff {
		t.Fatalf("padding pixel not white: %v %v %v", r, g, b)
	}
	r, _, _, _ = pages[1].At(50, 20).RGBA()
	if r == 0xffff {
		t.Fatal("content strip missing from second page")
	}
}

func TestScaleToWidth_PreservesAspect(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	scaled := scaleToWidth(img, 400)
	if scaled.Bounds().Dx() != 400 || scaled.Bounds().Dy() != 200 {
		t.Fatalf("got %v", scaled.Bounds())
	}
}
