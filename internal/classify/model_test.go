package classify

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

const artifactPath = "../../models/textdetect.json"

// textLikeImage draws dense vertical strokes, the gradient profile of
// printed text at page resolution.
func textLikeImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	black := color.RGBA{A: 255}
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/2)%2 == 0 {
				img.SetRGBA(x, y, black)
			} else {
				img.SetRGBA(x, y, white)
			}
		}
	}
	return img
}

func flatImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	gray := color.RGBA{R: 200, G: 200, B: 200, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, gray)
		}
	}
	return img
}

func loadTestModel(t *testing.T) *Model {
	t.Helper()
	m, err := LoadModel(artifactPath)
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	return m
}

func TestLoadModel_MissingArtifact(t *testing.T) {
	if _, err := LoadModel(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected error for missing artifact")
	}
}

func TestLoadModel_MalformedArtifact(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"garbage.json":  `not json`,
		"badcell.json":  `{"version":1,"cell":0,"edge_threshold":128,"weights":[1,2,3,4],"bias":0}`,
		"badwidth.json": `{"version":1,"cell":16,"edge_threshold":128,"weights":[1,2],"bias":0}`,
	}
	for name, content := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
		if _, err := LoadModel(path); err == nil {
			t.Fatalf("expected error for %s", name)
		}
	}
}

func TestCoverage_TextDenseVsFlat(t *testing.T) {
	m := loadTestModel(t)

	dense, err := m.Coverage(textLikeImage(64, 64))
	if err != nil {
		t.Fatalf("coverage on text-like image: %v", err)
	}
	if dense < 0.5 {
		t.Fatalf("expected high coverage on text-like image, got %v", dense)
	}

	flat, err := m.Coverage(flatImage(64, 64))
	if err != nil {
		t.Fatalf("coverage on flat image: %v", err)
	}
	if flat != 0 {
		t.Fatalf("expected zero coverage on flat image, got %v", flat)
	}
}

func TestCoverage_Deterministic(t *testing.T) {
	m := loadTestModel(t)
	img := textLikeImage(80, 48)
	first, err := m.Coverage(img)
	if err != nil {
		t.Fatalf("coverage: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := m.Coverage(img)
		if err != nil {
			t.Fatalf("coverage: %v", err)
		}
		if again != first {
			t.Fatalf("coverage not deterministic: %v vs %v", first, again)
		}
	}
}

func TestCoverage_ImageSmallerThanCell(t *testing.T) {
	m := loadTestModel(t)
	if _, err := m.Coverage(flatImage(8, 8)); err == nil {
		t.Fatalf("expected error for image smaller than a model cell")
	}
}
