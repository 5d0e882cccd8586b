package classify

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
	"os"
)

// featureCount is the per-cell feature vector length the model scores.
const featureCount = 4

// Model is the trained scene-text region scorer. It divides an image
// into fixed-size cells, computes gradient features per cell, and
// scores each cell with a logistic layer whose weights come from the
// model artifact. The artifact is loaded once at process start and the
// loaded model is read-only, so any number of goroutines may share it.
type Model struct {
	Version       int       `json:"version"`
	Cell          int       `json:"cell"`
	EdgeThreshold float64   `json:"edge_threshold"`
	Weights       []float64 `json:"weights"`
	Bias          float64   `json:"bias"`
}

// LoadModel reads and validates a model artifact. A missing or
// malformed artifact is a startup-fatal condition for the caller.
func LoadModel(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	var m Model
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse model artifact: %w", err)
	}
	if m.Cell <= 0 {
		return nil, fmt.Errorf("model artifact: invalid cell size %d", m.Cell)
	}
	if len(m.Weights) != featureCount {
		return nil, fmt.Errorf("model artifact: expected %d weights, got %d", featureCount, len(m.Weights))
	}
	if m.EdgeThreshold <= 0 {
		return nil, fmt.Errorf("model artifact: invalid edge threshold %v", m.EdgeThreshold)
	}
	return &m, nil
}

// Coverage estimates the fraction of the image area covered by
// text-like regions, in [0,1]. The estimate is a pure function of the
// pixel data and the model parameters.
func (m *Model) Coverage(img image.Image) (float64, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < m.Cell || h < m.Cell {
		return 0, fmt.Errorf("image %dx%d smaller than model cell %d", w, h, m.Cell)
	}

	gray := toGray(img)
	gx, gy := sobel(gray, w, h)

	cols := w / m.Cell
	rows := h / m.Cell
	textCells := 0
	for cy := 0; cy < rows; cy++ {
		for cx := 0; cx < cols; cx++ {
			f := m.cellFeatures(gray, gx, gy, w, cx*m.Cell, cy*m.Cell)
			z := m.Bias
			for i, wgt := range m.Weights {
				z += wgt * f[i]
			}
			if sigmoid(z) >= 0.5 {
				textCells++
			}
		}
	}
	total := cols * rows
	if total == 0 {
		return 0, nil
	}
	return float64(textCells) / float64(total), nil
}

// cellFeatures computes the feature vector for the cell whose top-left
// corner is (ox, oy):
//
//	f0 edge density: fraction of cell pixels with gradient magnitude
//	   at or above the trained threshold
//	f1 stroke alternation: per-row sign changes of the horizontal
//	   gradient, normalized by cell width
//	f2 vertical energy share: sum|gy| / (sum|gx|+sum|gy|)
//	f3 intensity spread: per-cell standard deviation over 128
func (m *Model) cellFeatures(gray []float64, gx, gy []float64, stride, ox, oy int) [featureCount]float64 {
	var f [featureCount]float64
	n := m.Cell * m.Cell

	edges := 0
	transitions := 0
	var sumGX, sumGY float64
	var sum, sumSq float64
	for y := oy; y < oy+m.Cell; y++ {
		prevSign := 0
		for x := ox; x < ox+m.Cell; x++ {
			i := y*stride + x
			hx, vy := gx[i], gy[i]
			mag := math.Hypot(hx, vy)
			if mag >= m.EdgeThreshold {
				edges++
			}
			sumGX += math.Abs(hx)
			sumGY += math.Abs(vy)
			if math.Abs(hx) >= m.EdgeThreshold {
				sign := 1
				if hx < 0 {
					sign = -1
				}
				if prevSign != 0 && sign != prevSign {
					transitions++
				}
				prevSign = sign
			}
			v := gray[i]
			sum += v
			sumSq += v * v
		}
	}

	f[0] = float64(edges) / float64(n)
	f[1] = math.Min(1, float64(transitions)/float64(m.Cell*m.Cell/2))
	if total := sumGX + sumGY; total > 0 {
		f[2] = sumGY / total
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	f[3] = math.Min(1, math.Sqrt(variance)/128)
	return f
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// toGray flattens the image into a row-major luminance buffer.
func toGray(img image.Image) []float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// ITU-R BT.601 luma on 8-bit scale.
			out[y*w+x] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257
		}
	}
	return out
}

// sobel computes horizontal and vertical gradients. Border pixels keep
// zero gradients, which slightly under-counts edges at image borders.
func sobel(gray []float64, w, h int) (gx, gy []float64) {
	gx = make([]float64, w*h)
	gy = make([]float64, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			tl, tc, tr := gray[i-w-1], gray[i-w], gray[i-w+1]
			ml, mr := gray[i-1], gray[i+1]
			bl, bc, br := gray[i+w-1], gray[i+w], gray[i+w+1]
			gx[i] = (tr + 2*mr + br) - (tl + 2*ml + bl)
			gy[i] = (bl + 2*bc + br) - (tl + 2*tc + tr)
		}
	}
	return gx, gy
}
