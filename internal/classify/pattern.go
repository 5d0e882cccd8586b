package classify

import (
	"image"
	"math"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Pattern tags a known non-content layout detected in an image.
type Pattern int

const (
	PatternNone Pattern = iota
	PatternQR
	PatternCard
)

func (p Pattern) String() string {
	switch p {
	case PatternQR:
		return "qr"
	case PatternCard:
		return "card"
	default:
		return "none"
	}
}

// QRDetector flags images dominated by a decodable QR code. A code has
// to occupy at least MinAreaRatio of the image area to count; exam
// pages legitimately carry a small listening-audio code in a corner and
// must not be flagged for it.
type QRDetector struct {
	// MinAreaRatio is the minimum fraction of the image area the code
	// must cover. Zero means DefaultQRMinAreaRatio.
	MinAreaRatio float64
}

const DefaultQRMinAreaRatio = 0.04

// Match reports whether img contains a prominent QR code. A failed
// decode means no code was found and is not an error.
func (d *QRDetector) Match(img image.Image) (bool, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return false, err
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	result, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		// NotFoundException and friends: no QR present.
		return false, nil
	}

	minRatio := d.MinAreaRatio
	if minRatio <= 0 {
		minRatio = DefaultQRMinAreaRatio
	}
	b := img.Bounds()
	area := float64(b.Dx() * b.Dy())
	if area <= 0 {
		return false, nil
	}
	return qrArea(result.GetResultPoints()) >= minRatio*area, nil
}

// qrArea estimates the code's area from the bounding box of its result
// points. The points sit at finder-pattern centers, so the box is
// scaled up to approximate the full symbol extent.
func qrArea(points []gozxing.ResultPoint) float64 {
	if len(points) < 2 {
		return 0
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.GetX())
		maxX = math.Max(maxX, p.GetX())
		minY = math.Min(minY, p.GetY())
		maxY = math.Max(maxY, p.GetY())
	}
	// Finder centers sit ~3.5 modules inside a symbol at least 21
	// modules wide; 4/3 recovers a conservative full-symbol box.
	const finderScale = 4.0 / 3.0
	return (maxX - minX) * (maxY - minY) * finderScale * finderScale
}

// cardLike reports the social-card signature: a near-square canvas with
// a thin band of text-like regions, the shape share prompts and ads
// take. Genuine pages are text-dense and far from square.
func cardLike(width, height int, coverage, aspectMax, minCoverage, keepThreshold float64) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	long := float64(max(width, height))
	short := float64(min(width, height))
	if long/short > aspectMax {
		return false
	}
	return coverage >= minCoverage && coverage < keepThreshold
}
