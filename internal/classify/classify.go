// Package classify decides, per retrieved image, whether it is genuine
// article content or extraneous material (QR prompts, share cards,
// boundary advertisements). The decision combines a trained text-region
// coverage signal with pattern detectors and the image's position in
// the article.
package classify

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/articlepdf/internal/fetch"
)

// TextDetector estimates the fraction of an image covered by text-like
// regions. *Model implements it; tests substitute fakes.
type TextDetector interface {
	Coverage(img image.Image) (float64, error)
}

// QRMatcher flags images dominated by a QR/barcode pattern.
type QRMatcher interface {
	Match(img image.Image) (bool, error)
}

// Signal carries the per-candidate classification inputs. It is
// attached once and read-only afterwards.
type Signal struct {
	TextCoverage float64
	Pattern      Pattern
}

// Classifier applies the keep/discard policy over an ordered candidate
// list. All fields are read-only during a run, so one Classifier serves
// concurrent requests.
type Classifier struct {
	Text TextDetector
	QR   QRMatcher

	// KeepThreshold is the text coverage ratio at or above which a
	// candidate is content regardless of position.
	// Zero means DefaultKeepThreshold.
	KeepThreshold float64
	// BoundaryFraction sizes the start/end boundary regions as a
	// fraction of the candidate count. Zero means DefaultBoundaryFraction.
	BoundaryFraction float64
	// CardAspectMax is the maximum long/short side ratio for the
	// share-card signature. Zero means DefaultCardAspectMax.
	CardAspectMax float64
	// CardMinCoverage is the minimum text coverage for the card
	// signature; below it a sparse image is decoration, not a card.
	// Zero means DefaultCardMinCoverage.
	CardMinCoverage float64
	// Concurrency caps concurrent inference. Model scoring is the
	// heaviest per-unit cost of the pipeline, so this ceiling is
	// deliberately lower than the fetch concurrency.
	// Zero means DefaultConcurrency.
	Concurrency int
}

const (
	DefaultKeepThreshold    = 0.08
	DefaultBoundaryFraction = 0.2
	DefaultCardAspectMax    = 1.3
	DefaultCardMinCoverage  = 0.02
	DefaultConcurrency      = 2
)

// Run tags every candidate with a final decision, preserving order.
// When noFilter is set the policy is a wholesale bypass: every
// candidate is Kept and no inference runs. Inference failures resolve
// fail-open to Kept and are reported as diagnostics, never as errors.
func (cl *Classifier) Run(ctx context.Context, cands []*fetch.Candidate, noFilter bool) ([]fetch.Failure, error) {
	if noFilter {
		for _, c := range cands {
			if err := c.Decide(fetch.Kept, ""); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	signals := make([]*Signal, len(cands))
	failures := make([]*fetch.Failure, len(cands))

	concurrency := cl.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, c := range cands {
		i, c := i, c
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			sig, err := cl.signal(c)
			if err != nil {
				failures[i] = &fetch.Failure{Ordinal: c.Ordinal, URL: c.SourceURL, Reason: err.Error()}
				return nil
			}
			signals[i] = sig
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	boundary := cl.boundarySize(len(cands))
	for i, c := range cands {
		sig := signals[i]
		if sig == nil {
			// Fail-open: inference failed, keep the candidate rather
			// than risk dropping legitimate content.
			log.Warn().Int("ordinal", c.Ordinal).Str("url", c.SourceURL).Msg("inference failed, keeping candidate")
			if err := c.Decide(fetch.Kept, ""); err != nil {
				return nil, err
			}
			continue
		}
		decision, reason := cl.decide(sig, i, len(cands), boundary)
		if err := c.Decide(decision, reason); err != nil {
			return nil, err
		}
		log.Debug().
			Int("ordinal", c.Ordinal).
			Float64("coverage", sig.TextCoverage).
			Str("pattern", sig.Pattern.String()).
			Str("decision", decision.String()).
			Msg("classified")
	}

	failed := make([]fetch.Failure, 0)
	for _, f := range failures {
		if f != nil {
			failed = append(failed, *f)
		}
	}
	return failed, nil
}

// signal computes the two independent classification signals for one
// candidate.
func (cl *Classifier) signal(c *fetch.Candidate) (*Signal, error) {
	img, _, err := image.Decode(bytes.NewReader(c.Data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	coverage, err := cl.Text.Coverage(img)
	if err != nil {
		return nil, fmt.Errorf("text coverage: %w", err)
	}

	sig := &Signal{TextCoverage: coverage, Pattern: PatternNone}

	qr, err := cl.QR.Match(img)
	if err != nil {
		return nil, fmt.Errorf("qr detect: %w", err)
	}
	if qr {
		sig.Pattern = PatternQR
		return sig, nil
	}

	if cardLike(c.Width, c.Height, coverage, cl.cardAspectMax(), cl.cardMinCoverage(), cl.keepThreshold()) {
		sig.Pattern = PatternCard
	}
	return sig, nil
}

// decide applies the decision table: a pattern match discards
// unconditionally; text-dense images are content anywhere; text-sparse
// images are discarded only in the boundary regions where ads and
// share prompts concentrate, and given the benefit of the doubt in the
// middle of the article.
func (cl *Classifier) decide(sig *Signal, index, total, boundary int) (fetch.Decision, string) {
	switch sig.Pattern {
	case PatternQR:
		return fetch.Discarded, "qr pattern"
	case PatternCard:
		return fetch.Discarded, "share-card pattern"
	}
	if sig.TextCoverage >= cl.keepThreshold() {
		return fetch.Kept, ""
	}
	if index < boundary || index >= total-boundary {
		return fetch.Discarded, fmt.Sprintf("text-sparse at article boundary (coverage %.3f)", sig.TextCoverage)
	}
	return fetch.Kept, ""
}

// boundarySize converts the configured fraction into a candidate count,
// at least 1 at each edge.
func (cl *Classifier) boundarySize(total int) int {
	if total == 0 {
		return 0
	}
	frac := cl.BoundaryFraction
	if frac <= 0 {
		frac = DefaultBoundaryFraction
	}
	b := int(math.Ceil(frac * float64(total)))
	if b < 1 {
		b = 1
	}
	return b
}

func (cl *Classifier) keepThreshold() float64 {
	if cl.KeepThreshold > 0 {
		return cl.KeepThreshold
	}
	return DefaultKeepThreshold
}

func (cl *Classifier) cardAspectMax() float64 {
	if cl.CardAspectMax > 0 {
		return cl.CardAspectMax
	}
	return DefaultCardAspectMax
}

func (cl *Classifier) cardMinCoverage() float64 {
	if cl.CardMinCoverage > 0 {
		return cl.CardMinCoverage
	}
	return DefaultCardMinCoverage
}
