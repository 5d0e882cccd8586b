package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/hyperifyio/articlepdf/internal/extract"
)

// Fetcher drives the retrieval stage: article markup, image reference
// discovery, and bounded-concurrency image download. Results land in a
// pre-sized ordinal-indexed slot arena so completion order can never
// disturb source order; each goroutine owns exactly one slot.
type Fetcher struct {
	Client *Client
	// Concurrency caps simultaneously in-flight image downloads.
	// Zero means DefaultConcurrency.
	Concurrency int
	// MaxImages caps how many discovered references are retrieved.
	// Zero means DefaultMaxImages.
	MaxImages int
	// MaxTotalBytes caps the aggregate size of retrieved image bodies
	// per run. Zero disables the budget.
	MaxTotalBytes int64
	// MinDimension rejects images whose width or height falls below it.
	// Tiny payloads are icons and navigation art, never page content.
	MinDimension int
}

const (
	DefaultConcurrency  = 10
	DefaultMaxImages    = 100
	DefaultMinDimension = 300
)

// ErrNoImageRefs is returned when the article markup yields no image
// references at all.
var ErrNoImageRefs = errors.New("no image references found in article")

// Run retrieves the article at articleURL and downloads its images.
// Per-image failures are collected and excluded; only the complete
// absence of a usable article is an error here. An empty candidate
// list with a nil error is the caller's terminal condition to enforce.
func (f *Fetcher) Run(ctx context.Context, articleURL string) ([]*Candidate, []Failure, error) {
	if _, err := ParseRequestURL(articleURL); err != nil {
		return nil, nil, err
	}

	markup, err := f.Client.GetArticle(ctx, articleURL)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch article: %w", err)
	}

	refs, err := extract.ImageRefs(markup, articleURL)
	if err != nil {
		return nil, nil, fmt.Errorf("extract image refs: %w", err)
	}
	if len(refs) == 0 {
		return nil, nil, ErrNoImageRefs
	}

	maxImages := f.MaxImages
	if maxImages <= 0 {
		maxImages = DefaultMaxImages
	}
	if len(refs) > maxImages {
		log.Warn().Int("found", len(refs)).Int("cap", maxImages).Msg("image count capped")
		refs = refs[:maxImages]
	}

	concurrency := f.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	// Slot arena: one fixed slot per ordinal. Failed fetches leave
	// their slot nil; ordinals of survivors are gaps-preserved.
	slots := make([]*Candidate, len(refs))
	failures := make([]*Failure, len(refs))
	var totalBytes atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			cand, err := f.fetchOne(gctx, i, ref, &totalBytes)
			if err != nil {
				log.Debug().Err(err).Int("ordinal", i).Str("url", ref).Msg("image fetch failed")
				failures[i] = &Failure{Ordinal: i, URL: ref, Reason: err.Error()}
				return nil
			}
			slots[i] = cand
			return nil
		})
	}
	// Workers never return errors; Wait only surfaces ctx cancellation.
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	candidates := make([]*Candidate, 0, len(slots))
	for _, c := range slots {
		if c != nil {
			candidates = append(candidates, c)
		}
	}
	failed := make([]Failure, 0)
	for _, f := range failures {
		if f != nil {
			failed = append(failed, *f)
		}
	}
	log.Info().Int("discovered", len(refs)).Int("fetched", len(candidates)).Int("failed", len(failed)).Msg("image retrieval done")
	return candidates, failed, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, ordinal int, ref string, totalBytes *atomic.Int64) (*Candidate, error) {
	body, ct, err := f.Client.GetImage(ctx, ref)
	if err != nil {
		return nil, err
	}

	if f.MaxTotalBytes > 0 {
		if totalBytes.Add(int64(len(body))) > f.MaxTotalBytes {
			totalBytes.Add(int64(-len(body)))
			return nil, fmt.Errorf("aggregate byte budget exhausted")
		}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	minDim := f.MinDimension
	if minDim <= 0 {
		minDim = DefaultMinDimension
	}
	if cfg.Width < minDim || cfg.Height < minDim {
		return nil, fmt.Errorf("image too small: %dx%d", cfg.Width, cfg.Height)
	}

	return &Candidate{
		Ordinal:     ordinal,
		SourceURL:   ref,
		Data:        body,
		ContentType: ct,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}
