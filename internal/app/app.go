package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/articlepdf/internal/assemble"
	"github.com/hyperifyio/articlepdf/internal/classify"
	"github.com/hyperifyio/articlepdf/internal/fetch"
)

// Terminal conditions. Per-image failures never surface here; only the
// two aggregate empty-result conditions end a request with an error.
var (
	// ErrNoImages is returned when the fetch stage produced zero
	// candidates, including the all-fetches-failed case.
	ErrNoImages = errors.New("no images retrieved from article")
	// ErrAllFiltered is returned when classification discarded every
	// candidate. A degenerate empty document is never produced.
	ErrAllFiltered = errors.New("no images remained after filtering")
	// ErrInvalidRequest marks a request rejected before any network call.
	ErrInvalidRequest = errors.New("invalid request")
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Request is the inbound call contract: one article URL and the filter
// toggle. Immutable once accepted.
type Request struct {
	URL      string `json:"url"`
	NoFilter bool   `json:"no_filter"`
}

// Report aggregates per-image diagnostics for one run. Nothing in it is
// fatal; it exists for observability.
type Report struct {
	Discovered        int
	Fetched           int
	Kept              int
	Discarded         int
	FetchFailures     []fetch.Failure
	InferenceFailures []fetch.Failure
}

// App wires the pipeline stages. It holds no per-request state; the
// only shared artifact is the classification model, loaded once in New
// and read-only afterwards, so one App serves concurrent requests.
type App struct {
	cfg       Config
	model     *classify.Model
	fetcher   *fetch.Fetcher
	assembler *assemble.Assembler
}

// New builds the pipeline. A missing or malformed model artifact fails
// startup here; it is never a per-request error.
func New(cfg Config) (*App, error) {
	model, err := classify.LoadModel(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load classification model: %w", err)
	}
	log.Info().Str("path", cfg.ModelPath).Msg("classification model loaded")

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	client := &fetch.Client{
		HTTPClient:        newHighThroughputHTTPClient(),
		UserAgent:         ua,
		MaxAttempts:       2,
		PerRequestTimeout: timeout,
		MaxBodyBytes:      cfg.MaxImageBytes,
		MaxConcurrent:     cfg.FetchConcurrency,
		Policy: &fetch.HostPolicy{
			Allowlist:         cfg.DomainAllowlist,
			AllowPrivateHosts: cfg.AllowPrivateHosts,
		},
	}

	return &App{
		cfg:   cfg,
		model: model,
		fetcher: &fetch.Fetcher{
			Client:        client,
			Concurrency:   cfg.FetchConcurrency,
			MaxImages:     cfg.MaxImages,
			MaxTotalBytes: cfg.MaxTotalBytes,
			MinDimension:  cfg.MinDimension,
		},
		assembler: &assemble.Assembler{},
	}, nil
}

// Convert runs fetch → classify → assemble for one request and returns
// the document bytes. On any terminal condition no partial or empty
// document is returned: the error carries the whole outcome.
func (a *App) Convert(ctx context.Context, req Request) ([]byte, *Report, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, nil, fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	if _, err := fetch.ParseRequestURL(req.URL); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	report := &Report{}
	start := time.Now()

	candidates, fetchFailures, err := a.fetcher.Run(ctx, req.URL)
	if err != nil {
		if errors.Is(err, fetch.ErrNoImageRefs) {
			return nil, report, fmt.Errorf("%w: %v", ErrNoImages, err)
		}
		return nil, report, fmt.Errorf("fetch stage: %w", err)
	}
	report.FetchFailures = fetchFailures
	report.Discovered = len(candidates) + len(fetchFailures)
	report.Fetched = len(candidates)
	if len(candidates) == 0 {
		return nil, report, ErrNoImages
	}

	// The filter policy is chosen once here; stages never branch on it
	// again beyond the classifier's wholesale bypass.
	classifier := &classify.Classifier{
		Text:             a.model,
		QR:               &classify.QRDetector{},
		KeepThreshold:    a.cfg.KeepThreshold,
		BoundaryFraction: a.cfg.BoundaryFraction,
		CardAspectMax:    a.cfg.CardAspectMax,
		Concurrency:      a.cfg.InferConcurrency,
	}
	inferFailures, err := classifier.Run(ctx, candidates, req.NoFilter)
	if err != nil {
		return nil, report, fmt.Errorf("classify stage: %w", err)
	}
	report.InferenceFailures = inferFailures

	kept := make([]*fetch.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Decision() == fetch.Kept {
			kept = append(kept, c)
		} else {
			log.Info().Int("ordinal", c.Ordinal).Str("reason", c.DiscardReason()).Msg("discarded image")
		}
	}
	report.Kept = len(kept)
	report.Discarded = len(candidates) - len(kept)
	if len(kept) == 0 {
		return nil, report, ErrAllFiltered
	}

	doc, err := a.assembler.Build(kept)
	if err != nil {
		if errors.Is(err, assemble.ErrNoPages) {
			return nil, report, ErrAllFiltered
		}
		return nil, report, fmt.Errorf("assemble stage: %w", err)
	}

	log.Info().
		Int("fetched", report.Fetched).
		Int("kept", report.Kept).
		Int("discarded", report.Discarded).
		Int("fetch_failures", len(report.FetchFailures)).
		Int("inference_failures", len(report.InferenceFailures)).
		Dur("elapsed", time.Since(start)).
		Msg("conversion done")
	return doc, report, nil
}
