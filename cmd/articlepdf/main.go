package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/articlepdf/internal/app"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		articleURL    string
		outputPath    string
		noFilter      bool
		serveAddr     string
		configPath    string
		modelPath     string
		userAgent     string
		fetchTimeout  time.Duration
		concurrency   int
		inferWorkers  int
		maxImageBytes int64
		maxTotalBytes int64
		maxImages     int
		minDimension  int
		keepThreshold float64
		boundaryFrac  float64
		domainsAllow  string
		verbose       bool
	)

	flag.StringVar(&articleURL, "url", "", "Article URL to convert")
	flag.StringVar(&outputPath, "output", "article.pdf", "Path to write the PDF")
	flag.BoolVar(&noFilter, "no-filter", false, "Disable content filtering; keep every retrieved image")
	flag.StringVar(&serveAddr, "serve", "", "Run the HTTP API on this address (e.g. :8080) instead of converting one URL")
	flag.StringVar(&configPath, "config", os.Getenv("ARTICLEPDF_CONFIG"), "Optional YAML config file")
	flag.StringVar(&modelPath, "model", os.Getenv("ARTICLEPDF_MODEL"), "Path to the text-region model artifact")
	flag.StringVar(&userAgent, "ua", "", "Custom User-Agent for outbound requests")
	flag.DurationVar(&fetchTimeout, "fetch.timeout", 0, "Per-request timeout (default 20s)")
	flag.IntVar(&concurrency, "fetch.concurrency", 0, "Max in-flight image downloads (default 10)")
	flag.IntVar(&inferWorkers, "classify.concurrency", 0, "Max concurrent model inferences (default 2)")
	flag.Int64Var(&maxImageBytes, "fetch.maxImageBytes", 0, "Per-image size cap in bytes (default 10MiB)")
	flag.Int64Var(&maxTotalBytes, "fetch.maxTotalBytes", 0, "Aggregate byte budget per request (default 128MiB)")
	flag.IntVar(&maxImages, "fetch.maxImages", 0, "Max images processed per request (default 100)")
	flag.IntVar(&minDimension, "fetch.minDimension", 0, "Minimum image width/height in pixels (default 300)")
	flag.Float64Var(&keepThreshold, "classify.keepThreshold", 0, "Text coverage ratio at or above which an image is content (default 0.08)")
	flag.Float64Var(&boundaryFrac, "classify.boundaryFraction", 0, "Start/end boundary region as a fraction of image count (default 0.2)")
	flag.StringVar(&domainsAllow, "domains.allow", os.Getenv("DOMAINS_ALLOW"), "Comma-separated allowlist of hosts/domains; if set, only these are contacted (subdomains included)")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg := app.Config{
		ModelPath:        modelPath,
		UserAgent:        userAgent,
		FetchTimeout:     fetchTimeout,
		FetchConcurrency: concurrency,
		InferConcurrency: inferWorkers,
		MaxImageBytes:    maxImageBytes,
		MaxTotalBytes:    maxTotalBytes,
		MaxImages:        maxImages,
		MinDimension:     minDimension,
		KeepThreshold:    keepThreshold,
		BoundaryFraction: boundaryFrac,
		Verbose:          verbose,
	}
	if s := strings.TrimSpace(domainsAllow); s != "" {
		parts := strings.Split(s, ",")
		list := make([]string, 0, len(parts))
		for _, p := range parts {
			if v := strings.TrimSpace(p); v != "" {
				list = append(list, v)
			}
		}
		cfg.DomainAllowlist = list
	}

	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			log.Error().Err(err).Str("path", configPath).Msg("config file failed")
			os.Exit(1)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	if cfg.ModelPath == "" {
		cfg.ModelPath = "models/textdetect.json"
	}
	if cfg.MaxImageBytes == 0 {
		cfg.MaxImageBytes = 10 << 20
	}
	if cfg.MaxTotalBytes == 0 {
		cfg.MaxTotalBytes = 128 << 20
	}

	a, err := app.New(cfg)
	if err != nil {
		// Model load failure is startup-fatal for the whole pipeline.
		log.Error().Err(err).Msg("startup failed")
		os.Exit(1)
	}

	if serveAddr != "" {
		log.Info().Str("addr", serveAddr).Msg("serving HTTP API")
		srv := &http.Server{
			Addr:              serveAddr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			os.Exit(1)
		}
		return
	}

	if articleURL == "" {
		fmt.Fprintln(os.Stderr, "usage: articlepdf -url <article URL> [-output article.pdf] [-no-filter]")
		os.Exit(1)
	}

	if err := run(a, articleURL, noFilter, outputPath); err != nil {
		log.Error().Err(err).Msg("run failed")
		// Exit code policy: 2 when the article yielded nothing usable,
		// 1 for any other failure.
		if errors.Is(err, app.ErrNoImages) || errors.Is(err, app.ErrAllFiltered) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(a *app.App, articleURL string, noFilter bool, outputPath string) error {
	ctx := context.Background()

	doc, report, err := a.Convert(ctx, app.Request{URL: articleURL, NoFilter: noFilter})
	if err != nil {
		return err
	}
	for _, f := range report.FetchFailures {
		log.Warn().Int("ordinal", f.Ordinal).Str("url", f.URL).Str("reason", f.Reason).Msg("image skipped")
	}
	if err := os.WriteFile(outputPath, doc, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	log.Info().Str("out", outputPath).Int("bytes", len(doc)).Msg("wrote PDF")
	return nil
}
