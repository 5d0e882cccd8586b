package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig represents the single-file configuration schema. Nested
// sections improve readability and map naturally to flags/env.
type FileConfig struct {
	Model string `yaml:"model"`

	Fetch struct {
		UserAgent     string        `yaml:"userAgent"`
		Timeout       time.Duration `yaml:"timeout"`
		Concurrency   int           `yaml:"concurrency"`
		MaxImageBytes int64         `yaml:"maxImageBytes"`
		MaxTotalBytes int64         `yaml:"maxTotalBytes"`
		MaxImages     int           `yaml:"maxImages"`
		MinDimension  int           `yaml:"minDimension"`
	} `yaml:"fetch"`

	Classify struct {
		KeepThreshold    float64 `yaml:"keepThreshold"`
		BoundaryFraction float64 `yaml:"boundaryFraction"`
		CardAspectMax    float64 `yaml:"cardAspectMax"`
		Concurrency      int     `yaml:"concurrency"`
	} `yaml:"classify"`

	Domains struct {
		Allow []string `yaml:"allow"`
	} `yaml:"domains"`

	Verbose bool `yaml:"verbose"`
}

// LoadConfigFile parses a YAML config file. Unknown keys are rejected
// so typos surface at startup instead of silently using defaults.
func LoadConfigFile(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, errors.New("config file must be .yaml or .yml")
	}
	var fc FileConfig
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &fc, nil
}

// ApplyFileConfig merges file values into cfg without overriding
// anything already set by flags or env. Flags keep precedence.
func ApplyFileConfig(cfg *Config, fc *FileConfig) {
	if fc == nil {
		return
	}
	if cfg.ModelPath == "" && fc.Model != "" {
		cfg.ModelPath = fc.Model
	}
	if cfg.UserAgent == "" && fc.Fetch.UserAgent != "" {
		cfg.UserAgent = fc.Fetch.UserAgent
	}
	if cfg.FetchTimeout == 0 && fc.Fetch.Timeout > 0 {
		cfg.FetchTimeout = fc.Fetch.Timeout
	}
	if cfg.FetchConcurrency == 0 && fc.Fetch.Concurrency > 0 {
		cfg.FetchConcurrency = fc.Fetch.Concurrency
	}
	if cfg.MaxImageBytes == 0 && fc.Fetch.MaxImageBytes > 0 {
		cfg.MaxImageBytes = fc.Fetch.MaxImageBytes
	}
	if cfg.MaxTotalBytes == 0 && fc.Fetch.MaxTotalBytes > 0 {
		cfg.MaxTotalBytes = fc.Fetch.MaxTotalBytes
	}
	if cfg.MaxImages == 0 && fc.Fetch.MaxImages > 0 {
		cfg.MaxImages = fc.Fetch.MaxImages
	}
	if cfg.MinDimension == 0 && fc.Fetch.MinDimension > 0 {
		cfg.MinDimension = fc.Fetch.MinDimension
	}
	if cfg.KeepThreshold == 0 && fc.Classify.KeepThreshold > 0 {
		cfg.KeepThreshold = fc.Classify.KeepThreshold
	}
	if cfg.BoundaryFraction == 0 && fc.Classify.BoundaryFraction > 0 {
		cfg.BoundaryFraction = fc.Classify.BoundaryFraction
	}
	if cfg.CardAspectMax == 0 && fc.Classify.CardAspectMax > 0 {
		cfg.CardAspectMax = fc.Classify.CardAspectMax
	}
	if cfg.InferConcurrency == 0 && fc.Classify.Concurrency > 0 {
		cfg.InferConcurrency = fc.Classify.Concurrency
	}
	if len(cfg.DomainAllowlist) == 0 && len(fc.Domains.Allow) > 0 {
		cfg.DomainAllowlist = append([]string{}, fc.Domains.Allow...)
	}
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}
}
