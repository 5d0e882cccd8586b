package app

import "time"

// Config holds runtime configuration for the pipeline.
type Config struct {
	// ModelPath locates the text-region model artifact. The artifact is
	// loaded once at startup; a missing or unreadable artifact fails
	// startup for the whole process.
	ModelPath string

	// Fetch
	UserAgent        string
	FetchTimeout     time.Duration
	FetchConcurrency int
	MaxImageBytes    int64
	MaxTotalBytes    int64
	MaxImages        int
	MinDimension     int
	// DomainAllowlist restricts outbound requests to the listed
	// hosts/domains (subdomains included). Empty permits any public host.
	DomainAllowlist []string
	// AllowPrivateHosts permits loopback/private targets. Test use only.
	AllowPrivateHosts bool

	// Classification
	KeepThreshold    float64
	BoundaryFraction float64
	CardAspectMax    float64
	InferConcurrency int

	// Behavior
	Verbose bool
}
