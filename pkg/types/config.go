package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// DownloadConfig holds settings for the PDF download step.
type DownloadConfig struct {
	HTTPConfig `yaml:",inline"`

	// Dir is the directory downloaded PDFs are written to.
	Dir string `json:"dir" yaml:"dir"`

	// MaxRetries is the number of download attempts before giving up.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryBaseDelay is the base duration for exponential backoff between
	// attempts (base x 2^attempt).
	RetryBaseDelay time.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
}

// LocatorConfig carries the reference-section locator's tuning thresholds.
// The defaults were chosen empirically against an arXiv corpus; they are
// configuration, not constants, so a deployment can re-tune them.
type LocatorConfig struct {
	// AcceptScore is the minimum reliability score for accepting a heading
	// match as the section start.
	AcceptScore int `json:"accept_score" yaml:"accept_score"`

	// MinSectionChars is the shortest span accepted as a bibliography.
	MinSectionChars int `json:"min_section_chars" yaml:"min_section_chars"`

	// FlagSectionChars is the span length above which the section is
	// flagged for downstream truncation.
	FlagSectionChars int `json:"flag_section_chars" yaml:"flag_section_chars"`

	// FallbackTailFraction is the trailing fraction of the document the
	// heuristic detector searches when no heading is found.
	FallbackTailFraction float64 `json:"fallback_tail_fraction" yaml:"fallback_tail_fraction"`

	// FallbackMinMatches is the citation-entry line count that makes the
	// heuristic detector accept unconditionally.
	FallbackMinMatches int `json:"fallback_min_matches" yaml:"fallback_min_matches"`

	// FallbackClusterMatches is the smaller match count accepted when the
	// matches cluster within FallbackClusterSpan lines.
	FallbackClusterMatches int `json:"fallback_cluster_matches" yaml:"fallback_cluster_matches"`

	// FallbackClusterSpan is the line window for the clustered acceptance.
	FallbackClusterSpan int `json:"fallback_cluster_span" yaml:"fallback_cluster_span"`
}

// DefaultLocatorConfig returns the locator thresholds tuned on arXiv papers.
func DefaultLocatorConfig() LocatorConfig {
	return LocatorConfig{
		AcceptScore:            2,
		MinSectionChars:        100,
		FlagSectionChars:       50000,
		FallbackTailFraction:   0.3,
		FallbackMinMatches:     5,
		FallbackClusterMatches: 3,
		FallbackClusterSpan:    20,
	}
}

// LLMConfig holds settings for the structuring client's language-model call.
type LLMConfig struct {
	// Provider selects the backend family (openai, deepseek, qwen, moonshot,
	// zhipu, doubao, anthropic).
	Provider string `json:"provider" yaml:"provider"`

	// Model is the model identifier sent to the provider.
	Model string `json:"model" yaml:"model"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// APIKey authenticates against the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Timeout bounds the completion call. Structuring is a long-running
	// generative call, so this is much larger than an ordinary HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxTokens caps the completion length.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// Temperature is the sampling temperature; kept low for determinism.
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// MaxChars truncates the section text before sending, bounding request
	// size and latency.
	MaxChars int `json:"max_chars" yaml:"max_chars"`
}

// BatchConfig holds the batch driver's scheduling and filter settings.
type BatchConfig struct {
	// Workers is the number of parallel worker threads; 1 means sequential.
	Workers int `json:"workers" yaml:"workers"`

	// Delay is the minimum spacing between consecutive paper starts.
	Delay time.Duration `json:"delay" yaml:"delay"`

	// Limit caps how many papers one invocation processes; 0 means all.
	Limit int `json:"limit" yaml:"limit"`

	// PaperID restricts the run to a single arXiv identifier.
	PaperID string `json:"paper_id,omitempty" yaml:"paper_id,omitempty"`

	// SkipProcessed skips papers that already completed this mode.
	SkipProcessed bool `json:"skip_processed" yaml:"skip_processed"`

	// RetryFailed restricts the run to papers whose last run failed.
	RetryFailed bool `json:"retry_failed" yaml:"retry_failed"`
}

// StoreConfig holds settings for the SQLite persistence collaborator.
type StoreConfig struct {
	// DataDir is the base data directory (contains pdfs/ and index/).
	DataDir string `json:"data_dir" yaml:"data_dir"`
}
