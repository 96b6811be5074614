package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "univcrawl"

	// APIKeyEnv is the environment variable holding the model API key.
	// The key is never read from the YAML file.
	APIKeyEnv = "UNIVCRAWL_LLM_API_KEY"

	// DefaultMaxDepth is the crawl depth below the seed page. Admissions
	// documents on Japanese university sites rarely sit deeper than three
	// links from the top page.
	DefaultMaxDepth = 3

	// DefaultMaxChildren caps how many children of one father survive sampling.
	DefaultMaxChildren = 3

	// DefaultMaxChunkBytes bounds one model payload.
	DefaultMaxChunkBytes = 16 * 1024

	// DefaultThreshold is the confidence a node needs for tier A.
	DefaultThreshold = 0.7

	// DefaultLLMProvider is the provider used when none is configured.
	DefaultLLMProvider = "openai"

	// DefaultLLMConcurrency is the number of chunks classified at once.
	DefaultLLMConcurrency = 4

	// DefaultLLMAttempts is the number of tries per chunk, first one included.
	DefaultLLMAttempts = 3

	// DefaultFetchAttempts is the number of tries per page, first one included.
	DefaultFetchAttempts = 3

	// DefaultRetryDelay is the wait before the second try of a page or chunk.
	DefaultRetryDelay = 1 * time.Second

	// DefaultTimeout bounds one page request.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxPages bounds the pages fetched for one seed.
	DefaultMaxPages = 500

	// DefaultDelay is the pause between two page fetches.
	DefaultDelay = 500 * time.Millisecond

	// DefaultBatchSize is the number of seeds crawled at once.
	DefaultBatchSize = 2

	// DefaultMaxBodySize limits the response body read per page.
	DefaultMaxBodySize = 5 * 1024 * 1024
)

// Config holds all configuration options for univcrawl.
// It is populated from the config file and CLI flags and passed through the
// application explicitly; nothing reads it from global state.
type Config struct {
	// MaxDepth is the crawl depth below the seed page. It is clamped to 10.
	MaxDepth int

	// MaxChildren caps the children kept per father by the sampler.
	// Zero or less disables the cap.
	MaxChildren int

	// MaxChunkBytes bounds one model payload.
	MaxChunkBytes int

	// Threshold is the confidence a node needs for tier A, in [0, 1].
	Threshold float64

	// LLMProvider selects the model client: "openai" or "gemini".
	LLMProvider string

	// LLMModel is the model name. Empty uses the provider default.
	LLMModel string

	// LLMBaseURL overrides the endpoint of OpenAI-compatible providers.
	LLMBaseURL string

	// LLMAPIKey is read from APIKeyEnv.
	LLMAPIKey string

	// LLMConcurrency is the number of chunks classified at once.
	LLMConcurrency int

	// LLMAttempts is the number of tries per chunk, first one included.
	LLMAttempts int

	// FetchAttempts is the number of tries per page, first one included.
	FetchAttempts int

	// RetryDelay is the base delay of the exponential backoff.
	RetryDelay time.Duration

	// Timeout bounds one page request.
	Timeout time.Duration

	// MaxPages bounds the pages fetched per seed. Zero means no bound.
	MaxPages int

	// CrawlDelay is the pause between two page fetches.
	CrawlDelay time.Duration

	// UserAgent is sent with every plain HTTP request.
	UserAgent string

	// MaxBodySize limits the response body read per page.
	MaxBodySize int64

	// UseBrowser renders pages in headless Chromium instead of plain HTTP.
	UseBrowser bool

	// BrowserURL connects to a running browser's DevTools endpoint instead of
	// launching one. Only used with UseBrowser.
	BrowserURL string

	// BatchSize is the number of seeds crawled at once.
	BatchSize int

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the path to the configuration file. When empty,
	// .univcrawl is searched in the current and home directories.
	ConfigFilePath string

	// SiteConfigs holds the per-site settings of the configuration file.
	SiteConfigs *File

	// JSONReport writes the tier report as JSON.
	JSONReport bool

	// MarkdownReport writes the tier report as Markdown.
	MarkdownReport bool

	// ReportDir receives one report per task. Empty writes to stdout.
	ReportDir string

	// ManifestFile receives the file hand-off manifest (JSON lines).
	ManifestFile string

	// DBDir holds the SQLite database.
	DBDir string

	// SaveToDB persists tasks, nodes and files.
	SaveToDB bool

	// Targets are the seed URLs given on the command line.
	Targets []string

	// SchoolName names the school of a single target.
	SchoolName string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxDepth:       DefaultMaxDepth,
		MaxChildren:    DefaultMaxChildren,
		MaxChunkBytes:  DefaultMaxChunkBytes,
		Threshold:      DefaultThreshold,
		LLMProvider:    DefaultLLMProvider,
		LLMConcurrency: DefaultLLMConcurrency,
		LLMAttempts:    DefaultLLMAttempts,
		FetchAttempts:  DefaultFetchAttempts,
		RetryDelay:     DefaultRetryDelay,
		Timeout:        DefaultTimeout,
		MaxPages:       DefaultMaxPages,
		CrawlDelay:     DefaultDelay,
		MaxBodySize:    DefaultMaxBodySize,
		BatchSize:      DefaultBatchSize,
		DBDir:          XDGDataDir(),
	}
}

// LoadEnv fills the settings that only come from the environment.
func (c *Config) LoadEnv() {
	if key := os.Getenv(APIKeyEnv); key != "" {
		c.LLMAPIKey = key
	}
}

// XDGDataDir returns the XDG data directory for univcrawl.
// On Linux: ~/.local/share/univcrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for univcrawl.
// On Linux: ~/.config/univcrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
// Targets are not checked because seeds may come from the queue instead.
func (c *Config) Validate() error {
	if c.MaxDepth < 0 {
		return ErrInvalidDepth
	}
	if c.MaxChunkBytes <= 0 {
		return ErrInvalidChunkBytes
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return ErrInvalidThreshold
	}
	if c.LLMConcurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.LLMAttempts <= 0 || c.FetchAttempts <= 0 {
		return ErrInvalidAttempts
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.CrawlDelay < 0 || c.RetryDelay < 0 {
		return ErrInvalidCrawlDelay
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	return nil
}
