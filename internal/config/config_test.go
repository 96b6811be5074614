package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// TestNewConfig verifies the default values. A failing case here means a
// default changed, which should always be intentional.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default MaxDepth is 3", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxDepth != 3 {
			t.Errorf("expected MaxDepth to be 3, got %d", cfg.MaxDepth)
		}
	})

	t.Run("default MaxChildren is 3", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxChildren != 3 {
			t.Errorf("expected MaxChildren to be 3, got %d", cfg.MaxChildren)
		}
	})

	t.Run("default Threshold is 0.7", func(t *testing.T) {
		t.Parallel()
		if cfg.Threshold != 0.7 {
			t.Errorf("expected Threshold to be 0.7, got %v", cfg.Threshold)
		}
	})

	t.Run("default provider is openai", func(t *testing.T) {
		t.Parallel()
		if cfg.LLMProvider != "openai" {
			t.Errorf("expected LLMProvider to be openai, got %q", cfg.LLMProvider)
		}
	})

	t.Run("default Timeout is 30 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 30*time.Second {
			t.Errorf("expected Timeout to be 30s, got %v", cfg.Timeout)
		}
	})

	t.Run("browser is off by default", func(t *testing.T) {
		t.Parallel()
		if cfg.UseBrowser {
			t.Error("expected UseBrowser to be false")
		}
	})

	t.Run("defaults are valid", func(t *testing.T) {
		t.Parallel()
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})
}

func TestLoadEnv(t *testing.T) {
	t.Setenv(APIKeyEnv, "sk-test")

	cfg := NewConfig()
	cfg.LoadEnv()
	if cfg.LLMAPIKey != "sk-test" {
		t.Errorf("expected api key from environment, got %q", cfg.LLMAPIKey)
	}
}

// TestConfigValidate tests one validation rule per case.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"valid config returns nil", func(*Config) {}, nil},
		{"depth zero is valid", func(c *Config) { c.MaxDepth = 0 }, nil},
		{"negative depth", func(c *Config) { c.MaxDepth = -1 }, ErrInvalidDepth},
		{"zero chunk bytes", func(c *Config) { c.MaxChunkBytes = 0 }, ErrInvalidChunkBytes},
		{"threshold above one", func(c *Config) { c.Threshold = 1.5 }, ErrInvalidThreshold},
		{"negative threshold", func(c *Config) { c.Threshold = -0.1 }, ErrInvalidThreshold},
		{"zero concurrency", func(c *Config) { c.LLMConcurrency = 0 }, ErrInvalidConcurrency},
		{"zero llm attempts", func(c *Config) { c.LLMAttempts = 0 }, ErrInvalidAttempts},
		{"zero fetch attempts", func(c *Config) { c.FetchAttempts = 0 }, ErrInvalidAttempts},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidTimeout},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, ErrInvalidBatchSize},
		{"json and markdown", func(c *Config) { c.JSONReport, c.MarkdownReport = true, true }, ErrConflictingReportFormats},
		{"negative crawl delay", func(c *Config) { c.CrawlDelay = -time.Second }, ErrInvalidCrawlDelay},
		{"negative body size", func(c *Config) { c.MaxBodySize = -1 }, ErrInvalidMaxBodySize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := NewConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// TestFileGetSiteConfig tests merging site configuration over the defaults.
func TestFileGetSiteConfig(t *testing.T) {
	t.Parallel()

	cf := &File{
		Defaults: SiteConfig{
			Depth:          3,
			Cookie:         "lang=ja",
			Headers:        map[string]string{"X-Default": "1"},
			Keywords:       []string{"選抜"},
			IgnorePatterns: []string{"/en/*"},
		},
		Sites: map[string]SiteConfig{
			"www.chiba-u.ac.jp": {
				School:      "千葉大学",
				Depth:       5,
				MaxChildren: 10,
				Headers:     map[string]string{"X-Site": "2"},
				Keywords:    []string{"nyushi-guide"},
				Blacklist:   []string{"kosen"},
			},
		},
	}

	t.Run("returns defaults when site not found", func(t *testing.T) {
		t.Parallel()
		got := cf.GetSiteConfig("www.tohoku.ac.jp")
		if got.Depth != 3 || got.Cookie != "lang=ja" || got.School != "" {
			t.Errorf("expected defaults, got %+v", got)
		}
	})

	t.Run("merges site over defaults", func(t *testing.T) {
		t.Parallel()
		got := cf.GetSiteConfig("www.chiba-u.ac.jp")
		want := SiteConfig{
			School:         "千葉大学",
			Cookie:         "lang=ja",
			Headers:        map[string]string{"X-Default": "1", "X-Site": "2"},
			Depth:          5,
			MaxChildren:    10,
			Keywords:       []string{"選抜", "nyushi-guide"},
			Blacklist:      []string{"kosen"},
			IgnorePatterns: []string{"/en/*"},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("site config mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("ignores the www prefix", func(t *testing.T) {
		t.Parallel()
		if got := cf.GetSiteConfig("chiba-u.ac.jp"); got.School != "千葉大学" {
			t.Errorf("expected the www site to match, got %+v", got)
		}
	})

	t.Run("does not mutate default headers", func(t *testing.T) {
		t.Parallel()
		_ = cf.GetSiteConfig("www.chiba-u.ac.jp")
		if _, ok := cf.Defaults.Headers["X-Site"]; ok {
			t.Error("default headers were mutated")
		}
	})

	t.Run("ForURL uses the URL host", func(t *testing.T) {
		t.Parallel()
		if got := cf.ForURL("https://www.chiba-u.ac.jp/exam/"); got.Depth != 5 {
			t.Errorf("expected depth 5, got %d", got.Depth)
		}
		var nilFile *File
		if got := nilFile.ForURL("https://www.chiba-u.ac.jp"); got.Depth != 0 {
			t.Errorf("expected zero config from nil file, got %+v", got)
		}
	})
}

// TestLoadConfigFile tests the LoadConfigFile function.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.univcrawl")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()
		configPath := filepath.Join(t.TempDir(), ".univcrawl")

		content := `defaults:
  depth: 2
sites:
  www.chiba-u.ac.jp:
    school: 千葉大学
    maxChildren: 5
    keywords:
      - 選抜
    followPatterns:
      - "/exam/*"
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Defaults.Depth != 2 {
			t.Errorf("expected default depth 2, got %d", cfg.Defaults.Depth)
		}
		site := cfg.Sites["www.chiba-u.ac.jp"]
		if site.School != "千葉大学" || site.MaxChildren != 5 {
			t.Errorf("unexpected site config %+v", site)
		}
		if len(site.FollowPatterns) != 1 || len(site.Keywords) != 1 {
			t.Errorf("expected patterns and keywords, got %+v", site)
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()
		configPath := filepath.Join(t.TempDir(), ".univcrawl")
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("initializes nil Sites map", func(t *testing.T) {
		t.Parallel()
		configPath := filepath.Join(t.TempDir(), ".univcrawl")
		if err := os.WriteFile(configPath, []byte("defaults:\n  depth: 1\n"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Sites == nil {
			t.Error("expected Sites map to be initialized")
		}
	})
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()
		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("defaults: {}"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if got := FindConfigFile(configPath); got != configPath {
			t.Errorf("expected %q, got %q", configPath, got)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()
		if got := FindConfigFile("/nonexistent/path/config.yaml"); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})
}

func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for name, dir := range map[string]string{
		"data":   XDGDataDir(),
		"config": XDGConfigDir(),
	} {
		if !strings.HasSuffix(dir, AppName) {
			t.Errorf("expected %s dir to end with %q, got %q", name, AppName, dir)
		}
	}
}
