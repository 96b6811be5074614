package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestNewRootCmd tests the root command creation.
func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "univcrawl" {
			t.Errorf("expected use 'univcrawl', got %q", cmd.Use)
		}
	})

	t.Run("has descriptions and version", func(t *testing.T) {
		t.Parallel()
		if cmd.Short == "" || cmd.Long == "" {
			t.Error("expected non-empty descriptions")
		}
		if cmd.Version == "" {
			t.Error("expected non-empty version")
		}
	})

	t.Run("has persistent flags", func(t *testing.T) {
		t.Parallel()
		verbose := cmd.PersistentFlags().Lookup("verbose")
		if verbose == nil || verbose.Shorthand != "v" || verbose.DefValue != "false" {
			t.Errorf("unexpected verbose flag %+v", verbose)
		}
		if f := cmd.PersistentFlags().Lookup("config"); f == nil || f.Shorthand != "c" {
			t.Errorf("unexpected config flag %+v", f)
		}
		if cmd.PersistentFlags().Lookup("db-dir") == nil {
			t.Error("expected db-dir flag")
		}
	})

	t.Run("has subcommands", func(t *testing.T) {
		t.Parallel()
		var names []string
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		// cobra sorts subcommands by name.
		want := []string{"crawl", "files", "init", "queue", "reset", "tasks", "version"}
		if diff := cmp.Diff(want, names); diff != "" {
			t.Errorf("subcommands mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("silences usage and errors", func(t *testing.T) {
		t.Parallel()
		if !cmd.SilenceUsage || !cmd.SilenceErrors {
			t.Error("expected SilenceUsage and SilenceErrors")
		}
	})
}

func TestInheritedFlags(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	crawl, _, err := root.Find([]string{"crawl"})
	if err != nil {
		t.Fatal(err)
	}
	if err := root.PersistentFlags().Set("verbose", "true"); err != nil {
		t.Fatal(err)
	}
	if err := root.PersistentFlags().Set("db-dir", "/tmp/univcrawl-db"); err != nil {
		t.Fatal(err)
	}

	if !getVerboseFlag(crawl) {
		t.Error("expected verbose from the root command")
	}
	if got := stringFlag(crawl, "db-dir", "default"); got != "/tmp/univcrawl-db" {
		t.Errorf("expected the db dir of the root command, got %q", got)
	}
	if got := stringFlag(NewCrawlCmd(), "db-dir", "default"); got != "default" {
		t.Errorf("expected the default without a root command, got %q", got)
	}
	if getVerboseFlag(NewCrawlCmd()) {
		t.Error("expected verbose off without a root command")
	}
}

func TestSetupLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format   string
		wantJSON bool
		wantErr  bool
	}{
		{format: "", wantJSON: false},
		{format: "text", wantJSON: false},
		{format: "json", wantJSON: true},
		{format: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger, err := setupLogger(&buf, false, tt.format)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error for an unknown format")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			logger.Warn("page fetch failed", "cookie", "lang=ja")
			output := buf.String()
			if got := strings.HasPrefix(output, "{"); got != tt.wantJSON {
				t.Errorf("expected JSON %v, got %q", tt.wantJSON, output)
			}
			if strings.Contains(output, "lang=ja") {
				t.Errorf("expected the cookie to be masked, got %q", output)
			}
		})
	}
}
