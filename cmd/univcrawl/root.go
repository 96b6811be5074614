package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/univcrawl/internal/config"
	"github.com/nao1215/univcrawl/internal/database"
	seclog "github.com/nao1215/univcrawl/internal/log"
)

// NewRootCmd creates the root command for univcrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "univcrawl",
		Short: "Find admissions documents on university websites",
		Long: `univcrawl crawls university websites and finds their admissions documents.

Each seed URL is crawled into a link tree, the tree is classified by a
language model in two stages (category, then pruning) and the kept pages
and files are split into a high-confidence tier A and a review tier B.

Seeds are tracked as tasks in a SQLite database, so a crawl interrupted
half-way resumes after its last completed stage. The language model API
key is read from ` + config.APIKeyEnv + `.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .univcrawl in current or home directory)")
	cmd.PersistentFlags().String("db-dir", config.XDGDataDir(),
		"Directory of the task database")
	cmd.PersistentFlags().String("log-format", "text", "Log format on stderr: text or json")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewQueueCmd())
	cmd.AddCommand(NewTasksCmd())
	cmd.AddCommand(NewResetCmd())
	cmd.AddCommand(NewFilesCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parents.
func getVerboseFlag(cmd *cobra.Command) bool {
	f := cmd.Flag("verbose")
	return f != nil && f.Value.String() == "true"
}

// stringFlag returns the value of a local or inherited flag, or def when
// the command has no such flag.
func stringFlag(cmd *cobra.Command, name, def string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return def
}

// setupLogger creates the secure structured logger on w.
func setupLogger(w io.Writer, verbose bool, format string) (*slog.Logger, error) {
	switch format {
	case "", "text":
		return seclog.NewSecureLogger(w, verbose), nil
	case "json":
		return seclog.NewSecureJSONLogger(w, verbose), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (expected text or json)", format)
	}
}

// openDB opens the task database in the directory of the db-dir flag.
func openDB(cmd *cobra.Command) (*database.CrawlDB, error) {
	dir := stringFlag(cmd, "db-dir", config.XDGDataDir())
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// loadSiteConfigs reads the site configuration file. An explicitly given
// path must exist; otherwise a missing file yields an empty configuration.
func loadSiteConfigs(path string) (*config.File, error) {
	found := config.FindConfigFile(path)
	if found == "" {
		if path != "" {
			return nil, fmt.Errorf("configuration file not found: %s", path)
		}
		return &config.File{Sites: make(map[string]config.SiteConfig)}, nil
	}

	cf, err := config.LoadConfigFile(found)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return nil, fmt.Errorf("configuration file not found: %s", found)
		}
		return nil, fmt.Errorf("failed to load config file %s: %w", found, err)
	}
	return cf, nil
}
