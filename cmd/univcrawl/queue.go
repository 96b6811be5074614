package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nao1215/univcrawl/internal/model"
)

// NewQueueCmd creates the queue command and its subcommands.
func NewQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage the queue of seed URLs",
	}
	cmd.AddCommand(newQueueAddCmd())
	return cmd
}

func newQueueAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [seed-url...]",
		Short: "Queue seed URLs for the next crawl",
		Long: `Add queues seed URLs as pending tasks. A seed already known to the
database is left alone, whatever its status.

Seeds can also be read from a file with one seed per line. A school name may
follow the URL, separated by a tab or a comma. Empty lines and lines starting
with # are ignored.

Examples:
  univcrawl queue add https://www.chiba-u.ac.jp/ --school 千葉大学
  univcrawl queue add -f seeds.csv`,
		Args: cobra.ArbitraryArgs,
		RunE: runQueueAddCmd,
	}
	cmd.Flags().String("school", "", "School name of the seeds given as arguments")
	cmd.Flags().StringP("file", "f", "", "Read seeds from a file")
	return cmd
}

// seedEntry is one seed to queue.
type seedEntry struct {
	url    string
	school string
}

func runQueueAddCmd(cmd *cobra.Command, args []string) error {
	school, err := cmd.Flags().GetString("school")
	if err != nil {
		return err
	}
	file, err := cmd.Flags().GetString("file")
	if err != nil {
		return err
	}

	var seeds []seedEntry
	for _, arg := range args {
		seeds = append(seeds, seedEntry{url: arg, school: school})
	}
	if file != "" {
		f, err := os.Open(file) //nolint:gosec // user-provided seed list
		if err != nil {
			return fmt.Errorf("failed to open seed file: %w", err)
		}
		defer f.Close()
		fromFile, err := readSeeds(f)
		if err != nil {
			return fmt.Errorf("failed to read seed file: %w", err)
		}
		seeds = append(seeds, fromFile...)
	}
	if len(seeds) == 0 {
		return errors.New("no seeds provided (give seed URLs as arguments or use --file)")
	}
	for _, s := range seeds {
		if err := validateSeed(s.url); err != nil {
			return err
		}
	}

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	added := 0
	for _, s := range seeds {
		ok, err := db.AddSeed(cmd.Context(), s.url, s.school)
		if err != nil {
			return err
		}
		if ok {
			added++
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s\n", s.url)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Already known %s\n", s.url)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d seed(s) queued\n", added, len(seeds))
	return nil
}

// readSeeds parses a seed list: "url", "url<TAB>school" or "url,school".
func readSeeds(r io.Reader) ([]seedEntry, error) {
	var seeds []seedEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seedURL, school, _ := strings.Cut(line, "\t")
		if school == "" {
			seedURL, school, _ = strings.Cut(line, ",")
		}
		seeds = append(seeds, seedEntry{url: strings.TrimSpace(seedURL), school: strings.TrimSpace(school)})
	}
	return seeds, scanner.Err()
}

// NewTasksCmd creates the tasks command.
func NewTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List crawl tasks",
		Long: `Tasks lists the crawl tasks of the database with their status, the last
completed stage and the node counts.

Examples:
  univcrawl tasks
  univcrawl tasks --status failed
  univcrawl tasks --json`,
		Args: cobra.NoArgs,
		RunE: runTasksCmd,
	}
	cmd.Flags().StringP("status", "s", "", "Only list tasks with this status (pending, crawling, completed, failed)")
	cmd.Flags().BoolP("json", "j", false, "Output JSON")
	return cmd
}

func runTasksCmd(cmd *cobra.Command, _ []string) error {
	status, err := cmd.Flags().GetString("status")
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	if status != "" && !model.TaskStatus(status).IsValid() {
		return fmt.Errorf("unknown task status %q", status)
	}

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	tasks, err := db.ListTasks(cmd.Context(), model.TaskStatus(status))
	if err != nil {
		return err
	}
	if asJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		encoder.SetEscapeHTML(false)
		return encoder.Encode(tasks)
	}
	return printTasks(cmd.OutOrStdout(), tasks)
}

// printTasks writes tasks as an aligned table.
func printTasks(w io.Writer, tasks []*model.Task) error {
	if len(tasks) == 0 {
		_, err := fmt.Fprintln(w, "No tasks.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSTAGE\tNODES\tPRUNED\tFILES\tSCHOOL\tSEED")
	for _, t := range tasks {
		stage := t.LastStage
		if stage == "" {
			stage = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			t.ID, t.Status, stage, t.NodeCount, t.PrunedCount, t.FileCount, t.SchoolName, t.SeedURL)
		if t.ErrorMessage != "" {
			fmt.Fprintf(tw, "\t\t\t\t\t\t\terror: %s\n", t.ErrorMessage)
		}
	}
	return tw.Flush()
}

// NewResetCmd creates the reset command.
func NewResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Move failed tasks back to the queue",
		Long: `Reset moves every failed task back to pending and removes its stored
nodes, so the next crawl starts it from scratch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := db.ResetFailed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d failed task(s) to pending\n", n)
			return nil
		},
	}
}
