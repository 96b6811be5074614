package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nao1215/univcrawl/internal/database"
	"github.com/nao1215/univcrawl/internal/model"
	"github.com/nao1215/univcrawl/internal/partition"
	"github.com/nao1215/univcrawl/internal/report"
)

// NewFilesCmd creates the files command.
func NewFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files [task-id...]",
		Short: "List the admissions files found by crawled tasks",
		Long: `Files lists the file hand-offs recorded for the given tasks, or for every
completed task when no ID is given.

With --manifest the files are printed as JSON lines in the same format as
"univcrawl crawl --manifest", so a download tool can be fed from the
database after the crawl.

Examples:
  univcrawl files
  univcrawl files 3 4 --tier A
  univcrawl files --manifest > files.jsonl`,
		Args: cobra.ArbitraryArgs,
		RunE: runFilesCmd,
	}
	cmd.Flags().String("tier", "", "Only list files of this tier (A or B)")
	cmd.Flags().BoolP("manifest", "m", false, "Output manifest JSON lines")
	return cmd
}

func runFilesCmd(cmd *cobra.Command, args []string) error {
	tierFlag, err := cmd.Flags().GetString("tier")
	if err != nil {
		return err
	}
	asManifest, err := cmd.Flags().GetBool("manifest")
	if err != nil {
		return err
	}
	var tier model.Tier
	if err := tier.UnmarshalText([]byte(tierFlag)); err != nil {
		return fmt.Errorf("%w (expected A or B)", err)
	}

	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid task ID %q", arg)
		}
		ids = append(ids, id)
	}

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	tasks, err := filesTasks(ctx, db, ids)
	if err != nil {
		return err
	}

	var handoff report.FileHandoff
	var table *tabwriter.Writer
	if asManifest {
		handoff = report.NewManifestWriter(cmd.OutOrStdout())
	} else {
		table = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(table, "TASK\tTIER\tCONFIDENCE\tNAME\tURL")
	}

	total := 0
	for _, task := range tasks {
		records, err := db.ListFiles(ctx, task.ID)
		if err != nil {
			return err
		}
		files := handoffs(records, tier)
		total += len(files)
		if handoff != nil {
			if err := handoff.Handoff(ctx, task, files); err != nil {
				return err
			}
			continue
		}
		writeFileRows(table, task.ID, files)
	}

	if table == nil {
		return nil
	}
	if total == 0 {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "No files.")
		return err
	}
	return table.Flush()
}

// filesTasks returns the tasks with the given IDs, or every completed task.
func filesTasks(ctx context.Context, db *database.CrawlDB, ids []int64) ([]*model.Task, error) {
	if len(ids) == 0 {
		return db.ListTasks(ctx, model.TaskCompleted)
	}
	tasks := make([]*model.Task, 0, len(ids))
	for _, id := range ids {
		task, err := db.GetTask(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", id, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// handoffs converts stored records back to hand-offs. TierNone keeps all.
func handoffs(records []database.FileRecord, tier model.Tier) []partition.Handoff {
	files := make([]partition.Handoff, 0, len(records))
	for _, rec := range records {
		if tier != model.TierNone && rec.Tier != tier {
			continue
		}
		files = append(files, partition.Handoff{
			NodeIndex:     rec.NodeIndex,
			URL:           rec.URL,
			SuggestedName: rec.SuggestedName,
			Tier:          rec.Tier,
			Confidence:    rec.Confidence,
		})
	}
	return files
}

func writeFileRows(w io.Writer, taskID int64, files []partition.Handoff) {
	for _, f := range files {
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%s\t%s\n", taskID, f.Tier, f.Confidence, f.SuggestedName, f.URL)
	}
}
