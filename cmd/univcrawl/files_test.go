package main

import (
	"context"
	"strings"
	"testing"

	"github.com/nao1215/univcrawl/internal/database"
	"github.com/nao1215/univcrawl/internal/model"
)

// seedFiles stores one completed task with a file in each tier.
func seedFiles(t *testing.T, dbDir string) {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	task, err := db.CreateTask(ctx, "https://www.chiba-u.ac.jp/", "千葉大学")
	if err != nil {
		t.Fatal(err)
	}
	for _, status := range []model.TaskStatus{model.TaskCrawling, model.TaskCompleted} {
		if err := db.UpdateTaskStatus(ctx, task.ID, status, ""); err != nil {
			t.Fatal(err)
		}
	}
	records := []*database.FileRecord{
		{TaskID: task.ID, NodeIndex: 4, URL: "https://www.chiba-u.ac.jp/exam/guide.pdf", SuggestedName: "募集要項.pdf", Tier: model.TierA, Confidence: 1},
		{TaskID: task.ID, NodeIndex: 9, URL: "https://www.chiba-u.ac.jp/misc/map.pdf", SuggestedName: "map.pdf", Tier: model.TierB, Confidence: 0.3},
	}
	for _, rec := range records {
		if err := db.CreateFileRecord(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFilesCmd(t *testing.T) {
	t.Parallel()

	// The subtests share one database file and run in sequence.
	dbDir := t.TempDir()
	seedFiles(t, dbDir)

	t.Run("table of completed tasks", func(t *testing.T) {
		out, err := execute(t, dbDir, "files")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"CONFIDENCE", "募集要項.pdf", "map.pdf", "1.00"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got %q", want, out)
			}
		}
	})

	t.Run("tier filter and manifest", func(t *testing.T) {
		out, err := execute(t, dbDir, "files", "1", "--tier", "A", "--manifest")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) != 1 {
			t.Fatalf("expected one manifest line, got %q", out)
		}
		for _, want := range []string{`"task_id":1`, `"school":"千葉大学"`, `"suggested_name":"募集要項.pdf"`, `"tier":"A"`} {
			if !strings.Contains(lines[0], want) {
				t.Errorf("expected manifest to contain %s, got %s", want, lines[0])
			}
		}
	})

	t.Run("invalid arguments", func(t *testing.T) {
		if _, err := execute(t, dbDir, "files", "--tier", "C"); err == nil {
			t.Error("expected error for an unknown tier")
		}
		if _, err := execute(t, dbDir, "files", "abc"); err == nil {
			t.Error("expected error for an invalid task ID")
		}
		if _, err := execute(t, dbDir, "files", "42"); err == nil {
			t.Error("expected error for a missing task")
		}
	})
}

func TestFilesCmdEmpty(t *testing.T) {
	t.Parallel()

	out, err := execute(t, t.TempDir(), "files")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No files.") {
		t.Errorf("unexpected output %q", out)
	}
}
