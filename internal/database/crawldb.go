package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/univcrawl/internal/model"
)

// DBFileName is the name of the database file inside the data directory.
const DBFileName = "univcrawl.db"

// ErrTaskNotFound is returned when a task ID does not exist.
var ErrTaskNotFound = errors.New("task not found")

// CrawlDB provides SQLite-based storage for tasks, their node trees and the
// files handed off for download.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so the CLI can list tasks while a
	// batch is writing.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer; batch workers share one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per seed URL. A pending task is a queued seed.
	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seed_url TEXT NOT NULL,
		url_hash TEXT NOT NULL UNIQUE,
		school_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		node_count INTEGER NOT NULL DEFAULT 0,
		pruned_count INTEGER NOT NULL DEFAULT 0,
		file_count INTEGER NOT NULL DEFAULT 0,
		last_stage TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		started_at DATETIME,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

	-- Node trees, checkpointed after every pipeline stage.
	CREATE TABLE IF NOT EXISTS nodes (
		task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		father_idx INTEGER NOT NULL,
		depth INTEGER NOT NULL,
		url TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		breadcrumb TEXT NOT NULL DEFAULT '[]',
		father_title TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		is_file INTEGER NOT NULL DEFAULT 0,
		file_extension TEXT NOT NULL DEFAULT '',
		is_pruned INTEGER NOT NULL DEFAULT 0,
		sampled_out INTEGER NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT 'UNCLASSIFIED',
		confidence REAL NOT NULL DEFAULT 0,
		tier TEXT NOT NULL DEFAULT '-',
		note TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (task_id, idx)
	);

	-- Files handed off for download.
	CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		node_idx INTEGER NOT NULL,
		url TEXT NOT NULL,
		suggested_name TEXT NOT NULL,
		tier TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(task_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_files_task ON files(task_id);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// AddSeed queues a seed URL as a pending task. It returns false when the
// seed is already known, whatever its status.
func (cdb *CrawlDB) AddSeed(ctx context.Context, seedURL, schoolName string) (bool, error) {
	result, err := cdb.db.ExecContext(ctx, `
	INSERT INTO tasks (seed_url, url_hash, school_name, status)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(url_hash) DO NOTHING
	`, seedURL, model.URLHash(seedURL), schoolName, model.TaskPending)
	if err != nil {
		return false, fmt.Errorf("failed to add seed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateTask returns the task of seedURL, creating a pending one when the
// seed is new. A non-empty schoolName replaces the stored one.
func (cdb *CrawlDB) CreateTask(ctx context.Context, seedURL, schoolName string) (*model.Task, error) {
	_, err := cdb.db.ExecContext(ctx, `
	INSERT INTO tasks (seed_url, url_hash, school_name, status)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(url_hash) DO UPDATE SET
		school_name = CASE WHEN excluded.school_name = '' THEN tasks.school_name ELSE excluded.school_name END
	`, seedURL, model.URLHash(seedURL), schoolName, model.TaskPending)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	row := cdb.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE url_hash = ?`, model.URLHash(seedURL))
	return scanTask(row)
}

// GetTask returns the task with the given ID.
func (cdb *CrawlDB) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	row := cdb.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// GetPendingSeedURLs returns up to limit pending tasks, oldest first.
// A limit of zero or less returns all of them.
func (cdb *CrawlDB) GetPendingSeedURLs(ctx context.Context, limit int) ([]*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = ? ORDER BY id`
	args := []any{model.TaskPending}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return cdb.queryTasks(ctx, query, args...)
}

// ListTasks returns tasks in creation order, optionally filtered by status.
func (cdb *CrawlDB) ListTasks(ctx context.Context, status model.TaskStatus) ([]*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY id"
	return cdb.queryTasks(ctx, query, args...)
}

// UpdateTaskStatus moves a task to status. Moving to crawling stamps
// started_at; moving to completed stamps completed_at; moving to failed stores
// errMsg trimmed to model.MaxErrorMessageLength. Transitions that
// model.TaskStatus.CanTransition rejects return model.ErrInvalidTransition.
func (cdb *CrawlDB) UpdateTaskStatus(ctx context.Context, id int64, status model.TaskStatus, errMsg string) error {
	task, err := cdb.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if !task.Status.CanTransition(status) {
		return fmt.Errorf("%w: task %d from %s to %s", model.ErrInvalidTransition, id, task.Status, status)
	}

	var query string
	args := []any{status}
	switch status {
	case model.TaskCrawling:
		query = `UPDATE tasks SET status = ?, error_message = '', started_at = CURRENT_TIMESTAMP WHERE id = ?`
	case model.TaskCompleted:
		query = `UPDATE tasks SET status = ?, error_message = '', completed_at = CURRENT_TIMESTAMP WHERE id = ?`
	case model.TaskFailed:
		query = `UPDATE tasks SET status = ?, error_message = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ?`
		args = append(args, model.TrimErrorMessage(errMsg))
	default:
		query = `UPDATE tasks SET status = ?, error_message = '', last_stage = '', started_at = NULL, completed_at = NULL WHERE id = ?`
	}
	args = append(args, id)

	if _, err := cdb.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return nil
}

// UpdateTaskProgress records the last completed stage and the tree counts.
func (cdb *CrawlDB) UpdateTaskProgress(ctx context.Context, id int64, lastStage string, stats model.Stats) error {
	_, err := cdb.db.ExecContext(ctx, `
	UPDATE tasks SET last_stage = ?, node_count = ?, pruned_count = ?, file_count = ?
	WHERE id = ?
	`, lastStage, stats.Total, stats.Pruned, stats.Files, id)
	if err != nil {
		return fmt.Errorf("failed to update task progress: %w", err)
	}
	return nil
}

// ResetFailed moves every failed task back to pending and returns how many
// were reset. Their nodes are removed so the next run starts from a fresh crawl.
func (cdb *CrawlDB) ResetFailed(ctx context.Context) (int64, error) {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE task_id IN (SELECT id FROM tasks WHERE status = ?)`, model.TaskFailed); err != nil {
		return 0, fmt.Errorf("failed to clear nodes: %w", err)
	}
	result, err := tx.ExecContext(ctx, `
	UPDATE tasks SET status = ?, error_message = '', last_stage = '', started_at = NULL, completed_at = NULL
	WHERE status = ?
	`, model.TaskPending, model.TaskFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to reset tasks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// BulkInsertNodes writes the nodes of a task in one transaction. Existing
// rows with the same index are replaced, so the tree can be checkpointed
// after every stage.
func (cdb *CrawlDB) BulkInsertNodes(ctx context.Context, taskID int64, nodes []*model.Node) error {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO nodes (task_id, idx, father_idx, depth, url, title, breadcrumb, father_title, summary,
		is_file, file_extension, is_pruned, sampled_out, category, confidence, tier, note)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(task_id, idx) DO UPDATE SET
		title = excluded.title,
		breadcrumb = excluded.breadcrumb,
		father_title = excluded.father_title,
		summary = excluded.summary,
		is_file = excluded.is_file,
		file_extension = excluded.file_extension,
		is_pruned = excluded.is_pruned,
		sampled_out = excluded.sampled_out,
		category = excluded.category,
		confidence = excluded.confidence,
		tier = excluded.tier,
		note = excluded.note
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer stmt.Close()

	for _, n := range nodes {
		breadcrumb, err := json.Marshal(n.Breadcrumb)
		if err != nil {
			return fmt.Errorf("failed to serialize breadcrumb of node %d: %w", n.Index, err)
		}
		if n.Breadcrumb == nil {
			breadcrumb = []byte("[]")
		}
		_, err = stmt.ExecContext(ctx,
			taskID, n.Index, n.FatherIndex, n.Depth, n.URL, n.Title, string(breadcrumb), n.FatherTitle, n.Summary,
			n.IsFile, n.FileExtension, n.IsPruned, n.SampledOut, n.Category.String(), n.Confidence, n.Tier.String(), n.Note,
		)
		if err != nil {
			return fmt.Errorf("failed to insert node %d: %w", n.Index, err)
		}
	}
	return tx.Commit()
}

// MarkPruned flips is_pruned on the given nodes of a task.
func (cdb *CrawlDB) MarkPruned(ctx context.Context, taskID int64, indices []int) error {
	if len(indices) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(indices)), ",")
	args := make([]any, 0, len(indices)+1)
	args = append(args, taskID)
	for _, i := range indices {
		args = append(args, i)
	}
	_, err := cdb.db.ExecContext(ctx,
		`UPDATE nodes SET is_pruned = 1 WHERE task_id = ? AND idx IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark nodes pruned: %w", err)
	}
	return nil
}

// GetNodes returns the stored nodes of a task ordered by index, ready for
// model.FromNodes.
func (cdb *CrawlDB) GetNodes(ctx context.Context, taskID int64) ([]model.Node, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT idx, father_idx, depth, url, title, breadcrumb, father_title, summary,
		is_file, file_extension, is_pruned, sampled_out, category, confidence, tier, note
	FROM nodes WHERE task_id = ? ORDER BY idx
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []model.Node
	for rows.Next() {
		var (
			n          model.Node
			breadcrumb string
			category   string
			tier       string
		)
		err := rows.Scan(&n.Index, &n.FatherIndex, &n.Depth, &n.URL, &n.Title, &breadcrumb, &n.FatherTitle, &n.Summary,
			&n.IsFile, &n.FileExtension, &n.IsPruned, &n.SampledOut, &category, &n.Confidence, &tier, &n.Note)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		if err := json.Unmarshal([]byte(breadcrumb), &n.Breadcrumb); err != nil {
			return nil, fmt.Errorf("failed to parse breadcrumb of node %d: %w", n.Index, err)
		}
		if len(n.Breadcrumb) == 0 {
			n.Breadcrumb = nil
		}
		if n.Category, err = model.ParseCategory(category); err != nil {
			return nil, fmt.Errorf("node %d: %w", n.Index, err)
		}
		if err := n.Tier.UnmarshalText([]byte(tier)); err != nil {
			return nil, fmt.Errorf("node %d: %w", n.Index, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// FileRecord is one file handed off for download.
type FileRecord struct {
	ID            int64
	TaskID        int64
	NodeIndex     int
	URL           string
	SuggestedName string
	Tier          model.Tier
	Confidence    float64
	CreatedAt     time.Time
}

// CreateFileRecord stores a file hand-off. A URL already recorded for the
// task is updated in place.
func (cdb *CrawlDB) CreateFileRecord(ctx context.Context, rec *FileRecord) error {
	_, err := cdb.db.ExecContext(ctx, `
	INSERT INTO files (task_id, node_idx, url, suggested_name, tier, confidence)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(task_id, url) DO UPDATE SET
		node_idx = excluded.node_idx,
		suggested_name = excluded.suggested_name,
		tier = excluded.tier,
		confidence = excluded.confidence
	`, rec.TaskID, rec.NodeIndex, rec.URL, rec.SuggestedName, rec.Tier.String(), rec.Confidence)
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}
	return nil
}

// ListFiles returns the file hand-offs of a task, tier A first.
func (cdb *CrawlDB) ListFiles(ctx context.Context, taskID int64) ([]FileRecord, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT id, task_id, node_idx, url, suggested_name, tier, confidence, created_at
	FROM files WHERE task_id = ? ORDER BY tier, node_idx
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		var (
			rec       FileRecord
			tier      string
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.NodeIndex, &rec.URL, &rec.SuggestedName, &tier, &rec.Confidence, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		if err := rec.Tier.UnmarshalText([]byte(tier)); err != nil {
			return nil, err
		}
		rec.CreatedAt = parseTimestamp(createdAt)
		files = append(files, rec)
	}
	return files, rows.Err()
}

const taskColumns = `id, seed_url, url_hash, school_name, status, node_count, pruned_count, file_count,
	last_stage, error_message, created_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		task        model.Task
		createdAt   string
		startedAt   sql.NullString
		completedAt sql.NullString
	)
	err := row.Scan(&task.ID, &task.SeedURL, &task.URLHash, &task.SchoolName, &task.Status,
		&task.NodeCount, &task.PrunedCount, &task.FileCount, &task.LastStage, &task.ErrorMessage,
		&createdAt, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	task.CreatedAt = parseTimestamp(createdAt)
	task.StartedAt = parseNullTimestamp(startedAt)
	task.CompletedAt = parseNullTimestamp(completedAt)
	return &task, nil
}

func (cdb *CrawlDB) queryTasks(ctx context.Context, query string, args ...any) ([]*model.Task, error) {
	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseNullTimestamp(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTimestamp(s.String)
	if t.IsZero() {
		return nil
	}
	return &t
}
