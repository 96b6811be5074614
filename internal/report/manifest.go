package report

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/nao1215/univcrawl/internal/model"
	"github.com/nao1215/univcrawl/internal/partition"
)

// FileHandoff receives the files of a finished task. Downloading and
// renaming them is left to the implementation.
type FileHandoff interface {
	Handoff(ctx context.Context, task *model.Task, files []partition.Handoff) error
}

// ManifestEntry is one line of a manifest.
type ManifestEntry struct {
	TaskID        int64      `json:"task_id"`
	School        string     `json:"school,omitempty"`
	URL           string     `json:"url"`
	SuggestedName string     `json:"suggested_name"`
	Tier          model.Tier `json:"tier"`
	Confidence    float64    `json:"confidence"`
}

// ManifestWriter writes hand-offs as JSON lines, one file per line.
// It is safe for concurrent use by several tasks.
type ManifestWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

var _ FileHandoff = (*ManifestWriter)(nil)

// NewManifestWriter creates a ManifestWriter that outputs to w.
func NewManifestWriter(w io.Writer) *ManifestWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &ManifestWriter{enc: enc}
}

// Handoff appends the files of task to the manifest.
func (m *ManifestWriter) Handoff(ctx context.Context, task *model.Task, files []partition.Handoff) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := m.enc.Encode(ManifestEntry{
			TaskID:        task.ID,
			School:        task.SchoolName,
			URL:           f.URL,
			SuggestedName: f.SuggestedName,
			Tier:          f.Tier,
			Confidence:    f.Confidence,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
