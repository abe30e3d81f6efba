package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressmill/pressmill/copilot-core/pkg/models"
	"github.com/rs/zerolog/log"
)

// LocalFileArchiver writes pruned records as JSONL files to a local
// directory.
//
// Directory structure:
//
//	{basePath}/audit_events/2026-09-01T03-30-00Z.jsonl
//	{basePath}/activities/2026-09-01T03-30-00Z.jsonl
type LocalFileArchiver struct {
	basePath string
}

// NewLocalFileArchiver creates a file-based archiver rooted at basePath.
func NewLocalFileArchiver(basePath string) *LocalFileArchiver {
	return &LocalFileArchiver{basePath: basePath}
}

func (a *LocalFileArchiver) Kind() string { return "local" }

func (a *LocalFileArchiver) ArchiveActivities(_ context.Context, activities []models.PendingActivity) (string, error) {
	records := make([]interface{}, len(activities))
	for i := range activities {
		records[i] = activities[i]
	}
	return a.writeJSONL("activities", records)
}

func (a *LocalFileArchiver) ArchiveAuditEvents(_ context.Context, events []models.AuditEvent) (string, error) {
	records := make([]interface{}, len(events))
	for i := range events {
		records[i] = events[i]
	}
	return a.writeJSONL("audit_events", records)
}

func (a *LocalFileArchiver) writeJSONL(kind string, records []interface{}) (string, error) {
	dir := filepath.Join(a.basePath, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	filename := time.Now().UTC().Format("2006-01-02T15-04-05Z") + ".jsonl"
	fpath := filepath.Join(dir, filename)

	f, err := os.Create(fpath)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return "", fmt.Errorf("encode archive record: %w", err)
		}
	}

	log.Debug().
		Str("path", fpath).
		Int("count", len(records)).
		Msg("Archived pruned records to local file")

	return fpath, nil
}
