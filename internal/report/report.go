// Package report summarizes a batch run for operators.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/emblem-crawler/internal/emblem"
)

// Summary is the machine-readable rollup of one run, written as
// summary.json next to the artifact tree.
type Summary struct {
	RunID              string    `json:"run_id"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
	Entities           int       `json:"entities"`
	Downloaded         int       `json:"downloaded"`
	FoundNotDownloaded int       `json:"found_not_downloaded"`
	NoneFound          int       `json:"none_found"`
	Skipped            int       `json:"skipped"`
}

// ReviewItem is one entity needing a human pass, written to
// manual_review.json.
type ReviewItem struct {
	EntityID    string   `json:"entity_id"`
	DisplayName string   `json:"display_name"`
	Status      string   `json:"status"`
	BestURL     string   `json:"best_url,omitempty"`
	BestScore   float64  `json:"best_score,omitempty"`
	PagesTried  []string `json:"pages_tried,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Build rolls records into a Summary plus the manual-review worklist. Every
// non-downloaded entity lands on the worklist, sorted by entity ID so diffs
// between runs stay readable.
func Build(records []emblem.EmblemRecord, skipped int, startedAt, finishedAt time.Time) (Summary, []ReviewItem) {
	summary := Summary{
		RunID:      uuid.NewString(),
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Entities:   len(records) + skipped,
		Skipped:    skipped,
	}

	var review []ReviewItem
	for _, rec := range records {
		switch rec.Status {
		case emblem.StatusDownloaded:
			summary.Downloaded++
			continue
		case emblem.StatusFoundNotDownloaded:
			summary.FoundNotDownloaded++
		case emblem.StatusNoneFound:
			summary.NoneFound++
		}
		item := ReviewItem{
			EntityID:    rec.EntityID,
			DisplayName: rec.Entity.DisplayName,
			Status:      string(rec.Status),
			PagesTried:  rec.PagesTried,
			Error:       rec.Error,
		}
		if rec.Chosen != nil {
			item.BestURL = rec.Chosen.AbsoluteURL
			item.BestScore = rec.Chosen.Score
		}
		review = append(review, item)
	}
	sort.Slice(review, func(i, j int) bool { return review[i].EntityID < review[j].EntityID })
	return summary, review
}

// Write persists summary.json and manual_review.json under dir.
func Write(dir string, summary Summary, review []ReviewItem) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, "summary.json"), summary); err != nil {
		return err
	}
	if review == nil {
		review = []ReviewItem{}
	}
	return writeJSON(filepath.Join(dir, "manual_review.json"), review)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o640); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
