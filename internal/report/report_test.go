package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/emblem-crawler/internal/emblem"
)

func record(id string, status emblem.Status) emblem.EmblemRecord {
	rec := emblem.EmblemRecord{
		EntityID: id,
		Entity:   emblem.Entity{ID: id, DisplayName: "School " + id},
		Status:   status,
	}
	if status == emblem.StatusFoundNotDownloaded {
		rec.Chosen = &emblem.ImageCandidate{
			AbsoluteURL: "https://example.com/" + id + ".png",
			Score:       0.5,
		}
		rec.Error = "image too small"
	}
	return rec
}

func TestBuildCountsAndReviewList(t *testing.T) {
	t.Parallel()

	records := []emblem.EmblemRecord{
		record("C", emblem.StatusDownloaded),
		record("A", emblem.StatusNoneFound),
		record("B", emblem.StatusFoundNotDownloaded),
	}
	started := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(5 * time.Minute)

	summary, review := Build(records, 2, started, finished)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 5, summary.Entities)
	assert.Equal(t, 1, summary.Downloaded)
	assert.Equal(t, 1, summary.FoundNotDownloaded)
	assert.Equal(t, 1, summary.NoneFound)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, started, summary.StartedAt)
	assert.Equal(t, finished, summary.FinishedAt)

	// Downloaded entities stay off the review list; the rest sort by ID.
	require.Len(t, review, 2)
	assert.Equal(t, "A", review[0].EntityID)
	assert.Equal(t, "B", review[1].EntityID)
	assert.Equal(t, "https://example.com/B.png", review[1].BestURL)
	assert.InDelta(t, 0.5, review[1].BestScore, 1e-9)
	assert.Equal(t, "image too small", review[1].Error)
}

func TestWriteProducesBothFiles(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "reports")
	summary, review := Build([]emblem.EmblemRecord{
		record("A", emblem.StatusNoneFound),
	}, 0, time.Now(), time.Now())

	require.NoError(t, Write(dir, summary, review))

	var gotSummary Summary
	data, err := os.ReadFile(filepath.Join(dir, "summary.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &gotSummary))
	assert.Equal(t, summary.RunID, gotSummary.RunID)

	var gotReview []ReviewItem
	data, err = os.ReadFile(filepath.Join(dir, "manual_review.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &gotReview))
	require.Len(t, gotReview, 1)
	assert.Equal(t, "A", gotReview[0].EntityID)
}

func TestWriteEmptyReviewIsArray(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	summary, review := Build(nil, 0, time.Now(), time.Now())
	require.NoError(t, Write(dir, summary, review))

	data, err := os.ReadFile(filepath.Join(dir, "manual_review.json"))
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}
