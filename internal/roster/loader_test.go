package roster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/emblem-crawler/internal/emblem"
)

type stubFetcher struct {
	pages map[string][]byte
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (emblem.FetchResult, error) {
	body, ok := f.pages[url]
	if !ok {
		return emblem.FetchResult{}, errors.New("unreachable: " + url)
	}
	return emblem.FetchResult{
		URL:        url,
		FinalURL:   url,
		StatusCode: 200,
		Body:       body,
		FetchedAt:  time.Now(),
	}, nil
}

const primaryListing = `
<html><body>
<table class="wikitable">
<tr><th>Code</th><th>Name</th><th>Postcode</th><th>Town</th></tr>
<tr><td>ABC1001</td><td>SK  Seri   Aman</td><td>50480</td><td>Kuala Lumpur</td></tr>
<tr><td>ABC1002</td><td>SK Bukit Jalil</td><td>57000</td><td>Kuala Lumpur</td></tr>
<tr><td colspan="4">section divider</td></tr>
</table>
</body></html>`

const secondaryListing = `
<html><body>
<table class="wikitable">
<tr><th>Code</th><th>Name</th><th>Postcode</th><th>Town</th></tr>
<tr><td>XYZ2001</td><td>SMK Taman Melawati</td><td>53100</td><td>Kuala Lumpur</td></tr>
<tr><td></td><td>SMK Tanpa Kod</td><td>53100</td><td>Gombak</td></tr>
</table>
</body></html>`

func TestEntitiesParsesListings(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{pages: map[string][]byte{
		"https://example.org/primary":   []byte(primaryListing),
		"https://example.org/secondary": []byte(secondaryListing),
	}}
	src := NewWikitableSource(Config{
		PrimaryURL:   "https://example.org/primary",
		SecondaryURL: "https://example.org/secondary",
	}, fetcher, zaptest.NewLogger(t))

	entities, err := src.Entities(context.Background())
	require.NoError(t, err)
	require.Len(t, entities, 4)

	first := entities[0]
	assert.Equal(t, "ABC1001", first.ID)
	assert.Equal(t, "ABC1001", first.Code)
	// Whitespace runs inside cells collapse.
	assert.Equal(t, "SK Seri Aman", first.DisplayName)
	assert.Equal(t, "50480", first.Postcode)
	assert.Equal(t, "Kuala Lumpur", first.Locality)
	assert.Equal(t, emblem.CategoryPrimary, first.Category)

	assert.Equal(t, emblem.CategorySecondary, entities[2].Category)

	// Rows without a code still get a stable derived ID.
	noCode := entities[3]
	assert.Empty(t, noCode.Code)
	assert.Equal(t, emblem.DeriveEntityID("", "SMK Tanpa Kod", "Gombak"), noCode.ID)
	assert.Len(t, noCode.ID, 12)
}

func TestEntitiesClassifiesMixedListingByMarker(t *testing.T) {
	t.Parallel()

	const mixedListing = `
<html><body>
<table class="wikitable">
<tr><th>Code</th><th>Name</th><th>Postcode</th><th>Town</th></tr>
<tr><td>MIX3001</td><td>SMK Taman Indah</td><td>43000</td><td>Kajang</td></tr>
<tr><td>MIX3002</td><td>SK Taman Indah</td><td>43000</td><td>Kajang</td></tr>
<tr><td>MIX3003</td><td>Sekolah Menengah Smk Jaya</td><td>43100</td><td>Cheras</td></tr>
</table>
</body></html>`

	fetcher := &stubFetcher{pages: map[string][]byte{
		"https://example.org/mixed": []byte(mixedListing),
	}}
	src := NewWikitableSource(Config{
		MixedURL: "https://example.org/mixed",
	}, fetcher, zaptest.NewLogger(t))

	entities, err := src.Entities(context.Background())
	require.NoError(t, err)
	require.Len(t, entities, 3)

	assert.Equal(t, emblem.CategorySecondary, entities[0].Category)
	assert.Equal(t, emblem.CategoryPrimary, entities[1].Category)
	// Marker matching is a whole-token, case-insensitive comparison.
	assert.Equal(t, emblem.CategorySecondary, entities[2].Category)
}

func TestEntitiesDeduplicates(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{pages: map[string][]byte{
		"https://example.org/primary":   []byte(primaryListing),
		"https://example.org/secondary": []byte(primaryListing),
	}}
	src := NewWikitableSource(Config{
		PrimaryURL:   "https://example.org/primary",
		SecondaryURL: "https://example.org/secondary",
	}, fetcher, zaptest.NewLogger(t))

	entities, err := src.Entities(context.Background())
	require.NoError(t, err)
	// Same codes on both pages collapse to the first occurrence.
	assert.Len(t, entities, 2)
}

func TestEntitiesPartialPageFailure(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{pages: map[string][]byte{
		"https://example.org/primary": []byte(primaryListing),
	}}
	src := NewWikitableSource(Config{
		PrimaryURL:   "https://example.org/primary",
		SecondaryURL: "https://example.org/unreachable",
	}, fetcher, zaptest.NewLogger(t))

	entities, err := src.Entities(context.Background())
	require.NoError(t, err)
	assert.Len(t, entities, 2)
}

func TestEntitiesAllPagesFail(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{pages: map[string][]byte{}}
	src := NewWikitableSource(Config{
		PrimaryURL: "https://example.org/unreachable",
	}, fetcher, zaptest.NewLogger(t))

	_, err := src.Entities(context.Background())
	require.Error(t, err)
}

func TestStaticSource(t *testing.T) {
	t.Parallel()

	want := []emblem.Entity{{ID: "X", DisplayName: "Test"}}
	src := NewStaticSource(want)
	got, err := src.Entities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
