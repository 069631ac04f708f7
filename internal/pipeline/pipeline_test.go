package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/emblem-crawler/internal/emblem"
	"github.com/JakeFAU/emblem-crawler/internal/store"
	"github.com/JakeFAU/emblem-crawler/internal/validate"
)

type fakeSource struct {
	entities []emblem.Entity
}

func (s *fakeSource) Entities(_ context.Context) ([]emblem.Entity, error) {
	return s.entities, nil
}

type fakeSearcher struct {
	mu    sync.Mutex
	refs  map[string][]emblem.PageRef
	calls int
}

func (s *fakeSearcher) Search(_ context.Context, entity emblem.Entity) ([]emblem.PageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.refs[entity.ID], nil
}

func (s *fakeSearcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeFetcher struct {
	mu      sync.Mutex
	results map[string]emblem.FetchResult
	calls   map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		results: make(map[string]emblem.FetchResult),
		calls:   make(map[string]int),
	}
}

func (f *fakeFetcher) add(url, contentType string, body []byte) {
	f.results[url] = emblem.FetchResult{
		URL:         url,
		FinalURL:    url,
		StatusCode:  200,
		ContentType: contentType,
		Body:        body,
		FetchedAt:   time.Now(),
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (emblem.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	res, ok := f.results[url]
	if !ok {
		return emblem.FetchResult{}, errors.New("unreachable: " + url)
	}
	return res, nil
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type failingStore struct{}

func (failingStore) Processed(context.Context, string) (bool, error) { return false, nil }
func (failingStore) Get(context.Context, string) (emblem.EmblemRecord, error) {
	return emblem.EmblemRecord{}, emblem.ErrNotFound
}
func (failingStore) Commit(_ context.Context, rec emblem.EmblemRecord, _ []byte) error {
	return &emblem.StoreError{EntityID: rec.EntityID, Err: errors.New("disk full")}
}
func (failingStore) Clear(context.Context, string) error { return nil }
func (failingStore) Records(context.Context) ([]emblem.EmblemRecord, error) {
	return nil, nil
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))))
	return buf.Bytes()
}

func testEntity(id, name string) emblem.Entity {
	return emblem.Entity{
		ID:          id,
		Code:        id,
		DisplayName: name,
		Category:    emblem.CategoryPrimary,
		Locality:    "Kuala Lumpur",
	}
}

func newTestStore(t *testing.T) *store.FSStore {
	t.Helper()
	s, err := store.NewFS(store.FSConfig{BaseDir: t.TempDir()}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func newTestPipeline(t *testing.T, src emblem.EntitySource, searcher emblem.Searcher, fetcher emblem.Fetcher, st emblem.Store, cfg Config) *Pipeline {
	t.Helper()
	return New(
		cfg,
		src,
		[]emblem.Searcher{searcher},
		fetcher,
		validate.New(fetcher),
		st,
		fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		zaptest.NewLogger(t),
	)
}

const pageURL = "https://sekolah.example.edu.my/"
const imgURL = "https://sekolah.example.edu.my/images/logo.png"

func logoPage() []byte {
	return []byte(`<html><body>
<img src="/images/logo.png" alt="Lambang SK Seri Aman" class="header-logo">
<img src="/images/photo-day.jpg" alt="sports day">
</body></html>`)
}

func TestRunDownloadsEmblem(t *testing.T) {
	t.Parallel()

	entity := testEntity("E1", "SK Seri Aman")
	searcher := &fakeSearcher{refs: map[string][]emblem.PageRef{
		"E1": {{URL: pageURL, Kind: emblem.PageKindSite}},
	}}
	fetcher := newFakeFetcher()
	fetcher.add(pageURL, "text/html", logoPage())
	fetcher.add(imgURL, "image/png", pngBytes(t, 200, 200))

	st := newTestStore(t)
	pipe := newTestPipeline(t, &fakeSource{entities: []emblem.Entity{entity}}, searcher, fetcher, st, Config{Workers: 1})

	result, err := pipe.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	rec := result.Records[0]
	assert.Equal(t, emblem.StatusDownloaded, rec.Status)
	require.NotNil(t, rec.Chosen)
	assert.Equal(t, imgURL, rec.Chosen.AbsoluteURL)
	assert.Equal(t, 200, rec.Width)
	assert.Equal(t, []string{pageURL}, rec.PagesTried)

	stored, err := st.Get(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, emblem.StatusDownloaded, stored.Status)
	assert.NotEmpty(t, stored.ArtifactPath)
}

func TestRunFoundNotDownloaded(t *testing.T) {
	t.Parallel()

	entity := testEntity("E2", "SK Seri Aman")
	searcher := &fakeSearcher{refs: map[string][]emblem.PageRef{
		"E2": {{URL: pageURL, Kind: emblem.PageKindSite}},
	}}
	fetcher := newFakeFetcher()
	fetcher.add(pageURL, "text/html", logoPage())
	// The candidate decodes but is favicon-sized.
	fetcher.add(imgURL, "image/png", pngBytes(t, 32, 32))

	st := newTestStore(t)
	pipe := newTestPipeline(t, &fakeSource{entities: []emblem.Entity{entity}}, searcher, fetcher, st, Config{Workers: 1})

	result, err := pipe.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	rec := result.Records[0]
	assert.Equal(t, emblem.StatusFoundNotDownloaded, rec.Status)
	require.NotNil(t, rec.Chosen)
	assert.Equal(t, imgURL, rec.Chosen.AbsoluteURL)
	assert.NotEmpty(t, rec.Error)
	assert.Empty(t, rec.ArtifactPath)
}

func TestRunNoneFound(t *testing.T) {
	t.Parallel()

	entity := testEntity("E3", "SK Seri Aman")
	searcher := &fakeSearcher{refs: map[string][]emblem.PageRef{}}
	fetcher := newFakeFetcher()

	st := newTestStore(t)
	pipe := newTestPipeline(t, &fakeSource{entities: []emblem.Entity{entity}}, searcher, fetcher, st, Config{Workers: 1})

	result, err := pipe.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, emblem.StatusNoneFound, result.Records[0].Status)
	assert.Nil(t, result.Records[0].Chosen)
	assert.Zero(t, fetcher.totalCalls())
}

func TestRunSkipsProcessedEntities(t *testing.T) {
	t.Parallel()

	entity := testEntity("E4", "SK Seri Aman")
	st := newTestStore(t)
	require.NoError(t, st.Commit(context.Background(), emblem.EmblemRecord{
		EntityID: "E4",
		Entity:   entity,
		Status:   emblem.StatusNoneFound,
	}, nil))

	searcher := &fakeSearcher{refs: map[string][]emblem.PageRef{}}
	fetcher := newFakeFetcher()
	pipe := newTestPipeline(t, &fakeSource{entities: []emblem.Entity{entity}}, searcher, fetcher, st, Config{Workers: 1})

	result, err := pipe.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, searcher.callCount())
	assert.Zero(t, fetcher.totalCalls())
}

func TestRunForceReprocesses(t *testing.T) {
	t.Parallel()

	entity := testEntity("E5", "SK Seri Aman")
	st := newTestStore(t)
	require.NoError(t, st.Commit(context.Background(), emblem.EmblemRecord{
		EntityID: "E5",
		Entity:   entity,
		Status:   emblem.StatusNoneFound,
	}, nil))

	searcher := &fakeSearcher{refs: map[string][]emblem.PageRef{
		"E5": {{URL: pageURL, Kind: emblem.PageKindSite}},
	}}
	fetcher := newFakeFetcher()
	fetcher.add(pageURL, "text/html", logoPage())
	fetcher.add(imgURL, "image/png", pngBytes(t, 200, 200))

	pipe := newTestPipeline(t, &fakeSource{entities: []emblem.Entity{entity}}, searcher, fetcher, st, Config{Workers: 1, Force: true})

	result, err := pipe.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Zero(t, result.Skipped)
	assert.Equal(t, emblem.StatusDownloaded, result.Records[0].Status)
}

func TestRunValidationBudget(t *testing.T) {
	t.Parallel()

	// Four strict candidates; a budget of 3 means the fourth is never
	// fetched even though it would validate.
	page := []byte(`<html><body>
<img src="/logo1.png" alt="logo one">
<img src="/logo2.png" alt="logo two">
<img src="/logo3.png" alt="logo three">
<img src="/logo4.png" alt="logo four">
</body></html>`)

	entity := testEntity("E6", "SK Seri Aman")
	searcher := &fakeSearcher{refs: map[string][]emblem.PageRef{
		"E6": {{URL: pageURL, Kind: emblem.PageKindSite}},
	}}
	fetcher := newFakeFetcher()
	fetcher.add(pageURL, "text/html", page)
	for _, u := range []string{
		"https://sekolah.example.edu.my/logo1.png",
		"https://sekolah.example.edu.my/logo2.png",
		"https://sekolah.example.edu.my/logo3.png",
	} {
		fetcher.add(u, "image/png", pngBytes(t, 32, 32))
	}
	fetcher.add("https://sekolah.example.edu.my/logo4.png", "image/png", pngBytes(t, 200, 200))

	st := newTestStore(t)
	pipe := newTestPipeline(t, &fakeSource{entities: []emblem.Entity{entity}}, searcher, fetcher, st, Config{Workers: 1, MaxValidations: 3})

	result, err := pipe.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, emblem.StatusFoundNotDownloaded, result.Records[0].Status)

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	assert.Zero(t, fetcher.calls["https://sekolah.example.edu.my/logo4.png"])
}

func TestRunStoreFailureCancelsBatch(t *testing.T) {
	t.Parallel()

	entities := make([]emblem.Entity, 0, 3)
	for _, id := range []string{"S1", "S2", "S3"} {
		entities = append(entities, testEntity(id, "SK Seri Aman"))
	}
	searcher := &fakeSearcher{refs: map[string][]emblem.PageRef{}}
	fetcher := newFakeFetcher()

	pipe := newTestPipeline(t, &fakeSource{entities: entities}, searcher, fetcher, failingStore{}, Config{Workers: 1})

	_, err := pipe.Run(context.Background())
	require.Error(t, err)

	var storeErr *emblem.StoreError
	assert.ErrorAs(t, err, &storeErr)
}
