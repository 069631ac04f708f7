package emblem

import (
	"context"
	"time"
)

// Fetcher retrieves a URL and returns the body plus metadata. Implementations
// own throttling, retry, and cooldown policy; callers own all parsing.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// Searcher discovers candidate pages for an entity. A Searcher may return an
// empty slice; individual query failures inside one Search call degrade to
// partial results rather than an error.
type Searcher interface {
	Search(ctx context.Context, entity Entity) ([]PageRef, error)
}

// EntitySource supplies the enumerated entity list before orchestration
// starts. The pipeline does not retry or validate this source itself.
type EntitySource interface {
	Entities(ctx context.Context) ([]Entity, error)
}

// Validator downloads a candidate to memory and verifies it decodes as a
// plausibly emblem-sized image. Rejections are *RejectionError values.
type Validator interface {
	Validate(ctx context.Context, cand ImageCandidate) (DecodedImage, error)
}

// Store persists emblem records, binary artifacts, and the progress ledger.
// Commit is atomic with respect to concurrent readers: a partially written
// record must never be observable as processed.
type Store interface {
	// Processed reports whether the entity is already in the ledger.
	Processed(ctx context.Context, entityID string) (bool, error)
	// Get returns the stored record, or ErrNotFound.
	Get(ctx context.Context, entityID string) (EmblemRecord, error)
	// Commit writes the artifact (when present), the record, and the ledger
	// entry. Either all persist or none do from the caller's point of view.
	Commit(ctx context.Context, rec EmblemRecord, artifact []byte) error
	// Clear removes the ledger entry so the entity is re-attempted.
	Clear(ctx context.Context, entityID string) error
	// Records returns every committed record.
	Records(ctx context.Context) ([]EmblemRecord, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
