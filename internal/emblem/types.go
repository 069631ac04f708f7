// Package emblem defines core types shared across subsystems.
package emblem

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// Category classifies an entity by institution level.
type Category string

// Category values persisted in emblem records and used for artifact layout.
const (
	CategoryPrimary   Category = "primary"
	CategorySecondary Category = "secondary"
	CategoryUnknown   Category = "unknown"
)

// Entity is one named subject for which an emblem is sought. Entities are
// built once at list-ingestion time and never mutated.
type Entity struct {
	ID          string   `json:"id"`
	Code        string   `json:"code,omitempty"`
	DisplayName string   `json:"display_name"`
	Category    Category `json:"category"`
	Postcode    string   `json:"postcode,omitempty"`
	Locality    string   `json:"locality,omitempty"`
}

// DeriveEntityID returns the stable identity for an entity: the external
// code when present, otherwise a short hash of name and locality.
func DeriveEntityID(code, name, locality string) string {
	if code != "" {
		return code
	}
	sum := sha1.Sum([]byte(name + "|" + locality))
	return hex.EncodeToString(sum[:])[:12]
}

// PageKind buckets a discovered page URL by its likely surface.
type PageKind string

// Page kinds recognized by the search collaborators.
const (
	PageKindSocial PageKind = "social"
	PageKindSite   PageKind = "site"
	PageKindOther  PageKind = "other"
)

// PageRef points at a page that may contain emblem candidates.
type PageRef struct {
	URL  string
	Kind PageKind
}

// CandidatePage holds one fetched page body. Transient; scoped to a single
// entity's pipeline pass and never persisted.
type CandidatePage struct {
	SourceURL string
	FetchedAt time.Time
	Body      []byte
}

// ImageCandidate describes one image reference discovered on a page.
// DeclaredWidth/DeclaredHeight are zero when the markup carries no hint.
type ImageCandidate struct {
	AbsoluteURL    string   `json:"absolute_url"`
	AltText        string   `json:"alt_text,omitempty"`
	TitleText      string   `json:"title_text,omitempty"`
	ClassHints     []string `json:"class_hints,omitempty"`
	DeclaredWidth  int      `json:"declared_width,omitempty"`
	DeclaredHeight int      `json:"declared_height,omitempty"`
	SourcePageURL  string   `json:"source_page_url"`
	Score          float64  `json:"score"`
}

// Status is the terminal state of one entity's pipeline pass.
type Status string

// Terminal states recorded in the ledger.
const (
	StatusDownloaded         Status = "downloaded"
	StatusFoundNotDownloaded Status = "found_not_downloaded"
	StatusNoneFound          Status = "none_found"
)

// EmblemRecord is the persisted decision for one entity. Exactly one record
// exists per ledgered entity; it is only replaced by an explicit re-run.
type EmblemRecord struct {
	EntityID     string          `json:"entity_id"`
	Entity       Entity          `json:"entity"`
	Status       Status          `json:"status"`
	Chosen       *ImageCandidate `json:"chosen_candidate,omitempty"`
	ArtifactPath string          `json:"artifact_path,omitempty"`
	Width        int             `json:"width,omitempty"`
	Height       int             `json:"height,omitempty"`
	ByteSize     int             `json:"byte_size,omitempty"`
	ContentType  string          `json:"content_type,omitempty"`
	PagesTried   []string        `json:"pages_tried,omitempty"`
	Error        string          `json:"error,omitempty"`
	DecidedAt    time.Time       `json:"decided_at"`
}

// FetchResult is the outcome of one successful page or image retrieval.
type FetchResult struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
	Duration    time.Duration
}

// DecodedImage is a validated candidate ready for persistence.
type DecodedImage struct {
	Width       int
	Height      int
	Bytes       []byte
	ContentType string
	Format      string
}
