// Package search implements the collaborators that discover candidate pages
// for an entity: a direct-URL pattern prober and a query-page searcher.
package search

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/JakeFAU/emblem-crawler/internal/emblem"
)

// PatternProber tries well-known host patterns derived from the entity name
// (school blogs, official sites, social pages) and returns the reachable
// ones. Probe failures are expected and silently skipped.
type PatternProber struct {
	fetcher emblem.Fetcher
	logger  *zap.Logger
}

// NewPatternProber builds a prober on the shared fetch client.
func NewPatternProber(fetcher emblem.Fetcher, logger *zap.Logger) *PatternProber {
	return &PatternProber{fetcher: fetcher, logger: logger}
}

// Search probes each pattern once. Partial results are fine; only context
// cancellation aborts early.
func (p *PatternProber) Search(ctx context.Context, entity emblem.Entity) ([]emblem.PageRef, error) {
	slug := Slugify(entity.DisplayName)
	if slug == "" {
		return nil, nil
	}

	patterns := []emblem.PageRef{
		{URL: fmt.Sprintf("https://%s.blogspot.com", slug), Kind: emblem.PageKindSite},
		{URL: fmt.Sprintf("https://%s.wordpress.com", slug), Kind: emblem.PageKindSite},
		{URL: fmt.Sprintf("https://%s.edu.my", slug), Kind: emblem.PageKindSite},
		{URL: fmt.Sprintf("https://www.facebook.com/%s", slug), Kind: emblem.PageKindSocial},
	}

	var found []emblem.PageRef
	for _, ref := range patterns {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		res, err := p.fetcher.Fetch(ctx, ref.URL)
		if err != nil {
			p.logger.Debug("pattern probe missed",
				zap.String("entity_id", entity.ID),
				zap.String("url", ref.URL),
				zap.Error(err),
			)
			continue
		}
		if res.StatusCode >= 400 {
			continue
		}
		found = append(found, ref)
	}
	return found, nil
}

// Slugify lowercases the name and strips everything but letters and digits,
// matching the host patterns Malaysian school sites tend to use.
func Slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
