// Package score implements the deterministic emblem confidence heuristic.
// The policy is an ordered list of named rules whose contributions are
// summed and clamped to 1.0, so each rule stays testable on its own.
package score

import (
	"net/url"
	"sort"
	"strings"

	"github.com/JakeFAU/emblem-crawler/internal/emblem"
)

// Acceptance thresholds. Broad gates the merged candidate list right after
// extraction; Strict gates the final pre-download filter. Each call site
// uses exactly one of them.
const (
	BroadThreshold  = 0.2
	StrictThreshold = 0.3
)

// High-signal terms, including the Malay equivalents of "emblem".
var signalTerms = []string{"logo", "emblem", "lambang", "jata", "badge", "crest"}

// Terms in class hints suggesting header/branding placement.
var placementTerms = []string{"header", "top", "nav"}

// Recognized raster/vector extensions.
var imageExtensions = []string{".png", ".jpg", ".jpeg", ".svg", ".webp"}

// Rule is one named, pure scoring contribution.
type Rule struct {
	Name         string
	Contribution func(c emblem.ImageCandidate, entityName string) float64
}

// Rules returns the scoring policy in its documented order. Reordering the
// slice must not change Score's result; only the additive contract matters.
func Rules() []Rule {
	return []Rule{
		{Name: "signal_terms", Contribution: signalTermHits},
		{Name: "name_tokens", Contribution: nameTokenHits},
		{Name: "placement", Contribution: placementHint},
		{Name: "image_extension", Contribution: extensionHint},
		{Name: "size_window", Contribution: sizeWindowBonus},
	}
}

// Score maps a candidate and entity name to [0,1]. Pure and deterministic;
// identical inputs always produce the identical value.
func Score(c emblem.ImageCandidate, entityName string) float64 {
	total := 0.0
	for _, rule := range Rules() {
		total += rule.Contribution(c, entityName)
	}
	if total > 1.0 {
		total = 1.0
	}
	return total
}

// Rank scores candidates and returns them ordered best-first. The sort is
// stable, so ties keep extraction order (first-seen wins).
func Rank(candidates []emblem.ImageCandidate, entityName string) []emblem.ImageCandidate {
	ranked := make([]emblem.ImageCandidate, len(candidates))
	copy(ranked, candidates)
	for i := range ranked {
		ranked[i].Score = Score(ranked[i], entityName)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// signalTermHits adds 0.3 per high-signal term found in alt, title, class
// hints, or the URL path.
func signalTermHits(c emblem.ImageCandidate, _ string) float64 {
	haystack := strings.ToLower(strings.Join([]string{
		c.AltText,
		c.TitleText,
		strings.Join(c.ClassHints, " "),
		urlPath(c.AbsoluteURL),
	}, " "))
	score := 0.0
	for _, term := range signalTerms {
		if strings.Contains(haystack, term) {
			score += 0.3
		}
	}
	return score
}

// nameTokenHits adds 0.1 per display-name token (longer than 3 characters)
// found in alt or title text.
func nameTokenHits(c emblem.ImageCandidate, entityName string) float64 {
	text := strings.ToLower(c.AltText + " " + c.TitleText)
	score := 0.0
	for _, token := range strings.Fields(strings.ToLower(entityName)) {
		if len(token) > 3 && strings.Contains(text, token) {
			score += 0.1
		}
	}
	return score
}

// placementHint adds 0.2 once when class hints suggest header placement.
func placementHint(c emblem.ImageCandidate, _ string) float64 {
	hints := strings.ToLower(strings.Join(c.ClassHints, " "))
	for _, term := range placementTerms {
		if strings.Contains(hints, term) {
			return 0.2
		}
	}
	return 0
}

// extensionHint adds 0.2 when the URL path ends in a recognized extension.
func extensionHint(c emblem.ImageCandidate, _ string) float64 {
	path := strings.ToLower(urlPath(c.AbsoluteURL))
	for _, ext := range imageExtensions {
		if strings.HasSuffix(path, ext) {
			return 0.2
		}
	}
	return 0
}

// sizeWindowBonus adds 0.1 when both declared dimensions sit inside the
// plausible emblem window. Absent dimensions contribute nothing; this is a
// bonus, not a filter.
func sizeWindowBonus(c emblem.ImageCandidate, _ string) float64 {
	if c.DeclaredWidth >= 100 && c.DeclaredWidth <= 500 &&
		c.DeclaredHeight >= 100 && c.DeclaredHeight <= 500 {
		return 0.1
	}
	return 0
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}
