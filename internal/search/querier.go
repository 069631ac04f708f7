package search

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/emblem-crawler/internal/emblem"
	"github.com/JakeFAU/emblem-crawler/internal/fetch"
)

// QuerierConfig controls the query-page searcher.
type QuerierConfig struct {
	// Endpoint is a template with one %s for the URL-escaped query.
	Endpoint string `mapstructure:"endpoint"`
	// ResultSelector picks result anchors out of the result page.
	ResultSelector string `mapstructure:"result_selector"`
	// MaxResultsPerQuery bounds links taken from one result page.
	MaxResultsPerQuery int `mapstructure:"max_results_per_query"`
}

// Querier discovers pages by issuing free-text queries against an HTML
// search endpoint and scraping the result links.
type Querier struct {
	cfg     QuerierConfig
	fetcher emblem.Fetcher
	logger  *zap.Logger
}

// NewQuerier builds a Querier; zero config fields get defaults.
func NewQuerier(cfg QuerierConfig, fetcher emblem.Fetcher, logger *zap.Logger) *Querier {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://html.duckduckgo.com/html/?q=%s"
	}
	if cfg.ResultSelector == "" {
		cfg.ResultSelector = "a.result__a"
	}
	if cfg.MaxResultsPerQuery <= 0 {
		cfg.MaxResultsPerQuery = 5
	}
	return &Querier{cfg: cfg, fetcher: fetcher, logger: logger}
}

// Search issues the bounded query variants for the entity. A failing query
// degrades to partial results; a rate-limited endpoint stops the remaining
// variants (the host is cooling down anyway) without failing the entity.
func (q *Querier) Search(ctx context.Context, entity emblem.Entity) ([]emblem.PageRef, error) {
	queries := queryVariants(entity)

	seen := make(map[string]struct{})
	var refs []emblem.PageRef
	for _, query := range queries {
		if err := ctx.Err(); err != nil {
			return refs, err
		}
		links, err := q.runQuery(ctx, query)
		if err != nil {
			if fetch.IsRateLimited(err) {
				q.logger.Warn("search endpoint rate limited, stopping query variants",
					zap.String("entity_id", entity.ID),
				)
				break
			}
			q.logger.Debug("search query failed",
				zap.String("entity_id", entity.ID),
				zap.String("query", query),
				zap.Error(err),
			)
			continue
		}
		for _, link := range links {
			if _, ok := seen[link]; ok {
				continue
			}
			seen[link] = struct{}{}
			refs = append(refs, emblem.PageRef{URL: link, Kind: ClassifyURL(link)})
		}
	}
	return refs, nil
}

func (q *Querier) runQuery(ctx context.Context, query string) ([]string, error) {
	endpoint := fmt.Sprintf(q.cfg.Endpoint, url.QueryEscape(query))
	res, err := q.fetcher.Fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("parse result page: %w", err)
	}
	endpointHost := hostOf(endpoint)

	var links []string
	doc.Find(q.cfg.ResultSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		link := normalizeResultLink(href)
		if link == "" || hostOf(link) == endpointHost {
			return true
		}
		links = append(links, link)
		return len(links) < q.cfg.MaxResultsPerQuery
	})
	return links, nil
}

// queryVariants mirrors the search strategies used for finding school
// surfaces: social page, official site, and hosted-blog queries.
func queryVariants(entity emblem.Entity) []string {
	name := entity.DisplayName
	locality := entity.Locality
	return []string{
		strings.TrimSpace(fmt.Sprintf("%s %s Facebook page", name, locality)),
		strings.TrimSpace(fmt.Sprintf("%s %s official website", name, locality)),
		fmt.Sprintf("%s site:blogspot.com OR site:wordpress.com", name),
	}
}

// ClassifyURL buckets a result link by its likely surface.
func ClassifyURL(link string) emblem.PageKind {
	host := hostOf(link)
	switch {
	case strings.Contains(host, "facebook.com"):
		return emblem.PageKindSocial
	case strings.HasSuffix(host, ".edu.my"),
		strings.Contains(host, "blogspot.com"),
		strings.Contains(host, "wordpress.com"):
		return emblem.PageKindSite
	default:
		return emblem.PageKindOther
	}
}

// normalizeResultLink unwraps redirect-style result hrefs (uddg=) and
// rejects non-HTTP links.
func normalizeResultLink(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		if unwrapped, err := url.QueryUnescape(target); err == nil {
			href = unwrapped
			u, err = url.Parse(href)
			if err != nil {
				return ""
			}
		}
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		href = "https:" + href
		u, err = url.Parse(href)
		if err != nil {
			return ""
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return href
}

func hostOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
