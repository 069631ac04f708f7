package roster

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/emblem-crawler/internal/emblem"
)

// Config points the roster loader at the listing pages to scrape.
type Config struct {
	// PrimaryURL lists primary-category entities.
	PrimaryURL string `mapstructure:"primary_url"`
	// SecondaryURL lists secondary-category entities.
	SecondaryURL string `mapstructure:"secondary_url"`
	// MixedURL lists entities of both categories; rows are classified by
	// SecondaryMarker.
	MixedURL string `mapstructure:"mixed_url"`
	// SecondaryMarker flags a row name as secondary-category on mixed
	// listings.
	SecondaryMarker string `mapstructure:"secondary_marker"`
}

// WikitableSource loads the entity roster from wiki-style listing pages.
// Each page is expected to carry one or more table.wikitable elements whose
// rows hold code, name, postcode and locality columns.
type WikitableSource struct {
	cfg     Config
	fetcher emblem.Fetcher
	logger  *zap.Logger
}

func NewWikitableSource(cfg Config, fetcher emblem.Fetcher, logger *zap.Logger) *WikitableSource {
	if cfg.SecondaryMarker == "" {
		cfg.SecondaryMarker = "SMK"
	}
	return &WikitableSource{cfg: cfg, fetcher: fetcher, logger: logger}
}

// Entities fetches and parses all configured listing pages. A page that
// fails to load degrades the roster instead of failing it, unless no page
// yields any entity at all.
func (s *WikitableSource) Entities(ctx context.Context) ([]emblem.Entity, error) {
	pages := []struct {
		url      string
		category emblem.Category
	}{
		{s.cfg.PrimaryURL, emblem.CategoryPrimary},
		{s.cfg.SecondaryURL, emblem.CategorySecondary},
		{s.cfg.MixedURL, emblem.CategoryUnknown},
	}

	seen := make(map[string]struct{})
	var entities []emblem.Entity
	var lastErr error
	for _, page := range pages {
		if page.url == "" {
			continue
		}
		parsed, err := s.loadPage(ctx, page.url, page.category)
		if err != nil {
			lastErr = err
			s.logger.Warn("roster page failed",
				zap.String("url", page.url),
				zap.Error(err),
			)
			continue
		}
		for _, entity := range parsed {
			if _, ok := seen[entity.ID]; ok {
				continue
			}
			seen[entity.ID] = struct{}{}
			entities = append(entities, entity)
		}
	}
	if len(entities) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("load roster: %w", lastErr)
		}
		return nil, fmt.Errorf("load roster: no listing pages configured")
	}
	return entities, nil
}

func (s *WikitableSource) loadPage(ctx context.Context, pageURL string, category emblem.Category) ([]emblem.Entity, error) {
	res, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return s.parse(res.Body, category)
}

func (s *WikitableSource) parse(body []byte, category emblem.Category) ([]emblem.Entity, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	var entities []emblem.Entity
	doc.Find("table.wikitable tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			// Header or malformed row.
			return
		}
		code := cellText(cells.Eq(0))
		name := cellText(cells.Eq(1))
		postcode := cellText(cells.Eq(2))
		locality := cellText(cells.Eq(3))
		if name == "" {
			return
		}
		entities = append(entities, emblem.Entity{
			ID:          emblem.DeriveEntityID(code, name, locality),
			Code:        code,
			DisplayName: name,
			Category:    s.classify(name, category),
			Postcode:    postcode,
			Locality:    locality,
		})
	})
	return entities, nil
}

func (s *WikitableSource) classify(name string, pageCategory emblem.Category) emblem.Category {
	if pageCategory != emblem.CategoryUnknown {
		return pageCategory
	}
	for _, token := range strings.Fields(name) {
		if strings.EqualFold(token, s.cfg.SecondaryMarker) {
			return emblem.CategorySecondary
		}
	}
	return emblem.CategoryPrimary
}

func cellText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

// StaticSource serves a fixed entity list. Useful for targeted re-runs and
// in tests.
type StaticSource struct {
	entities []emblem.Entity
}

func NewStaticSource(entities []emblem.Entity) *StaticSource {
	return &StaticSource{entities: entities}
}

func (s *StaticSource) Entities(_ context.Context) ([]emblem.Entity, error) {
	return s.entities, nil
}
