package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/emblem-crawler/internal/emblem"
	"github.com/JakeFAU/emblem-crawler/internal/extract"
	"github.com/JakeFAU/emblem-crawler/internal/score"
)

// processEntity runs one entity through the full stage sequence and commits
// exactly one terminal record. Only store failures are returned as errors;
// everything else degrades into the record itself.
func (p *Pipeline) processEntity(ctx context.Context, entity emblem.Entity) (emblem.EmblemRecord, error) {
	log := p.logger.With(zap.String("entity_id", entity.ID))
	log.Info("processing entity",
		zap.String("name", entity.DisplayName),
		zap.String("stage", string(StagePending)),
	)

	log.Debug("stage", zap.String("stage", string(StageSearching)))
	pages := p.discoverPages(ctx, entity, log)

	log.Debug("stage", zap.String("stage", string(StageExtracting)))
	candidates, pagesTried := p.gatherCandidates(ctx, entity, pages, log)

	rec := emblem.EmblemRecord{
		EntityID:   entity.ID,
		Entity:     entity,
		PagesTried: pagesTried,
		DecidedAt:  p.clock.Now(),
	}

	ranked := score.Rank(candidates, entity.DisplayName)
	strict := strictSubset(ranked)
	if len(strict) == 0 {
		rec.Status = emblem.StatusNoneFound
		log.Info("no emblem candidates found",
			zap.String("stage", string(StageDone)),
			zap.Int("pages_tried", len(pagesTried)),
			zap.Int("broad_candidates", len(ranked)),
		)
		return rec, p.commit(ctx, rec, nil)
	}

	log.Debug("stage", zap.String("stage", string(StageValidating)))
	chosen, img, lastErr := p.validateTop(ctx, strict, log)
	if chosen == nil {
		rec.Status = emblem.StatusFoundNotDownloaded
		rec.Chosen = &strict[0]
		if lastErr != nil {
			rec.Error = lastErr.Error()
		}
		log.Warn("candidates found but none validated",
			zap.Int("strict_candidates", len(strict)),
			zap.Error(lastErr),
		)
		return rec, p.commit(ctx, rec, nil)
	}

	rec.Status = emblem.StatusDownloaded
	rec.Chosen = chosen
	rec.Width = img.Width
	rec.Height = img.Height
	rec.ByteSize = len(img.Bytes)
	rec.ContentType = img.ContentType
	log.Info("emblem downloaded",
		zap.String("stage", string(StageDone)),
		zap.String("url", chosen.AbsoluteURL),
		zap.Int("width", img.Width),
		zap.Int("height", img.Height),
	)
	return rec, p.commit(ctx, rec, img.Bytes)
}

// discoverPages merges page refs from every searcher, deduplicating by URL
// and keeping discovery order, bounded by MaxPages.
func (p *Pipeline) discoverPages(ctx context.Context, entity emblem.Entity, log *zap.Logger) []emblem.PageRef {
	seen := make(map[string]struct{})
	var pages []emblem.PageRef
	for _, searcher := range p.searchers {
		if ctx.Err() != nil {
			return pages
		}
		refs, err := searcher.Search(ctx, entity)
		if err != nil {
			log.Debug("searcher failed", zap.Error(err))
		}
		for _, ref := range refs {
			if _, ok := seen[ref.URL]; ok {
				continue
			}
			seen[ref.URL] = struct{}{}
			pages = append(pages, ref)
			if len(pages) >= p.cfg.MaxPages {
				return pages
			}
		}
	}
	return pages
}

// gatherCandidates fetches each page and extracts broad-pass candidates
// into one merged list. Candidates from every page are ranked together;
// per-page ordering carries no weight.
func (p *Pipeline) gatherCandidates(ctx context.Context, entity emblem.Entity, pages []emblem.PageRef, log *zap.Logger) ([]emblem.ImageCandidate, []string) {
	var candidates []emblem.ImageCandidate
	var tried []string
	for _, page := range pages {
		if ctx.Err() != nil {
			break
		}
		tried = append(tried, page.URL)
		res, err := p.fetcher.Fetch(ctx, page.URL)
		if err != nil {
			log.Debug("page fetch failed",
				zap.String("url", page.URL),
				zap.Error(err),
			)
			continue
		}
		extracted := extract.Images(res.Body, res.FinalURL)
		kept := 0
		for _, cand := range extracted {
			if score.Score(cand, entity.DisplayName) < score.BroadThreshold {
				continue
			}
			candidates = append(candidates, cand)
			kept++
		}
		log.Debug("page scanned",
			zap.String("url", page.URL),
			zap.String("kind", string(page.Kind)),
			zap.Int("images", len(extracted)),
			zap.Int("kept", kept),
		)
	}
	return candidates, tried
}

// validateTop attempts the highest-ranked candidates until one validates or
// the attempt budget runs out.
func (p *Pipeline) validateTop(ctx context.Context, ranked []emblem.ImageCandidate, log *zap.Logger) (*emblem.ImageCandidate, emblem.DecodedImage, error) {
	attempts := p.cfg.MaxValidations
	if attempts > len(ranked) {
		attempts = len(ranked)
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return nil, emblem.DecodedImage{}, ctx.Err()
		}
		cand := ranked[i]
		img, err := p.validator.Validate(ctx, cand)
		if err != nil {
			lastErr = err
			if reason, ok := emblem.IsRejection(err); ok {
				log.Debug("candidate rejected",
					zap.String("url", cand.AbsoluteURL),
					zap.String("reason", string(reason)),
				)
			} else {
				log.Debug("candidate fetch failed",
					zap.String("url", cand.AbsoluteURL),
					zap.Error(err),
				)
			}
			continue
		}
		return &cand, img, nil
	}
	return nil, emblem.DecodedImage{}, lastErr
}

func (p *Pipeline) commit(ctx context.Context, rec emblem.EmblemRecord, artifact []byte) error {
	if err := p.store.Commit(ctx, rec, artifact); err != nil {
		return fmt.Errorf("commit %s: %w", rec.EntityID, err)
	}
	return nil
}

// strictSubset keeps the leading ranked candidates at or above the strict
// threshold; Rank sorts descending so the subset is a prefix.
func strictSubset(ranked []emblem.ImageCandidate) []emblem.ImageCandidate {
	for i, cand := range ranked {
		if cand.Score < score.StrictThreshold {
			return ranked[:i]
		}
	}
	return ranked
}
