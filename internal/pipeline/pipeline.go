// Package pipeline implements the per-entity emblem acquisition loop.
package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/emblem-crawler/internal/emblem"
	"github.com/JakeFAU/emblem-crawler/internal/metrics"
)

// Stage tracks where an entity is inside one pipeline pass. Stages only
// advance; a terminal record is committed exactly once.
type Stage string

const (
	StagePending    Stage = "pending"
	StageSearching  Stage = "searching"
	StageExtracting Stage = "extracting"
	StageValidating Stage = "validating"
	StageDone       Stage = "done"
)

// Config controls pipeline concurrency and per-entity effort bounds.
type Config struct {
	// Workers is the number of entities processed concurrently.
	Workers int `mapstructure:"workers"`
	// MaxPages caps candidate pages fetched per entity.
	MaxPages int `mapstructure:"max_pages"`
	// MaxValidations caps download attempts over the ranked list.
	MaxValidations int `mapstructure:"max_validations"`
	// Force reprocesses entities already in the ledger.
	Force bool `mapstructure:"force"`
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 6
	}
	if c.MaxValidations <= 0 {
		c.MaxValidations = 3
	}
}

// Pipeline orchestrates search, extraction, scoring, validation, and
// persistence for a batch of entities.
type Pipeline struct {
	cfg       Config
	source    emblem.EntitySource
	searchers []emblem.Searcher
	fetcher   emblem.Fetcher
	validator emblem.Validator
	store     emblem.Store
	clock     emblem.Clock
	logger    *zap.Logger
}

// New constructs a Pipeline. All collaborators are required except
// searchers, which may be empty (every entity then ends none_found).
func New(
	cfg Config,
	source emblem.EntitySource,
	searchers []emblem.Searcher,
	fetcher emblem.Fetcher,
	validator emblem.Validator,
	store emblem.Store,
	clock emblem.Clock,
	logger *zap.Logger,
) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{
		cfg:       cfg,
		source:    source,
		searchers: searchers,
		fetcher:   fetcher,
		validator: validator,
		store:     store,
		clock:     clock,
		logger:    logger,
	}
}

// Result is the outcome of one batch run.
type Result struct {
	Records []emblem.EmblemRecord
	Skipped int
}

// Run processes every entity from the source through a bounded worker pool.
// Entities already in the ledger are skipped unless Force is set. A store
// failure cancels the batch: the persistence layer is shared state and a
// broken one corrupts every remaining entity.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	entities, err := p.source.Entities(ctx)
	if err != nil {
		return Result{}, err
	}
	p.logger.Info("batch starting",
		zap.Int("entities", len(entities)),
		zap.Int("workers", p.cfg.Workers),
	)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	jobs := make(chan emblem.Entity)
	results := make(chan emblem.EmblemRecord, len(entities))

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metrics.WorkerStarted()
			defer metrics.WorkerFinished()
			for entity := range jobs {
				rec, err := p.processEntity(runCtx, entity)
				if err != nil {
					var storeErr *emblem.StoreError
					if errors.As(err, &storeErr) {
						p.logger.Error("store failed, cancelling batch",
							zap.String("entity_id", entity.ID),
							zap.Error(err),
						)
						cancel(err)
						return
					}
					if runCtx.Err() != nil {
						return
					}
					p.logger.Error("entity failed",
						zap.String("entity_id", entity.ID),
						zap.Error(err),
					)
					continue
				}
				results <- rec
			}
		}()
	}

	var skipped int
feed:
	for _, entity := range entities {
		done, err := p.store.Processed(runCtx, entity.ID)
		if err != nil {
			cancel(&emblem.StoreError{EntityID: entity.ID, Err: err})
			break
		}
		if done {
			if p.cfg.Force {
				if err := p.store.Clear(runCtx, entity.ID); err != nil {
					cancel(&emblem.StoreError{EntityID: entity.ID, Err: err})
					break
				}
			} else {
				skipped++
				p.logger.Debug("entity already processed",
					zap.String("entity_id", entity.ID),
				)
				continue
			}
		}

		select {
		case jobs <- entity:
		case <-runCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	res := Result{Skipped: skipped}
	for rec := range results {
		res.Records = append(res.Records, rec)
		metrics.IncEntityOutcome(string(rec.Status))
	}

	if cause := context.Cause(runCtx); cause != nil && !errors.Is(cause, ctx.Err()) {
		return res, cause
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	p.logger.Info("batch finished",
		zap.Int("processed", len(res.Records)),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}
