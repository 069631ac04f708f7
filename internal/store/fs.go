// Package store persists emblem records, binary artifacts, and the progress
// ledger. The ledger is the single source of truth for "already attempted":
// an entity is processed exactly when its ID appears there.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/JakeFAU/emblem-crawler/internal/emblem"
)

// FSConfig captures the parameters for the filesystem store.
type FSConfig struct {
	// BaseDir is the root directory for artifacts, records, and the ledger.
	BaseDir string `mapstructure:"base_dir"`
}

// FSStore keeps artifacts under {category}/{sanitizedName}/, one record
// JSON per entity under records/, and the ledger as a single JSON file
// replaced atomically on every commit. A flock guards the ledger against
// concurrent processes; the mutex guards it within this one.
type FSStore struct {
	mu         sync.Mutex
	baseDir    string
	ledgerPath string
	lock       *flock.Flock
	processed  map[string]struct{}
	logger     *zap.Logger
}

type ledgerFile struct {
	ProcessedEntityIDs []string `json:"processed_entity_ids"`
}

// NewFS opens (or initializes) a filesystem store rooted at cfg.BaseDir.
func NewFS(cfg FSConfig, logger *zap.Logger) (*FSStore, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("store base directory is required")
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create store dir %s: %w", cfg.BaseDir, err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.BaseDir, "records"), 0o750); err != nil {
		return nil, fmt.Errorf("create records dir: %w", err)
	}

	probe := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("probe"), 0o600); err != nil {
		return nil, fmt.Errorf("store dir is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}

	s := &FSStore{
		baseDir:    cfg.BaseDir,
		ledgerPath: filepath.Join(cfg.BaseDir, "ledger.json"),
		lock:       flock.New(filepath.Join(cfg.BaseDir, "ledger.lock")),
		processed:  make(map[string]struct{}),
		logger:     logger,
	}
	if err := s.loadLedger(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FSStore) loadLedger() error {
	data, err := os.ReadFile(s.ledgerPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	var lf ledgerFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return fmt.Errorf("parse ledger %s: %w", s.ledgerPath, err)
	}
	for _, id := range lf.ProcessedEntityIDs {
		s.processed[id] = struct{}{}
	}
	return nil
}

// Processed reports whether the entity already has a ledger entry.
func (s *FSStore) Processed(_ context.Context, entityID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[entityID]
	return ok, nil
}

// Get returns the committed record for a ledgered entity.
func (s *FSStore) Get(_ context.Context, entityID string) (emblem.EmblemRecord, error) {
	s.mu.Lock()
	_, ok := s.processed[entityID]
	s.mu.Unlock()
	if !ok {
		return emblem.EmblemRecord{}, emblem.ErrNotFound
	}
	return s.readRecord(entityID)
}

func (s *FSStore) readRecord(entityID string) (emblem.EmblemRecord, error) {
	data, err := os.ReadFile(s.recordPath(entityID))
	if err != nil {
		return emblem.EmblemRecord{}, fmt.Errorf("read record %s: %w", entityID, err)
	}
	var rec emblem.EmblemRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return emblem.EmblemRecord{}, fmt.Errorf("parse record %s: %w", entityID, err)
	}
	return rec, nil
}

// Commit persists the artifact (for downloaded emblems), the record, and
// finally the ledger entry. The ledger is written last so a crash mid-commit
// leaves an unledgered partial that the next run simply overwrites.
func (s *FSStore) Commit(ctx context.Context, rec emblem.EmblemRecord, artifact []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	if rec.EntityID == "" {
		return fmt.Errorf("record entity id is required")
	}

	if rec.Status == emblem.StatusDownloaded && len(artifact) > 0 {
		path, err := s.writeArtifact(rec, artifact)
		if err != nil {
			return &emblem.StoreError{EntityID: rec.EntityID, Err: err}
		}
		rec.ArtifactPath = path
	}

	if err := s.writeRecord(rec); err != nil {
		return &emblem.StoreError{EntityID: rec.EntityID, Err: err}
	}
	if err := s.appendLedger(rec.EntityID); err != nil {
		return &emblem.StoreError{EntityID: rec.EntityID, Err: err}
	}
	return nil
}

func (s *FSStore) writeArtifact(rec emblem.EmblemRecord, artifact []byte) (string, error) {
	return writeArtifactFiles(s.baseDir, rec, artifact)
}

func (s *FSStore) writeRecord(rec emblem.EmblemRecord) error {
	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	target := s.recordPath(rec.EntityID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("replace record: %w", err)
	}
	return nil
}

func (s *FSStore) appendLedger(entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("acquire ledger lock: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil && s.logger != nil {
			s.logger.Warn("release ledger lock", zap.Error(err))
		}
	}()

	s.processed[entityID] = struct{}{}
	return s.writeLedgerLocked()
}

// Clear removes the ledger entry so the entity is re-attempted on the next
// run. The stale record and artifact stay on disk until then.
func (s *FSStore) Clear(_ context.Context, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processed[entityID]; !ok {
		return nil
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("acquire ledger lock: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil && s.logger != nil {
			s.logger.Warn("release ledger lock", zap.Error(err))
		}
	}()

	delete(s.processed, entityID)
	return s.writeLedgerLocked()
}

// Records returns every committed record, ordered by entity ID.
func (s *FSStore) Records(_ context.Context) ([]emblem.EmblemRecord, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.processed))
	for id := range s.processed {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	records := make([]emblem.EmblemRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.readRecord(id)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// writeLedgerLocked replaces the ledger file atomically. Callers hold both
// the mutex and the flock.
func (s *FSStore) writeLedgerLocked() error {
	ids := make([]string, 0, len(s.processed))
	for id := range s.processed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	payload, err := json.MarshalIndent(ledgerFile{ProcessedEntityIDs: ids}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	tmp := s.ledgerPath + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmp, s.ledgerPath); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

func (s *FSStore) recordPath(entityID string) string {
	return filepath.Join(s.baseDir, "records", SanitizeName(entityID)+".json")
}
