package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JakeFAU/emblem-crawler/internal/emblem"
)

// writeArtifactFiles persists the emblem bytes and a sibling metadata record
// under {category}/{sanitizedName}/, returning the artifact path. Shared by
// both store backends; the ledger itself is backend-specific.
func writeArtifactFiles(baseDir string, rec emblem.EmblemRecord, artifact []byte) (string, error) {
	sourceURL := ""
	if rec.Chosen != nil {
		sourceURL = rec.Chosen.AbsoluteURL
	}

	dir := filepath.Join(baseDir, string(rec.Entity.Category), SanitizeName(rec.Entity.DisplayName))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	target := filepath.Join(dir, "emblem"+extensionFor(rec.ContentType, sourceURL))
	if err := os.WriteFile(target, artifact, 0o600); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}

	rec.ArtifactPath = target
	meta, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), meta, 0o600); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}
	return target, nil
}
