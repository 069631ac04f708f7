// Package validate downloads candidate images to memory and decides whether
// they are plausible emblems rather than favicons or UI chrome.
package validate

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	// Registered decoders for the image families we accept.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/JakeFAU/emblem-crawler/internal/emblem"
	"github.com/JakeFAU/emblem-crawler/internal/metrics"
)

// MinDimension is the floor for each pixel axis; smaller images are almost
// always favicons.
const MinDimension = 100

// knownIconSizes is an exact-match denylist of common web icon dimensions,
// including the 88x31 web-banner size. Matching is exact on purpose: a
// 100x100 custom icon still passes.
var knownIconSizes = map[[2]int]struct{}{
	{16, 16}: {},
	{32, 32}: {},
	{48, 48}: {},
	{64, 64}: {},
	{88, 31}: {},
}

// Validator performs the byte retrieval and image checks for candidates.
type Validator struct {
	fetcher emblem.Fetcher
}

// New wires a Validator to the shared fetch client.
func New(fetcher emblem.Fetcher) *Validator {
	return &Validator{fetcher: fetcher}
}

// Validate downloads the candidate and decodes it. It returns a
// *emblem.RejectionError for routine rejections and transport errors
// unchanged; both leave the pipeline free to try the next candidate.
func (v *Validator) Validate(ctx context.Context, cand emblem.ImageCandidate) (emblem.DecodedImage, error) {
	res, err := v.fetcher.Fetch(ctx, cand.AbsoluteURL)
	if err != nil {
		return emblem.DecodedImage{}, fmt.Errorf("retrieve candidate: %w", err)
	}

	contentType := strings.ToLower(strings.TrimSpace(strings.Split(res.ContentType, ";")[0]))
	if !strings.HasPrefix(contentType, "image/") {
		return emblem.DecodedImage{}, reject(emblem.RejectWrongType, contentType)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(res.Body))
	if err != nil {
		return emblem.DecodedImage{}, reject(emblem.RejectUndecodable, err.Error())
	}

	// Denylist first: every listed size is also under the floor, and the
	// exact match is the more specific reason.
	if _, ok := knownIconSizes[[2]int{cfg.Width, cfg.Height}]; ok {
		return emblem.DecodedImage{}, reject(
			emblem.RejectKnownIconSize,
			fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		)
	}
	if cfg.Width < MinDimension || cfg.Height < MinDimension {
		return emblem.DecodedImage{}, reject(
			emblem.RejectTooSmall,
			fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		)
	}

	return emblem.DecodedImage{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Bytes:       res.Body,
		ContentType: contentType,
		Format:      format,
	}, nil
}

func reject(reason emblem.RejectReason, detail string) error {
	metrics.IncRejection(string(reason))
	return &emblem.RejectionError{Reason: reason, Detail: detail}
}
