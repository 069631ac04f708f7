package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `
<html><body>
  <div class="header">
    <img src="../img/logo.png" alt="School Logo" title="Official" class="header-logo brand" width="200" height="180px">
  </div>
  <img src="//cdn.example.com/banner.jpg" width="800" height="90">
  <img src="/assets/crest.svg" alt="Crest">
  <img src="data:image/gif;base64,R0lGOD=" alt="inline">
  <img src="   " alt="blank src">
  <img alt="no src at all">
</body></html>`

func TestImagesResolvesURLs(t *testing.T) {
	t.Parallel()

	cands := Images([]byte(samplePage), "https://school.example.com/pages/about.html")
	require.Len(t, cands, 3)

	// Relative path resolves against the page directory.
	assert.Equal(t, "https://school.example.com/img/logo.png", cands[0].AbsoluteURL)
	assert.Equal(t, "School Logo", cands[0].AltText)
	assert.Equal(t, "Official", cands[0].TitleText)
	assert.Equal(t, []string{"header-logo", "brand"}, cands[0].ClassHints)
	assert.Equal(t, 200, cands[0].DeclaredWidth)
	assert.Equal(t, 180, cands[0].DeclaredHeight)
	assert.Equal(t, "https://school.example.com/pages/about.html", cands[0].SourcePageURL)

	// Scheme-relative keeps the page scheme.
	assert.Equal(t, "https://cdn.example.com/banner.jpg", cands[1].AbsoluteURL)

	// Root-relative resolves against the host.
	assert.Equal(t, "https://school.example.com/assets/crest.svg", cands[2].AbsoluteURL)
	assert.Zero(t, cands[2].DeclaredWidth)
}

func TestImagesMalformedDocument(t *testing.T) {
	t.Parallel()

	// Mismatched tags still parse leniently; only a bad base URL yields
	// nothing.
	cands := Images([]byte(`<body><p><img src="a.png"></div>`), "https://example.com/")
	assert.Len(t, cands, 1)

	assert.Nil(t, Images([]byte(`<img src="a.png">`), "://not-a-url"))
}

func TestImagesEmptyDocument(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Images(nil, "https://example.com/"))
}

func TestParseDimension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 240, parseDimension("240"))
	assert.Equal(t, 240, parseDimension("240px"))
	assert.Zero(t, parseDimension("100%"))
	assert.Zero(t, parseDimension("auto"))
	assert.Zero(t, parseDimension("-5"))
	assert.Zero(t, parseDimension(""))
}
