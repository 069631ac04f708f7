// Package extract turns an HTML document into image candidate descriptors.
// Extraction is purely structural: no filtering or scoring happens here.
package extract

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/emblem-crawler/internal/emblem"
)

// Images parses pageBody and returns one candidate per image element, with
// source references resolved to absolute URLs against baseURL. A document
// that cannot be parsed yields an empty slice rather than an error, so one
// malformed page never fails the pipeline.
func Images(pageBody []byte, baseURL string) []emblem.ImageCandidate {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(pageBody))
	if err != nil {
		return nil
	}

	var candidates []emblem.ImageCandidate
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		src = strings.TrimSpace(src)
		if !ok || src == "" {
			return
		}
		abs := resolve(base, src)
		if abs == "" {
			return
		}
		candidates = append(candidates, emblem.ImageCandidate{
			AbsoluteURL:    abs,
			AltText:        strings.TrimSpace(sel.AttrOr("alt", "")),
			TitleText:      strings.TrimSpace(sel.AttrOr("title", "")),
			ClassHints:     strings.Fields(sel.AttrOr("class", "")),
			DeclaredWidth:  parseDimension(sel.AttrOr("width", "")),
			DeclaredHeight: parseDimension(sel.AttrOr("height", "")),
			SourcePageURL:  baseURL,
		})
	})
	return candidates
}

// resolve applies standard URL-resolution rules: scheme-relative,
// root-relative, and relative paths all resolve against base.
func resolve(base *url.URL, src string) string {
	ref, err := url.Parse(src)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

// parseDimension accepts plain integers and a trailing "px"; anything else
// means no dimension hint.
func parseDimension(raw string) int {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "px")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
