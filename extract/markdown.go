package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"

	htmltomd "github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// mainRegion returns the landmark holding the page's primary content,
// falling back to the body.
func (x *extraction) mainRegion() *html.Node {
	for _, sel := range []string{"main", `[role="main"]`, "article"} {
		if m := x.gq.Find(sel).First(); m.Length() > 0 {
			return m.Nodes[0]
		}
	}
	return find(x.doc, atom.Body)
}

// markdown renders the main region as markdown, truncated to the configured
// limit on a rune boundary. Conversion failures only cost the excerpt.
func (e *Extractor) markdown(x *extraction, domain string) string {
	region := x.mainRegion()
	if region == nil {
		return ""
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, region); err != nil {
		e.cfg.Logger.Warn("extract: render main region", "error", err)
		return ""
	}
	var opts []htmltomd.ConvertOptionFunc
	if domain != "" {
		opts = append(opts, htmltomd.WithDomain(domain))
	}
	md, err := e.md.ConvertString(buf.String(), opts...)
	if err != nil {
		e.cfg.Logger.Warn("extract: markdown conversion failed", "error", err)
		return ""
	}
	return truncateRunes(strings.TrimSpace(md), e.cfg.MarkdownLimit)
}

// truncateRunes cuts s to at most limit bytes without splitting a rune.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
