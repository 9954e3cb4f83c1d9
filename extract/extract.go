// Package extract turns a rendered HTML document into a design summary:
// text blocks, images, color samples, navigation, buttons and coarse
// structural components.
//
// Parsing is tolerant. The only failure is input that is not HTML at all;
// every other gap in the page yields an empty container.
package extract

import (
	"log/slog"
	"net/url"
	"strings"

	htmltomd "github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultMarkdownLimit caps the markdown excerpt kept on the summary.
const DefaultMarkdownLimit = 16 << 10

// Config configures an Extractor.
type Config struct {
	// MarkdownLimit caps Summary.Markdown in bytes. Negative disables the
	// excerpt, zero means DefaultMarkdownLimit.
	MarkdownLimit int
	Logger        *slog.Logger
}

func (c *Config) defaults() {
	if c.MarkdownLimit == 0 {
		c.MarkdownLimit = DefaultMarkdownLimit
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Extractor builds design summaries. It is safe for concurrent use.
type Extractor struct {
	cfg Config
	md  *htmltomd.Converter
}

// New creates an Extractor.
func New(cfg Config) *Extractor {
	cfg.defaults()
	e := &Extractor{cfg: cfg}
	if cfg.MarkdownLimit > 0 {
		e.md = htmltomd.NewConverter(htmltomd.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		))
	}
	return e
}

// Extract parses rawHTML fetched from pageURL. Relative references are
// resolved against pageURL, or against the document's <base href> if any.
func (e *Extractor) Extract(rawHTML, pageURL string) (*Summary, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, &Error{Kind: MalformedMarkup, Reason: "empty document"}
	}
	if !hasElement(rawHTML) {
		return nil, &Error{Kind: MalformedMarkup, Reason: "input contains no markup"}
	}
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, &Error{Kind: MalformedMarkup, Reason: "parse", Err: err}
	}
	// The parser always synthesizes <body>.
	body := find(doc, atom.Body)

	x := &extraction{
		base: resolveBase(doc, pageURL),
		doc:  doc,
		gq:   goquery.NewDocumentFromNode(doc),
	}
	s := &Summary{
		URL:          pageURL,
		Title:        x.title(),
		TextBlocks:   []TextBlock{},
		Images:       []Image{},
		ColorSamples: []string{},
		Navigation:   []NavItem{},
		Buttons:      []Button{},
		Components:   []Component{},
	}
	if x.base != nil {
		s.BaseURL = x.base.String()
	}

	x.textBlocks(body, s)
	x.images(body, s)
	x.colors(doc, s)
	x.navigation(s)
	x.buttons(s)
	x.components(body, s)
	if e.md != nil {
		s.Markdown = e.markdown(x, s.BaseURL)
	}

	e.cfg.Logger.Debug("extract: summary built",
		"url", pageURL,
		"text_blocks", len(s.TextBlocks),
		"images", len(s.Images),
		"colors", len(s.ColorSamples),
		"nav", len(s.Navigation),
		"buttons", len(s.Buttons),
		"components", len(s.Components))
	return s, nil
}

// extraction carries the parse state of a single Extract call.
type extraction struct {
	base *url.URL
	doc  *html.Node
	gq   *goquery.Document

	textNodes   []*html.Node
	imageNodes  []*html.Node
	buttonNodes []*html.Node
}

func resolveBase(doc *html.Node, pageURL string) *url.URL {
	page, err := url.Parse(pageURL)
	if err != nil || !page.IsAbs() {
		page = nil
	}
	if b := find(doc, atom.Base); b != nil {
		if href := strings.TrimSpace(attr(b, "href")); href != "" {
			if ref, err := url.Parse(href); err == nil {
				if page != nil {
					return page.ResolveReference(ref)
				}
				if ref.IsAbs() {
					return ref
				}
			}
		}
	}
	return page
}

// resolve returns an absolute http(s) URL for ref, or "" if ref cannot be
// resolved to one.
func (x *extraction) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if x.base != nil {
		u = x.base.ResolveReference(u)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.String()
}

func (x *extraction) title() string {
	if t := find(x.doc, atom.Title); t != nil {
		var sb strings.Builder
		for c := t.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
		}
		if s := collapse(sb.String()); s != "" {
			return s
		}
	}
	if h := find(x.doc, atom.H1); h != nil {
		if s := visibleText(h); s != "" {
			return s
		}
	}
	if og, ok := x.gq.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		return collapse(og)
	}
	return ""
}

// hasElement reports whether raw contains at least one real start tag.
// Plain text with stray angle brackets has none.
func hasElement(raw string) bool {
	z := html.NewTokenizer(strings.NewReader(raw))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			return true
		}
	}
}
