package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Kind is the variant assigned to a structural region.
type Kind string

const (
	KindHeader     Kind = "header"
	KindNavigation Kind = "navigation"
	KindHero       Kind = "hero"
	KindMain       Kind = "main"
	KindArticle    Kind = "article"
	KindAside      Kind = "aside"
	KindSection    Kind = "section"
	KindForm       Kind = "form"
	KindFooter     Kind = "footer"
	// KindBlock is a top-level layout container with content that matched
	// no other variant.
	KindBlock Kind = "block"
)

// variant is one classifier rule. Rules are evaluated in slice order, so an
// element matching several rules gets the earliest variant.
type variant struct {
	kind  Kind
	match func(n *html.Node, bodyDepth int) bool
}

// variants is populated in init: the block rule consults classify, which
// reads variants.
var variants []variant

func init() {
	variants = []variant{
		{KindHeader, func(n *html.Node, _ int) bool {
			return n.DataAtom == atom.Header || role(n) == "banner"
		}},
		{KindNavigation, func(n *html.Node, _ int) bool {
			return n.DataAtom == atom.Nav || role(n) == "navigation"
		}},
		{KindHero, func(n *html.Node, _ int) bool {
			if n.DataAtom != atom.Section && n.DataAtom != atom.Div {
				return false
			}
			for _, tok := range classTokens(n) {
				for _, key := range []string{"hero", "banner", "jumbotron", "masthead", "splash"} {
					if strings.Contains(tok, key) {
						return true
					}
				}
			}
			return false
		}},
		{KindMain, func(n *html.Node, _ int) bool {
			return n.DataAtom == atom.Main || role(n) == "main"
		}},
		{KindArticle, func(n *html.Node, _ int) bool {
			return n.DataAtom == atom.Article || role(n) == "article"
		}},
		{KindAside, func(n *html.Node, _ int) bool {
			return n.DataAtom == atom.Aside || role(n) == "complementary"
		}},
		{KindSection, func(n *html.Node, _ int) bool {
			return n.DataAtom == atom.Section || role(n) == "region"
		}},
		{KindForm, func(n *html.Node, _ int) bool {
			return n.DataAtom == atom.Form || role(n) == "form" || role(n) == "search"
		}},
		{KindFooter, func(n *html.Node, _ int) bool {
			return n.DataAtom == atom.Footer || role(n) == "contentinfo"
		}},
		{KindBlock, func(n *html.Node, bodyDepth int) bool {
			return bodyDepth == 1 && n.DataAtom == atom.Div && !holdsRegion(n)
		}},
	}
}

// holdsRegion reports whether a descendant of n is itself a classified
// region, in which case n is only a wrapper.
func holdsRegion(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if classify(c, -1) != "" || holdsRegion(c) {
			return true
		}
	}
	return false
}

func role(n *html.Node) string {
	return strings.ToLower(strings.TrimSpace(attr(n, "role")))
}

// classify returns the variant of n, or "" if no rule matches.
func classify(n *html.Node, bodyDepth int) Kind {
	for _, v := range variants {
		if v.match(n, bodyDepth) {
			return v.kind
		}
	}
	return ""
}

// components segments the body into regions. The walk is pre-order from the
// body, and a classified element is not descended into: when candidate
// regions overlap, the shallower one wins and its nested candidates are
// discarded. Survivors keep document order. Regions without any text,
// image or button are dropped.
func (x *extraction) components(body *html.Node, s *Summary) {
	var walk func(n *html.Node, depth int)
	walk = func(n *html.Node, depth int) {
		if n.Type == html.ElementNode && n != body {
			if invisible(n) {
				return
			}
			if kind := classify(n, depth); kind != "" {
				c := Component{
					Kind:        kind,
					TagHint:     n.Data,
					Depth:       depth,
					TextCount:   countWithin(n, x.textNodes),
					ImageCount:  countWithin(n, x.imageNodes),
					ButtonCount: countWithin(n, x.buttonNodes),
				}
				if c.TextCount+c.ImageCount+c.ButtonCount > 0 {
					s.Components = append(s.Components, c)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, depth+1)
		}
	}
	walk(body, 0)
}

func countWithin(root *html.Node, nodes []*html.Node) int {
	n := 0
	for _, node := range nodes {
		if contains(root, node) {
			n++
		}
	}
	return n
}
