package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	navRegions = `nav, header, [role="navigation"], .nav, .navbar, .navigation, .menu`
	buttonSel  = `button, input[type="button"], input[type="submit"], input[type="reset"], ` +
		`[role="button"], a.btn, a[class*="btn"], a[class*="button"]`
)

// navigation collects links inside navigation-like regions. Nested regions
// (a <nav> inside a <header>) visit the same anchor only once, and repeated
// (label, href) pairs such as mobile and desktop copies of one menu are
// kept once.
func (x *extraction) navigation(s *Summary) {
	seenNode := make(map[*html.Node]bool)
	seenPair := make(map[NavItem]bool)
	x.gq.Find(navRegions).Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		n := a.Nodes[0]
		if seenNode[n] || hiddenWithin(n) {
			return
		}
		seenNode[n] = true

		href := strings.TrimSpace(attr(n, "href"))
		if strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		abs := x.resolve(href)
		if abs == "" {
			return
		}
		label := controlLabel(n)
		if label == "" {
			return
		}
		item := NavItem{Label: label, Href: abs}
		if seenPair[item] {
			return
		}
		seenPair[item] = true
		s.Navigation = append(s.Navigation, item)
	})
}

// buttons collects clickable controls in document order.
func (x *extraction) buttons(s *Summary) {
	x.gq.Find(buttonSel).Each(func(_ int, b *goquery.Selection) {
		n := b.Nodes[0]
		if hiddenWithin(n) {
			return
		}
		// A control nested in another matched control counts once.
		for _, prev := range x.buttonNodes {
			if contains(prev, n) {
				return
			}
		}
		label := controlLabel(n)
		if label == "" {
			return
		}
		s.Buttons = append(s.Buttons, Button{Label: label})
		x.buttonNodes = append(x.buttonNodes, n)
	})
}

// controlLabel returns the visible text of a control, falling back to its
// accessible label, title, value, then the alt text of a contained image.
func controlLabel(n *html.Node) string {
	if t := visibleText(n); t != "" {
		return t
	}
	for _, key := range []string{"aria-label", "title", "value"} {
		if v := collapse(attr(n, key)); v != "" {
			return v
		}
	}
	var alt string
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if alt != "" {
			return
		}
		if c.Type == html.ElementNode && c.Data == "img" {
			alt = collapse(attr(c, "alt"))
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
	}
	walk(n)
	return alt
}

// hiddenWithin reports whether n or an ancestor is hidden from rendering.
func hiddenWithin(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if invisible(n) {
			return true
		}
	}
	return false
}
