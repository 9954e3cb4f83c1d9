package extract

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// blockTags are text-bearing elements whose whole visible text forms one
// block. Their descendants are not visited again.
var blockTags = map[atom.Atom]bool{
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.P: true, atom.Li: true, atom.Blockquote: true, atom.Figcaption: true,
	atom.Td: true, atom.Th: true, atom.Dt: true, atom.Dd: true, atom.Pre: true,
	atom.Caption: true, atom.Label: true, atom.Summary: true, atom.Button: true,
}

// textBlocks walks the body in document order. Block elements contribute
// their full text; any other element contributes only its direct text.
func (x *extraction) textBlocks(body *html.Node, s *Summary) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if invisible(n) {
			return
		}
		if n.Type == html.ElementNode {
			if blockTags[n.DataAtom] {
				if t := visibleText(n); t != "" {
					s.TextBlocks = append(s.TextBlocks, TextBlock{Content: t, TagHint: n.Data})
					x.textNodes = append(x.textNodes, n)
				}
				return
			}
			if t := ownText(n); t != "" {
				s.TextBlocks = append(s.TextBlocks, TextBlock{Content: t, TagHint: n.Data})
				x.textNodes = append(x.textNodes, n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)
}
