package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// images collects one entry per image-bearing element, deduplicated by the
// resolved absolute URL. Elements without a resolvable URL are dropped.
func (x *extraction) images(body *html.Node, s *Summary) {
	seen := make(map[string]bool)
	add := func(n *html.Node, src, alt string) {
		abs := x.resolve(src)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		s.Images = append(s.Images, Image{Src: abs, Alt: collapse(alt)})
		x.imageNodes = append(x.imageNodes, n)
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Template, atom.Noscript:
				return
			case atom.Img:
				add(n, imageSource(n), attr(n, "alt"))
				return
			case atom.Picture:
				// The <img> fallback is authoritative; <source> only when absent.
				if img := find(n, atom.Img); img != nil && imageSource(img) != "" {
					add(img, imageSource(img), attr(img, "alt"))
					return
				}
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.ElementNode && c.DataAtom == atom.Source {
						add(c, firstSrcset(attr(c, "srcset")), "")
						return
					}
				}
				return
			case atom.Input:
				if strings.EqualFold(attr(n, "type"), "image") {
					add(n, attr(n, "src"), attr(n, "alt"))
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)
}

// imageSource prefers src, then lazy-loading attributes, then srcset.
func imageSource(n *html.Node) string {
	for _, key := range []string{"src", "data-src", "data-lazy-src", "data-original"} {
		if v := strings.TrimSpace(attr(n, key)); v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	return firstSrcset(attr(n, "srcset"))
}

// firstSrcset returns the URL of the first srcset candidate.
func firstSrcset(srcset string) string {
	first, _, _ := strings.Cut(srcset, ",")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
