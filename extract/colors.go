package extract

import (
	"regexp"
	"strings"

	"github.com/kononmatsumoto/webcloner/palette"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	colorToken   = regexp.MustCompile(`#[0-9a-fA-F]{3,8}\b|(?i:rgba?|hsla?)\([^()]*\)|-*[a-zA-Z][a-zA-Z0-9-]*`)
	cssComment   = regexp.MustCompile(`(?s)/\*.*?\*/`)
	colorAttrs   = []string{"bgcolor", "color"}
	colorPropSet = map[string]bool{
		"color":            true,
		"background":       true,
		"background-color": true,
		"border":           true,
		"border-color":     true,
		"border-top":       true,
		"border-right":     true,
		"border-bottom":    true,
		"border-left":      true,
		"outline":          true,
		"outline-color":    true,
		"fill":             true,
		"stroke":           true,
	}
)

// colors appends color values from inline style attributes, <style> blocks
// and legacy color attributes, verbatim and in document order.
func (x *extraction) colors(doc *html.Node, s *Summary) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Template:
				return
			case atom.Style:
				var sb strings.Builder
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.TextNode {
						sb.WriteString(c.Data)
					}
				}
				s.ColorSamples = append(s.ColorSamples, scanCSS(sb.String())...)
				return
			}
			for _, key := range colorAttrs {
				if v := strings.TrimSpace(attr(n, key)); v != "" {
					if _, ok := palette.Parse(v); ok {
						s.ColorSamples = append(s.ColorSamples, v)
					}
				}
			}
			if style := attr(n, "style"); style != "" {
				s.ColorSamples = append(s.ColorSamples, scanCSS(style)...)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
}

// scanCSS returns the color tokens of every color-valued declaration in a
// stylesheet or an inline style attribute.
func scanCSS(css string) []string {
	css = cssComment.ReplaceAllString(css, " ")
	var out []string
	for _, decl := range strings.FieldsFunc(css, func(r rune) bool {
		return r == ';' || r == '{' || r == '}'
	}) {
		prop, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		if !isColorProperty(prop) {
			continue
		}
		out = append(out, colorTokens(value)...)
	}
	return out
}

func isColorProperty(prop string) bool {
	if colorPropSet[prop] {
		return true
	}
	// border-top-color, text-decoration-color, --brand-color...
	return strings.HasSuffix(prop, "-color")
}

// colorTokens extracts the color values of a declaration value. url(...)
// arguments are skipped so file names are never read as color keywords.
// Words keep their hyphens, so var(--red-line) is one identifier and not the
// keyword red; a var() fallback such as var(--x, red) still counts.
func colorTokens(value string) []string {
	for {
		i := strings.Index(strings.ToLower(value), "url(")
		if i < 0 {
			break
		}
		j := strings.IndexByte(value[i:], ')')
		if j < 0 {
			value = value[:i]
			break
		}
		value = value[:i] + " " + value[i+j+1:]
	}

	var out []string
	for _, tok := range colorToken.FindAllString(value, -1) {
		switch {
		case strings.HasPrefix(tok, "#"):
			if _, ok := palette.Parse(tok); !ok {
				continue
			}
		case strings.Contains(tok, "("):
		default:
			if !palette.IsNamed(strings.ToLower(tok)) {
				continue
			}
		}
		out = append(out, strings.TrimSpace(tok))
	}
	return out
}
