package fetch

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

var shellMarkers = [][]byte{
	[]byte(`<div id="root"></div>`),
	[]byte(`<div id="app"></div>`),
	[]byte(`<div id="__next"></div>`),
	[]byte(`<noscript>you need to enable javascript`),
	[]byte(`<noscript>enable javascript`),
}

// looksUnrendered reports whether an HTML body is probably a client-side
// app shell whose content only appears after scripts run: fewer than 200
// visible characters, text under 10% of the bytes, or a known mount-point
// marker.
func looksUnrendered(body []byte) bool {
	if len(body) < 256 {
		return true
	}
	lower := bytes.ToLower(body)
	for _, m := range shellMarkers {
		if bytes.Contains(lower, m) {
			return true
		}
	}

	text := 0
	skip := 0
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return text < 200 || float64(text)/float64(len(body)) < 0.10
		case html.StartTagToken:
			name, _ := z.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				text += len(strings.TrimSpace(string(z.Text())))
			}
		}
	}
}
