package synth

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

var (
	errEmptyOutput = errors.New("empty model output")
	errNotDocument = errors.New("output is not an html document with a body")
)

// Clean removes the packaging models commonly put around a document: code
// fences, leading prose before the doctype or <html>, and trailing prose after
// </html>. Text that contains neither marker is returned trimmed.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	s = stripFences(s)

	lower := strings.ToLower(s)
	start := strings.Index(lower, "<!doctype")
	if start < 0 {
		start = strings.Index(lower, "<html")
	}
	if start > 0 {
		s = s[start:]
		lower = lower[start:]
	}
	if end := strings.LastIndex(lower, "</html>"); end >= 0 {
		s = s[:end+len("</html>")]
	}
	return strings.TrimSpace(s)
}

// stripFences removes a leading ```lang line and a trailing ``` line.
func stripFences(s string) string {
	if i := strings.Index(s, "```"); i >= 0 && !strings.Contains(strings.ToLower(s[:i]), "<html") {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			s = rest[nl+1:]
		} else {
			s = rest
		}
		if j := strings.LastIndex(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	return strings.TrimSpace(s)
}

// Validate checks that doc is a usable standalone HTML document. Output is
// never repaired or wrapped here.
func Validate(doc string) error {
	if strings.TrimSpace(doc) == "" {
		return &Error{Kind: InvalidOutput, Err: errEmptyOutput}
	}
	var sawHTML, sawBody bool
	z := html.NewTokenizer(strings.NewReader(doc))
	for !sawHTML || !sawBody {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != nil && !errors.Is(err, io.EOF) {
				return &Error{Kind: InvalidOutput, Err: fmt.Errorf("tokenize output: %w", err)}
			}
			return &Error{Kind: InvalidOutput, Err: errNotDocument}
		}
		if tt != html.StartTagToken {
			continue
		}
		// Tag names come back lower-cased.
		switch name, _ := z.TagName(); string(name) {
		case "html":
			sawHTML = true
		case "body":
			sawBody = true
		}
	}
	return nil
}
