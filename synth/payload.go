package synth

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/kononmatsumoto/webcloner/extract"
	"github.com/kononmatsumoto/webcloner/palette"
	"github.com/microcosm-cc/bluemonday"
)

// Limits bounds the payload sent to the model.
type Limits struct {
	Navigation int
	Buttons    int
	Components int
	Images     int
	TextBlocks int
	// LabelRunes clips every label and text sample.
	LabelRunes int
	// MaxBytes caps the whole payload.
	MaxBytes int
}

// DefaultLimits returns the standard payload bounds.
func DefaultLimits() Limits {
	return Limits{
		Navigation: 20,
		Buttons:    15,
		Components: 30,
		Images:     20,
		TextBlocks: 40,
		LabelRunes: 200,
		MaxBytes:   24 << 10,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.Navigation <= 0 {
		l.Navigation = d.Navigation
	}
	if l.Buttons <= 0 {
		l.Buttons = d.Buttons
	}
	if l.Components <= 0 {
		l.Components = d.Components
	}
	if l.Images <= 0 {
		l.Images = d.Images
	}
	if l.TextBlocks <= 0 {
		l.TextBlocks = d.TextBlocks
	}
	if l.LabelRunes <= 0 {
		l.LabelRunes = d.LabelRunes
	}
	if l.MaxBytes <= 0 {
		l.MaxBytes = d.MaxBytes
	}
	return l
}

var strict = bluemonday.StrictPolicy()

// BuildPayload renders the summary and palette as the user part of the
// prompt. Sections always appear in the same order; inside a section items
// keep document order, and the first item that does not fit ends the
// section. The same inputs always produce the same payload.
func BuildPayload(s *extract.Summary, p palette.Palette, lim Limits) string {
	lim = lim.withDefaults()
	w := &payloadWriter{max: lim.MaxBytes}
	clip := func(v string) string { return cleanLabel(v, lim.LabelRunes) }

	if w.section("Page") {
		w.line("title: " + clip(s.Title))
		w.line("url: " + s.URL)
	}

	if w.section("Palette") {
		for i, c := range p {
			if !w.line(fmt.Sprintf("%d. %s (seen %d times)", i+1, c.Hex(), c.Count)) {
				break
			}
		}
	}

	if len(s.Navigation) > 0 && w.section("Navigation") {
		for i, n := range s.Navigation {
			if i >= lim.Navigation || !w.line(fmt.Sprintf("- %s -> %s", clip(n.Label), n.Href)) {
				break
			}
		}
	}

	if len(s.Buttons) > 0 && w.section("Buttons") {
		for i, b := range s.Buttons {
			if i >= lim.Buttons || !w.line("- "+clip(b.Label)) {
				break
			}
		}
	}

	if len(s.Components) > 0 && w.section("Layout") {
		for i, c := range s.Components {
			line := fmt.Sprintf("- %s%s <%s>: %d text, %d images, %d buttons",
				strings.Repeat("  ", max(c.Depth-1, 0)), c.Kind, c.TagHint, c.TextCount, c.ImageCount, c.ButtonCount)
			if i >= lim.Components || !w.line(line) {
				break
			}
		}
	}

	if len(s.Images) > 0 && w.section("Images") {
		for i, img := range s.Images {
			line := "- " + img.Src
			if alt := clip(img.Alt); alt != "" {
				line += " (alt: " + alt + ")"
			}
			if i >= lim.Images || !w.line(line) {
				break
			}
		}
	}

	if len(s.TextBlocks) > 0 && w.section("Text") {
		for i, t := range s.TextBlocks {
			if i >= lim.TextBlocks || !w.line(fmt.Sprintf("- [%s] %s", t.TagHint, clip(t.Content))) {
				break
			}
		}
	}

	if md := strings.TrimSpace(s.Markdown); md != "" && w.section("Content excerpt") {
		w.rest(md)
	}

	return strings.TrimRight(w.b.String(), "\n")
}

// cleanLabel strips residual markup, collapses whitespace and clips to n runes.
func cleanLabel(s string, n int) string {
	s = html.UnescapeString(strict.Sanitize(s))
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// payloadWriter appends lines while the byte budget allows.
type payloadWriter struct {
	b   strings.Builder
	max int
}

func (w *payloadWriter) fits(n int) bool { return w.b.Len()+n <= w.max }

// section writes a heading, separated from the previous section by a blank
// line. It reports false when the heading itself does not fit.
func (w *payloadWriter) section(title string) bool {
	head := "## " + title + "\n"
	if w.b.Len() > 0 {
		head = "\n" + head
	}
	if !w.fits(len(head)) {
		return false
	}
	w.b.WriteString(head)
	return true
}

func (w *payloadWriter) line(s string) bool {
	if !w.fits(len(s) + 1) {
		return false
	}
	w.b.WriteString(s)
	w.b.WriteByte('\n')
	return true
}

// rest writes as much of s as the remaining budget allows, never splitting a
// rune.
func (w *payloadWriter) rest(s string) {
	room := w.max - w.b.Len() - 1
	if room <= 0 {
		return
	}
	if len(s) > room {
		cut := room
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	w.b.WriteString(s)
	w.b.WriteByte('\n')
}
