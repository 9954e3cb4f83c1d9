package extract

// TextBlock is one run of visible text. TagHint is the element it came from.
type TextBlock struct {
	Content string `json:"content"`
	TagHint string `json:"tag_hint"`
}

// Image is an image reference resolved against the page URL.
type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

// NavItem is one primary navigation link.
type NavItem struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

// Button is one clickable control.
type Button struct {
	Label string `json:"label"`
}

// Component is a coarse structural region of the page.
type Component struct {
	Kind        Kind   `json:"kind"`
	TagHint     string `json:"tag_hint"`
	Depth       int    `json:"depth"`
	TextCount   int    `json:"text_count"`
	ImageCount  int    `json:"image_count"`
	ButtonCount int    `json:"button_count"`
}

// Summary is the design summary of one rendered page. It is built once by
// Extract and not modified afterwards.
type Summary struct {
	Title        string      `json:"title"`
	URL          string      `json:"url"`
	BaseURL      string      `json:"base_url,omitempty"`
	TextBlocks   []TextBlock `json:"text_blocks"`
	Images       []Image     `json:"images"`
	ColorSamples []string    `json:"color_samples"`
	Navigation   []NavItem   `json:"navigation"`
	Buttons      []Button    `json:"buttons"`
	Components   []Component `json:"components"`
	// Markdown is the main content region rendered as markdown.
	Markdown string `json:"markdown,omitempty"`
}
