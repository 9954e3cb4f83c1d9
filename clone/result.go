package clone

import (
	"encoding/json"

	"github.com/kononmatsumoto/webcloner/extract"
)

// Stage names a step of a pipeline run.
type Stage string

const (
	Validating      Stage = "validating"
	Fetching        Stage = "fetching"
	Extracting      Stage = "extracting"
	DerivingPalette Stage = "deriving_palette"
	Synthesizing    Stage = "synthesizing"
	Succeeded       Stage = "succeeded"
	Failed          Stage = "failed"
)

// Category is the top level of the error taxonomy.
type Category string

const (
	InvalidRequest  Category = "invalid_request"
	FetchError      Category = "fetch_error"
	ExtractionError Category = "extraction_error"
	GenerationError Category = "generation_error"
	InternalError   Category = "internal_error"
)

// Request is one clone target.
type Request struct {
	URL string `json:"url"`
}

// DesignStats are counts taken straight from the design summary containers.
type DesignStats struct {
	Title            string `json:"title"`
	URL              string `json:"url"`
	TextContentCount int    `json:"text_content_count"`
	ImagesCount      int    `json:"images_count"`
	// ColorsCount is the deduplicated palette size.
	ColorsCount     int `json:"colors_count"`
	ComponentsCount int `json:"components_count"`
	NavigationItems int `json:"navigation_items"`
	ButtonsCount    int `json:"buttons_count"`
}

// Failure describes a failed run.
type Failure struct {
	Stage    Stage
	Category Category
	// Kind is the sub-kind inside Category, e.g. "timeout".
	Kind string
	// Message is "<stage>: <human message>".
	Message string
}

// Result is the terminal output of a run. Exactly one of HTMLContent (with
// Stats) or Error is meaningful, selected by Success.
type Result struct {
	RunID       string
	Success     bool
	HTMLContent string
	Stats       *DesignStats
	Palette     []string
	// Summary is only set by Scrape.
	Summary *extract.Summary
	Error   *Failure
}

type wireResult struct {
	Success     bool             `json:"success"`
	HTMLContent string           `json:"html_content,omitempty"`
	Stats       *DesignStats     `json:"scraped_data,omitempty"`
	Palette     []string         `json:"palette,omitempty"`
	Summary     *extract.Summary `json:"summary,omitempty"`
	Error       string           `json:"error,omitempty"`
	Stage       Stage            `json:"stage,omitempty"`
	Category    Category         `json:"category,omitempty"`
	Kind        string           `json:"kind,omitempty"`
	RunID       string           `json:"run_id,omitempty"`
}

// MarshalJSON renders the wire format: success carries html_content and
// scraped_data, failure carries error plus stage, category and kind.
func (r Result) MarshalJSON() ([]byte, error) {
	w := wireResult{Success: r.Success, RunID: r.RunID}
	if r.Success {
		w.HTMLContent = r.HTMLContent
		w.Stats = r.Stats
		w.Palette = r.Palette
		w.Summary = r.Summary
	} else if r.Error != nil {
		w.Error = r.Error.Message
		w.Stage = r.Error.Stage
		w.Category = r.Error.Category
		w.Kind = r.Error.Kind
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON (CLI and MCP clients).
func (r *Result) UnmarshalJSON(data []byte) error {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Result{
		RunID:       w.RunID,
		Success:     w.Success,
		HTMLContent: w.HTMLContent,
		Stats:       w.Stats,
		Palette:     w.Palette,
		Summary:     w.Summary,
	}
	if !w.Success {
		r.Error = &Failure{Stage: w.Stage, Category: w.Category, Kind: w.Kind, Message: w.Error}
	}
	return nil
}
