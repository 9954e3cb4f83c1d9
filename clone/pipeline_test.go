package clone

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kononmatsumoto/webcloner/extract"
	"github.com/kononmatsumoto/webcloner/fetch"
	"github.com/kononmatsumoto/webcloner/idgen"
	"github.com/kononmatsumoto/webcloner/palette"
	"github.com/kononmatsumoto/webcloner/synth"
)

const examplePage = `<!DOCTYPE html>
<html><head><title>Example Domain</title></head>
<body>
  <nav><a href="/">Home</a><a href="/about">About</a></nav>
  <h1 style="color: #112233">Example Domain</h1>
  <p style="color:#112233">This domain is for use in illustrative examples.</p>
  <img src="/a.png"><img src="/b.png" alt="b"><img src="https://cdn.example.com/c.png">
</body></html>`

const doc = "<!DOCTYPE html><html><body>clone</body></html>"

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	html  string
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*fetch.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &fetch.Page{URL: url, HTML: f.html, FetchedAt: time.Now(), Renderer: "fake"}, nil
}

type fakeSynth struct {
	calls int
	out   string
	err   error
	panic bool
}

func (f *fakeSynth) Synthesize(ctx context.Context, s *extract.Summary, p palette.Palette) (string, error) {
	f.calls++
	if f.panic {
		panic("boom")
	}
	return f.out, f.err
}

func newPipeline(f Fetcher, s Synthesizer, opts ...Option) *Pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := Config{
		Fetcher:     f,
		Extractor:   extract.New(extract.Config{Logger: logger}),
		Deriver:     palette.New(palette.Config{}),
		Synthesizer: s,
		Logger:      logger,
	}
	opts = append([]Option{WithIDGenerator(idgen.Sequence("run_"))}, opts...)
	return New(cfg, opts...)
}

func TestClone_ExampleScenario(t *testing.T) {
	// WHAT: One nav with two links, three images and a color used twice.
	// WHY: Reported counts must equal the summary containers exactly.
	f := &fakeFetcher{html: examplePage}
	s := &fakeSynth{out: doc}
	res := newPipeline(f, s).Clone(context.Background(), Request{URL: "https://example.com"})

	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	if res.HTMLContent != doc {
		t.Errorf("html: got %q", res.HTMLContent)
	}
	st := res.Stats
	if st.TextContentCount < 1 || st.ImagesCount != 3 || st.NavigationItems != 2 || st.ColorsCount != 1 {
		t.Errorf("stats: %+v", st)
	}
	if st.Title != "Example Domain" {
		t.Errorf("title: got %q", st.Title)
	}
	if len(res.Palette) != 1 || res.Palette[0] != "#112233" {
		t.Errorf("palette: got %v", res.Palette)
	}
	if res.RunID != "run_1" {
		t.Errorf("run id: got %q", res.RunID)
	}
}

func TestClone_InvalidURLMakesNoNetworkCall(t *testing.T) {
	for _, raw := range []string{"not a url", "", "ftp://example.com", "https://", "/relative/path", "http://127.0.0.1/"} {
		f := &fakeFetcher{html: examplePage}
		s := &fakeSynth{out: doc}
		res := newPipeline(f, s).Clone(context.Background(), Request{URL: raw})

		if res.Success {
			t.Errorf("%q: expected failure", raw)
			continue
		}
		if res.Error.Category != InvalidRequest || res.Error.Stage != Validating {
			t.Errorf("%q: failure %+v", raw, res.Error)
		}
		if f.calls != 0 || s.calls != 0 {
			t.Errorf("%q: fetch calls %d, synth calls %d", raw, f.calls, s.calls)
		}
	}
}

func TestClone_FetchTimeoutNamesStage(t *testing.T) {
	f := &fakeFetcher{err: &fetch.Error{Kind: fetch.Timeout, URL: "https://example.com", Err: context.DeadlineExceeded}}
	s := &fakeSynth{out: doc}
	res := newPipeline(f, s).Clone(context.Background(), Request{URL: "https://example.com"})

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error.Stage != Fetching || res.Error.Category != FetchError || res.Error.Kind != string(fetch.Timeout) {
		t.Fatalf("failure: %+v", res.Error)
	}
	if !strings.HasPrefix(res.Error.Message, "fetching: ") {
		t.Errorf("message: got %q", res.Error.Message)
	}
	if s.calls != 0 {
		t.Errorf("synthesizer ran after failed fetch")
	}
}

func TestClone_InvalidOutputReturnsNoHTML(t *testing.T) {
	tests := []struct {
		name string
		s    *fakeSynth
	}{
		{"typed", &fakeSynth{err: &synth.Error{Kind: synth.InvalidOutput}}},
		{"empty string", &fakeSynth{out: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newPipeline(&fakeFetcher{html: examplePage}, tt.s).Clone(context.Background(), Request{URL: "https://example.com"})
			if res.Success || res.HTMLContent != "" {
				t.Fatalf("expected failure without html, got %+v", res)
			}
			if res.Error.Category != GenerationError || res.Error.Kind != string(synth.InvalidOutput) || res.Error.Stage != Synthesizing {
				t.Fatalf("failure: %+v", res.Error)
			}
		})
	}
}

func TestClone_ExtractionError(t *testing.T) {
	ex := extractorFunc(func(string, string) (*extract.Summary, error) {
		return nil, &extract.Error{Kind: extract.MalformedMarkup, Reason: "binary"}
	})
	p := newPipeline(&fakeFetcher{html: "x"}, &fakeSynth{out: doc})
	p.cfg.Extractor = ex
	res := p.Clone(context.Background(), Request{URL: "https://example.com"})
	if res.Error == nil || res.Error.Category != ExtractionError || res.Error.Stage != Extracting {
		t.Fatalf("failure: %+v", res.Error)
	}
}

func TestClone_PanicBecomesInternalError(t *testing.T) {
	res := newPipeline(&fakeFetcher{html: examplePage}, &fakeSynth{panic: true}).
		Clone(context.Background(), Request{URL: "https://example.com"})
	if res.Success || res.Error.Category != InternalError || res.Error.Stage != Synthesizing {
		t.Fatalf("failure: %+v", res.Error)
	}
	if strings.Contains(res.Error.Message, "boom") {
		t.Errorf("internal details leaked: %q", res.Error.Message)
	}
}

func TestClone_UntypedErrorIsInternal(t *testing.T) {
	res := newPipeline(&fakeFetcher{err: errors.New("disk on fire")}, &fakeSynth{out: doc}).
		Clone(context.Background(), Request{URL: "https://example.com"})
	if res.Error == nil || res.Error.Category != InternalError || res.Error.Stage != Fetching {
		t.Fatalf("failure: %+v", res.Error)
	}
}

func TestClone_RunsToCompletionAfterCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var sawCancel bool
	f := fetcherFunc(func(ctx context.Context, url string) (*fetch.Page, error) {
		sawCancel = ctx.Err() != nil
		return &fetch.Page{URL: url, HTML: examplePage}, nil
	})
	res := newPipeline(f, &fakeSynth{out: doc}).Clone(ctx, Request{URL: "https://example.com"})
	if !res.Success || sawCancel {
		t.Fatalf("success %v, fetch saw cancel %v", res.Success, sawCancel)
	}
}

func TestClone_Hooks(t *testing.T) {
	var stages []Stage
	var done *Result
	h := Hooks{
		OnStage: func(run Run, st Stage, d time.Duration, err error) { stages = append(stages, st) },
		OnDone:  func(run Run, res *Result) { done = res },
	}
	res := newPipeline(&fakeFetcher{html: examplePage}, &fakeSynth{out: doc}, WithHooks(h)).
		Clone(context.Background(), Request{URL: "https://example.com"})

	want := []Stage{Validating, Fetching, Extracting, DerivingPalette, Synthesizing}
	if len(stages) != len(want) {
		t.Fatalf("stages: got %v", stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("stages: got %v, want %v", stages, want)
		}
	}
	if done != res {
		t.Error("OnDone did not receive the final result")
	}
}

func TestScrape_SkipsSynthesis(t *testing.T) {
	s := &fakeSynth{out: doc}
	res := newPipeline(&fakeFetcher{html: examplePage}, s).Scrape(context.Background(), Request{URL: "https://example.com"})
	if !res.Success || res.Summary == nil || res.HTMLContent != "" {
		t.Fatalf("result: %+v", res)
	}
	if s.calls != 0 {
		t.Fatal("scrape must not synthesize")
	}
	if res.Stats.ImagesCount != len(res.Summary.Images) {
		t.Errorf("stats do not match summary")
	}
}

func TestResult_JSON(t *testing.T) {
	ok := Result{Success: true, HTMLContent: doc, Stats: &DesignStats{Title: "T", ImagesCount: 3}, Palette: []string{"#112233"}}
	data, err := json.Marshal(ok)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	json.Unmarshal(data, &m)
	if m["success"] != true || m["html_content"] != doc || m["error"] != nil {
		t.Errorf("success json: %s", data)
	}
	sd, _ := m["scraped_data"].(map[string]any)
	if sd["images_count"] != float64(3) || sd["navigation_items"] != float64(0) {
		t.Errorf("scraped_data: %v", sd)
	}

	bad := Result{Error: &Failure{Stage: Fetching, Category: FetchError, Kind: "timeout", Message: "fetching: timed out"}}
	data, _ = json.Marshal(bad)
	m = nil
	json.Unmarshal(data, &m)
	if m["success"] != false || m["error"] != "fetching: timed out" || m["stage"] != "fetching" || m["html_content"] != nil {
		t.Errorf("failure json: %s", data)
	}

	var back Result
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Error == nil || back.Error.Kind != "timeout" {
		t.Errorf("round trip: %+v", back)
	}
}

type extractorFunc func(string, string) (*extract.Summary, error)

func (f extractorFunc) Extract(h, u string) (*extract.Summary, error) { return f(h, u) }

type fetcherFunc func(ctx context.Context, url string) (*fetch.Page, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string) (*fetch.Page, error) { return f(ctx, url) }
