package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

var minimalEnv = map[string]string{
	"BROWSERBASE_API_KEY":    "bb-key",
	"BROWSERBASE_PROJECT_ID": "proj",
	"ANTHROPIC_API_KEY":      "sk-test",
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "webcloner.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	// WHAT: No file and only credentials yields a runnable config.
	// WHY: The service must start from environment alone in containers.
	cfg, err := load("", envMap(minimalEnv))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Fetch.Renderer != RendererBrowserbase || cfg.Synth.Provider != ProviderAnthropic {
		t.Errorf("renderer/provider = %q/%q", cfg.Fetch.Renderer, cfg.Synth.Provider)
	}
	if cfg.Fetch.Budget != 60*time.Second || cfg.Synth.Timeout != 120*time.Second {
		t.Errorf("budgets = %v/%v", cfg.Fetch.Budget, cfg.Synth.Timeout)
	}
	if cfg.Fetch.RetryBackoff != time.Second || cfg.Fetch.SettleDelay != 2*time.Second {
		t.Errorf("retry_backoff/settle_delay = %v/%v", cfg.Fetch.RetryBackoff, cfg.Fetch.SettleDelay)
	}
	if *cfg.Synth.Temperature != 0.05 || cfg.Synth.MaxTokens != 8192 {
		t.Errorf("temperature/max_tokens = %v/%d", *cfg.Synth.Temperature, cfg.Synth.MaxTokens)
	}
	if !*cfg.Fetch.Stealth || !*cfg.Server.MCP {
		t.Error("stealth and mcp should default on")
	}
	if cfg.Palette.MaxSize != 12 || cfg.Palette.MergeDistance != 0 {
		t.Errorf("palette = %+v", cfg.Palette)
	}
	if cfg.Ledger.Path != "" {
		t.Errorf("ledger should be disabled by default, got %q", cfg.Ledger.Path)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	// WHAT: YAML values load, environment wins over the file.
	// WHY: Secrets come from the environment even when a file is mounted.
	path := writeYAML(t, `
server:
  addr: ":9000"
  max_concurrent: 4
fetch:
  renderer: cdp
  cdp_url: ws://127.0.0.1:9222
  budget: 45s
  block_resources: [media, font]
synth:
  provider: gemini
  temperature: 0
  gemini_api_key: from-file
palette:
  merge_distance: 12.5
`)
	env := map[string]string{
		"GEMINI_API_KEY": "from-env",
		"PORT":           "7070",
	}
	cfg, err := load(path, envMap(env))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("PORT should override addr, got %q", cfg.Server.Addr)
	}
	if cfg.Server.MaxConcurrent != 4 {
		t.Errorf("max_concurrent = %d", cfg.Server.MaxConcurrent)
	}
	if cfg.Fetch.Budget != 45*time.Second {
		t.Errorf("budget = %v", cfg.Fetch.Budget)
	}
	if len(cfg.Fetch.BlockResources) != 2 {
		t.Errorf("block_resources = %v", cfg.Fetch.BlockResources)
	}
	if cfg.Synth.GeminiAPIKey != "from-env" {
		t.Errorf("gemini key = %q", cfg.Synth.GeminiAPIKey)
	}
	if *cfg.Synth.Temperature != 0 {
		t.Errorf("explicit zero temperature must survive defaults, got %v", *cfg.Synth.Temperature)
	}
	if cfg.Palette.MergeDistance != 12.5 {
		t.Errorf("merge_distance = %v", cfg.Palette.MergeDistance)
	}
}

func TestLoad_EnvParsing(t *testing.T) {
	env := map[string]string{
		"WEBCLONER_RENDERER":              "http",
		"WEBCLONER_MAX_CONCURRENT":        "3",
		"WEBCLONER_ALLOW_PRIVATE_TARGETS": "true",
		"ANTHROPIC_API_KEY":               "sk",
		"LOG_LEVEL":                       "debug",
	}
	cfg, err := load("", envMap(env))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.MaxConcurrent != 3 || !cfg.Security.AllowPrivateTargets || cfg.Log.Level != "debug" {
		t.Errorf("env not applied: %+v %+v %+v", cfg.Server, cfg.Security, cfg.Log)
	}

	env["WEBCLONER_MAX_CONCURRENT"] = "lots"
	if _, err := load("", envMap(env)); err == nil {
		t.Error("non-numeric WEBCLONER_MAX_CONCURRENT should fail")
	}
}

func TestValidate(t *testing.T) {
	// WHAT: Missing credentials and unknown names are rejected at startup.
	// WHY: Failing on the first clone request is much harder to diagnose.
	tests := []struct {
		name string
		yaml string
		env  map[string]string
		want string
	}{
		{"browserbase without keys", "", map[string]string{"ANTHROPIC_API_KEY": "k"}, "BROWSERBASE_API_KEY"},
		{"cdp without url", "fetch: {renderer: cdp}", map[string]string{"ANTHROPIC_API_KEY": "k"}, "cdp_url"},
		{"unknown renderer", "fetch: {renderer: lynx}", map[string]string{"ANTHROPIC_API_KEY": "k"}, "unknown renderer"},
		{"anthropic without key", "fetch: {renderer: http}", nil, "ANTHROPIC_API_KEY"},
		{"gemini without key", "fetch: {renderer: http}\nsynth: {provider: gemini}", nil, "GEMINI_API_KEY"},
		{"unknown provider", "fetch: {renderer: http}\nsynth: {provider: markov}", nil, "unknown provider"},
		{"temperature range", "fetch: {renderer: http}\nsynth: {temperature: 3}", map[string]string{"ANTHROPIC_API_KEY": "k"}, "temperature"},
		{"bad log level", "fetch: {renderer: http}\nlog: {level: loud}", map[string]string{"ANTHROPIC_API_KEY": "k"}, "log"},
		{"negative concurrency", "fetch: {renderer: http}\nserver: {max_concurrent: -1}", map[string]string{"ANTHROPIC_API_KEY": "k"}, "max_concurrent"},
		{"write timeout below run bound", "fetch: {renderer: http}\nserver: {write_timeout: 5m}", map[string]string{"ANTHROPIC_API_KEY": "k"}, "write_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.yaml != "" {
				path = writeYAML(t, tt.yaml)
			}
			_, err := load(path, envMap(tt.env))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_WriteTimeoutCoversLongestRun(t *testing.T) {
	// WHAT: The default write timeout outlasts a run that uses its whole
	// fetch budget and both synth attempts.
	// WHY: A connection cut by the server loses the failure body the caller
	// is owed.
	cfg, err := load("", envMap(minimalEnv))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// 60s fetch + 2 x 120s synth + 2s backoff.
	if got := cfg.RunBound(); got != 302*time.Second {
		t.Fatalf("run bound = %v", got)
	}
	if cfg.Server.WriteTimeout <= cfg.RunBound() {
		t.Errorf("write_timeout %v does not exceed run bound %v", cfg.Server.WriteTimeout, cfg.RunBound())
	}

	path := writeYAML(t, "fetch: {budget: 2m}\nsynth: {timeout: 4m}")
	cfg, err = load(path, envMap(minimalEnv))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.WriteTimeout != cfg.RunBound()+writeMargin {
		t.Errorf("write_timeout = %v, want %v", cfg.Server.WriteTimeout, cfg.RunBound()+writeMargin)
	}
}

func TestLoad_FileErrors(t *testing.T) {
	if _, err := load(filepath.Join(t.TempDir(), "missing.yaml"), envMap(minimalEnv)); err == nil {
		t.Error("missing file should fail")
	}
	path := writeYAML(t, "server: [not, a, map")
	if _, err := load(path, envMap(minimalEnv)); err == nil {
		t.Error("malformed yaml should fail")
	}
}

func TestLoad_ReadsProcessEnv(t *testing.T) {
	// WHAT: Load consults the process environment.
	t.Chdir(t.TempDir())
	t.Setenv("WEBCLONER_RENDERER", "http")
	t.Setenv("ANTHROPIC_API_KEY", "sk-env")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Synth.AnthropicAPIKey != "sk-env" || cfg.Fetch.Renderer != RendererHTTP {
		t.Errorf("process env not applied: %+v", cfg.Synth)
	}
}
