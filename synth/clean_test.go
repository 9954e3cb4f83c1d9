package synth

import "testing"

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", validDoc, validDoc},
		{"fenced", "```html\n" + validDoc + "\n```", validDoc},
		{"fence without lang", "```\n" + validDoc + "\n```", validDoc},
		{"leading prose", "Here is your page:\n\n" + validDoc, validDoc},
		{"trailing prose", validDoc + "\n\nLet me know if you need changes.", validDoc},
		{"prose and fences", "Sure.\n```html\n" + validDoc + "\n```\nDone.", validDoc},
		{"html without doctype", "ok <html><body>x</body></html> bye", "<html><body>x</body></html>"},
		{"no markup", "  just words  ", "just words"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Errorf("Clean: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		ok   bool
	}{
		{"full document", validDoc, true},
		{"empty", "", false},
		{"whitespace", "  \n", false},
		{"fragment", "<div>hello</div>", false},
		{"no body", "<html><head></head></html>", false},
		{"upper case", "<HTML><BODY>x</BODY></HTML>", true},
		{"lookalike tags", "<htmlfoo><bodyguard>x</bodyguard></htmlfoo>", false},
		{"tags only in a comment", "<!-- <html><body> --><div>x</div>", false},
		{"tags only inside a script", `<script>document.write("<html><body>")</script><div>x</div>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.doc)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok {
				if se := kindOf(t, err); se.Kind != InvalidOutput {
					t.Fatalf("kind: got %s", se.Kind)
				}
			}
		})
	}
}
