package palette

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want RGB
		ok   bool
	}{
		{"#112233", RGB{0x11, 0x22, 0x33}, true},
		{"#123", RGB{0x11, 0x22, 0x33}, true},
		{"#1234", RGB{0x11, 0x22, 0x33}, true},
		{"#11223380", RGB{0x11, 0x22, 0x33}, true},
		{"  #AABBCC ", RGB{0xaa, 0xbb, 0xcc}, true},
		{"#abc !important", RGB{0xaa, 0xbb, 0xcc}, true},
		{"rgb(17, 34, 51)", RGB{17, 34, 51}, true},
		{"rgba(17,34,51,0.5)", RGB{17, 34, 51}, true},
		{"rgb(17 34 51 / 50%)", RGB{17, 34, 51}, true},
		{"rgb(100%, 0%, 0%)", RGB{255, 0, 0}, true},
		{"rgb(300, -5, 10)", RGB{255, 0, 10}, true},
		{"hsl(0, 100%, 50%)", RGB{255, 0, 0}, true},
		{"hsl(120deg 100% 50%)", RGB{0, 255, 0}, true},
		{"hsla(0, 0%, 100%, 0.3)", RGB{255, 255, 255}, true},
		{"Red", RGB{255, 0, 0}, true},
		{"rebeccapurple", RGB{0x66, 0x33, 0x99}, true},
		{"transparent", RGB{}, false},
		{"currentColor", RGB{}, false},
		{"inherit", RGB{}, false},
		{"none", RGB{}, false},
		{"#12", RGB{}, false},
		{"#ggg", RGB{}, false},
		{"rgb(1,2)", RGB{}, false},
		{"rgb(a,b,c)", RGB{}, false},
		{"cmyk(1,2,3,4)", RGB{}, false},
		{"", RGB{}, false},
	}
	for _, tt := range tests {
		got, ok := Parse(tt.in)
		if ok != tt.ok {
			t.Errorf("Parse(%q) ok: got %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("Parse(%q): got %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestIsNamed(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"red", true},
		{"Tomato", true},
		{"rebeccapurple", true},
		{"transparent", false},
		{"currentColor", false},
		{"solid", false},
		{"px", false},
		{"red-line", false},
		{"#f00", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsNamed(tt.in); got != tt.want {
			t.Errorf("IsNamed(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDerive_RankByFrequencyThenFirstOccurrence(t *testing.T) {
	d := New(Config{})
	got := d.Derive([]string{"#000", "red", "#fff", "#ff0000", "white", "bogus", "#000000", "blue"})
	want := []string{"#000000", "#ff0000", "#ffffff", "#0000ff"}
	if !reflect.DeepEqual(got.Hex(), want) {
		t.Fatalf("got %v, want %v", got.Hex(), want)
	}
	if got[0].Count != 2 || got[3].Count != 1 {
		t.Errorf("counts: %+v", got)
	}
}

func TestDerive_ExactDedup(t *testing.T) {
	// WHAT: Two spellings of the same color collapse to one entry.
	// WHY: colors_count is the post-dedup palette size.
	got := New(Config{}).Derive([]string{"#112233", "#112233"})
	if len(got) != 1 || got[0].Hex() != "#112233" || got[0].Count != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestDerive_NearColorsKeptApartByDefault(t *testing.T) {
	got := New(Config{}).Derive([]string{"#112233", "#112234"})
	if len(got) != 2 {
		t.Fatalf("exact dedup must keep near colors apart, got %v", got.Hex())
	}
}

func TestDerive_MergeDistance(t *testing.T) {
	d := New(Config{MergeDistance: 3})
	got := d.Derive([]string{"#112233", "#fefefe", "#112234", "#ffffff", "#112235"})
	want := []string{"#112233", "#fefefe"}
	if !reflect.DeepEqual(got.Hex(), want) {
		t.Fatalf("got %v, want %v", got.Hex(), want)
	}
	if got[0].Count != 3 || got[1].Count != 2 {
		t.Errorf("counts: %+v", got)
	}
}

func TestDerive_TruncatesToMaxSize(t *testing.T) {
	var samples []string
	for i := 0; i < 20; i++ {
		samples = append(samples, RGB{uint8(i), 0, 0}.Hex())
	}
	got := New(Config{}).Derive(samples)
	if len(got) != DefaultMaxSize {
		t.Fatalf("len: got %d", len(got))
	}
	if got[0].Hex() != "#000000" || got[DefaultMaxSize-1].Hex() != "#0b0000" {
		t.Errorf("ties must keep first occurrence order: %v", got.Hex())
	}

	got = New(Config{MaxSize: 3}).Derive(samples)
	if len(got) != 3 {
		t.Fatalf("len: got %d", len(got))
	}
}

func TestDerive_Empty(t *testing.T) {
	if got := New(Config{}).Derive(nil); len(got) != 0 {
		t.Fatalf("got %v", got)
	}
	if got := New(Config{}).Derive([]string{"nope", "transparent"}); len(got) != 0 {
		t.Fatalf("got %v", got)
	}
}

func TestDerive_Idempotent(t *testing.T) {
	// WHAT: Deriving twice from the same samples yields identical palettes.
	// WHY: Palette output must be reproducible across runs.
	samples := []string{"#333", "rgb(10,20,30)", "navy", "#333333", "hsl(0,0%,20%)", "navy", "#abc", "#cba"}
	for _, cfg := range []Config{{}, {MergeDistance: 40}, {MaxSize: 2}} {
		d := New(cfg)
		a := d.Derive(samples)
		b := d.Derive(samples)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("cfg %+v: %v != %v", cfg, a, b)
		}
	}
}
