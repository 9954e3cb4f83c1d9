package palette

import (
	"fmt"
	"math"
	"strings"

	"github.com/mazznoer/csscolorparser"
)

// RGB is the canonical form every color sample is normalized to.
type RGB struct {
	R, G, B uint8
}

// Hex renders the color as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c RGB) distance(o RGB) float64 {
	dr := float64(c.R) - float64(o.R)
	dg := float64(c.G) - float64(o.G)
	db := float64(c.B) - float64(o.B)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// colorless are keywords that are valid in color positions but name no color.
var colorless = map[string]bool{
	"transparent":  true,
	"currentcolor": true,
	"inherit":      true,
	"initial":      true,
	"unset":        true,
	"revert":       true,
	"none":         true,
}

// Parse normalizes a CSS color value. Keywords that carry no color
// (transparent, currentColor, inherit...) and malformed values report false.
// Alpha channels are ignored.
func Parse(s string) (RGB, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimSpace(strings.TrimSuffix(v, "!important"))
	if v == "" || colorless[v] {
		return RGB{}, false
	}
	c, err := csscolorparser.Parse(v)
	if err != nil {
		return RGB{}, false
	}
	return RGB{clampByte(c.R * 255), clampByte(c.G * 255), clampByte(c.B * 255)}, true
}

// IsNamed reports whether word is a CSS named color keyword.
func IsNamed(word string) bool {
	if word == "" {
		return false
	}
	for _, r := range word {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	_, ok := Parse(word)
	return ok
}

// clampByte rounds a 0..255 channel; out-of-range inputs such as
// rgb(300, -5, 0) saturate.
func clampByte(f float64) uint8 {
	if math.IsNaN(f) {
		return 0
	}
	f = math.Round(f)
	if f < 0 {
		return 0
	}
	if f > 255 {
		return 255
	}
	return uint8(f)
}
