package synth

import (
	"github.com/kononmatsumoto/webcloner/extract"
	"github.com/kononmatsumoto/webcloner/palette"
)

// systemPrompt is the fixed instruction set sent with every request.
const systemPrompt = `You are an expert web developer who recreates websites as a single self-contained HTML document.

You receive a design summary of one page: its title, color palette, navigation, buttons, layout outline, images, text samples and a content excerpt.

Rules:
1. Output one complete HTML document starting with <!DOCTYPE html> and containing <html>, <head> and <body>.
2. Put all CSS in a <style> element in the head. Do not reference external stylesheets or scripts.
3. Use the palette colors for backgrounds, text and accents, most frequent colors first.
4. Reproduce the navigation items and buttons with their exact labels, in the given order.
5. Follow the layout outline: header, navigation, hero, main sections, aside and footer as listed.
6. Reference images only by the absolute URLs provided. Never invent local file names.
7. Use the text samples verbatim where they fit the layout.
8. Make the layout responsive.
9. Do not truncate with "..." and do not add notes or explanations.

Output only the HTML document.`

// BuildPrompt assembles the full prompt for one summary.
func BuildPrompt(s *extract.Summary, p palette.Palette, lim Limits) Prompt {
	return Prompt{
		System: systemPrompt,
		User:   "Recreate this page as a single HTML document.\n\n" + BuildPayload(s, p, lim),
	}
}
