package outbound

import (
	"regexp"
	"strings"
)

var glyphs = map[string]string{
	"wind":        "\U0001F4A8",
	"blackheart":  "\U0001F5A4",
	"yellowheart": "\U0001F49B",
	"redheart":    "\U0001F496",
	"fuelpump":    "⛽",
	"biceps":      "\U0001F4AA",
	"trophy":      "\U0001F3C6",
	"crazyface":   "\U0001F61C",
	"silvermedal": "\U0001F948",
	"bronzemedal": "\U0001F949",
	"alert":       "⚠",
	"siren":       "\U0001F6A8",
	"bus":         "\U0001F68C",
	"redcar":      "\U0001F697",
	"rain":        "☔",
	"sadface":     "\U0001F61E",
	"flag":        "\U0001F3C1",
}

// Shortcodes are written as :name: or, in older templates, emj_name.
var shortcodePattern = regexp.MustCompile(`:([a-z][a-z0-9_]*):|emj_([a-z][a-z0-9]*)`)

// Emojify replaces shortcodes with their glyph. Unknown codes are rendered
// as *name*.
func Emojify(s string) string {
	if !strings.ContainsAny(s, ":_") {
		return s
	}
	return shortcodePattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.Trim(strings.TrimPrefix(match, "emj_"), ":")
		if glyph, ok := glyphs[name]; ok {
			return glyph
		}
		return "*" + name + "*"
	})
}
