package domain

import "strings"

// Colour names are the display palette used on the wire. Index values are
// 1-based; zero means "not in the palette".
var palette = []struct {
	name string
	hex  string
}{
	{"fuel yellow", "#F5A623"},
	{"rich lilac", "#AB70D4"},
	{"pistachio", "#99CE62"},
	{"indigo", "#5C75DC"},
	{"cranberry", "#D54D81"},
	{"chenin", "#DED569"},
	{"medium aquamarine", "#5ED5B1"},
	{"light orchid", "#E697DC"},
	{"mckenzie", "#92643E"},
	{"vivid tangerine", "#FFA98A"},
	{"sky blue", "#84E1EB"},
	{"fern", "#69AB63"},
	{"carnation", "#F85B5B"},
}

// DefaultColor is used for unknown colour names.
const DefaultColor = "#F5A623"

// NormalizeColor maps a palette name to its hex value. Strings starting with
// '#' are returned unchanged; unknown names map to DefaultColor.
func NormalizeColor(c string) string {
	c = strings.TrimSpace(c)
	if strings.HasPrefix(c, "#") {
		return c
	}
	name := strings.ToLower(c)
	for _, p := range palette {
		if p.name == name {
			return p.hex
		}
	}
	return DefaultColor
}

// ColorIndex returns the 1-based palette index for a colour name or hex
// value, or 0 when the colour is not part of the palette.
func ColorIndex(c string) int {
	hex := NormalizeColor(c)
	for i, p := range palette {
		if strings.EqualFold(p.hex, hex) {
			return i + 1
		}
	}
	return 0
}
