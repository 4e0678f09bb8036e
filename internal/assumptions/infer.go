// Package assumptions records the scene defaults the prompt builder falls back
// on when a request does not say where, when, or in what mood a scene happens.
package assumptions

import (
	"strings"
	"unicode"
)

// Category is one scene attribute the inferencer checks for.
type Category struct {
	Name     string
	Keywords []string
	// Default is appended verbatim when none of the keywords appear.
	Default string
}

// Categories is the fixed keyword table, in output order.
var Categories = []Category{
	{
		Name: "location",
		Keywords: []string{
			"cafe", "café", "coffeeshop", "restaurant", "bar", "office", "street", "park",
			"beach", "home", "kitchen", "bedroom", "studio", "city", "downtown", "metro",
			"station", "airport", "stadium", "gym", "library", "mountain", "forest",
			"lake", "river", "market", "mall", "shop", "store", "rooftop", "garden",
			"conference", "school", "campus", "hotel", "train", "bus", "car", "desert",
		},
		Default: "Location not specified; assuming a believable real-world urban setting",
	},
	{
		Name: "time",
		Keywords: []string{
			"morning", "afternoon", "evening", "night", "midnight", "noon", "sunrise",
			"sunset", "dawn", "dusk", "daytime", "nighttime", "tonight", "today",
			"golden", "late",
		},
		Default: "Time of day not specified; assuming daytime with soft natural light",
	},
	{
		Name: "mood",
		Keywords: []string{
			"happy", "sad", "calm", "excited", "cozy", "relaxed", "focused", "dramatic",
			"moody", "cheerful", "joyful", "serious", "playful", "energetic", "peaceful",
			"romantic", "tense", "celebrating", "celebration", "angry", "tired", "proud",
			"confident", "nostalgic", "pensive", "smiling", "laughing",
		},
		Default: "Mood not specified; assuming a relaxed, candid mood",
	},
}

var keywordIndex = buildIndex()

func buildIndex() []map[string]bool {
	idx := make([]map[string]bool, len(Categories))
	for i, c := range Categories {
		idx[i] = make(map[string]bool, len(c.Keywords))
		for _, k := range c.Keywords {
			idx[i][k] = true
		}
	}
	return idx
}

// Infer returns one default-assumption string for every category whose
// keywords are all absent from text, in category order.
func Infer(text string) []string {
	words := tokenize(text)
	var notes []string
	for i, c := range Categories {
		if !containsAny(words, keywordIndex[i]) {
			notes = append(notes, c.Default)
		}
	}
	return notes
}

func containsAny(words []string, keywords map[string]bool) bool {
	for _, w := range words {
		if keywords[w] {
			return true
		}
	}
	return false
}

// tokenize splits text into lower-case words on anything that is not a letter
// or digit, so "cafe," and "Cafe" both match "cafe" while "sparkle" never
// matches "park".
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
