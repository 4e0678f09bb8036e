package enhancer

import (
	"fmt"
	"strings"

	"github.com/fpang/tal-prompt-studio/internal/prompt"
)

// Style is a named photographic look a request can opt into.
type Style struct {
	Mood     string
	Palette  string
	Lighting string
	Look     string
}

func (s Style) note() string {
	return fmt.Sprintf("%s, %s mood, %s, %s", s.Look, s.Mood, s.Lighting, s.Palette)
}

// StylePresets are the built-in presets. All of them stay photorealistic.
var StylePresets = map[string]Style{
	"cinematic": {
		Mood: "dramatic", Palette: "cinematic teal and orange color palette",
		Lighting: "dramatic cinematic lighting", Look: "cinematic film still",
	},
	"bright_cheerful": {
		Mood: "happy and cheerful", Palette: "bright and vibrant colors",
		Lighting: "bright sunny lighting", Look: "clean modern photography",
	},
	"moody_artistic": {
		Mood: "contemplative", Palette: "muted earth tones",
		Lighting: "soft diffused lighting with shadows", Look: "artistic portrait photography",
	},
	"minimalist": {
		Mood: "calm and focused", Palette: "mostly neutral colors with accents",
		Lighting: "clean even lighting", Look: "minimalist clean aesthetic",
	},
	"vintage": {
		Mood: "nostalgic", Palette: "warm vintage film colors",
		Lighting: "soft golden hour lighting", Look: "vintage film photography",
	},
}

// StyleNote renders the Style line of the user message for preset.
func StyleNote(preset *string) string {
	if preset == nil {
		return defaultStyleNote()
	}
	name := strings.ToLower(strings.TrimSpace(*preset))
	if name == "" || name == "default" {
		return defaultStyleNote()
	}
	if s, ok := StylePresets[name]; ok {
		return fmt.Sprintf("preset %q: %s (keep it photorealistic)", name, s.note())
	}
	return fmt.Sprintf("custom preset %q; interpret it photographically, never as illustration", name)
}

func defaultStyleNote() string {
	return "default photorealistic baseline (" + prompt.StyleBaseline + ")"
}
