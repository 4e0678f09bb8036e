package gateway

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/fpang/tal-prompt-studio/internal/prompt"
)

// Mock package defaults.
const (
	MockScene             = "TAL in a scene"
	MockReferenceStrength = 0.92
)

var (
	requestLine = regexp.MustCompile(`(?m)^User Request: "(.*)"\s*$`)
	sizeLine    = regexp.MustCompile(`(?m)^Output size: ([0-9]+x[0-9]+)\s*$`)
	seedLine    = regexp.MustCompile(`(?m)^Seed: (-?[0-9]+)\s*$`)
)

// MockPackage synthesizes a schema-valid package from the rendered user
// message alone. Fields missing from the message take fixed defaults.
func MockPackage(userMessage string) prompt.Package {
	scene := MockScene
	if m := requestLine.FindStringSubmatch(userMessage); m != nil && strings.TrimSpace(m[1]) != "" {
		scene = strings.TrimSpace(m[1])
	}

	size := prompt.DefaultSize
	if m := sizeLine.FindStringSubmatch(userMessage); m != nil {
		size = m[1]
	}

	var seed *int64
	if m := seedLine.FindStringSubmatch(userMessage); m != nil {
		if v, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			seed = &v
		}
	}

	return prompt.Package{
		FinalPrompt:       mockPrompt(scene),
		NegativePrompt:    prompt.DefaultNegativePrompt,
		ReferenceImageIDs: []string{prompt.AnchorImageID},
		ReferenceStrength: MockReferenceStrength,
		Size:              size,
		Count:             1,
		Seed:              seed,
		Assumptions:       parseAssumptions(userMessage),
		PolicyNotes:       []string{},
	}
}

func mockPrompt(scene string) string {
	return "Photorealistic photograph of TAL, " + prompt.StyleBaseline + ". " +
		"Scene: " + scene + ". " +
		"TAL matches the reference image exactly. " +
		"Real camera photo, natural environment, believable lighting."
}

// parseAssumptions reads the bullet list following the Assumptions: line.
func parseAssumptions(userMessage string) []string {
	out := []string{}
	lines := strings.Split(userMessage, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "Assumptions:" {
			continue
		}
		for _, item := range lines[i+1:] {
			item = strings.TrimSpace(item)
			if !strings.HasPrefix(item, "- ") {
				break
			}
			if v := strings.TrimSpace(strings.TrimPrefix(item, "- ")); v != "" && v != "None" {
				out = append(out, v)
			}
		}
		break
	}
	return out
}
