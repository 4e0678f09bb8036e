package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fpang/tal-prompt-studio/internal/recorder"
)

// FormatDurationShort formats a duration as S.mmm seconds below a minute,
// M:SS below an hour, and H:MM:SS otherwise.
func FormatDurationShort(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.3fs", d.Seconds())
	}
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// PrintPayload writes a human-readable summary of a completed run.
func PrintPayload(w io.Writer, p *recorder.Payload, elapsed time.Duration) {
	pkg := p.PromptPackage
	var b strings.Builder

	fmt.Fprintf(&b, "\nRun %s (%s)\n", p.RunID, FormatDurationShort(elapsed))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	fmt.Fprintf(&b, "Final prompt:\n  %s\n\n", pkg.FinalPrompt)
	fmt.Fprintf(&b, "Negative prompt:\n  %s\n\n", pkg.NegativePrompt)

	seed := "random"
	if pkg.Seed != nil {
		seed = fmt.Sprint(*pkg.Seed)
	}
	fmt.Fprintf(&b, "Size: %s  Count: %d  Seed: %s  Reference strength: %.2f\n",
		pkg.Size, pkg.Count, seed, pkg.ReferenceStrength)
	fmt.Fprintf(&b, "References: %s\n", strings.Join(pkg.ReferenceImageIDs, ", "))

	writeList(&b, "Assumptions", pkg.Assumptions)
	writeList(&b, "Policy notes", pkg.PolicyNotes)

	b.WriteString("\nArtifacts:\n")
	fmt.Fprintf(&b, "  request:         %s\n", p.ArtifactPaths.Request)
	fmt.Fprintf(&b, "  enhancer output: %s\n", p.ArtifactPaths.EnhancerOutput)
	fmt.Fprintf(&b, "  gemini output:   %s\n", p.ArtifactPaths.GeminiOutput)
	fmt.Fprintf(&b, "  events:          %s\n", p.ArtifactPaths.Events)

	fmt.Fprint(w, b.String())
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "  - %s\n", item)
	}
}
