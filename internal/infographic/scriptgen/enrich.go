package scriptgen

import (
	"fmt"
	"strings"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
)

const (
	styleKeywords = "professional infographic, clean flat vector illustration, clear visual hierarchy, legible typography, balanced whitespace"
	maxSummaryLen = 600
)

// Enrich makes a script render-ready: every slide gets a unique id and a
// non-empty image prompt. Slides that already carry a prompt keep it, so
// applying Enrich twice yields the same script.
func Enrich(script *domain.Script) *domain.Script {
	if script == nil {
		return nil
	}
	out := script.Clone()

	seen := make(map[string]bool, len(out.Slides))
	for i := range out.Slides {
		slide := &out.Slides[i]
		slide.ID = strings.TrimSpace(slide.ID)
		if slide.ID == "" || seen[slide.ID] {
			slide.ID = uniqueID(i+1, seen)
		}
		seen[slide.ID] = true

		if strings.TrimSpace(slide.ImagePrompt) == "" {
			slide.ImagePrompt = ImagePrompt(out.GlobalSettings, slide.Title, slide.Description)
		}
	}
	return out
}

// ImagePrompt builds the default prompt for a slide from its content.
func ImagePrompt(settings domain.GlobalSettings, title, description string) string {
	var b strings.Builder
	b.WriteString(styleKeywords)
	if style := strings.TrimSpace(settings.Style); style != "" {
		b.WriteString(", ")
		b.WriteString(style)
	}
	b.WriteString(". ")

	summary := strings.TrimSpace(title)
	if desc := strings.TrimSpace(description); desc != "" {
		if summary != "" {
			summary += ": "
		}
		summary += desc
	}
	if r := []rune(summary); len(r) > maxSummaryLen {
		summary = strings.TrimSpace(string(r[:maxSummaryLen]))
	}
	if summary == "" {
		summary = "untitled slide"
	}
	fmt.Fprintf(&b, "Topic: %s.", summary)
	return b.String()
}

func uniqueID(n int, seen map[string]bool) string {
	for {
		id := fmt.Sprintf("slide_%d", n)
		if !seen[id] {
			return id
		}
		n++
	}
}
