package scriptgen

import (
	"fmt"
	"strings"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
)

// PlanOptions are optional hints folded into the planning prompt.
type PlanOptions struct {
	SlideCount  int
	DetailLevel string
	Style       string
	AspectRatio string
}

const planningInstructions = `You are a professional infographic script writer.
Analyze the user's input and produce a structured script for a slide presentation.
For each slide provide a clear title, a description of its content, and a detailed
"image_prompt" that describes the exact visual layout, icons and text elements.

Respond with a single JSON object and nothing else:
{
  "global_settings": {"aspect_ratio": "16:9", "style": "..."},
  "slides": [
    {"id": "slide_1", "title": "...", "description": "...", "image_prompt": "..."}
  ]
}`

// PlanningPrompt builds the prompt sent to the text model.
func PlanningPrompt(query string, opts PlanOptions) string {
	var b strings.Builder
	b.WriteString(planningInstructions)
	b.WriteString("\n\n")

	if opts.SlideCount > 0 {
		fmt.Fprintf(&b, "Produce exactly %d slides.\n", opts.SlideCount)
	}
	if opts.DetailLevel != "" {
		fmt.Fprintf(&b, "Detail level: %s.\n", opts.DetailLevel)
	}
	if opts.Style != "" {
		fmt.Fprintf(&b, "Visual style: %s.\n", opts.Style)
	}
	if opts.AspectRatio != "" {
		fmt.Fprintf(&b, "Aspect ratio: %s.\n", opts.AspectRatio)
	}

	b.WriteString("\nUser input:\n")
	b.WriteString(strings.TrimSpace(query))
	return b.String()
}

// ParseScript extracts and decodes a script from model output. It fails with
// domain.ErrNoStructuredOutput when nothing usable is found.
func ParseScript(text string) (*domain.Script, error) {
	obj, ok := ExtractJSON(text)
	if !ok {
		return nil, domain.ErrNoStructuredOutput
	}
	script, err := domain.ScriptFromMap(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNoStructuredOutput, err)
	}
	if len(script.Slides) == 0 {
		return nil, fmt.Errorf("%w: script has no slides", domain.ErrNoStructuredOutput)
	}
	return script, nil
}
