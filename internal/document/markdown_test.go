package document

import (
	"strings"
	"testing"
)

var testContent = `Intro line before any heading.

## Overview
Plants convert light into chemical energy.

Chlorophyll absorbs mostly blue and red light.

## Light reactions
(pending)

## Calvin cycle
Carbon fixation happens in the stroma.
`

func TestOutline_SplitsAtHeaders(t *testing.T) {
	sections := Outline(testContent)
	if len(sections) != 3 {
		t.Fatalf("Expected 3 sections, got %d: %+v", len(sections), sections)
	}

	if sections[0].Heading != "" {
		t.Errorf("Lead section heading = %q, want empty", sections[0].Heading)
	}
	if sections[1].Heading != "Overview" {
		t.Errorf("Section 1 heading = %q, want Overview", sections[1].Heading)
	}
	if len(sections[1].Paragraphs) != 2 {
		t.Errorf("Overview paragraphs = %d, want 2", len(sections[1].Paragraphs))
	}
	// Placeholder section is dropped
	if sections[2].Heading != "Calvin cycle" {
		t.Errorf("Section 2 heading = %q, want Calvin cycle", sections[2].Heading)
	}
}

func TestOutline_NoHeaders(t *testing.T) {
	if got := Outline("just a paragraph"); got != nil {
		t.Errorf("Outline() = %+v, want nil", got)
	}
}

func TestOutline_IgnoresHeadersInFences(t *testing.T) {
	text := "## Code\n```\n## not a header\n```\n\n## Real\nbody\n"
	sections := Outline(text)
	if len(sections) != 2 {
		t.Fatalf("Expected 2 sections, got %d", len(sections))
	}
	if sections[1].Heading != "Real" {
		t.Errorf("Section 1 heading = %q, want Real", sections[1].Heading)
	}
	if !strings.Contains(sections[0].Paragraphs[0], "## not a header") {
		t.Errorf("Fenced block lost: %q", sections[0].Paragraphs)
	}
}

func TestNotes_HeadingsPreferSections(t *testing.T) {
	n := &Notes{
		Title:    "T",
		Content:  "## From content\nx",
		Sections: []Section{{Heading: "Explicit"}},
	}
	got := n.Headings()
	if len(got) != 1 || got[0] != "Explicit" {
		t.Errorf("Headings() = %v, want [Explicit]", got)
	}

	n.Sections = nil
	got = n.Headings()
	if len(got) != 1 || got[0] != "From content" {
		t.Errorf("Headings() = %v, want [From content]", got)
	}
}

func TestNotes_Markdown(t *testing.T) {
	n := &Notes{
		Title:     "Photosynthesis",
		Subject:   "Biology",
		Summary:   "How plants eat.",
		KeyPoints: []string{"Light", "Water"},
		Sections: []Section{
			{Heading: "Overview", Paragraphs: []string{"Plants convert light..."}},
			{Heading: "Extra", Content: "Loose content"},
		},
	}
	md := n.Markdown()

	for _, want := range []string{
		"# Photosynthesis\n",
		"*Biology*",
		"## Summary\n\nHow plants eat.",
		"- Light\n- Water\n",
		"## Overview\n\nPlants convert light...",
		"## Extra\n\nLoose content",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("Markdown() missing %q in:\n%s", want, md)
		}
	}
}

func TestNotes_MarkdownWithoutBody(t *testing.T) {
	md := (&Notes{Title: "Empty"}).Markdown()
	if !strings.Contains(md, "No content available") {
		t.Errorf("Markdown() = %q, want no-content marker", md)
	}
}
