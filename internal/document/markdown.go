package document

import (
	"regexp"
	"slices"
	"strings"
)

// headerPattern matches markdown headers (h1-h6) at the start of a line.
// Groups: full match, hash symbols, header text
var headerPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+([^\n]+?)[ \t]*$`)

// fencePattern matches fenced code block delimiters (``` or ~~~) at the start of a line,
// allowing 0-3 spaces of indentation.
var fencePattern = regexp.MustCompile("(?m)^[ ]{0,3}(`{3,}|~{3,})")

var blankLinePattern = regexp.MustCompile(`\n[ \t]*\n`)

// fencedRanges returns byte offset ranges [start, end) for fenced code blocks in text.
// A closing fence must use the same character and be at least as long as the opening one.
func fencedRanges(text string) [][2]int {
	matches := fencePattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) < 2 {
		return nil
	}

	var ranges [][2]int
	var openChar byte
	var openLen, openStart int
	inFence := false

	for _, match := range matches {
		fenceChars := text[match[2]:match[3]]
		char := fenceChars[0]

		if !inFence {
			openChar = char
			openLen = len(fenceChars)
			openStart = match[0]
			inFence = true
		} else if char == openChar && len(fenceChars) >= openLen {
			ranges = append(ranges, [2]int{openStart, match[1]})
			inFence = false
		}
	}
	return ranges
}

func insideFence(pos int, ranges [][2]int) bool {
	for _, r := range ranges {
		if pos >= r[0] && pos < r[1] {
			return true
		}
	}
	return false
}

// placeholderPatterns are bodies the generator emits for empty headings.
var placeholderPatterns = []string{"(pending)", "(none)", "(empty)", "(tbd)", "(n/a)", "tbd", "n/a", "none", "-"}

func isPlaceholder(content string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(content))
	return trimmed == "" || slices.Contains(placeholderPatterns, trimmed)
}

// Outline splits markdown content into sections at its headers. Headers
// inside fenced code blocks are ignored, text before the first header becomes
// an untitled section, and placeholder-only sections are dropped.
// Returns nil when content has no headers.
func Outline(content string) []Section {
	all := headerPattern.FindAllStringSubmatchIndex(content, -1)
	fences := fencedRanges(content)
	matches := make([][]int, 0, len(all))
	for _, m := range all {
		if !insideFence(m[0], fences) {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return nil
	}

	var sections []Section
	if lead := content[:matches[0][0]]; !isPlaceholder(lead) {
		sections = append(sections, Section{Paragraphs: paragraphs(lead)})
	}
	for i, m := range matches {
		start := m[1]
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := ""
		if start < end {
			body = content[start:end]
		}
		if isPlaceholder(body) {
			continue
		}
		sections = append(sections, Section{
			Heading:    content[m[4]:m[5]],
			Paragraphs: paragraphs(body),
		})
	}
	return sections
}

// paragraphs splits text on blank lines, keeping fenced blocks intact.
func paragraphs(text string) []string {
	text = strings.Trim(text, "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(fencedRanges(text)) > 0 {
		return []string{strings.TrimSpace(text)}
	}
	var out []string
	for _, p := range blankLinePattern.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Body returns the sections to render: the explicit sections when present,
// else the outline of Content.
func (n *Notes) Body() []Section {
	if n == nil {
		return nil
	}
	if len(n.Sections) > 0 {
		return n.Sections
	}
	return Outline(n.Content)
}

// Headings lists the non-empty section headings of the note body.
func (n *Notes) Headings() []string {
	var out []string
	for _, s := range n.Body() {
		if s.Heading != "" {
			out = append(out, s.Heading)
		}
	}
	return out
}

// Markdown renders the note as a markdown document.
func (n *Notes) Markdown() string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("# " + n.Title + "\n\n")
	if n.Subject != "" {
		b.WriteString("*" + n.Subject + "*\n\n")
	}
	if n.Summary != "" {
		b.WriteString("## Summary\n\n" + n.Summary + "\n\n")
	}
	if len(n.KeyPoints) > 0 {
		b.WriteString("## Key points\n\n")
		for _, kp := range n.KeyPoints {
			b.WriteString("- " + kp + "\n")
		}
		b.WriteString("\n")
	}

	switch {
	case len(n.Sections) > 0:
		for _, s := range n.Sections {
			if s.Heading != "" {
				b.WriteString("## " + s.Heading + "\n\n")
			}
			for _, p := range s.Paragraphs {
				b.WriteString(p + "\n\n")
			}
			if len(s.Paragraphs) == 0 && s.Content != "" {
				b.WriteString(s.Content + "\n\n")
			}
		}
	case strings.TrimSpace(n.Content) != "":
		b.WriteString(strings.TrimSpace(n.Content) + "\n")
	default:
		b.WriteString("_No content available for this note._\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
