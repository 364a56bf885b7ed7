package sanitize

import "strings"

const mindmapHeader = "mindmap"

var mindmapReplacer = strings.NewReplacer(
	"(", " ", ")", " ",
	"[", " ", "]", " ",
	"{", " ", "}", " ",
	"\"", " ", ":", " ", ";", " ",
	"&", "and",
	"#", " ",
)

// Mindmap normalizes free-form hierarchical outline text into strict mermaid
// mindmap syntax: one header line, exactly one root, and no characters that
// break the node grammar. The renderer rejects a second zero-level line with
// "there can be only one root", so shallow lines are pushed under the root.
// Heuristic repair only: deep nesting is passed through untouched.
func Mindmap(chart string) string {
	text := StripFences(chart)
	if strings.HasPrefix(strings.ToLower(text), "```mermaid") {
		text = StripFences(text[len("```mermaid"):])
	}

	lines := strings.Split(text, "\n")
	out := []string{mindmapHeader}
	rootFound := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(trimmed), mindmapHeader) {
			continue
		}

		content := cleanNodeContent(trimmed)
		if content == "" {
			continue
		}

		if !rootFound {
			out = append(out, content)
			rootFound = true
			continue
		}

		indent := leadingSpace(line)
		if len(indent) <= 2 {
			indent = "    "
		}
		out = append(out, indent+content)
	}

	return strings.Join(out, "\n")
}

func cleanNodeContent(s string) string {
	s = mindmapReplacer.Replace(s)
	// Leading markdown bullets survive the replacer; drop them separately so
	// hyphens inside words stay intact.
	for {
		next := strings.TrimLeft(s, " \t")
		if len(next) > 0 && (next[0] == '-' || next[0] == '*' || next[0] == '+') {
			s = next[1:]
			continue
		}
		s = next
		break
	}
	return strings.Join(strings.Fields(s), " ")
}

func leadingSpace(line string) string {
	for i, r := range line {
		if r != ' ' && r != '\t' {
			return line[:i]
		}
	}
	return line
}
