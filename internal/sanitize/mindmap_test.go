package sanitize

import (
	"strings"
	"testing"
)

func TestMindmapFlatChildren(t *testing.T) {
	got := Mindmap("mindmap\nRoot\nChild A\nChild B")

	lines := strings.Split(got, "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), got)
	}
	if lines[0] != "mindmap" {
		t.Fatalf("header = %q, want mindmap", lines[0])
	}
	if lines[1] != "Root" {
		t.Fatalf("root = %q, want unindented Root", lines[1])
	}
	for _, child := range lines[2:] {
		if !strings.HasPrefix(child, "    ") {
			t.Fatalf("child %q not forced to >=4-space indent", child)
		}
	}
}

func TestMindmapSingleRoot(t *testing.T) {
	got := Mindmap("mindmap\nFirst Root\nSecond Root\nThird Root")

	zeroIndent := 0
	for _, line := range strings.Split(got, "\n")[1:] {
		if line != "" && line == strings.TrimLeft(line, " \t") {
			zeroIndent++
		}
	}
	if zeroIndent != 1 {
		t.Fatalf("got %d zero-indent content lines, want exactly 1:\n%s", zeroIndent, got)
	}
}

func TestMindmapStripsForbiddenCharacters(t *testing.T) {
	in := "mindmap\n  Root (core)\n    - \"Child: one\" [a]\n    * {Child}; two & three\n    # Child #4"
	got := Mindmap(in)

	for _, ch := range []string{"(", ")", "[", "]", "{", "}", `"`, ":", ";", "&", "#", "- ", "* "} {
		if strings.Contains(got, ch) {
			t.Fatalf("output still contains %q:\n%s", ch, got)
		}
	}
	if !strings.Contains(got, "two and three") {
		t.Fatalf("ampersand not rewritten to \"and\":\n%s", got)
	}
}

func TestMindmapDropsFencesAndKeywordLines(t *testing.T) {
	in := "```mermaid\nmindmap\n  Root\n    Child\n```"
	got := Mindmap(in)

	if strings.Contains(got, "```") {
		t.Fatalf("fences survived:\n%s", got)
	}
	if strings.Count(strings.ToLower(got), "mindmap") != 1 {
		t.Fatalf("want exactly one mindmap header:\n%s", got)
	}
}

func TestMindmapPreservesDeepIndent(t *testing.T) {
	in := "mindmap\nRoot\n        Deep Child"
	got := Mindmap(in)

	if !strings.Contains(got, "        Deep Child") {
		t.Fatalf("deep indentation should pass through untouched:\n%s", got)
	}
}

func TestMindmapEmptyInput(t *testing.T) {
	if got := Mindmap(""); got != "mindmap" {
		t.Fatalf("empty input = %q, want bare header", got)
	}
}
