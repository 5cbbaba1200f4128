package markdown

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	r := NewRenderer()

	out, err := r.Render("Backpropagation adjusts **weights**.\n\n**Sources:**\n- Pages: 30-42, Course: Machine Learning")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	for _, want := range []string{"<strong>weights</strong>", "<li>Pages: 30-42, Course: Machine Learning</li>"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRender_StripsRawHTML(t *testing.T) {
	out, err := NewRenderer().Render("hello <script>alert(1)</script>")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if strings.Contains(out, "<script>") {
		t.Errorf("raw HTML was rendered: %s", out)
	}
}

func TestRender_Table(t *testing.T) {
	out, err := NewRenderer().Render("| a | b |\n|---|---|\n| 1 | 2 |")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.Contains(out, "<table>") {
		t.Errorf("expected GFM table, got %s", out)
	}
}
