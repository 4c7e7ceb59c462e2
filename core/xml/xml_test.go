package xml

import (
	"strings"
	"testing"

	"github.com/FocuswithJustin/enriched/core/document"
	"github.com/FocuswithJustin/enriched/core/errors"
	"github.com/FocuswithJustin/enriched/core/serializer"
	"github.com/FocuswithJustin/enriched/core/spans"
)

// sample is serializer output covering lists, mentions and the dialect's
// non-XML spellings.
var sample = serializer.Serialize(document.New("a  b\n\none\ntwo\nhi @jo",
	spans.New(spans.KindBold, 0, 1),
	spans.New(spans.KindUnorderedListItem, 6, 9),
	spans.New(spans.KindUnorderedListItem, 10, 13),
	spans.NewMention("@jo", "@", map[string]string{"id": "7"}, 17, 20),
))

func TestParseSerializedMarkup(t *testing.T) {
	doc, err := Parse(sample)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", sample, err)
	}
	root := doc.Root()
	if root == nil || root.Name() != "html" {
		t.Fatalf("Root() = %v, want html", root)
	}
	if n := len(root.Children()); n != 4 {
		t.Errorf("html has %d children, want 4 (p, br, ul, p): %q", n, sample)
	}
}

func TestParseEmptyEnvelope(t *testing.T) {
	doc, err := Parse(serializer.EmptyMarkup)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	children := doc.Root().Children()
	if len(children) != 1 || children[0].Name() != "p" {
		t.Errorf("children = %v, want one p", children)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name   string
		markup string
	}{
		{"unclosed tag", "<html><p>x</html>"},
		{"mismatched tags", "<p></b>"},
		{"stray close", "<p>x</p></p>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.markup)
			var pe *errors.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Parse() error = %v, want ParseError", err)
			}
			if pe.Format != "xml" {
				t.Errorf("Format = %q, want xml", pe.Format)
			}
		})
	}
}

func TestQuery(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want []string
	}{
		{"list items", "//li", []string{"one", "two"}},
		{"bold", "//b", []string{"a"}},
		{"non-breaking space", "/html/p[1]", []string{"a\u00a0 b"}},
		{"mention", "//mention", []string{"@jo"}},
		{"no match", "//h1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := Query(sample, tt.expr)
			if err != nil {
				t.Fatalf("Query(%q) error: %v", tt.expr, err)
			}
			var got []string
			for _, n := range nodes {
				got = append(got, n.Text())
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("Query(%q) = %q, want %q", tt.expr, got, tt.want)
			}
		})
	}
}

func TestQueryAttributes(t *testing.T) {
	doc, err := Parse(sample)
	if err != nil {
		t.Fatal(err)
	}
	n, err := doc.XPathFirst("//mention")
	if err != nil || n == nil {
		t.Fatalf("XPathFirst() = %v, %v", n, err)
	}
	if got := n.Attr("indicator"); got != "@" {
		t.Errorf("indicator = %q, want @", got)
	}
	attrs := n.Attributes()
	if attrs["text"] != "@jo" || attrs["id"] != "7" {
		t.Errorf("Attributes() = %v", attrs)
	}
	if !strings.Contains(n.OuterXML(), `indicator="@"`) {
		t.Errorf("OuterXML() = %q", n.OuterXML())
	}

	if n, err := doc.XPathFirst("//img"); err != nil || n != nil {
		t.Errorf("XPathFirst(//img) = %v, %v; want nil, nil", n, err)
	}
}

func TestQueryInvalidExpression(t *testing.T) {
	_, err := Query(sample, "//[")
	var pe *errors.ParseError
	if !errors.As(err, &pe) || pe.Format != "xpath" {
		t.Errorf("error = %v, want xpath ParseError", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		valid  bool
		line   int
	}{
		{"serializer output", sample, true, 0},
		{"empty envelope", serializer.EmptyMarkup, true, 0},
		{"unclosed", "<html>\n<p>x\n</html>", false, 3},
		{"external entity", `<!DOCTYPE x [<!ENTITY e SYSTEM "file:///etc/passwd">]><x>&e;</x>`, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.markup)
			if result.Valid != tt.valid {
				t.Fatalf("Valid = %v, want %v (%v)", result.Valid, tt.valid, result.Errors)
			}
			if tt.valid {
				if len(result.Errors) != 0 {
					t.Errorf("Errors = %v, want none", result.Errors)
				}
				return
			}
			if len(result.Errors) != 1 {
				t.Fatalf("Errors = %v, want one", result.Errors)
			}
			if result.Errors[0].Line != tt.line {
				t.Errorf("Line = %d, want %d", result.Errors[0].Line, tt.line)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	markup := "<html><p>a&nbsp; <b>&#233;</b></p>\n<hr/>\n</html>"
	got, err := Format(markup, FormatOptions{})
	if err != nil {
		t.Fatalf("Format() error: %v", err)
	}
	want := "<html>\n" +
		"  <p>\n" +
		"    a&#160;\n" +
		"    <b>&#233;</b>\n" +
		"  </p>\n" +
		"  <hr/>\n" +
		"</html>\n"
	if got != want {
		t.Errorf("Format() =\n%s\nwant\n%s", got, want)
	}

	tabbed, err := Format("<p><i>x</i></p>", FormatOptions{Indent: "\t"})
	if err != nil {
		t.Fatal(err)
	}
	if tabbed != "<p>\n\t<i>x</i>\n</p>\n" {
		t.Errorf("Format(tab) = %q", tabbed)
	}

	if _, err := Format("<p>", FormatOptions{}); err == nil {
		t.Error("Format of malformed markup should fail")
	}
}
