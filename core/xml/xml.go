// Package xml queries serialized markup as an XML tree.
//
// Serialized markup is XML apart from two spellings the markup dialect
// allows: the bare line break element and the non-breaking space entity.
// Both are rewritten before parsing, so anything the serializer writes can
// be loaded here.
//
// Security: the decoder never fetches external entities, and entity
// expansion is limited to the one entity the dialect defines.
package xml

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/FocuswithJustin/enriched/core/encoding"
	"github.com/FocuswithJustin/enriched/core/errors"
)

// dialect rewrites the non-XML spellings of the markup dialect.
var dialect = strings.NewReplacer(
	"<br>", "<br/>",
	"&nbsp;", "&#160;",
)

// Document is parsed markup.
type Document struct {
	root *xmlquery.Node
}

// Node is an element, text or attribute node.
type Node struct {
	node *xmlquery.Node
}

// ValidationResult contains the result of a well-formedness check.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError is one well-formedness error.
type ValidationError struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

// FormatOptions controls pretty-printing.
type FormatOptions struct {
	Indent string // defaults to two spaces
}

// Parse parses markup.
func Parse(markup string) (*Document, error) {
	root, err := xmlquery.Parse(strings.NewReader(dialect.Replace(markup)))
	if err != nil {
		return nil, errors.NewParse("xml", err)
	}
	return &Document{root: root}, nil
}

// Validate checks that markup is well formed.
func Validate(markup string) ValidationResult {
	result := ValidationResult{Valid: true}

	decoder := xml.NewDecoder(strings.NewReader(dialect.Replace(markup)))
	decoder.Entity = map[string]string{}

	for {
		_, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			line, column := decoder.InputPos()
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Line:    line,
				Column:  column,
				Message: err.Error(),
			})
			break
		}
	}
	return result
}

// Query parses markup and returns the nodes matching expr.
func Query(markup, expr string) ([]*Node, error) {
	doc, err := Parse(markup)
	if err != nil {
		return nil, err
	}
	return doc.XPath(expr)
}

// Format pretty-prints markup, one element per line. Text is re-escaped
// the way the serializer escapes it.
func Format(markup string, opts FormatOptions) (string, error) {
	if opts.Indent == "" {
		opts.Indent = "  "
	}
	doc, err := Parse(markup)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for child := doc.root.FirstChild; child != nil; child = child.NextSibling {
		formatNode(&buf, child, 0, opts.Indent)
	}
	return buf.String(), nil
}

func formatNode(w *bytes.Buffer, n *xmlquery.Node, depth int, indent string) {
	switch n.Type {
	case xmlquery.ElementNode:
		w.WriteString(strings.Repeat(indent, depth))
		w.WriteByte('<')
		w.WriteString(n.Data)
		for _, attr := range n.Attr {
			w.WriteByte(' ')
			w.WriteString(attr.Name.Local)
			w.WriteString(`="`)
			w.WriteString(encoding.EscapeAttr(attr.Value))
			w.WriteByte('"')
		}

		if n.FirstChild == nil {
			w.WriteString("/>\n")
			return
		}
		w.WriteByte('>')

		if !hasElementChildren(n) {
			w.WriteString(encoding.EscapeText(n.InnerText()))
		} else {
			w.WriteByte('\n')
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				formatNode(w, child, depth+1, indent)
			}
			w.WriteString(strings.Repeat(indent, depth))
		}

		w.WriteString("</")
		w.WriteString(n.Data)
		w.WriteString(">\n")

	case xmlquery.TextNode:
		if text := strings.Trim(n.Data, " \t\r\n"); text != "" {
			w.WriteString(strings.Repeat(indent, depth))
			w.WriteString(encoding.EscapeText(text))
			w.WriteByte('\n')
		}

	case xmlquery.CommentNode:
		w.WriteString(strings.Repeat(indent, depth))
		w.WriteString("<!--")
		w.WriteString(n.Data)
		w.WriteString("-->\n")
	}
}

func hasElementChildren(n *xmlquery.Node) bool {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return true
		}
	}
	return false
}

// Root returns the document element.
func (d *Document) Root() *Node {
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return &Node{node: child}
		}
	}
	return nil
}

// XPath returns the nodes matching expr.
func (d *Document) XPath(expr string) ([]*Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, errors.NewParse("xpath", err)
	}

	nodes := xmlquery.QuerySelectorAll(d.root, compiled)
	result := make([]*Node, len(nodes))
	for i, n := range nodes {
		result[i] = &Node{node: n}
	}
	return result, nil
}

// XPathFirst returns the first node matching expr, or nil.
func (d *Document) XPathFirst(expr string) (*Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, errors.NewParse("xpath", err)
	}
	if n := xmlquery.QuerySelector(d.root, compiled); n != nil {
		return &Node{node: n}, nil
	}
	return nil, nil
}

// Name returns the element name.
func (n *Node) Name() string {
	return n.node.Data
}

// Text returns the text content of the node and its descendants.
func (n *Node) Text() string {
	return n.node.InnerText()
}

// OuterXML returns the node as XML.
func (n *Node) OuterXML() string {
	return n.node.OutputXML(true)
}

// Children returns the child elements.
func (n *Node) Children() []*Node {
	var children []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			children = append(children, &Node{node: child})
		}
	}
	return children
}

// Attributes returns the attributes of an element.
func (n *Node) Attributes() map[string]string {
	attrs := make(map[string]string, len(n.node.Attr))
	for _, attr := range n.node.Attr {
		attrs[attr.Name.Local] = attr.Value
	}
	return attrs
}

// Attr returns the value of one attribute, or "".
func (n *Node) Attr(name string) string {
	return n.node.SelectAttr(name)
}
