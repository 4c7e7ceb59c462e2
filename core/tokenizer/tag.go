package tokenizer

import (
	"html"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// tagGrammar is the participle grammar for the inside of a start tag.
// Examples: `b`, `a href="x"`, `img src='a.png' width=10 /`, `input disabled`
//
//nolint:govet // participle grammar tags are not standard struct tags
type tagGrammar struct {
	Name  string      `parser:"@Name"`
	Attrs []*attrPart `parser:"@@*"`
	Slash bool        `parser:"@Slash?"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type attrPart struct {
	Key   string  `parser:"@Name"`
	Value *string `parser:"( Eq @( String | Bare ) )?"`
}

// tagLexer switches into the Value state after '=' so that unquoted values
// may contain characters that are not valid in names.
var tagLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{Name: "Whitespace", Pattern: `\s+`},
		{Name: "Eq", Pattern: `=`, Action: lexer.Push("Value")},
		{Name: "Slash", Pattern: `/`},
		{Name: "Name", Pattern: `[^\s"'=/]+`},
		{Name: "Quote", Pattern: `["']`},
	},
	"Value": {
		{Name: "Whitespace", Pattern: `\s+`},
		{Name: "String", Pattern: `"[^"]*"|'[^']*'`, Action: lexer.Pop()},
		{Name: "Bare", Pattern: `[^\s"']+`, Action: lexer.Pop()},
	},
})

var tagParser = participle.MustBuild[tagGrammar](
	participle.Lexer(tagLexer),
	participle.Elide("Whitespace"),
)

// parseTag splits the text between '<' and '>' of a start tag into its
// name, attributes and self-closing flag. Attributes that do not follow the
// grammar are dropped and only the name is kept.
func parseTag(inner string) (name string, attrs Attributes, selfClosing bool) {
	parsed, err := tagParser.ParseString("", inner)
	if err != nil {
		return fallbackName(inner), nil, strings.HasSuffix(strings.TrimSpace(inner), "/")
	}

	attrs = make(Attributes, 0, len(parsed.Attrs))
	for _, a := range parsed.Attrs {
		value := ""
		if a.Value != nil {
			value = unquote(*a.Value)
		}
		attrs = append(attrs, Attribute{
			Key:   strings.ToLower(a.Key),
			Value: html.UnescapeString(value),
		})
	}
	return strings.ToLower(parsed.Name), attrs, parsed.Slash
}

func fallbackName(inner string) string {
	end := strings.IndexFunc(inner, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '/'
	})
	if end < 0 {
		end = len(inner)
	}
	return strings.ToLower(inner[:end])
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}
