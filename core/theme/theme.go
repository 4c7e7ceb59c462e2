// Package theme holds the presentation parameters threaded through a
// conversion. A Theme affects how an editing surface draws spans; it never
// changes what the builder or the serializer produce.
package theme

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/FocuswithJustin/enriched/core/errors"
)

// HeadingStyle is the presentation of one heading level.
type HeadingStyle struct {
	FontSize float64 `json:"fontSize"`
	Bold     bool    `json:"bold"`
}

// BlockquoteStyle is the presentation of blockquotes.
type BlockquoteStyle struct {
	Color       string `json:"color"`
	StripeWidth int    `json:"stripeWidth"`
	GapWidth    int    `json:"gapWidth"`
}

// CodeStyle is the presentation of inline code and code blocks.
type CodeStyle struct {
	Color           string `json:"color"`
	BackgroundColor string `json:"backgroundColor"`
}

// MentionStyle is the presentation of mentions with one indicator.
type MentionStyle struct {
	Color           string `json:"color"`
	BackgroundColor string `json:"backgroundColor"`
	Underline       bool   `json:"underline"`
}

// DividerStyle is the presentation of horizontal rules.
type DividerStyle struct {
	Color     string `json:"color"`
	Height    int    `json:"height"`
	Thickness int    `json:"thickness"`
}

// ImageStyle bounds the width requested from an image loader.
type ImageStyle struct {
	MaxWidth int `json:"maxWidth"`
	MinWidth int `json:"minWidth"`
}

// Theme is the style configuration of an editing surface.
type Theme struct {
	Name       string                  `json:"name"`
	Headings   [6]HeadingStyle         `json:"headings"`
	Blockquote BlockquoteStyle         `json:"blockquote"`
	Code       CodeStyle               `json:"code"`
	CodeBlock  CodeStyle               `json:"codeBlock"`
	LinkColor  string                  `json:"linkColor"`
	Mentions   map[string]MentionStyle `json:"mentions"`
	Divider    DividerStyle            `json:"divider"`
	Image      ImageStyle              `json:"image"`
}

// Default returns the built-in theme.
func Default() *Theme {
	return &Theme{
		Name: "default",
		Headings: [6]HeadingStyle{
			{FontSize: 32, Bold: true},
			{FontSize: 24, Bold: true},
			{FontSize: 20, Bold: true},
			{FontSize: 16, Bold: true},
			{FontSize: 14, Bold: true},
			{FontSize: 12, Bold: true},
		},
		Blockquote: BlockquoteStyle{Color: "#000000", StripeWidth: 2, GapWidth: 16},
		Code:       CodeStyle{Color: "#ff0000", BackgroundColor: "#f5f5f5"},
		CodeBlock:  CodeStyle{Color: "#000000", BackgroundColor: "#f0f0f0"},
		LinkColor:  "#0000ff",
		Mentions: map[string]MentionStyle{
			"@": {Color: "#0000ff", BackgroundColor: "#e6e6ff", Underline: false},
			"#": {Color: "#008000", BackgroundColor: "#e6ffe6", Underline: true},
		},
		Divider: DividerStyle{Color: "#c0c0c0", Height: 24, Thickness: 1},
		Image:   ImageStyle{MaxWidth: 1080, MinWidth: 0},
	}
}

// Heading returns the style of a heading level, or the zero style when the
// level is out of range.
func (t *Theme) Heading(level int) HeadingStyle {
	if t == nil || level < 1 || level > len(t.Headings) {
		return HeadingStyle{}
	}
	return t.Headings[level-1]
}

// Mention returns the style used for mentions with the given indicator.
func (t *Theme) Mention(indicator string) (MentionStyle, bool) {
	if t == nil {
		return MentionStyle{}, false
	}
	s, ok := t.Mentions[indicator]
	return s, ok
}

// Load reads a JSON theme file. Fields missing from the file keep the
// defaults and every colour is normalized to "#rrggbb".
func Load(path string) (*Theme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIO("read", path, err)
	}
	return Parse(data)
}

// Parse decodes a JSON theme.
func Parse(data []byte) (*Theme, error) {
	t := Default()
	if err := json.Unmarshal(data, t); err != nil {
		return nil, errors.NewParse("theme", err)
	}
	if err := t.normalize(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Theme) normalize() error {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"blockquote.color", &t.Blockquote.Color},
		{"code.color", &t.Code.Color},
		{"code.backgroundColor", &t.Code.BackgroundColor},
		{"codeBlock.color", &t.CodeBlock.Color},
		{"codeBlock.backgroundColor", &t.CodeBlock.BackgroundColor},
		{"linkColor", &t.LinkColor},
		{"divider.color", &t.Divider.Color},
	}
	for _, f := range fields {
		hex, err := normalizeField(f.name, *f.ptr)
		if err != nil {
			return err
		}
		*f.ptr = hex
	}
	for indicator, m := range t.Mentions {
		var err error
		if m.Color, err = normalizeField(fmt.Sprintf("mentions[%q].color", indicator), m.Color); err != nil {
			return err
		}
		if m.BackgroundColor, err = normalizeField(fmt.Sprintf("mentions[%q].backgroundColor", indicator), m.BackgroundColor); err != nil {
			return err
		}
		t.Mentions[indicator] = m
	}
	if t.Image.MinWidth > t.Image.MaxWidth && t.Image.MaxWidth > 0 {
		return errors.NewValidation("image.minWidth", "greater than image.maxWidth")
	}
	return nil
}

func normalizeField(name, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	c, ok := lookupColor(value)
	if !ok {
		return "", errors.NewValidation(name, fmt.Sprintf("invalid colour %q", value))
	}
	return c.Hex(), nil
}
