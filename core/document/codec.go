package document

import (
	"encoding/hex"
	"encoding/json"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/enriched/core/errors"
	"github.com/FocuswithJustin/enriched/core/spans"
)

// wireDocument is the JSON form of a Document. Offsets are rune offsets.
type wireDocument struct {
	Text  string       `json:"text"`
	Spans []spans.Span `json:"spans"`
}

// MarshalJSON encodes the text and the spans in canonical order.
func (d *Document) MarshalJSON() ([]byte, error) {
	w := wireDocument{Text: string(d.text), Spans: d.Canonical()}
	if w.Spans == nil {
		w.Spans = []spans.Span{}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a document and validates its spans.
func (d *Document) UnmarshalJSON(data []byte) error {
	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		var unsupported *errors.UnsupportedError
		if errors.As(err, &unsupported) {
			return unsupported
		}
		return errors.NewParse("model", err)
	}
	parsed := New(w.Text, w.Spans...)
	if err := parsed.Validate(); err != nil {
		return err
	}
	d.text = parsed.text
	d.spans = parsed.spans
	return nil
}

// Decode parses the JSON model form.
func Decode(data []byte) (*Document, error) {
	d := &Document{}
	if err := d.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return d, nil
}

// Hash returns the hex BLAKE3 digest of the canonical JSON encoding.
// Equal documents hash equally.
func (d *Document) Hash() string {
	data, err := d.MarshalJSON()
	if err != nil {
		return ""
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
