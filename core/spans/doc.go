// Package spans defines the closed span vocabulary of the document model and
// the tag registry the serializer consults for paragraph-line and block spans.
//
// # Categories
//
// Spans are partitioned by composition rules:
//
//   - Inline: bold, italic, underline, strikethrough, inline code, link,
//     mention, image and colour. They nest and overlap within one line.
//   - Paragraph-line: paragraph, heading, list items, checklist, horizontal
//     rule and content. Each applies to exactly one line.
//   - Block: blockquote and code block. They wrap one or more whole lines.
//   - Anchor: zero-width anchors, structural only.
//
// # Registry
//
// Lookup maps a span to its TagInfo. Merge folds every paragraph-line span
// covering a line into one rendered tag:
//
//	tag, selfClosing, attrs := spans.Merge([]spans.Span{
//	    spans.NewHeading(2, 0, 5),
//	    spans.NewParagraph("center", 0, 5),
//	})
//	// tag == "h2", attrs == {"alignment": "center"}
package spans
