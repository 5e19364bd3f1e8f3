package tmpl

import (
	"fmt"
	"strings"
	"unicode"
)

// Segment is a piece of a scanned page: either literal text or a tag.
type Segment struct {
	Text string
	Tag  *Tag
}

// Scan splits page into literal text and FreeMember tags.
// An opening tag followed later by {/exp:freemember:<name>} is paired and the
// markup in between becomes its Data; otherwise the tag stands alone.
func Scan(page string) ([]Segment, error) {
	var segs []Segment
	open := "{" + Prefix

	for {
		i := strings.Index(page, open)
		if i < 0 {
			break
		}
		if i > 0 {
			segs = append(segs, Segment{Text: page[:i]})
		}

		end := closingBrace(page, i+len(open))
		if end < 0 {
			return nil, fmt.Errorf("unterminated tag at offset %d", i)
		}
		body := page[i+len(open) : end]
		name, rawParams := body, ""
		if k := strings.IndexFunc(body, unicode.IsSpace); k >= 0 {
			name, rawParams = body[:k], body[k:]
		}
		if name == "" {
			return nil, fmt.Errorf("tag without a name at offset %d", i)
		}

		tag := &Tag{Name: name, Params: ParseParams(rawParams)}
		rest := page[end+1:]

		closeTag := "{/" + Prefix + name + "}"
		if j := strings.Index(rest, closeTag); j >= 0 {
			tag.Data = rest[:j]
			tag.Paired = true
			rest = rest[j+len(closeTag):]
		}

		segs = append(segs, Segment{Tag: tag})
		page = rest
	}

	if page != "" {
		segs = append(segs, Segment{Text: page})
	}
	return segs, nil
}

// closingBrace finds the brace closing a tag, skipping braces inside quoted
// parameter values.
func closingBrace(s string, from int) int {
	var quote byte
	for i := from; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '}':
			return i
		}
	}
	return -1
}

// Dispatcher renders a single tag.
type Dispatcher func(tag Tag) (string, error)

// Render replaces every tag on page with the dispatcher's output.
// Rendering stops at the first dispatcher error.
func Render(page string, dispatch Dispatcher) (string, error) {
	segs, err := Scan(page)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, seg := range segs {
		if seg.Tag == nil {
			b.WriteString(seg.Text)
			continue
		}
		out, err := dispatch(*seg.Tag)
		if err != nil {
			return "", err
		}
		b.WriteString(out)
	}
	return b.String(), nil
}
