package redirect

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	placeholderPath  = "path"
	placeholderQuery = "query"
)

type segmentKind int

const (
	segmentLiteral segmentKind = iota
	segmentPath
	segmentQuery
)

// segment is a literal, or a placeholder. A query segment keeps the '?' or
// '&' written just before it in sep, emitted only for a non-empty query.
type segment struct {
	kind segmentKind
	text string
	sep  string
}

// template is a compiled target. Rendering never fails; every check happens
// in compileTemplate.
type template struct {
	raw      string
	segments []segment
	hasPath  bool
	hasQuery bool
}

func compileTemplate(raw string) (*template, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("target is required")
	}

	t := &template{raw: raw}
	rest := raw
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		closing := strings.IndexByte(rest, '}')
		if closing >= 0 && (open < 0 || closing < open) {
			return nil, fmt.Errorf("unexpected '}' in target %q", raw)
		}
		if open < 0 {
			t.segments = append(t.segments, segment{kind: segmentLiteral, text: rest})
			break
		}
		if open > 0 {
			t.segments = append(t.segments, segment{kind: segmentLiteral, text: rest[:open]})
		}
		if closing < 0 {
			return nil, fmt.Errorf("unterminated placeholder in target %q", raw)
		}

		name := rest[open+1 : closing]
		switch name {
		case placeholderPath:
			t.segments = append(t.segments, segment{kind: segmentPath})
			t.hasPath = true
		case placeholderQuery:
			t.segments = append(t.segments, segment{kind: segmentQuery, sep: t.takeQuerySeparator()})
			t.hasQuery = true
		default:
			return nil, fmt.Errorf("unknown placeholder {%s} in target %q", name, raw)
		}
		rest = rest[closing+1:]
	}

	sample := t.render("/sample", "k=v", false)
	parsed, err := url.Parse(sample)
	if err != nil {
		return nil, fmt.Errorf("target %q does not render a valid URL: %w", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("target %q must be an absolute http or https URL", raw)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("target %q has no host", raw)
	}

	return t, nil
}

func (t *template) takeQuerySeparator() string {
	n := len(t.segments)
	if n == 0 || t.segments[n-1].kind != segmentLiteral {
		return ""
	}
	last := &t.segments[n-1]
	if !strings.HasSuffix(last.text, "?") && !strings.HasSuffix(last.text, "&") {
		return ""
	}
	sep := last.text[len(last.text)-1:]
	last.text = last.text[:len(last.text)-1]
	if last.text == "" {
		t.segments = t.segments[:n-1]
	}
	return sep
}

func (t *template) render(path, query string, appendQuery bool) string {
	var b strings.Builder
	b.Grow(len(t.raw) + len(path) + len(query) + 1)
	for _, seg := range t.segments {
		switch seg.kind {
		case segmentLiteral:
			b.WriteString(seg.text)
		case segmentPath:
			b.WriteString(path)
		case segmentQuery:
			if query != "" {
				b.WriteString(seg.sep)
				b.WriteString(query)
			}
		}
	}
	if appendQuery && !t.hasQuery && query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	return b.String()
}
