// Package datefmt renders date folder templates such as "{year}/{month:02d}".
//
// A template is literal text with placeholders in braces. The only
// placeholders are year, month and day. Each may carry a width
// of the form [0][width][d]: "{month:02d}" pads to two digits with
// zeros, "{day:2}" pads with spaces, "{year}" prints the plain number.
// "{{" and "}}" produce literal braces.
package datefmt

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type field int

const (
	literal field = iota
	year
	month
	day
)

var fieldNames = map[string]field{
	"year":  year,
	"month": month,
	"day":   day,
}

type part struct {
	field field
	text  string
	width int
	zero  bool
}

// Template is a parsed date folder template. The zero value renders as "".
type Template struct {
	source string
	parts  []part
}

// Parse compiles a template, rejecting unknown placeholders and malformed braces.
func Parse(s string) (Template, error) {
	var parts []part
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, part{field: literal, text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				return Template{}, fmt.Errorf("unclosed placeholder at offset %d", i)
			}
			p, err := parsePlaceholder(s[i+1 : i+1+end])
			if err != nil {
				return Template{}, err
			}
			flush()
			parts = append(parts, p)
			i += end + 1
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return Template{}, fmt.Errorf("single '}' at offset %d", i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()

	return Template{source: s, parts: parts}, nil
}


func parsePlaceholder(body string) (part, error) {
	name, spec, hasSpec := strings.Cut(body, ":")
	f, ok := fieldNames[strings.TrimSpace(name)]
	if !ok {
		return part{}, fmt.Errorf("unknown placeholder {%s}", body)
	}
	p := part{field: f}
	if !hasSpec {
		return p, nil
	}

	spec = strings.TrimSuffix(spec, "d")
	if strings.HasPrefix(spec, "0") && len(spec) > 1 {
		p.zero = true
		spec = spec[1:]
	}
	if spec == "" {
		return p, nil
	}
	width, err := strconv.Atoi(spec)
	if err != nil || width < 0 {
		return part{}, fmt.Errorf("invalid format in {%s}", body)
	}
	p.width = width
	return p, nil
}

// Render substitutes the date components of t.
func (tpl Template) Render(t time.Time) string {
	var b strings.Builder
	for _, p := range tpl.parts {
		var n int
		switch p.field {
		case literal:
			b.WriteString(p.text)
			continue
		case year:
			n = t.Year()
		case month:
			n = int(t.Month())
		case day:
			n = t.Day()
		}
		switch {
		case p.width > 0 && p.zero:
			fmt.Fprintf(&b, "%0*d", p.width, n)
		case p.width > 0:
			fmt.Fprintf(&b, "%*d", p.width, n)
		default:
			b.WriteString(strconv.Itoa(n))
		}
	}
	return b.String()
}

// String returns the template source.
func (tpl Template) String() string {
	return tpl.source
}

// IsZero reports whether the template is empty.
func (tpl Template) IsZero() bool {
	return len(tpl.parts) == 0
}
