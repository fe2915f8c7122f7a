// Package merge substitutes {{tag}} placeholders in subject and body
// templates with per-recipient attribute values.
package merge

import "strings"

// Render replaces every {{name}} token in template with attrs[name].
// A missing or empty attribute substitutes the visible fallback "[name]" so
// gaps in contact data never render as blank text. An opening "{{" with no
// closing "}}" is left verbatim. Render is pure and single-pass: substituted
// values are appended to the output and never rescanned, so a value that
// itself contains braces cannot be re-expanded.
func Render(template string, attrs map[string]string) string {
	if !strings.Contains(template, "{{") {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))

	rest := template
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[open+2:], "}}")
		if end < 0 {
			// Unterminated token, keep the tail as-is.
			b.WriteString(rest)
			break
		}

		b.WriteString(rest[:open])
		name := rest[open+2 : open+2+end]
		if v, ok := attrs[name]; ok && v != "" {
			b.WriteString(v)
		} else {
			b.WriteString("[" + name + "]")
		}
		rest = rest[open+2+end+2:]
	}

	return b.String()
}

// Tags lists the distinct tag names referenced by template, in first-seen
// order. Used by the preview endpoint to show which columns a template
// expects.
func Tags(template string) []string {
	var tags []string
	seen := make(map[string]bool)

	rest := template
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			break
		}
		end := strings.Index(rest[open+2:], "}}")
		if end < 0 {
			break
		}
		name := rest[open+2 : open+2+end]
		if !seen[name] {
			seen[name] = true
			tags = append(tags, name)
		}
		rest = rest[open+2+end+2:]
	}

	return tags
}
