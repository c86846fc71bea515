package normalize

import "strings"

// ExtractBalanced returns the brace-balanced object that starts at the
// first '{' at or after from. Braces inside double-quoted strings are
// ignored and backslash escapes are honored. It returns the substring, its
// start and end offsets (end exclusive), and false when no '{' exists or
// the braces never balance.
func ExtractBalanced(text string, from int) (obj string, start, end int, ok bool) {
	if from < 0 || from >= len(text) {
		return "", 0, 0, false
	}
	rel := strings.IndexByte(text[from:], '{')
	if rel < 0 {
		return "", 0, 0, false
	}
	start = from + rel

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], start, i + 1, true
			}
		}
	}
	return "", 0, 0, false
}
