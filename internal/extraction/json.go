package extraction

import "strings"

// ExtractJSON returns the outermost balanced JSON object embedded in the
// model reply. Models frequently wrap their JSON in prose or markdown
// fences; scanning for brace balance tolerates both.
func ExtractJSON(reply string) (string, error) {
	start := strings.IndexByte(reply, '{')
	if start < 0 {
		return "", ErrNoJSONFound
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(reply); i++ {
		c := reply[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return reply[start : i+1], nil
			}
		}
	}
	return "", ErrNoJSONFound
}
