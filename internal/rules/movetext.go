package rules

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	tagPairRegex    = regexp.MustCompile(`^\[\s*([A-Za-z0-9_]+)\s+"((?:[^"\\]|\\.)*)"\s*\]$`)
	moveNumberRegex = regexp.MustCompile(`^\d+\.+`)
	sanRegex        = regexp.MustCompile(`^(?:[NBRQK]?[a-h]?[1-8]?x?[a-h][1-8](?:=?[NBRQ])?|O-O(?:-O)?)[+#]?$`)
	suffixRegex     = regexp.MustCompile(`[!?]+$`)
)

// record is a parsed PGN game: its tag pairs and mainline SAN tokens.
type record struct {
	tags  map[string]string
	moves []string
}

// parseRecord splits a PGN game (or bare movetext) into tags and mainline
// moves. Comments, variations, NAGs and move numbers are dropped. It only
// checks shape; legality is left to the replayer.
func parseRecord(text string) (*record, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty record", ErrInvalidRecord)
	}

	rec := &record{tags: make(map[string]string)}
	var tok strings.Builder
	depth := 0
	done := false

	flush := func() error {
		if tok.Len() == 0 {
			return nil
		}
		t := tok.String()
		tok.Reset()
		if depth > 0 || done {
			return nil
		}
		return rec.addToken(t, &done)
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '[' && depth == 0 && len(rec.moves) == 0:
			if err := flush(); err != nil {
				return nil, err
			}
			end := tagEnd(text[i:])
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated tag pair", ErrInvalidRecord)
			}
			pair := text[i : i+end+1]
			m := tagPairRegex.FindStringSubmatch(pair)
			if m == nil {
				return nil, fmt.Errorf("%w: malformed tag pair %q", ErrInvalidRecord, pair)
			}
			rec.tags[m[1]] = strings.ReplaceAll(m[2], `\"`, `"`)
			i += end
		case c == '{':
			if err := flush(); err != nil {
				return nil, err
			}
			end := strings.IndexByte(text[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated comment", ErrInvalidRecord)
			}
			i += end
		case c == '}':
			return nil, fmt.Errorf("%w: unbalanced '}'", ErrInvalidRecord)
		case c == ';':
			if err := flush(); err != nil {
				return nil, err
			}
			end := strings.IndexByte(text[i:], '\n')
			if end < 0 {
				end = len(text) - i
			}
			i += end
		case c == '(':
			if err := flush(); err != nil {
				return nil, err
			}
			depth++
		case c == ')':
			if err := flush(); err != nil {
				return nil, err
			}
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced ')'", ErrInvalidRecord)
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if err := flush(); err != nil {
				return nil, err
			}
		default:
			tok.WriteByte(c)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: unterminated variation", ErrInvalidRecord)
	}
	return rec, nil
}

func (rec *record) addToken(t string, done *bool) error {
	// "12.", "12...", "12.e4"
	t = moveNumberRegex.ReplaceAllString(t, "")
	if t == "" {
		return nil
	}
	switch t {
	case "1-0", "0-1", "1/2-1/2", "*":
		*done = true
		return nil
	}
	if t[0] == '$' {
		return nil
	}
	t = suffixRegex.ReplaceAllString(t, "")
	if strings.HasPrefix(t, "0-0") {
		t = strings.ReplaceAll(t, "0", "O")
	}
	if !sanRegex.MatchString(t) {
		return fmt.Errorf("%w: unrecognized token %q", ErrInvalidRecord, t)
	}
	rec.moves = append(rec.moves, t)
	return nil
}

// tagEnd returns the index of the ']' closing the tag pair that starts s,
// skipping brackets inside the quoted value.
func tagEnd(s string) int {
	quoted := false
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if quoted {
				i++
			}
		case '"':
			quoted = !quoted
		case ']':
			if !quoted {
				return i
			}
		case '\n':
			if !quoted {
				return -1
			}
		}
	}
	return -1
}
