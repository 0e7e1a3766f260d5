package sexpr

import (
	"strconv"
	"strings"
)

// Format renders t in canonical form: a single space between tokens, no
// trailing whitespace, arrays emitted as "(:0 ... :1 ...)".
func Format(t Tree) string {
	var b strings.Builder
	writeTree(&b, t)
	return b.String()
}

func writeTree(b *strings.Builder, t Tree) {
	b.WriteByte('(')
	switch t.Kind {
	case KindNull:
		b.WriteString(t.Name)
	case KindValue:
		pieces := make([]string, 0, 2)
		if t.Name != "" {
			pieces = append(pieces, t.Name)
		}
		pieces = append(pieces, encodeAtom(t.Value))
		b.WriteString(strings.Join(pieces, " "))
	case KindObject:
		pieces := make([]string, 0, len(t.Object)+1)
		if t.Name != "" {
			pieces = append(pieces, t.Name)
		}
		for _, m := range t.Object {
			pieces = append(pieces, ":"+m.Key+" "+Format(m.Value))
		}
		b.WriteString(strings.Join(pieces, " "))
	case KindArray:
		pieces := make([]string, 0, len(t.Array))
		for i, item := range t.Array {
			pieces = append(pieces, ":"+strconv.Itoa(i)+" "+Format(item))
		}
		b.WriteString(strings.Join(pieces, " "))
	}
	b.WriteByte(')')
}

// encodeAtom renders a bare value token, quoting it (with '"' doubled) when
// it contains whitespace, parens, colons, quotes, or is empty.
func encodeAtom(s string) string {
	if needsQuoting(s) {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '(', ')', ':', '"':
			return true
		}
	}
	return false
}
