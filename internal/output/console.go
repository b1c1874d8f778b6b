package output

import (
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

const hexDigits = "0123456789abcdef"

// TerminalWriter escapes control characters in everything written to it, so
// relayed tool output cannot drive the operator's terminal.
type TerminalWriter struct {
	W io.Writer
}

func NewTerminalWriter(w io.Writer) io.Writer {
	return TerminalWriter{W: w}
}

func (t TerminalWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := io.WriteString(t.W, EscapeControl(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// EscapeControl replaces control runes other than '\n' and '\t', and invalid
// UTF-8 bytes, with visible \xHH / \uHHHH escapes.
func EscapeControl(s string) string {
	if clean(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			escapeByte(&b, s[i])
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case unicode.IsControl(r):
			if r <= 0xff {
				escapeByte(&b, byte(r))
			} else {
				b.WriteString(`\u`)
				for shift := 12; shift >= 0; shift -= 4 {
					b.WriteByte(hexDigits[(r>>uint(shift))&0x0f])
				}
			}
		default:
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}

func clean(s string) bool {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			return false
		}
		if r != '\n' && r != '\t' && unicode.IsControl(r) {
			return false
		}
		i += size
	}
	return true
}

func escapeByte(b *strings.Builder, c byte) {
	b.WriteString(`\x`)
	b.WriteByte(hexDigits[c>>4])
	b.WriteByte(hexDigits[c&0x0f])
}
