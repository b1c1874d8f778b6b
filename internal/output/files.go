package output

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultDir    = "/var"
	DefaultPrefix = "conntrack"
	DefaultExt    = "conntrackcap"
)

// CapturePath joins dir, prefix and the non-empty components into
// <dir>/<prefix>_<c1>_<c2>.<ext>. With no components it is <dir>/<prefix>.<ext>.
func CapturePath(dir, prefix, ext string, components ...string) string {
	if dir == "" {
		dir = DefaultDir
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ext == "" {
		ext = DefaultExt
	}
	parts := make([]string, 0, len(components)+1)
	parts = append(parts, SanitizeComponent(prefix))
	for _, c := range components {
		if c == "" {
			continue
		}
		parts = append(parts, SanitizeComponent(c))
	}
	return filepath.Join(dir, strings.Join(parts, "_")+"."+SanitizeComponent(strings.TrimPrefix(ext, ".")))
}

// SanitizeComponent maps anything outside [A-Za-z0-9._-] to '_' and refuses
// to return a name that is only dots.
func SanitizeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-', c == '_':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if strings.Trim(out, ".") == "" {
		return strings.Repeat("_", max(1, len(out)))
	}
	return out
}

// EnsureDir creates dir if it is missing. top is the outermost directory it
// had to create, empty when dir already existed.
func EnsureDir(dir string) (top string, err error) {
	for d := filepath.Clean(dir); ; d = filepath.Dir(d) {
		if _, err := os.Stat(d); err == nil {
			break
		}
		top = d
		if filepath.Dir(d) == d {
			break
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return top, nil
}

// RemoveCreated undoes EnsureDir: it removes dir and its parents up to top,
// stopping at the first one that is not empty.
func RemoveCreated(dir, top string) error {
	if top == "" {
		return nil
	}
	top = filepath.Clean(top)
	for d := filepath.Clean(dir); ; d = filepath.Dir(d) {
		if err := os.Remove(d); err != nil {
			return err
		}
		if d == top || filepath.Dir(d) == d {
			return nil
		}
	}
}
