package util

import (
	"strings"
)

// IFNAMSIZ minus the trailing NUL.
const maxIfaceLen = 15

// ValidIPv4 reports whether s is a dotted-decimal IPv4 address: exactly four
// groups of one to three digits, each in [0,255]. Leading zeros are accepted.
func ValidIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if len(p) == 0 || len(p) > 3 {
			return false
		}
		v := 0
		for i := 0; i < len(p); i++ {
			c := p[i]
			if c < '0' || c > '9' {
				return false
			}
			v = v*10 + int(c-'0')
		}
		if v > 255 {
			return false
		}
	}
	return true
}

// ValidInterface reports whether s can name a Linux network interface.
func ValidInterface(s string) bool {
	if s == "" || len(s) > maxIfaceLen || s == "." || s == ".." {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= ' ' || c == 0x7f || c == '/' || c == ':' || c >= 0x80 {
			return false
		}
	}
	return true
}
