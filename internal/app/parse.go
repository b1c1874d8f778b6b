package app

import (
	"strings"
)

type filterMode int

const (
	filterNone filterMode = iota
	filterBoth
	filterSrc
	filterDst
	filterIface
)

func parseFilterMode(s string) (filterMode, bool) {
	switch strings.TrimSpace(s) {
	case "":
		return filterNone, true
	case "1":
		return filterBoth, true
	case "2":
		return filterSrc, true
	case "3":
		return filterDst, true
	case "4":
		return filterIface, true
	}
	return filterNone, false
}

// menuKey normalizes a menu answer.
func menuKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
