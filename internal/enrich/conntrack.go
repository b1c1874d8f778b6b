package enrich

import (
	"strconv"
	"strings"
)

// ConntrackEntry is one record printed by the conntrack tool, as found in
// list output (-L/-G) and in the event log (-E).
type ConntrackEntry struct {
	Event   string // NEW, UPDATE, DESTROY for -E output, else empty
	Family  string // ipv4/ipv6 when printed (-o extended)
	Proto   string // tcp/udp/icmp/...
	State   string // ESTABLISHED, ... or "-"
	Timeout int    // seconds, -1 when absent
	Orig    Flow
	Reply   Flow
	Flags   []string // ASSURED, UNREPLIED, ...
}

type Flow struct {
	SrcIP   string
	DstIP   string
	SrcPort uint16
	DstPort uint16
}

var knownProtos = map[string]bool{
	"tcp": true, "udp": true, "udplite": true, "icmp": true, "icmpv6": true,
	"sctp": true, "dccp": true, "gre": true, "unknown": true,
}

// ParseConntrackLine parses a record line. ok is false for anything that is
// not a flow record (statistics, counters, headers, summaries).
func ParseConntrackLine(ln string) (ConntrackEntry, bool) {
	toks := strings.Fields(ln)
	if len(toks) < 4 {
		return ConntrackEntry{}, false
	}
	ent := ConntrackEntry{State: "-", Timeout: -1}

	i := 0
	if t := toks[i]; strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]") {
		ent.Event = strings.Trim(t, "[]")
		i++
	}
	if i < len(toks) && (toks[i] == "ipv4" || toks[i] == "ipv6") {
		ent.Family = toks[i]
		i++
		// l3 protocol number
		if i < len(toks) && isNumber(toks[i]) {
			i++
		}
	}
	if i >= len(toks) || !knownProtos[toks[i]] {
		return ConntrackEntry{}, false
	}
	ent.Proto = toks[i]
	i++
	// l4 protocol number
	if i < len(toks) && isNumber(toks[i]) {
		i++
	}
	if i < len(toks) && isNumber(toks[i]) {
		ent.Timeout, _ = strconv.Atoi(toks[i])
		i++
	}
	if i < len(toks) && !strings.Contains(toks[i], "=") && !strings.HasPrefix(toks[i], "[") {
		ent.State = toks[i]
		i++
	}

	srcSeen := 0
	for ; i < len(toks); i++ {
		t := toks[i]
		if strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]") {
			ent.Flags = append(ent.Flags, strings.Trim(t, "[]"))
			continue
		}
		k, v, found := strings.Cut(t, "=")
		if !found {
			continue
		}
		if k == "src" {
			srcSeen++
		}
		var fl *Flow
		switch srcSeen {
		case 1:
			fl = &ent.Orig
		case 2:
			fl = &ent.Reply
		default:
			continue
		}
		switch k {
		case "src":
			fl.SrcIP = v
		case "dst":
			fl.DstIP = v
		case "sport":
			if p, err := strconv.ParseUint(v, 10, 16); err == nil {
				fl.SrcPort = uint16(p)
			}
		case "dport":
			if p, err := strconv.ParseUint(v, 10, 16); err == nil {
				fl.DstPort = uint16(p)
			}
		}
	}

	if ent.Orig.SrcIP == "" || ent.Orig.DstIP == "" {
		return ConntrackEntry{}, false
	}
	return ent, true
}

// HasFlag reports whether the record carries [flag].
func (e ConntrackEntry) HasFlag(flag string) bool {
	for _, f := range e.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
