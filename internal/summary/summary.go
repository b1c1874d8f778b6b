package summary

import (
	"sort"

	"github.com/kubedos/ctwizard/internal/enrich"
)

type Counter map[string]uint64

func (c Counter) Inc(key string, n uint64) {
	if key == "" {
		key = "-"
	}
	c[key] += n
}

type KV struct {
	Key   string `json:"key"`
	Count uint64 `json:"count"`
}

func TopN(c Counter, n int) []KV {
	if n <= 0 {
		return nil
	}
	out := make([]KV, 0, len(c))
	for k, v := range c {
		out = append(out, KV{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Key < out[j].Key
		}
		return out[i].Count > out[j].Count
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Tally counts the flow records seen in a run's output. It is fed one line at
// a time from the runner's writer goroutine.
type Tally struct {
	Records uint64
	Other   uint64
	// Assured counts records flagged [ASSURED].
	Assured uint64

	Protos  Counter
	States  Counter
	Events  Counter
	Talkers Counter // original-direction source IPs
}

func NewTally() *Tally {
	return &Tally{
		Protos:  Counter{},
		States:  Counter{},
		Events:  Counter{},
		Talkers: Counter{},
	}
}

func (t *Tally) ObserveLine(line string) {
	ent, ok := enrich.ParseConntrackLine(line)
	if !ok {
		t.Other++
		return
	}
	t.Records++
	t.Protos.Inc(ent.Proto, 1)
	t.States.Inc(ent.State, 1)
	if ent.Event != "" {
		t.Events.Inc(ent.Event, 1)
	}
	if ent.HasFlag("ASSURED") {
		t.Assured++
	}
	t.Talkers.Inc(ent.Orig.SrcIP, 1)
}
