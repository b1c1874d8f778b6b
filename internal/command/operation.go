package command

import (
	"strings"
)

// Operation is a conntrack sub-command.
type Operation byte

const (
	List     Operation = 'L'
	Get      Operation = 'G'
	Delete   Operation = 'D'
	Reclaim  Operation = 'R'
	Create   Operation = 'I'
	Update   Operation = 'U'
	EventLog Operation = 'E'
	Flush    Operation = 'F'
	Counter  Operation = 'C'
	Stats    Operation = 'S'
)

type opInfo struct {
	op   Operation
	name string
	desc string
}

// menu order
var operations = []opInfo{
	{List, "list", "List connection tracking or expectation table"},
	{Get, "get", "Search for and show a particular (matching) entry in the given table"},
	{Delete, "delete", "Delete an entry from the given table"},
	{Reclaim, "reclaim", "Reclaim conntrack"},
	{Create, "create", "Create a new entry from the given table"},
	{Update, "update", "Update an entry from the given table"},
	{EventLog, "event", "Display a real-time event log"},
	{Flush, "flush", "Flush the whole given table"},
	{Counter, "count", "Show the table counter"},
	{Stats, "stats", "Show the in-kernel connection tracking system statistics"},
}

// Operations returns every operation in menu order.
func Operations() []Operation {
	out := make([]Operation, 0, len(operations))
	for _, o := range operations {
		out = append(out, o.op)
	}
	return out
}

func lookup(op Operation) (opInfo, bool) {
	for _, o := range operations {
		if o.op == op {
			return o, true
		}
	}
	return opInfo{}, false
}

func (o Operation) Valid() bool {
	_, ok := lookup(o)
	return ok
}

// Flag is the tool argument selecting the operation, e.g. "-L".
func (o Operation) Flag() string {
	return "-" + string(rune(o))
}

func (o Operation) Letter() string {
	return string(rune(o))
}

func (o Operation) Description() string {
	if info, ok := lookup(o); ok {
		return info.desc
	}
	return ""
}

func (o Operation) String() string {
	if info, ok := lookup(o); ok {
		return info.name
	}
	return "unknown(" + string(rune(o)) + ")"
}

// ParseOperation accepts a menu letter (any case) or an operation name.
func ParseOperation(s string) (Operation, error) {
	s = strings.TrimSpace(s)
	if len(s) == 1 {
		op := Operation(strings.ToUpper(s)[0])
		if op.Valid() {
			return op, nil
		}
	}
	for _, o := range operations {
		if strings.EqualFold(s, o.name) {
			return o.op, nil
		}
	}
	return 0, &ValidationError{Field: "operation", Value: s}
}
