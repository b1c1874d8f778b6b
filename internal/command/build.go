package command

import (
	"strings"

	"github.com/kubedos/ctwizard/internal/output"
	"github.com/kubedos/ctwizard/internal/util"
)

const DefaultTool = "conntrack"

// Filter scopes an operation. Src/Dst and Iface are mutually exclusive.
type Filter struct {
	Src   string
	Dst   string
	Iface string
	Extra []string
}

// Components are the capture file name segments for the supplied values.
func (f Filter) Components() []string {
	out := make([]string, 0, 3)
	if f.Src != "" {
		out = append(out, "src-"+f.Src)
	}
	if f.Dst != "" {
		out = append(out, "dst-"+f.Dst)
	}
	if f.Iface != "" {
		out = append(out, "iface-"+f.Iface)
	}
	return out
}

// Validate checks the filter without touching the system.
func (f Filter) Validate() error {
	if f.Src != "" && !util.ValidIPv4(f.Src) {
		return &ValidationError{Field: "source IP", Value: f.Src}
	}
	if f.Dst != "" && !util.ValidIPv4(f.Dst) {
		return &ValidationError{Field: "destination IP", Value: f.Dst}
	}
	if f.Iface != "" {
		if !util.ValidInterface(f.Iface) {
			return &ValidationError{Field: "interface", Value: f.Iface}
		}
		if f.Src != "" || f.Dst != "" {
			return &ValidationError{Field: "interface", Value: f.Iface, Reason: "cannot be combined with IP filters"}
		}
	}
	for _, tok := range f.Extra {
		if strings.ContainsRune(tok, 0) {
			return &ValidationError{Field: "extra argument", Value: tok}
		}
	}
	return nil
}

// Invocation is an argument vector for the external tool. Args excludes the
// program name.
type Invocation struct {
	Path string
	Args []string
}

// Argv returns a copy of the full argument vector, program name first.
func (i Invocation) Argv() []string {
	out := make([]string, 0, len(i.Args)+1)
	out = append(out, i.Path)
	return append(out, i.Args...)
}

func (i Invocation) String() string {
	return strings.Join(i.Argv(), " ")
}

// BuildOptions carries the configured parts of a build.
type BuildOptions struct {
	Tool   string
	Dir    string
	Prefix string
	Ext    string
}

// Build assembles the invocation and capture path for op and f. It performs
// no I/O; the same inputs always yield the same outputs.
func Build(op Operation, f Filter, opts BuildOptions) (Invocation, string, error) {
	if !op.Valid() {
		return Invocation{}, "", &ValidationError{Field: "operation", Value: op.Letter()}
	}
	if err := f.Validate(); err != nil {
		return Invocation{}, "", err
	}
	tool := opts.Tool
	if tool == "" {
		tool = DefaultTool
	}

	args := make([]string, 0, 7+len(f.Extra))
	args = append(args, op.Flag())
	if f.Src != "" {
		args = append(args, "-s", f.Src)
	}
	if f.Dst != "" {
		args = append(args, "-d", f.Dst)
	}
	if f.Iface != "" {
		args = append(args, "-i", f.Iface)
	}
	args = append(args, f.Extra...)

	path := output.CapturePath(opts.Dir, opts.Prefix, opts.Ext, f.Components()...)
	return Invocation{Path: tool, Args: args}, path, nil
}
