package command

import (
	"github.com/google/shlex"
)

// SplitExtra tokenizes free-form extra options the way a POSIX shell splits
// words: quotes group, backslash escapes, nothing is expanded.
func SplitExtra(s string) ([]string, error) {
	toks, err := shlex.Split(s)
	if err != nil {
		return nil, &ValidationError{Field: "extra options", Value: s, Reason: err.Error()}
	}
	if len(toks) == 0 {
		return nil, nil
	}
	return toks, nil
}
