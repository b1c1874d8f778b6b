package app

import (
	"errors"
	"fmt"
	"io"

	"github.com/chzyer/readline"
)

// ErrAborted is returned by a Prompter when the operator hits Ctrl-C at a
// prompt.
var ErrAborted = errors.New("input aborted")

// Prompter asks the operator one question at a time. io.EOF means no more
// input.
type Prompter interface {
	Prompt(label string) (string, error)
}

type ReadlinePrompter struct {
	rl *readline.Instance
}

func NewReadlinePrompter(historyFile string) (*ReadlinePrompter, error) {
	rl, err := readline.NewEx(&readline.Config{
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("readline init: %w", err)
	}
	return &ReadlinePrompter{rl: rl}, nil
}

func (p *ReadlinePrompter) Prompt(label string) (string, error) {
	p.rl.SetPrompt(label)
	line, err := p.rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) {
			return "", ErrAborted
		}
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		return "", err
	}
	return line, nil
}

func (p *ReadlinePrompter) Close() error {
	return p.rl.Close()
}

// LinesPrompter answers prompts from a fixed script, then reports io.EOF.
type LinesPrompter struct {
	Lines []string
	// Asked records every label shown.
	Asked []string
}

func (p *LinesPrompter) Prompt(label string) (string, error) {
	p.Asked = append(p.Asked, label)
	if len(p.Lines) == 0 {
		return "", io.EOF
	}
	ln := p.Lines[0]
	p.Lines = p.Lines[1:]
	return ln, nil
}
