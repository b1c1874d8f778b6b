package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kubedos/ctwizard/internal/command"
	"github.com/kubedos/ctwizard/internal/history"
	"github.com/kubedos/ctwizard/internal/logger"
	"github.com/kubedos/ctwizard/internal/summary"
	"github.com/kubedos/ctwizard/internal/util"
)

// Journal stores finished runs.
type Journal interface {
	Record(ctx context.Context, r *history.Run) error
	Recent(ctx context.Context, n int) ([]history.Run, error)
}

// Deps are the collaborators of a Session. Only In is required.
type Deps struct {
	In      Prompter
	Out     io.Writer
	Err     io.Writer
	Journal Journal
	Log     logger.Logger
}

// Session drives the interactive menu: one run at a time until the operator
// exits.
type Session struct {
	opts    Options
	in      Prompter
	out     io.Writer
	errOut  io.Writer
	journal Journal
	log     logger.Logger

	last *summary.Tally
}

func NewSession(opts Options, d Deps) *Session {
	if d.Out == nil {
		d.Out = os.Stdout
	}
	if d.Err == nil {
		d.Err = os.Stderr
	}
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	return &Session{
		opts:    opts,
		in:      d.In,
		out:     d.Out,
		errOut:  d.Err,
		journal: d.Journal,
		log:     d.Log,
	}
}

var errBack = errors.New("back to menu")

func (s *Session) printMenu() {
	fmt.Fprintln(s.out, "\nAvailable conntrack commands:")
	for _, op := range command.Operations() {
		fmt.Fprintf(s.out, "  %s: %s\n", op.Letter(), op.Description())
	}
	if s.journal != nil {
		fmt.Fprintln(s.out, "  H: Show recent runs")
	}
	fmt.Fprintln(s.out, "  0: Exit")
}

// Loop runs the menu until the operator exits, input ends, or ctx is done.
func (s *Session) Loop(ctx context.Context) error {
	s.printMenu()
	for {
		if ctx.Err() != nil {
			return nil
		}
		ans, err := s.in.Prompt("\nEnter conntrack command: ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrAborted) {
				fmt.Fprintln(s.out, "\nNo input provided. Exiting.")
				return nil
			}
			return err
		}

		switch key := menuKey(ans); key {
		case "":
			continue
		case "0", "Q", "EXIT", "QUIT":
			return nil
		case "?", "M", "HELP":
			s.printMenu()
			continue
		case "H":
			if s.journal != nil {
				s.showHistory(ctx)
				continue
			}
		}

		op, err := command.ParseOperation(ans)
		if err != nil {
			fmt.Fprintln(s.out, "Invalid choice. Please enter a valid option.")
			continue
		}

		f, dir, err := s.collect(op)
		switch {
		case errors.Is(err, errBack):
			continue
		case errors.Is(err, io.EOF):
			fmt.Fprintln(s.out, "\nNo input provided. Exiting.")
			return nil
		case err != nil:
			return err
		}

		res, err := s.Execute(ctx, op, f, dir)
		s.Report(res, err)
	}
}

// collect gathers the filter and capture directory for op, re-prompting on
// invalid values. Ctrl-C returns to the menu.
func (s *Session) collect(op command.Operation) (command.Filter, string, error) {
	var f command.Filter

	mode, err := s.askMode()
	if err != nil {
		return f, "", err
	}
	switch mode {
	case filterBoth:
		if f.Src, err = s.askIP("source"); err != nil {
			return f, "", err
		}
		if f.Dst, err = s.askIP("destination"); err != nil {
			return f, "", err
		}
	case filterSrc:
		if f.Src, err = s.askIP("source"); err != nil {
			return f, "", err
		}
	case filterDst:
		if f.Dst, err = s.askIP("destination"); err != nil {
			return f, "", err
		}
	case filterIface:
		if f.Iface, err = s.askIface(); err != nil {
			return f, "", err
		}
	}

	if f.Extra, err = s.askExtra(); err != nil {
		return f, "", err
	}

	def := s.opts.OutDir
	ans, err := s.ask(fmt.Sprintf("\nEnter the directory where the file will be saved (press Enter for default %s): ", def))
	if err != nil {
		return f, "", err
	}
	dir := strings.TrimSpace(ans)
	if dir == "" {
		dir = def
	}
	s.log.Debug("inputs collected", "op", op.String(), "src", f.Src, "dst", f.Dst, "iface", f.Iface, "extra", f.Extra, "dir", dir)
	return f, dir, nil
}

// ask maps Ctrl-C to errBack and passes io.EOF through.
func (s *Session) ask(label string) (string, error) {
	ans, err := s.in.Prompt(label)
	if errors.Is(err, ErrAborted) {
		return "", errBack
	}
	return ans, err
}

func (s *Session) askMode() (filterMode, error) {
	for {
		ans, err := s.ask("\nFilter by (1) source and destination IP, (2) source IP, (3) destination IP, (4) network interface, or press Enter for none: ")
		if err != nil {
			return filterNone, err
		}
		if m, ok := parseFilterMode(ans); ok {
			return m, nil
		}
		fmt.Fprintln(s.out, "Invalid option. Please enter a number from 1 to 4.")
	}
}

func (s *Session) askIP(which string) (string, error) {
	for {
		ans, err := s.ask(fmt.Sprintf("\nEnter %s IP address: ", which))
		if err != nil {
			return "", err
		}
		ip := strings.TrimSpace(ans)
		if util.ValidIPv4(ip) {
			return ip, nil
		}
		s.log.Info("rejected input", "field", which+" IP", "value", ip)
		fmt.Fprintf(s.out, "Invalid %s IP address %q.\n", which, ip)
	}
}

func (s *Session) askIface() (string, error) {
	for {
		ans, err := s.ask("\nEnter network interface (e.g., eth0): ")
		if err != nil {
			return "", err
		}
		name := strings.TrimSpace(ans)
		if util.ValidInterface(name) {
			return name, nil
		}
		s.log.Info("rejected input", "field", "interface", "value", name)
		fmt.Fprintf(s.out, "Invalid interface name %q.\n", name)
	}
}

func (s *Session) askExtra() ([]string, error) {
	for {
		ans, err := s.ask("\nEnter extra conntrack options (press Enter for none): ")
		if err != nil {
			return nil, err
		}
		toks, err := command.SplitExtra(ans)
		if err == nil {
			err = command.Filter{Extra: toks}.Validate()
		}
		if err == nil {
			return toks, nil
		}
		fmt.Fprintf(s.out, "%v.\n", err)
	}
}

func (s *Session) showHistory(ctx context.Context) {
	runs, err := s.journal.Recent(ctx, 10)
	if err != nil {
		s.log.Error("list history", "err", err)
		fmt.Fprintf(s.errOut, "Error: %v\n", err)
		return
	}
	if len(runs) == 0 {
		fmt.Fprintln(s.out, "No runs recorded yet.")
		return
	}
	fmt.Fprintf(s.out, "\n%-19s  %-9s  %-9s  %5s  %8s  %s\n", "STARTED", "OP", "STATE", "EXIT", "LINES", "CAPTURE")
	for _, r := range runs {
		fmt.Fprintf(s.out, "%-19s  %-9s  %-9s  %5d  %8d  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Operation, r.State, r.ExitCode, r.Lines, r.CapturePath)
	}
}
