package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kubedos/ctwizard/internal/command"
	"github.com/kubedos/ctwizard/internal/history"
	"github.com/kubedos/ctwizard/internal/runner"
)

const fakeTool = `#!/bin/sh
echo "tcp      6 431999 ESTABLISHED src=10.0.0.1 dst=10.0.0.2 sport=51234 dport=22 src=10.0.0.2 dst=10.0.0.1 sport=22 dport=51234 [ASSURED] mark=0 use=1"
echo "args: $*"
`

type memJournal struct {
	runs []history.Run
}

func (j *memJournal) Record(_ context.Context, r *history.Run) error {
	j.runs = append(j.runs, *r)
	return nil
}

func (j *memJournal) Recent(_ context.Context, n int) ([]history.Run, error) {
	out := make([]history.Run, 0, n)
	for i := len(j.runs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, j.runs[i])
	}
	return out, nil
}

func writeTool(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conntrack")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testOptions(tool, dir string) Options {
	return Options{
		Tool:         tool,
		OutDir:       dir,
		Prefix:       "conntrack",
		Ext:          "conntrackcap",
		GracePeriod:  time.Second,
		DrainTimeout: time.Second,
		FlushEvery:   1,
	}
}

func TestLoop(t *testing.T) {
	tool := writeTool(t, fakeTool)
	def := t.TempDir()
	dir := filepath.Join(t.TempDir(), "captures")

	in := &LinesPrompter{Lines: []string{
		"x",         // invalid operation
		"l",         // list
		"9",         // invalid filter mode
		"1",         // both IPs
		"300.1.1.1", // rejected, re-asked
		"10.0.0.1",
		"10.0.0.2",
		`-p "tcp"`,
		dir,
		"h",
		"0",
	}}
	var out, errOut bytes.Buffer
	j := &memJournal{}
	s := NewSession(testOptions(tool, def), Deps{In: in, Out: &out, Err: &errOut, Journal: j})

	if err := s.Loop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(in.Lines) != 0 {
		t.Fatalf("unconsumed input: %q", in.Lines)
	}

	capture := filepath.Join(dir, "conntrack_src-10.0.0.1_dst-10.0.0.2.conntrackcap")
	b, err := os.ReadFile(capture)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	if len(lines) != 2 || lines[1] != "args: -L -s 10.0.0.1 -d 10.0.0.2 -p tcp" {
		t.Fatalf("capture = %q", lines)
	}

	o := out.String()
	for _, want := range []string{
		"Invalid choice",
		"Invalid option",
		`Invalid source IP address "300.1.1.1"`,
		"Command executed successfully. Output appended to " + capture,
		"Flow records: 1  tcp=1",
		"States:  ESTABLISHED=1",
		"Assured: 1",
		"Top sources:  10.0.0.1=1",
		"STARTED",
	} {
		if !strings.Contains(o, want) {
			t.Errorf("output lacks %q:\n%s", want, o)
		}
	}

	if len(j.runs) != 1 {
		t.Fatalf("journal has %d runs", len(j.runs))
	}
	rec := j.runs[0]
	if rec.Operation != "list" || rec.State != "completed" || rec.Lines != 2 || rec.CapturePath != capture {
		t.Fatalf("journal entry = %+v", rec)
	}
	if args := rec.Args(); len(args) != 8 || args[0] != tool {
		t.Fatalf("journal argv = %q", args)
	}
}

func TestLoopDefaultDirAndInterface(t *testing.T) {
	tool := writeTool(t, fakeTool)
	def := t.TempDir()
	in := &LinesPrompter{Lines: []string{"E", "4", "eth0/..", "eth0", "", ""}}
	var out bytes.Buffer
	s := NewSession(testOptions(tool, def), Deps{In: in, Out: &out, Err: &out})

	// input runs out at the next menu prompt
	if err := s.Loop(context.Background()); err != nil {
		t.Fatal(err)
	}
	capture := filepath.Join(def, "conntrack_iface-eth0.conntrackcap")
	b, err := os.ReadFile(capture)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "args: -E -i eth0\n") {
		t.Fatalf("capture = %q", b)
	}
	if !strings.Contains(out.String(), `Invalid interface name "eth0/.."`) || !strings.Contains(out.String(), "No input provided. Exiting.") {
		t.Fatalf("output:\n%s", out.String())
	}
}

func TestLoopRepromptsExtraOptions(t *testing.T) {
	tool := writeTool(t, fakeTool)
	dir := t.TempDir()
	in := &LinesPrompter{Lines: []string{"U", "", `--mark "1`, "--mark\x001", `--label "" -m 1`, "", "0"}}
	var out bytes.Buffer
	s := NewSession(testOptions(tool, dir), Deps{In: in, Out: &out, Err: &out})
	if err := s.Loop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(in.Lines) != 0 {
		t.Fatalf("unconsumed input: %q", in.Lines)
	}
	b, err := os.ReadFile(filepath.Join(dir, "conntrack.conntrackcap"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "args: -U --label  -m 1\n") {
		t.Fatalf("capture = %q", b)
	}
	if n := strings.Count(out.String(), "invalid extra"); n != 2 {
		t.Fatalf("%d extra-option errors in output:\n%s", n, out.String())
	}
}

func TestLoopEOFDuringCollect(t *testing.T) {
	in := &LinesPrompter{Lines: []string{"L", "2"}}
	var out bytes.Buffer
	s := NewSession(testOptions("/nonexistent", t.TempDir()), Deps{In: in, Out: &out, Err: &out})
	if err := s.Loop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No input provided. Exiting.") {
		t.Fatalf("output:\n%s", out.String())
	}
}

type abortOnce struct {
	LinesPrompter
	abortAt int
}

func (p *abortOnce) Prompt(label string) (string, error) {
	if len(p.Asked) == p.abortAt {
		p.Asked = append(p.Asked, label)
		return "", ErrAborted
	}
	return p.LinesPrompter.Prompt(label)
}

func TestLoopAbortReturnsToMenu(t *testing.T) {
	// Ctrl-C at the filter prompt goes back to the menu, which then exits.
	in := &abortOnce{LinesPrompter: LinesPrompter{Lines: []string{"L", "0"}}, abortAt: 1}
	var out bytes.Buffer
	s := NewSession(testOptions("/nonexistent", t.TempDir()), Deps{In: in, Out: &out, Err: &out})
	if err := s.Loop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(in.Asked) != 3 || !strings.Contains(in.Asked[2], "conntrack command") {
		t.Fatalf("prompts = %q", in.Asked)
	}
}

func TestExecuteValidation(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	s := NewSession(testOptions("/nonexistent", dir), Deps{In: &LinesPrompter{}, Out: &out, Err: &out})

	res, err := s.Execute(context.Background(), command.List, command.Filter{Src: "10.0.0.1", Iface: "eth0"}, dir)
	if !errors.Is(err, command.ErrValidation) || res.State != runner.Failed {
		t.Fatalf("Execute() = %+v, %v", res, err)
	}
	if ExitCode(res, err) != 2 {
		t.Fatalf("ExitCode() = %d", ExitCode(res, err))
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("files created: %v", entries)
	}
}

func TestExecuteSpawnError(t *testing.T) {
	dir := t.TempDir()
	var out, errOut bytes.Buffer
	j := &memJournal{}
	s := NewSession(testOptions(filepath.Join(dir, "missing-tool"), dir), Deps{In: &LinesPrompter{}, Out: &out, Err: &errOut, Journal: j})

	res, err := s.Execute(context.Background(), command.Stats, command.Filter{}, dir)
	var se *runner.SpawnError
	if !errors.As(err, &se) {
		t.Fatalf("Execute() err = %v", err)
	}
	s.Report(res, err)
	if !strings.Contains(errOut.String(), "could not start") {
		t.Fatalf("stderr = %q", errOut.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "conntrack.conntrackcap")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("capture file left behind: %v", err)
	}
	if len(j.runs) != 1 || j.runs[0].State != "failed" || j.runs[0].Error == "" {
		t.Fatalf("journal = %+v", j.runs)
	}
	if ExitCode(res, err) != 1 {
		t.Fatalf("ExitCode() = %d", ExitCode(res, err))
	}
}

func TestExecuteSpawnErrorRemovesNewDir(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "new", "captures")
	var out bytes.Buffer
	s := NewSession(testOptions(filepath.Join(base, "missing-tool"), base), Deps{In: &LinesPrompter{}, Out: &out, Err: &out})

	_, err := s.Execute(context.Background(), command.List, command.Filter{Src: "10.0.0.1"}, dir)
	var se *runner.SpawnError
	if !errors.As(err, &se) {
		t.Fatalf("Execute() err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "new")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("capture dir left behind: %v", err)
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	tool := writeTool(t, "#!/bin/sh\necho partial output\nexit 4\n")
	dir := t.TempDir()
	var out bytes.Buffer
	s := NewSession(testOptions(tool, dir), Deps{In: &LinesPrompter{}, Out: &out, Err: &out})

	res, err := s.Execute(context.Background(), command.Flush, command.Filter{}, dir)
	if err != nil {
		t.Fatal(err)
	}
	s.Report(res, err)
	if res.State != runner.Completed || ExitCode(res, err) != 4 {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(out.String(), "Command exited with status 4") {
		t.Fatalf("output:\n%s", out.String())
	}
}

func TestExitCode(t *testing.T) {
	if got := ExitCode(runner.Result{State: runner.Cancelled, ExitCode: -1}, nil); got != 130 {
		t.Fatalf("cancelled = %d", got)
	}
	if got := ExitCode(runner.Result{State: runner.Completed}, nil); got != 0 {
		t.Fatalf("completed = %d", got)
	}
}
