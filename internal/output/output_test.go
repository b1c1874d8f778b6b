package output

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCapturePath(t *testing.T) {
	cases := []struct {
		name  string
		dir   string
		comps []string
		want  string
	}{
		{"no filter", "/var", nil, "/var/conntrack.conntrackcap"},
		{"empty components dropped", "/var", []string{"", ""}, "/var/conntrack.conntrackcap"},
		{"src only", "/tmp", []string{"src-10.0.0.1"}, "/tmp/conntrack_src-10.0.0.1.conntrackcap"},
		{"src and dst", "/tmp", []string{"src-10.0.0.1", "dst-10.0.0.2"}, "/tmp/conntrack_src-10.0.0.1_dst-10.0.0.2.conntrackcap"},
		{"default dir", "", []string{"dst-1.1.1.1"}, "/var/conntrack_dst-1.1.1.1.conntrackcap"},
		{"hostile iface", "/tmp", []string{"iface-../../etc/passwd"}, "/tmp/conntrack_iface-.._.._etc_passwd.conntrackcap"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CapturePath(tc.dir, "", "", tc.comps...)
			if got != tc.want {
				t.Fatalf("CapturePath() = %q, want %q", got, tc.want)
			}
			if filepath.Dir(got) != filepath.Clean(firstNonEmpty(tc.dir, DefaultDir)) {
				t.Fatalf("CapturePath() escaped dir: %q", got)
			}
		})
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func TestSanitizeComponent(t *testing.T) {
	cases := map[string]string{
		"eth0":     "eth0",
		"br-lan.1": "br-lan.1",
		"a/b":      "a_b",
		"..":       "__",
		".":        "_",
		"":         "_",
		"x y\n":    "x_y_",
	}
	for in, want := range cases {
		if got := SanitizeComponent(in); got != want {
			t.Errorf("SanitizeComponent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCaptureWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cap.txt")

	for round := 0; round < 2; round++ {
		cw, created, err := OpenCapture(path, 0, 1)
		if err != nil {
			t.Fatal(err)
		}
		if created != (round == 0) {
			t.Fatalf("round %d: created = %v", round, created)
		}
		for _, ln := range []string{"one", "two"} {
			if err := cw.WriteLine(ln); err != nil {
				t.Fatal(err)
			}
		}
		lines, bytes := cw.Stats()
		if lines != 2 || bytes != 8 {
			t.Fatalf("Stats() = %d, %d", lines, bytes)
		}
		if err := cw.Close(); err != nil {
			t.Fatal(err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "one\ntwo\none\ntwo\n" {
		t.Fatalf("file = %q", b)
	}
	st, _ := os.Stat(path)
	if st.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v", st.Mode().Perm())
	}
}

func TestCaptureWriterLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cap.txt")
	cw, _, err := OpenCapture(path, 10, 100)
	if err != nil {
		t.Fatal(err)
	}
	if err := cw.WriteLine("12345"); err != nil {
		t.Fatal(err)
	}
	if err := cw.WriteLine("12345"); !errors.Is(err, ErrLimitReached) {
		t.Fatalf("WriteLine() err = %v, want ErrLimitReached", err)
	}
	if err := cw.Close(); err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(path)
	if string(b) != "12345\n" {
		t.Fatalf("file = %q", b)
	}
}

func TestTerminalWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewTerminalWriter(&buf)
	in := "ok\tline\n\x1b[31mred\x00\xff \n"
	n, err := w.Write([]byte(in))
	if err != nil || n != len(in) {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	want := `ok` + "\t" + `line` + "\n" + `\x1b[31mred\x00\xff ` + "\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
	if strings.ContainsRune(buf.String(), 0x1b) {
		t.Fatal("escape byte leaked")
	}
}

func TestEnsureDirAndRemoveCreated(t *testing.T) {
	base := t.TempDir()

	top, err := EnsureDir(base)
	if err != nil || top != "" {
		t.Fatalf("EnsureDir(existing) = %q, %v", top, err)
	}

	leaf := filepath.Join(base, "a", "b", "c")
	top, err = EnsureDir(leaf)
	if err != nil {
		t.Fatal(err)
	}
	if top != filepath.Join(base, "a") {
		t.Fatalf("top = %q", top)
	}
	if st, err := os.Stat(leaf); err != nil || !st.IsDir() {
		t.Fatalf("leaf not created: %v", err)
	}

	if err := RemoveCreated(leaf, top); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(top); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("created dirs left behind: %v", err)
	}
	if _, err := os.Stat(base); err != nil {
		t.Fatalf("pre-existing dir removed: %v", err)
	}
}

func TestRemoveCreatedKeepsNonEmpty(t *testing.T) {
	base := t.TempDir()
	leaf := filepath.Join(base, "x", "y")
	top, err := EnsureDir(leaf)
	if err != nil {
		t.Fatal(err)
	}
	keep := filepath.Join(base, "x", "other")
	if err := os.WriteFile(keep, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := RemoveCreated(leaf, top); err == nil {
		t.Fatal("RemoveCreated removed a non-empty dir")
	}
	if _, err := os.Stat(leaf); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("empty leaf kept: %v", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatal(err)
	}
}
