package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func createSampleRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, dir, "models.py", `class User:
    def __init__(self, name: str) -> None:
        self.name = name
`)
	writeTestFile(t, dir, "main.py", `def greet(user: User) -> str:
    return "Hello, " + user.name
`)
	return dir
}

func TestRunBasic(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	err := run([]string{"-root", dir, dir}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	out := stdout.String()
	if !strings.Contains(out, "models.py:") {
		t.Errorf("missing models.py section:\n%s", out)
	}
	if !strings.Contains(out, "class User") {
		t.Errorf("missing User definition:\n%s", out)
	}
}

func TestRunChatFiles(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	err := run([]string{
		"-root", dir,
		"-chat-files", filepath.Join(dir, "main.py"),
		"-other-files", filepath.Join(dir, "models.py"),
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	out := stdout.String()
	if strings.Contains(out, "main.py:") {
		t.Errorf("chat file rendered with tags:\n%s", out)
	}
	if !strings.Contains(out, "main.py") {
		t.Errorf("chat file header missing:\n%s", out)
	}
	if !strings.Contains(out, "models.py:") {
		t.Errorf("other file not rendered:\n%s", out)
	}
}

func TestRunToonFormat(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	var stdout, stderr bytes.Buffer
	err := run([]string{"-root", dir, "-format", "toon", dir}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr.String())
	}

	out := stdout.String()
	if !strings.Contains(out, "repo:") {
		t.Errorf("missing repo header:\n%s", out)
	}
	if !strings.Contains(out, "files[2]{path,rank}:") {
		t.Errorf("expected 2 files:\n%s", out)
	}
	if !strings.Contains(out, "symbols[") {
		t.Errorf("missing symbols section:\n%s", out)
	}
}

func TestRunUnsupportedFormat(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	err := run([]string{"-format", "xml"}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("err = %v", err)
	}
}

func TestRunVersion(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"-version"}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "repomap ") {
		t.Errorf("version output = %q", stdout.String())
	}
}

func TestRunMissingRoot(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	err := run([]string{"-root", filepath.Join(t.TempDir(), "absent")}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestRunEmptyRepo(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	var stdout, stderr bytes.Buffer
	if err := run([]string{"-root", dir, dir}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if stdout.String() != "" {
		t.Errorf("expected empty stdout, got %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "no repository map generated") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRunCacheDirPersists(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	cacheDir := filepath.Join(t.TempDir(), "cache")

	var first, second, stderr bytes.Buffer
	if err := run([]string{"-root", dir, "-cache-dir", cacheDir, dir}, &first, &stderr); err != nil {
		t.Fatalf("first run: %v\nstderr: %s", err, stderr.String())
	}
	if err := run([]string{"-root", dir, "-cache-dir", cacheDir, dir}, &second, &stderr); err != nil {
		t.Fatalf("second run: %v\nstderr: %s", err, stderr.String())
	}
	if first.String() != second.String() {
		t.Errorf("cached run differs:\nfirst:  %q\nsecond: %q", first.String(), second.String())
	}
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a.py", []string{"a.py"}},
		{"a.py,b.py", []string{"a.py", "b.py"}},
		{" a.py , b.py ", []string{"a.py", "b.py"}},
		{"a.py,,b.py", []string{"a.py", "b.py"}},
	}
	for _, tt := range tests {
		if got := splitList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestReorderArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty", nil, nil},
		{"flags only", []string{"-verbose"}, []string{"-verbose"}},
		{"positional after flags", []string{"-verbose", "src"}, []string{"-verbose", "src"}},
		{"positional before flags", []string{"src", "-verbose"}, []string{"-verbose", "src"}},
		{"value flag keeps its value", []string{"src", "-map-tokens", "512"}, []string{"-map-tokens", "512", "src"}},
		{"double dash stops parsing", []string{"-verbose", "--", "-root"}, []string{"-verbose", "-root"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := reorderArgs(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("reorderArgs(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
