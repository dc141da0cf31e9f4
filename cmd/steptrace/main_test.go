package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("STEPTRACE_AUDIT_DIR", t.TempDir())
	t.Setenv("STEPTRACE_TIMING_RUNS", "1")
	var out, errBuf bytes.Buffer
	cmd := newRootCmd(&out, &errBuf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errBuf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestShortCommit(t *testing.T) {
	if got := shortCommit(""); got != "unknown" {
		t.Fatalf("empty commit => %q", got)
	}
	if got := shortCommit("abcdef012345"); got != "abcdef0" {
		t.Fatalf("long commit => %q", got)
	}
}

func TestVersionCommand(t *testing.T) {
	version = "v1.2.3"
	out, _, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "steptrace version v1.2.3") {
		t.Fatalf("missing version: %q", out)
	}
}

func TestRunCommand_WithTests(t *testing.T) {
	src := writeFile(t, "add.js", "function add(a, b) {\n  return a + b;\n}\n")
	tests := writeFile(t, "tests.yaml", `func_name: add
tests:
  - inputs:
      - {name: a, type: number, value: "2"}
      - {name: b, type: number, value: "3"}
    outputs:
      - {type: number, value: "5"}
`)
	out, _, err := runCLI(t, "run", src, "--tests", tests, "--annotate")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var res struct {
		AllTestsPassed bool              `json:"all_tests_passed"`
		TestResults    []json.RawMessage `json:"test_results"`
		Errors         []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("bad json %q: %v", out, err)
	}
	if !res.AllTestsPassed || len(res.TestResults) != 1 || len(res.Errors) != 0 {
		t.Fatalf("unexpected result: %s", out)
	}
}

func TestRunCommand_MaxStepsFlag(t *testing.T) {
	src := writeFile(t, "loop.js", "while (true) {\n}\n")
	out, _, err := runCLI(t, "run", src, "--max-steps", "20", "--pretty")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "too many steps (> 20)") {
		t.Fatalf("missing budget error: %s", out)
	}
	if !strings.Contains(out, "\n  \"session_id\"") {
		t.Fatalf("output not indented: %s", out)
	}
}

func TestRunCommand_OutFile(t *testing.T) {
	src := writeFile(t, "a.js", "let a = 1;\nlet b = a;\n")
	dst := filepath.Join(t.TempDir(), "nested", "result.json")
	out, _, err := runCLI(t, "run", src, "-o", dst)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "" {
		t.Fatalf("stdout should be empty, got %q", out)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	var res map[string]any
	if err := json.Unmarshal(b, &res); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if _, err := os.Stat(dst + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}
}

func TestRunCommand_Errors(t *testing.T) {
	if _, _, err := runCLI(t, "run"); err == nil {
		t.Fatalf("expected error without a file")
	}
	if _, _, err := runCLI(t, "run", filepath.Join(t.TempDir(), "missing.js")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	src := writeFile(t, "a.js", "let a = 1;\n")
	ann := writeFile(t, "ann.json", `{"1": [{"type": "num", "disp": "1"}]}`)
	if _, _, err := runCLI(t, "run", src, "--annotations", ann, "--annotate"); err == nil {
		t.Fatalf("expected error for conflicting flags")
	}
	out, _, err := runCLI(t, "run", src, "--annotations", ann)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, `"extra_line_data"`) {
		t.Fatalf("annotations not evaluated: %s", out)
	}
}
