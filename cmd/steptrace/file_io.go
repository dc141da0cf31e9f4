package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hyperifyio/steptrace/internal/expr"
	"github.com/hyperifyio/steptrace/internal/harness"
)

// writeFileAtomic writes data to path atomically by writing to a temp file
// in the same directory and then renaming it over the destination. Parent
// directories are created if missing.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// readInput returns the content of path. When path is "-", it reads STDIN.
func readInput(path string, stdin io.Reader) (string, error) {
	f := strings.TrimSpace(path)
	if f == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read STDIN: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(f)
	if err != nil {
		return "", fmt.Errorf("read file %s: %w", f, err)
	}
	return string(b), nil
}

// loadTests reads a test specification. YAML is a superset of JSON, so
// both formats are accepted.
func loadTests(path string) (*harness.Spec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tests %s: %w", path, err)
	}
	var spec harness.Spec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return nil, fmt.Errorf("parse tests %s: %w", path, err)
	}
	return &spec, nil
}

// loadAnnotations reads a JSON object mapping line numbers to expression
// trees.
func loadAnnotations(path string) (map[int][]*expr.Node, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read annotations %s: %w", path, err)
	}
	var out map[int][]*expr.Node
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse annotations %s: %w", path, err)
	}
	return out, nil
}

// safeFprintln writes a line to w and intentionally ignores write errors.
func safeFprintln(w io.Writer, a ...any) {
	if _, err := fmt.Fprintln(w, a...); err != nil {
		return
	}
}
