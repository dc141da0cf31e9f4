// Package audit appends one NDJSON line per tracing session.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// timeNow is a package-level clock to enable deterministic tests.
var timeNow = time.Now

// Entry is one audit line.
type Entry struct {
	TS          string `json:"ts"`
	SessionID   string `json:"sessionId"`
	Name        string `json:"name"`
	SourceHash  string `json:"sourceSha256"`
	SourceBytes int    `json:"sourceBytes"`
	Outcome     string `json:"outcome"`
	Steps       int    `json:"steps"`
	Vars        int    `json:"vars"`
	Errors      int    `json:"errors"`
	OutputBytes int    `json:"outputBytes"`
	Truncated   bool   `json:"truncated"`
	Tests       int    `json:"tests,omitempty"`
	TestsPassed bool   `json:"testsPassed,omitempty"`
	MS          int64  `json:"ms"`
}

// Writer appends entries to <Dir>/YYYYMMDD.log. A zero Dir disables it.
type Writer struct {
	Dir string
}

// NewEntry starts an entry for source, stamped with the current time.
func NewEntry(sessionID, name, source string, start time.Time) Entry {
	sum := sha256.Sum256([]byte(source))
	return Entry{
		TS:          timeNow().UTC().Format(time.RFC3339Nano),
		SessionID:   sessionID,
		Name:        redactSensitiveString(name),
		SourceHash:  hex.EncodeToString(sum[:]),
		SourceBytes: len(source),
		MS:          timeNow().Sub(start).Milliseconds(),
	}
}

// Append writes e as one line.
func (w Writer) Append(e Entry) error {
	if w.Dir == "" {
		return nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(w.Dir, timeNow().UTC().Format("20060102")+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			_ = err
		}
	}()
	_, err = f.Write(append(b, '\n'))
	return err
}
