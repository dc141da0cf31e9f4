package main

import (
	"fmt"
	"io"
	"runtime/debug"
	"strings"
)

// Set via -ldflags at release time.
var (
	version   = "v0.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

const enginePath = "github.com/dop251/goja"

// printVersion writes the tool version and the JavaScript engine it was
// built against.
func printVersion(w io.Writer) {
	safeFprintln(w, fmt.Sprintf("steptrace version %s (commit %s, built %s, engine goja %s)",
		version, shortCommit(commit), buildDate, engineVersion()))
}

func engineVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path != enginePath {
			continue
		}
		if dep.Replace != nil {
			dep = dep.Replace
		}
		// pseudo-versions end in the commit hash
		if i := strings.LastIndexByte(dep.Version, '-'); i >= 0 {
			return shortCommit(dep.Version[i+1:])
		}
		return dep.Version
	}
	return "unknown"
}

func shortCommit(c string) string {
	c = strings.TrimSpace(c)
	switch {
	case c == "":
		return "unknown"
	case len(c) > 7:
		return c[:7]
	}
	return c
}
