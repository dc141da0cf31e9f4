package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperifyio/steptrace/internal/annotate"
	"github.com/hyperifyio/steptrace/internal/config"
	"github.com/hyperifyio/steptrace/internal/session"
)

type runOptions struct {
	configPath  string
	testsPath   string
	annotations string
	annotate    bool
	maxSteps    int
	pretty      bool
	outPath     string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "steptrace",
		Short:         "Trace JavaScript programs step by step",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(newRunCmd(stdout, stderr), newVersionCmd(stdout))
	return root
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			printVersion(stdout)
		},
	}
}

func newRunCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <file.js|->",
		Short: "Trace a program and print the session result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, opts, args[0], stdout, stderr)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	f.StringVar(&opts.testsPath, "tests", "", "path to a test specification (YAML or JSON)")
	f.StringVar(&opts.annotations, "annotations", "", "path to a JSON file of per-line expression trees")
	f.BoolVar(&opts.annotate, "annotate", false, "derive annotations from the source")
	f.IntVar(&opts.maxSteps, "max-steps", 0, "step ceiling (overrides config)")
	f.BoolVar(&opts.pretty, "pretty", false, "indent the JSON output")
	f.StringVarP(&opts.outPath, "out", "o", "", "write the result to this file instead of stdout")
	cmd.MarkFlagsMutuallyExclusive("annotations", "annotate")
	return cmd
}

func runTrace(cmd *cobra.Command, opts runOptions, path string, stdout, stderr io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.maxSteps > 0 {
		cfg.MaxSteps = opts.maxSteps
	}
	log := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	src, err := readInput(path, os.Stdin)
	if err != nil {
		return err
	}
	name := path
	if name == "-" {
		name = "stdin.js"
	}
	req := session.Request{Name: name, Source: src}
	if opts.testsPath != "" {
		if req.Tests, err = loadTests(opts.testsPath); err != nil {
			return err
		}
	}
	switch {
	case opts.annotations != "":
		if req.Annotations, err = loadAnnotations(opts.annotations); err != nil {
			return err
		}
	case opts.annotate:
		// a parse failure is reported by the session itself
		if ann, err := annotate.Source(name, src); err == nil {
			req.Annotations = ann
		}
	}

	res, err := session.New(cfg, log).Run(cmd.Context(), req)
	if err != nil {
		return err
	}
	var data []byte
	if opts.pretty {
		data, err = json.MarshalIndent(res, "", "  ")
	} else {
		data, err = json.Marshal(res)
	}
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	data = append(data, '\n')
	if opts.outPath != "" {
		return writeFileAtomic(opts.outPath, data, 0o644)
	}
	_, err = stdout.Write(data)
	return err
}
