/*
	Timelinize
	Copyright (c) 2013 Matthew Holt

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package gccmd facilitates the command line interface (CLI)
// and implements the main().
package gccmd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/timelinize/geoconvert/geodata"
	"go.uber.org/zap"
)

// Main runs the program with the process's arguments.
func Main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Getenv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		geodata.Log.Fatal("geoconvert failed", zap.Error(err))
	}
}

// cliFlags are the values of command line flags, which
// override the config file and environment if set.
type cliFlags struct {
	configFile     string
	from           string
	target         string
	outputDir      string
	concurrency    int
	simplification float64
	name           string
	description    string
	lenient        bool
	logLevel       string
	progress       bool
	summary        bool
}

func newFlagSet(f *cliFlags, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("geoconvert", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&f.configFile, "config", DefaultConfigFilePath(), "Path to the JSON config file")
	fs.StringVar(&f.from, "from", "", "Source format of every input (detected per file if empty)")
	fs.StringVar(&f.target, "to", "", "Target format (default "+string(defaultTarget)+")")
	fs.StringVar(&f.outputDir, "out", "", "Directory for converted files (default: next to each input)")
	fs.IntVar(&f.concurrency, "concurrency", 0, "Maximum files converted at once")
	fs.Float64Var(&f.simplification, "simplify", 0, "Path simplification factor from 0 (off) to 10")
	fs.StringVar(&f.name, "name", "", "Document name in the output")
	fs.StringVar(&f.description, "description", "", "Document description in the output")
	fs.BoolVar(&f.lenient, "lenient", false, "Accept slightly non-compliant input")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, or error")
	fs.BoolVar(&f.progress, "progress", true, "Show a progress bar")
	fs.BoolVar(&f.summary, "summary", false, "Print a JSON summary of every conversion to stdout")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: geoconvert [flags] <file|dir>...\n       geoconvert formats\n\nFlags:\n")
		fs.PrintDefaults()
	}
	return fs
}

// applyTo overrides cfg with only the flags that were explicitly set.
func (f cliFlags) applyTo(fs *flag.FlagSet, cfg *Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "to":
			cfg.Target = geodata.Format(f.target)
		case "out":
			cfg.OutputDir = f.outputDir
		case "concurrency":
			cfg.Concurrency = f.concurrency
		case "simplify":
			cfg.Simplification = f.simplification
		case "name":
			cfg.Name = f.name
		case "description":
			cfg.Description = f.description
		case "lenient":
			cfg.Lenient = f.lenient
		case "log-level":
			cfg.LogLevel = f.logLevel
		}
	})
}

func run(ctx context.Context, args []string, stdout io.Writer, getenv func(string) string) error {
	var f cliFlags
	fs := newFlagSet(&f, os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfigFile(f.configFile)
	if err != nil {
		return err
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return err
	}
	f.applyTo(fs, cfg)
	cfg.fillDefaults()

	if err := geodata.LogLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	switch fs.Arg(0) {
	case "formats":
		if fs.NArg() > 1 {
			return errors.New("formats takes no arguments; make sure flags go before positional arguments")
		}
		return printFormats(stdout)
	case "help":
		fs.SetOutput(stdout)
		fs.Usage()
		return nil
	case "":
		fs.Usage()
		return errors.New("no input files")
	}

	if err := cfg.validate(); err != nil {
		return err
	}
	var from geodata.Format
	if f.from != "" {
		from = geodata.Format(f.from)
		codec, err := geodata.GetCodec(from)
		if err != nil {
			return err
		}
		if !codec.CanParse() {
			return fmt.Errorf("%s is not supported as an input format", from)
		}
	}

	return convertFiles(ctx, cfg, from, fs.Args(), stdout, f.progress, f.summary)
}

func convertFiles(ctx context.Context, cfg *Config, from geodata.Format, paths []string, stdout io.Writer, showProgress, printSummary bool) error {
	logger := geodata.Log.Named("cli")

	files, err := gatherInputs(paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no convertible files found")
	}

	reports := make([]fileReport, len(files))
	var failed int

	// a file that can't be read fails alone; the rest are still converted
	inputs := make([]geodata.Input, 0, len(files))
	reportIdx := make([]int, 0, len(files))
	for i, file := range files {
		reports[i] = fileReport{Input: file}
		data, err := os.ReadFile(file)
		if err != nil {
			failed++
			reports[i].Error = fmt.Sprintf("reading input: %v", err)
			logger.Error("reading input", zap.String("filename", file), zap.Error(err))
			continue
		}
		inputs = append(inputs, geodata.Input{Filename: file, Data: data, Format: from})
		reportIdx = append(reportIdx, i)
	}

	logger.Info("converting files",
		zap.Int("count", len(inputs)),
		zap.String("target", string(cfg.Target)),
		zap.Int("concurrency", cfg.Concurrency))

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(len(inputs),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("converting"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	results := geodata.ConvertBatch(ctx, inputs, cfg.Target, geodata.Options{
		Name:           cfg.Name,
		Description:    cfg.Description,
		Simplification: cfg.Simplification,
		Lenient:        cfg.Lenient,
	}, geodata.BatchOptions{
		Concurrency: cfg.Concurrency,
		OnDone: func(geodata.BatchResult) {
			if bar != nil {
				_ = bar.Add(1)
			}
		},
	})
	if bar != nil {
		_ = bar.Finish()
	}

	outputs := newOutputNamer(cfg.OutputDir, files)

	for j, res := range results {
		rep := &reports[reportIdx[j]]
		if res.Err != nil {
			failed++
			rep.Error = res.Err.Error()
			continue
		}
		outPath := outputs.next(res.Input.Filename, res.Result.Filename)
		if err := writeOutput(outPath, res.Result.Output); err != nil {
			failed++
			rep.Error = err.Error()
			logger.Error("writing output", zap.String("filename", outPath), zap.Error(err))
			continue
		}
		rep.Output = outPath
		rep.Summary = &res.Result.Summary
	}

	if printSummary {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "\t")
		if err := enc.Encode(reports); err != nil {
			return fmt.Errorf("encoding summary: %w", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

// fileReport is the outcome of one file as printed by -summary.
type fileReport struct {
	Input   string           `json:"input"`
	Output  string           `json:"output,omitempty"`
	Summary *geodata.Summary `json:"summary,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func printFormats(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FORMAT\tINPUT\tOUTPUT\tEXTENSIONS\tNAME")
	for _, c := range geodata.AllCodecs() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			c.Format,
			yesNo(c.CanParse()),
			yesNo(c.CanSerialize()),
			strings.Join(c.Extensions, " "),
			c.Title)
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
