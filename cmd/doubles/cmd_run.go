package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/DreamCats/doubles/cmd/doubles/internal"
	"github.com/DreamCats/doubles/internal/config"
	"github.com/DreamCats/doubles/internal/dedup"
	"github.com/DreamCats/doubles/internal/embedding"
	"github.com/DreamCats/doubles/internal/fileio"
	"github.com/DreamCats/doubles/internal/pairwise"
	"github.com/DreamCats/doubles/internal/progress"
	"github.com/DreamCats/doubles/internal/record"
	"github.com/DreamCats/doubles/internal/report"
	"github.com/DreamCats/doubles/internal/similarity"
	"github.com/DreamCats/doubles/internal/source"
	"github.com/DreamCats/doubles/internal/store"
)

// handleRun implements the run subcommand
func handleRun(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)

	var inputs internal.StringList
	var verbose bool
	fs.Var(&inputs, "input", "Input file or ** glob (repeatable)")
	output := fs.String("output", "-", "Report destination; .gz, .zst and .lz4 are compressed")
	format := fs.String("format", "", "Report format: text, json or csv (default from config or -output extension)")
	threshold := fs.Float64("threshold", cfg.Detection.Threshold, "Minimum similarity for a duplicate pair")
	metric := fs.String("metric", cfg.Detection.Metric, "Similarity metric")
	workers := fs.Int("workers", cfg.Detection.Workers, "Concurrent comparison workers")
	useFilter := fs.Bool("filter", cfg.Filter.Enabled, "Skip pairs in different SimHash buckets")
	inputFormat := fs.String("input-format", cfg.Input.Format, "Input format: auto, csv, jsonl or text")
	idColumn := fs.String("id-column", cfg.Input.IDColumn, "Column or field holding the record id")
	textColumn := fs.String("text-column", cfg.Input.TextColumn, "Column or field holding the text")
	labelColumn := fs.String("label-column", cfg.Input.LabelColumn, "Column or field holding an optional label")
	duplicatesOnly := fs.Bool("duplicates-only", false, "Omit records without duplicates from the report")
	noHistory := fs.Bool("no-history", !cfg.Output.History, "Do not store the run")
	showProgress := fs.Bool("progress", progress.DefaultEnabled(), "Show progress on stderr")
	dry := fs.Bool("dry", false, "Print the text report to stdout only; write no output file and no history")
	fs.BoolVar(&verbose, "v", false, "Verbose output")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    doubles run [options] <input>...

DESCRIPTION:
    Group near-duplicate records.
    This will:
      1. Read records (id, text, optional label) from every input
      2. Embed each text with the configured provider
      3. Score every pair and keep pairs at or above the threshold
      4. Merge linked records into clusters
      5. Print the report and store it in the run history

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    # CSV with id,text columns
    doubles run questions.csv

    # Question/answer export, flag clusters whose answers disagree
    doubles run -text-column question -label-column answer faq.csv

    # Large input with blocking
    doubles run -filter -workers 8 'shards/**/*.jsonl.zst'

    # Look before writing anything
    doubles run -dry questions.csv
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	inputs = append(inputs, fs.Args()...)
	if len(inputs) == 0 {
		fmt.Fprintf(os.Stderr, "Error: at least one input is required\n\n")
		fs.Usage()
		os.Exit(1)
	}

	formatSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "format" {
			formatSet = true
		}
	})
	outFormat, err := outputFormat(*format, formatSet, cfg.Output.Format, *output)
	if err != nil {
		return err
	}

	srcOpts := source.Options{
		Format:      source.Format(*inputFormat),
		IDColumn:    *idColumn,
		TextColumn:  *textColumn,
		LabelColumn: *labelColumn,
	}
	records, names, err := loadInputs(inputs, srcOpts)
	if err != nil {
		return err
	}
	slog.Info("input loaded", "inputs", len(inputs), "records", len(records))

	if *dry {
		*output = "-"
		*noHistory = true
		outFormat = report.FormatText
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := embedding.NewService(&cfg.Embedding)
	if err != nil {
		return err
	}

	opts, err := engineOptions(cfg, *threshold, *metric, *workers, *useFilter)
	if err != nil {
		return err
	}
	stopSpinner := progress.StartSpinner(*showProgress, os.Stderr, fmt.Sprintf("embedding %d records", len(records)))
	opts.Progress = &phaseProgress{
		before: stopSpinner,
		bar:    progress.New(*showProgress, os.Stderr, "comparing"),
	}

	eng, err := dedup.New(svc, opts)
	if err != nil {
		stopSpinner()
		return err
	}
	res, err := eng.Run(ctx, records)
	stopSpinner()
	if err != nil {
		return err
	}

	rep := report.New(res, records)
	rep.Source = strings.Join(names, ",")
	rep.Provider = svc.Provider()

	if !*noHistory {
		if err := saveHistory(ctx, cfg.Output.HistoryPath, rep); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: run not stored: %v\n", err)
		}
	}

	if err := writeReport(*output, rep, outFormat, report.Options{DuplicatesOnly: *duplicatesOnly}); err != nil {
		return err
	}
	if rep.RunID != "" {
		fmt.Fprintf(os.Stderr, "Stored run %s\n", rep.RunID)
	}
	return nil
}

// engineOptions builds engine options from config and flag overrides.
func engineOptions(cfg *config.Config, threshold float64, metricName string, workers int, useFilter bool) (dedup.Options, error) {
	metric, err := similarity.ParseMetric(metricName)
	if err != nil {
		return dedup.Options{}, err
	}
	opts := dedup.DefaultOptions()
	opts.Threshold = threshold
	opts.Metric = metric
	opts.Workers = workers
	if cfg.Detection.BatchSize > 0 {
		opts.BatchSize = cfg.Detection.BatchSize
	}
	if useFilter {
		f := &pairwise.SimHashFilter{Bands: cfg.Filter.Bands, Rows: cfg.Filter.Rows, Salt: cfg.Filter.Seed}
		if err := f.Validate(); err != nil {
			return dedup.Options{}, err
		}
		opts.Filter = f
		opts.AuditSample = cfg.Filter.AuditSample
	}
	return opts, nil
}

func loadInputs(inputs []string, opts source.Options) ([]record.Record, []string, error) {
	var records []record.Record
	names := make([]string, 0, len(inputs))
	for _, in := range inputs {
		recs, err := source.Load(in, opts)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, recs...)
		names = append(names, source.Name(in))
	}
	return records, names, nil
}

// outputFormat picks the report format: an explicit flag wins, then the
// output file extension, then the config.
func outputFormat(flagValue string, flagSet bool, configured string, output string) (report.Format, error) {
	if flagSet {
		return report.ParseFormat(flagValue)
	}
	if output != "-" {
		switch fileio.BaseExt(output) {
		case ".json":
			return report.FormatJSON, nil
		case ".csv":
			return report.FormatCSV, nil
		case ".txt":
			return report.FormatText, nil
		}
	}
	return report.ParseFormat(configured)
}

func saveHistory(ctx context.Context, path string, rep *report.Report) error {
	db, err := store.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()
	id, err := db.SaveRun(ctx, rep)
	if err != nil {
		return err
	}
	slog.Info("run stored", "id", id, "path", path)
	return nil
}

// writeReport renders rep to path, or stdout for "-". Colors are used only
// on a terminal stdout.
func writeReport(path string, rep *report.Report, format report.Format, opts report.Options) error {
	w, err := fileio.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	opts.Color = path == "-" && !color.NoColor
	if err := report.Write(w, rep, format, opts); err != nil {
		w.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return w.Close()
}

// phaseProgress ends the embedding spinner when comparison starts.
type phaseProgress struct {
	before func()
	bar    *progress.Bar
}

func (p *phaseProgress) Start(total int) {
	p.before()
	p.bar.Start(total)
}

func (p *phaseProgress) Add(n int) { p.bar.Add(n) }

func (p *phaseProgress) Finish() { p.bar.Finish() }
