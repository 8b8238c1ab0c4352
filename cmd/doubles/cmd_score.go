package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/DreamCats/doubles/internal/config"
	"github.com/DreamCats/doubles/internal/dedup"
	"github.com/DreamCats/doubles/internal/embedding"
)

// handleScore implements the score subcommand
func handleScore(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	var jsonOutput, verbose bool
	threshold := fs.Float64("threshold", cfg.Detection.Threshold, "Minimum similarity for a duplicate pair")
	metric := fs.String("metric", cfg.Detection.Metric, "Similarity metric")
	fs.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	fs.BoolVar(&verbose, "v", false, "Verbose output")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    doubles score [options] "<text a>" "<text b>"

DESCRIPTION:
    Embed two texts and report their similarity and whether they count
    as duplicates at the threshold.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    doubles score "Is it red?" "Is it, perhaps, red?"
    doubles score -threshold 0.95 -json "first" "second"
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "Error: exactly two texts are required\n\n")
		fs.Usage()
		os.Exit(1)
	}

	svc, err := embedding.NewService(&cfg.Embedding)
	if err != nil {
		return err
	}
	opts, err := engineOptions(cfg, *threshold, *metric, 1, false)
	if err != nil {
		return err
	}
	eng, err := dedup.New(svc, opts)
	if err != nil {
		return err
	}

	res, err := eng.Compare(context.Background(), fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	verdict := color.New(color.FgGreen).Sprint("distinct")
	if res.Duplicate {
		verdict = color.New(color.FgRed, color.Bold).Sprint("duplicate")
	}
	fmt.Printf("Score:     %.4f\n", res.Score)
	fmt.Printf("Threshold: %.4f\n", res.Threshold)
	fmt.Printf("Verdict:   %s\n", verdict)
	return nil
}
