package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/DreamCats/doubles/internal/config"
	"github.com/DreamCats/doubles/internal/report"
	"github.com/DreamCats/doubles/internal/store"
)

// handleHistory implements the history subcommand
func handleHistory(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	var jsonOutput, clearAll, verbose bool
	limit := fs.Int("limit", 20, "Number of runs to list (0 lists all)")
	remove := fs.String("delete", "", "Delete the run with this id or id prefix")
	fs.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	fs.BoolVar(&clearAll, "clear", false, "Delete every stored run")
	fs.BoolVar(&verbose, "v", false, "Verbose output")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    doubles history [options]

DESCRIPTION:
    List stored runs, most recent first.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    doubles history
    doubles history -limit 5 -json
    doubles history -delete 3f2a
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := store.Open(cfg.Output.HistoryPath)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := context.Background()

	switch {
	case clearAll:
		if err := db.Clear(); err != nil {
			return err
		}
		fmt.Println("History cleared")
		return nil
	case *remove != "":
		if err := db.DeleteRun(ctx, *remove); err != nil {
			return err
		}
		fmt.Printf("Deleted run %s\n", *remove)
		return nil
	}

	runs, err := db.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		if runs == nil {
			runs = []store.RunSummary{}
		}
		data, _ := json.MarshalIndent(runs, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	if len(runs) == 0 {
		fmt.Println("No stored runs")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSOURCE\tPROVIDER\tTHRESHOLD\tRECORDS\tCLUSTERS\tDUPLICATES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.3f\t%d\t%d\t%d\n",
			r.ID[:min(8, len(r.ID))], r.CreatedAt.Local().Format(time.DateTime), r.Source,
			r.Provider, r.Threshold, r.Records, r.Clusters, r.DuplicateRecords)
	}
	return tw.Flush()
}

// handleShow implements the show subcommand
func handleShow(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	var duplicatesOnly, verbose bool
	format := fs.String("format", "text", "Report format: text, json or csv")
	output := fs.String("output", "-", "Report destination")
	fs.BoolVar(&duplicatesOnly, "duplicates-only", false, "Omit records without duplicates")
	fs.BoolVar(&verbose, "v", false, "Verbose output")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    doubles show [options] <run-id>

DESCRIPTION:
    Print a stored run. Any unique prefix of the run id works.

OPTIONS:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: a run id is required\n\n")
		fs.Usage()
		os.Exit(1)
	}
	f, err := report.ParseFormat(*format)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Output.HistoryPath)
	if err != nil {
		return err
	}
	defer db.Close()

	rep, err := db.GetRun(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}
	return writeReport(*output, rep, f, report.Options{DuplicatesOnly: duplicatesOnly})
}
