package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
)

const rule = 80

// WriteText prints the summary banner followed by every cluster: the
// representative on one line and each duplicate indented beneath it.
func WriteText(w io.Writer, rep *Report, opts Options) error {
	bw := bufio.NewWriter(w)

	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed, color.Bold)
	gray := color.New(color.FgHiBlack)
	for _, c := range []*color.Color{bold, cyan, yellow, red, gray} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	s := rep.Stats
	stars := strings.Repeat("*", rule)
	fmt.Fprintln(bw, stars)
	if rep.RunID != "" {
		fmt.Fprintf(bw, "Run                            : %s\n", rep.RunID)
	}
	if rep.Source != "" {
		fmt.Fprintf(bw, "Input                          : %s\n", rep.Source)
	}
	fmt.Fprintf(bw, "Threshold                      : %.3f (%s)\n", rep.Threshold, rep.Metric)
	fmt.Fprintf(bw, "Records in input               : %d\n", s.Records)
	fmt.Fprintf(bw, "Clusters                       : %d\n", s.Clusters)
	fmt.Fprintf(bw, "Duplicate groups               : %d\n", s.DuplicateGroups)
	fmt.Fprintf(bw, "Duplicate records found        : %s\n", bold.Sprint(s.DuplicateRecords))
	fmt.Fprintf(bw, "Duplicate records (%%)          : %.1f\n", s.DuplicatePercent)
	if s.Opposites > 0 {
		fmt.Fprintf(bw, "Opposites                      : %s\n", red.Sprint(s.Opposites))
	}
	cmp := s.Comparison
	fmt.Fprintf(bw, "Pairs compared                 : %d of %d\n", cmp.ComparedPairs, cmp.TotalPairs)
	if cmp.Filter != "" {
		fmt.Fprintf(bw, "Blocking filter                : %s\n", yellow.Sprint(cmp.Filter))
		fmt.Fprintf(bw, "Miss bound at threshold        : %.4f%%\n", cmp.FilterMissBound*100)
		if cmp.AuditedPairs > 0 {
			fmt.Fprintf(bw, "Audit (skipped pairs matching) : %d of %d\n", cmp.AuditMisses, cmp.AuditedPairs)
		}
	}
	fmt.Fprintf(bw, "Time (embed / compare / total) : %s / %s / %s\n",
		round(s.EmbedDuration), round(s.CompareDuration), round(s.TotalDuration))
	fmt.Fprintln(bw, stars)

	clusters := rep.visible(opts)
	if len(clusters) > 0 {
		fmt.Fprintln(bw, stars)
		for i, c := range clusters {
			head := c.Members[0]
			fmt.Fprintf(bw, "(%05d) %s %s\n", i+1, head.Text, gray.Sprintf("(%s)", head.ID))
			for _, m := range c.Members[1:] {
				line := fmt.Sprintf("\t[%s] %s %s", cyan.Sprint(m.ID), m.Text,
					gray.Sprintf("(~%s %.3f)", m.MatchedWith, m.Score))
				if m.Opposite {
					line += " " + red.Sprint("[Opposite]")
				}
				fmt.Fprintln(bw, line)
			}
		}
		fmt.Fprintln(bw, stars)
	}
	return bw.Flush()
}

func round(d time.Duration) time.Duration {
	switch {
	case d >= time.Second:
		return d.Round(10 * time.Millisecond)
	case d >= time.Millisecond:
		return d.Round(time.Millisecond)
	default:
		return d.Round(time.Microsecond)
	}
}
