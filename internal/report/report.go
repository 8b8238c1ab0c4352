// Package report renders detection results as text, JSON or CSV.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/DreamCats/doubles/internal/dedup"
	"github.com/DreamCats/doubles/internal/record"
)

// Format names an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a format name. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatCSV:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unsupported output format: %q", s)
	}
}

// Report is a self-contained rendering of one run. It carries record text
// so that a stored run can be shown again without its input.
type Report struct {
	RunID     string      `json:"run_id,omitempty"`
	Source    string      `json:"source,omitempty"`
	Provider  string      `json:"provider,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	Threshold float64     `json:"threshold"`
	Metric    string      `json:"metric"`
	Stats     dedup.Stats `json:"stats"`
	Clusters  []Cluster   `json:"clusters"`
}

// Cluster lists its members representative first.
type Cluster struct {
	ID      record.ID `json:"cluster_id"`
	Members []Member  `json:"members"`
}

// Member is one record of a cluster. MatchedWith and Score explain how a
// non-representative member joined.
type Member struct {
	ID          record.ID `json:"id"`
	Text        string    `json:"text"`
	Label       string    `json:"label,omitempty"`
	MatchedWith record.ID `json:"matched_with,omitempty"`
	Score       float64   `json:"score,omitempty"`
	Opposite    bool      `json:"opposite,omitempty"`
}

// IsSingleton reports whether the cluster has one member.
func (c Cluster) IsSingleton() bool { return len(c.Members) == 1 }

// New builds a report from a result and the records of the run.
func New(res *dedup.Result, records []record.Record) *Report {
	byID := make(map[record.ID]record.Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	rep := &Report{
		CreatedAt: time.Now().UTC(),
		Threshold: res.Threshold,
		Metric:    res.Metric,
		Stats:     res.Stats,
		Clusters:  make([]Cluster, 0, len(res.Clusters)),
	}
	for _, c := range res.Clusters {
		links := make(map[record.ID]int, len(c.Links))
		for i, l := range c.Links {
			links[l.Member] = i
		}
		opposite := make(map[record.ID]bool, len(c.Opposites))
		for _, id := range c.Opposites {
			opposite[id] = true
		}

		rc := Cluster{ID: c.ID, Members: make([]Member, 0, len(c.Members))}
		for _, id := range c.Members {
			r := byID[id]
			m := Member{ID: id, Text: r.Text, Label: r.Label, Opposite: opposite[id]}
			if i, ok := links[id]; ok {
				m.MatchedWith = c.Links[i].MatchedWith
				m.Score = c.Links[i].Score
			}
			rc.Members = append(rc.Members, m)
		}
		rep.Clusters = append(rep.Clusters, rc)
	}
	return rep
}

// Options controls rendering.
type Options struct {
	// Color enables ANSI colors in text output.
	Color bool
	// DuplicatesOnly omits singleton clusters.
	DuplicatesOnly bool
}

// Write renders rep to w in the given format.
func Write(w io.Writer, rep *Report, format Format, opts Options) error {
	switch format {
	case "", FormatText:
		return WriteText(w, rep, opts)
	case FormatJSON:
		return WriteJSON(w, rep, opts)
	case FormatCSV:
		return WriteCSV(w, rep, opts)
	default:
		return fmt.Errorf("unsupported output format: %q", format)
	}
}

func (r *Report) visible(opts Options) []Cluster {
	if !opts.DuplicatesOnly {
		return r.Clusters
	}
	out := make([]Cluster, 0, r.Stats.DuplicateGroups)
	for _, c := range r.Clusters {
		if !c.IsSingleton() {
			out = append(out, c)
		}
	}
	return out
}
