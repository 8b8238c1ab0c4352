package report

import (
	"encoding/csv"
	"io"
	"strconv"
)

var csvHeader = []string{"cluster_id", "id", "representative", "text", "label", "matched_with", "score", "opposite"}

// WriteCSV writes one row per member, grouped by cluster.
func WriteCSV(w io.Writer, rep *Report, opts Options) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range rep.visible(opts) {
		for i, m := range c.Members {
			score := ""
			if i > 0 {
				score = strconv.FormatFloat(m.Score, 'f', 6, 64)
			}
			row := []string{
				string(c.ID),
				string(m.ID),
				strconv.FormatBool(i == 0),
				m.Text,
				m.Label,
				string(m.MatchedWith),
				score,
				strconv.FormatBool(m.Opposite),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
