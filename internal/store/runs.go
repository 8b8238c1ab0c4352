package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DreamCats/doubles/internal/dedup"
	"github.com/DreamCats/doubles/internal/record"
	"github.com/DreamCats/doubles/internal/report"
)

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var (
	// ErrRunNotFound is returned when no stored run matches an id.
	ErrRunNotFound = errors.New("run not found")
	// ErrAmbiguousRun is returned when an id prefix matches several runs.
	ErrAmbiguousRun = errors.New("run id prefix is ambiguous")
)

// RunSummary is one row of the history listing.
type RunSummary struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	Source           string    `json:"source,omitempty"`
	Provider         string    `json:"provider,omitempty"`
	Threshold        float64   `json:"threshold"`
	Metric           string    `json:"metric"`
	Records          int       `json:"records"`
	Clusters         int       `json:"clusters"`
	DuplicateRecords int       `json:"duplicate_records"`
}

// SaveRun stores a report and its clusters. A report without a RunID gets a
// new random one, which is written back to rep and returned.
func (db *DB) SaveRun(ctx context.Context, rep *report.Report) (string, error) {
	if rep.RunID == "" {
		rep.RunID = uuid.NewString()
	}
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now().UTC()
	}
	stats, err := json.Marshal(rep.Stats)
	if err != nil {
		return "", fmt.Errorf("failed to encode stats: %w", err)
	}

	tx, err := db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, source, provider, threshold, metric,
			records, clusters, duplicate_records, stats)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.RunID, rep.CreatedAt.UTC().Format(timeLayout), rep.Source, rep.Provider,
		rep.Threshold, rep.Metric, rep.Stats.Records, rep.Stats.Clusters,
		rep.Stats.DuplicateRecords, string(stats),
	); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO members (run_id, cluster_seq, member_seq, cluster_id, record_id,
			text, label, matched_with, score, opposite)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for ci, c := range rep.Clusters {
		for mi, m := range c.Members {
			if _, err := stmt.ExecContext(ctx,
				rep.RunID, ci, mi, string(c.ID), string(m.ID),
				m.Text, m.Label, string(m.MatchedWith), m.Score, m.Opposite,
			); err != nil {
				return "", fmt.Errorf("failed to insert member %s: %w", m.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return rep.RunID, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `
		SELECT id, created_at, source, provider, threshold, metric,
			records, clusters, duplicate_records
		FROM runs
		ORDER BY created_at DESC, id`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			s       RunSummary
			created string
		)
		if err := rows.Scan(&s.ID, &created, &s.Source, &s.Provider, &s.Threshold,
			&s.Metric, &s.Records, &s.Clusters, &s.DuplicateRecords); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if s.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		runs = append(runs, s)
	}
	return runs, rows.Err()
}

// ResolveRunID expands an id prefix to the full id of exactly one run.
func (db *DB) ResolveRunID(ctx context.Context, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", ErrRunNotFound
	}
	pattern := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(prefix) + "%"

	rows, err := db.sqlDB.QueryContext(ctx,
		`SELECT id FROM runs WHERE id LIKE ? ESCAPE '\' ORDER BY id LIMIT 2`, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("failed to scan run id: %w", err)
		}
		if id == prefix {
			return id, nil
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousRun, prefix)
	}
}

// GetRun loads a stored report by id or unique id prefix.
func (db *DB) GetRun(ctx context.Context, id string) (*report.Report, error) {
	id, err := db.ResolveRunID(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		rep     report.Report
		created string
		stats   string
	)
	err = db.sqlDB.QueryRowContext(ctx, `
		SELECT id, created_at, source, provider, threshold, metric, stats
		FROM runs WHERE id = ?`, id,
	).Scan(&rep.RunID, &created, &rep.Source, &rep.Provider, &rep.Threshold, &rep.Metric, &stats)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	if rep.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	var st dedup.Stats
	if err := json.Unmarshal([]byte(stats), &st); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	rep.Stats = st

	rows, err := db.sqlDB.QueryContext(ctx, `
		SELECT cluster_seq, cluster_id, record_id, text, label, matched_with, score, opposite
		FROM members WHERE run_id = ?
		ORDER BY cluster_seq, member_seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	rep.Clusters = []report.Cluster{}
	last := -1
	for rows.Next() {
		var (
			seq       int
			clusterID string
			recID     string
			matched   string
			m         report.Member
		)
		if err := rows.Scan(&seq, &clusterID, &recID, &m.Text, &m.Label, &matched, &m.Score, &m.Opposite); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.ID = record.ID(recID)
		m.MatchedWith = record.ID(matched)
		if seq != last {
			rep.Clusters = append(rep.Clusters, report.Cluster{ID: record.ID(clusterID)})
			last = seq
		}
		c := &rep.Clusters[len(rep.Clusters)-1]
		c.Members = append(c.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &rep, nil
}

// DeleteRun removes a run and its members.
func (db *DB) DeleteRun(ctx context.Context, id string) error {
	id, err := db.ResolveRunID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := db.sqlDB.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time value %q", s)
}
