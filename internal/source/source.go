// Package source reads records from CSV, JSON Lines and plain text files.
package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/DreamCats/doubles/internal/fileio"
	"github.com/DreamCats/doubles/internal/record"
)

// ErrNoInput is returned when a pattern matches no files.
var ErrNoInput = errors.New("no input files")

// Format names an input encoding.
type Format string

const (
	FormatAuto  Format = "auto"
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
	FormatText  Format = "text"
)

// Options selects the format and the fields that carry id, text and label.
// Empty column names fall back to common defaults ("id"; "text" or
// "question"; "label" or "answer").
type Options struct {
	Format      Format
	IDColumn    string
	TextColumn  string
	LabelColumn string
}

// Load reads every file matched by pattern, in lexical path order. Pattern
// may use ** globs; a plain path is read as is.
func Load(pattern string, opts Options) ([]record.Record, error) {
	paths, err := Expand(pattern)
	if err != nil {
		return nil, err
	}
	var out []record.Record
	for _, path := range paths {
		recs, err := LoadFile(path, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// Expand resolves a glob pattern to the sorted list of matching files.
func Expand(pattern string) ([]string, error) {
	if pattern == "" {
		return nil, ErrNoInput
	}
	if pattern == "-" || !strings.ContainsAny(pattern, "*?[{") {
		return []string{pattern}, nil
	}
	paths, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("expand %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoInput, pattern)
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadFile reads one file. Compressed files are decoded by extension.
func LoadFile(path string, opts Options) ([]record.Record, error) {
	r, err := fileio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer r.Close()

	format := opts.Format
	if format == "" || format == FormatAuto {
		format = DetectFormat(path)
	}
	recs, err := Read(r, format, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return recs, nil
}

// DetectFormat guesses the format from the extension. Unknown extensions
// are read as CSV.
func DetectFormat(path string) Format {
	switch fileio.BaseExt(path) {
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL
	case ".txt", ".text":
		return FormatText
	default:
		return FormatCSV
	}
}

// Read decodes records from r.
func Read(r io.Reader, format Format, opts Options) ([]record.Record, error) {
	switch format {
	case FormatCSV:
		return readCSV(r, opts)
	case FormatJSONL:
		return readJSONL(r, opts)
	case FormatText:
		return readText(r)
	default:
		return nil, fmt.Errorf("unsupported input format: %q", format)
	}
}

func readCSV(r io.Reader, opts Options) ([]record.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	idCol, err := column(header, opts.IDColumn, "id")
	if err != nil {
		return nil, err
	}
	textCol, err := column(header, opts.TextColumn, "text", "question")
	if err != nil {
		return nil, err
	}
	labelCol := -1
	if opts.LabelColumn != "" {
		if labelCol, err = column(header, opts.LabelColumn); err != nil {
			return nil, err
		}
	} else if c, err := column(header, "", "label", "answer"); err == nil {
		labelCol = c
	}

	var out []record.Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		if isBlankRow(row) {
			continue
		}
		rec := record.Record{
			ID:   record.ID(strings.TrimSpace(field(row, idCol))),
			Text: field(row, textCol),
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("line %d: %w", line, record.ErrEmptyRecordID)
		}
		if labelCol >= 0 {
			rec.Label = strings.TrimSpace(field(row, labelCol))
		}
		out = append(out, rec)
	}
	return out, nil
}

// column finds the index of name in header, trying the fallbacks when name
// is empty. Matching ignores case and surrounding space.
func column(header []string, name string, fallbacks ...string) (int, error) {
	candidates := fallbacks
	if name != "" {
		candidates = []string{name}
	}
	for _, want := range candidates {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), want) {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("column %q not found in header %v", strings.Join(candidates, "|"), header)
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func isBlankRow(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func readJSONL(r io.Reader, opts Options) ([]record.Record, error) {
	idKey := firstNonEmpty(opts.IDColumn, "id")
	textKeys := []string{"text", "question"}
	if opts.TextColumn != "" {
		textKeys = []string{opts.TextColumn}
	}
	labelKeys := []string{"label", "answer"}
	if opts.LabelColumn != "" {
		labelKeys = []string{opts.LabelColumn}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []record.Record
	for line := 1; sc.Scan(); line++ {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		id, err := scalar(obj[idKey])
		if err != nil {
			return nil, fmt.Errorf("line %d: field %q: %w", line, idKey, err)
		}
		if id == "" {
			return nil, fmt.Errorf("line %d: %w", line, record.ErrEmptyRecordID)
		}
		rec := record.Record{ID: record.ID(id)}

		found := false
		for _, k := range textKeys {
			if v, ok := obj[k]; ok {
				if rec.Text, err = scalar(v); err != nil {
					return nil, fmt.Errorf("line %d: field %q: %w", line, k, err)
				}
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("line %d: no text field (%s)", line, strings.Join(textKeys, "|"))
		}
		for _, k := range labelKeys {
			if v, ok := obj[k]; ok {
				if rec.Label, err = scalar(v); err != nil {
					return nil, fmt.Errorf("line %d: field %q: %w", line, k, err)
				}
				break
			}
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scalar(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(x), nil
	case json.Number:
		return x.String(), nil
	case bool:
		if x {
			return "yes", nil
		}
		return "no", nil
	default:
		return "", fmt.Errorf("unsupported value %v", v)
	}
}

// readText takes one record per non-blank line; the id is the line number.
func readText(r io.Reader) ([]record.Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var out []record.Record
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		out = append(out, record.Record{ID: record.ID(strconv.Itoa(line)), Text: text})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Name returns a short display name for an input pattern.
func Name(pattern string) string {
	if pattern == "-" {
		return "stdin"
	}
	return filepath.Base(pattern)
}
