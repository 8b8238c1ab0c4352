package source

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DreamCats/doubles/internal/fileio"
	"github.com/DreamCats/doubles/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSVQuestionLayout(t *testing.T) {
	in := "\ufeffid,question,answer\n" +
		"1,Is it red?,Yes\n" +
		"2,\"Is it, perhaps, red?\",no\n" +
		",,\n" +
		"3,Is it blue?,yes\n"

	recs, err := Read(strings.NewReader(in), FormatCSV, Options{})
	require.NoError(t, err)
	assert.Equal(t, []record.Record{
		{ID: "1", Text: "Is it red?", Label: "Yes"},
		{ID: "2", Text: "Is it, perhaps, red?", Label: "no"},
		{ID: "3", Text: "Is it blue?", Label: "yes"},
	}, recs)
}

func TestReadCSVConfiguredColumns(t *testing.T) {
	in := "Key,Body,Extra\nk1,first,x\nk2,second,y\n"
	recs, err := Read(strings.NewReader(in), FormatCSV, Options{IDColumn: "key", TextColumn: "body"})
	require.NoError(t, err)
	assert.Equal(t, []record.Record{{ID: "k1", Text: "first"}, {ID: "k2", Text: "second"}}, recs)

	_, err = Read(strings.NewReader(in), FormatCSV, Options{IDColumn: "key", TextColumn: "body", LabelColumn: "answer"})
	assert.ErrorContains(t, err, `"answer"`)
}

func TestReadCSVErrors(t *testing.T) {
	_, err := Read(strings.NewReader("name,text\na,b\n"), FormatCSV, Options{})
	assert.ErrorContains(t, err, `"id"`)

	_, err = Read(strings.NewReader("id,text\n,orphan\n"), FormatCSV, Options{})
	assert.ErrorIs(t, err, record.ErrEmptyRecordID)

	recs, err := Read(strings.NewReader(""), FormatCSV, Options{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestReadJSONL(t *testing.T) {
	in := `{"id": 7, "text": "seven", "label": true}
{"id": "x-1", "question": "ex one", "answer": "no"}

{"id": 12345678901234567890, "text": " big "}
`
	recs, err := Read(strings.NewReader(in), FormatJSONL, Options{})
	require.NoError(t, err)
	assert.Equal(t, []record.Record{
		{ID: "7", Text: "seven", Label: "yes"},
		{ID: "x-1", Text: "ex one", Label: "no"},
		{ID: "12345678901234567890", Text: "big"},
	}, recs)
}

func TestReadJSONLErrors(t *testing.T) {
	_, err := Read(strings.NewReader(`{"id": 1}`), FormatJSONL, Options{})
	assert.ErrorContains(t, err, "no text field")

	_, err = Read(strings.NewReader(`{"id": 1, "text": "a"}`+"\n{bad"), FormatJSONL, Options{})
	assert.ErrorContains(t, err, "line 2")

	_, err = Read(strings.NewReader(`{"id": {"nested": 1}, "text": "a"}`), FormatJSONL, Options{})
	assert.Error(t, err)
}

func TestReadText(t *testing.T) {
	recs, err := Read(strings.NewReader("first\n\n  third  \n"), FormatText, Options{})
	require.NoError(t, err)
	assert.Equal(t, []record.Record{{ID: "1", Text: "first"}, {ID: "3", Text: "third"}}, recs)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatJSONL, DetectFormat("a.jsonl.zst"))
	assert.Equal(t, FormatText, DetectFormat("a.txt"))
	assert.Equal(t, FormatCSV, DetectFormat("a.csv.gz"))
	assert.Equal(t, FormatCSV, DetectFormat("a.dat"))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	w, err := fileio.Create(path)
	require.NoError(t, err)
	_, err = io.WriteString(w, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestLoadGlob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b", "part2.csv.gz"), "id,text\n3,c\n")
	writeFile(t, filepath.Join(dir, "a", "part1.csv"), "id,text\n1,a\n2,b\n")
	writeFile(t, filepath.Join(dir, "a", "deep", "extra.jsonl"), `{"id":4,"text":"d"}`+"\n")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty.csv"), 0o755))

	recs, err := Load(filepath.Join(dir, "**", "*.csv*"), Options{Format: FormatAuto})
	require.NoError(t, err)
	ids := make([]record.ID, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	assert.Equal(t, []record.ID{"1", "2", "3"}, ids)

	recs, err = Load(filepath.Join(dir, "**", "*.{csv,csv.gz,jsonl}"), Options{})
	require.NoError(t, err)
	assert.Len(t, recs, 4)

	_, err = Load(filepath.Join(dir, "**", "*.parquet"), Options{})
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestLoadPlainPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.txt.zst")
	writeFile(t, path, "alpha\nbeta\n")

	recs, err := Load(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []record.Record{{ID: "1", Text: "alpha"}, {ID: "2", Text: "beta"}}, recs)

	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"), Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
