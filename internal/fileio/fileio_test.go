package fileio

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripByExtension(t *testing.T) {
	payload := strings.Repeat("id,text\n1,hello world\n", 200)
	dir := t.TempDir()

	tests := []struct {
		name  string
		codec Compression
	}{
		{"plain.csv", CompressionNone},
		{"data.csv.gz", CompressionGzip},
		{"data.csv.zst", CompressionZSTD},
		{"data.csv.lz4", CompressionLZ4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "sub", tt.name)
			assert.Equal(t, tt.codec, Detect(path))
			assert.Equal(t, ".csv", BaseExt(path))

			w, err := Create(path)
			require.NoError(t, err)
			_, err = io.WriteString(w, payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			if tt.codec != CompressionNone {
				assert.Less(t, len(raw), len(payload), "expected %s to compress", tt.codec)
			}

			r, err := Open(path)
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			assert.Equal(t, payload, string(got))
		})
	}
}

func TestOpenCorruptGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.gz")
	require.NoError(t, os.WriteFile(path, []byte("not gzip"), 0o644))
	_, err := Open(path)
	assert.Error(t, err)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBaseExt(t *testing.T) {
	assert.Equal(t, ".jsonl", BaseExt("a/b/records.JSONL"))
	assert.Equal(t, ".txt", BaseExt("x.txt.zst"))
	assert.Equal(t, "", BaseExt("noext"))
	assert.Equal(t, "none", CompressionNone.String())
}
