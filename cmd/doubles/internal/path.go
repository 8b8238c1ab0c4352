package internal

import (
	"crypto/sha1"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// InputTag names an input in log file names: its sanitized base name plus
// a short hash of the full pattern, so equal names in different
// directories stay apart.
func InputTag(pattern string) string {
	if pattern == "" {
		return "none"
	}
	hash := sha1.Sum([]byte(pattern))
	return sanitizeName(filepath.Base(pattern)) + "-" + hex.EncodeToString(hash[:])[:8]
}

// sanitizeName replaces characters that are unsafe in file names.
func sanitizeName(name string) string {
	if name == "" || name == "." || name == "-" || name == string(filepath.Separator) {
		return "input"
	}
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}
