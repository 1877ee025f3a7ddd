package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Archive keeps copies of exported catalogs under
// baseDir/2006-01-02/exports/<name>-<unix>.json.
type Archive struct {
	baseDir string
	now     func() time.Time
}

func NewArchive(baseDir string) *Archive {
	return &Archive{baseDir: baseDir, now: time.Now}
}

// Save writes data and returns the file path.
func (a *Archive) Save(name string, data []byte) (string, error) {
	now := a.now().UTC()
	dir := filepath.Join(a.baseDir, now.Format("2006-01-02"), "exports")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("archive: mkdir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%d.json", fileSegment(name), now.UnixNano()))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("archive: write: %w", err)
	}
	slog.Debug("archive written", "path", path, "size", len(data))
	return path, nil
}

// fileSegment turns a label such as a domain into a filesystem-safe name.
func fileSegment(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "sessions"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
