// Package scanner walks the configured media root and yields the raw
// path/size/mtime observations the Store upserts into FileRecords. It never
// opens or probes media itself — that's the worker's job once a file is
// assigned.
package scanner

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/avfarm/common/models"
)

// Scanner discovers candidate video files under RootPath.
type Scanner struct {
	RootPath        string
	VideoExtensions map[string]bool
	MaxDepth        int // 0 means unlimited
}

// New creates a Scanner for rootPath, matching any of extensions
// case-insensitively, descending at most maxDepth directories (0 = unlimited).
func New(rootPath string, extensions []string, maxDepth int) *Scanner {
	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = true
	}

	return &Scanner{
		RootPath:        rootPath,
		VideoExtensions: exts,
		MaxDepth:        maxDepth,
	}
}

// Scan walks the directory tree and returns every file matching
// VideoExtensions, skipping individual path errors rather than aborting.
func (s *Scanner) Scan() ([]models.ScanRecord, error) {
	var records []models.ScanRecord

	err := filepath.Walk(s.RootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			slog.Warn("scanner: error accessing path", "path", path, "error", err)
			return nil
		}

		if info.IsDir() {
			if s.MaxDepth > 0 && s.depthOf(path) > s.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !s.VideoExtensions[ext] {
			return nil
		}

		records = append(records, models.ScanRecord{
			Path:  path,
			Size:  info.Size(),
			Mtime: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory %s: %w", s.RootPath, err)
	}

	return records, nil
}

func (s *Scanner) depthOf(path string) int {
	rel, err := filepath.Rel(s.RootPath, path)
	if err != nil {
		return 0
	}
	if rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}
