package scanner

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScanFindsVideoExtensionsOnly(t *testing.T) {
	tmpDir := t.TempDir()

	testFiles := []string{
		"video1.mp4",
		"video2.mkv",
		"video3.avi",
		"document.txt",
	}
	for _, filename := range testFiles {
		path := filepath.Join(tmpDir, filename)
		if err := os.WriteFile(path, []byte("test"), 0o600); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
	}

	s := New(tmpDir, []string{".mp4", ".mkv", ".avi"}, 0)
	records, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for _, rec := range records {
		if rec.Path == "" || rec.Size == 0 || rec.Mtime == 0 {
			t.Errorf("incomplete scan record: %+v", rec)
		}
	}
}

func TestScanRespectsMaxDepth(t *testing.T) {
	tmpDir := t.TempDir()
	nested := filepath.Join(tmpDir, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o750); err != nil {
		t.Fatalf("failed to create nested dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "top.mp4"), []byte("x"), 0o600); err != nil {
		t.Fatalf("failed to create top file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(nested, "deep.mp4"), []byte("x"), 0o600); err != nil {
		t.Fatalf("failed to create deep file: %v", err)
	}

	s := New(tmpDir, []string{".mp4"}, 1)
	records, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected only the top-level file within depth 1, got %d: %+v", len(records), records)
	}
}

func TestScanEmptyDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	s := New(tmpDir, []string{".mkv"}, 0)
	records, err := s.Scan()
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected 0 records, got %d", len(records))
	}
}
