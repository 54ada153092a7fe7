package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRotatingWriterCapsCurrentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")
	w, err := newRotatingLogWriter(path, 1)
	if err != nil {
		t.Fatalf("newRotatingLogWriter() error = %v", err)
	}
	defer w.Close()

	chunk := make([]byte, 400<<10)
	for i := 0; i < 4; i++ {
		if _, err := w.Write(chunk); err != nil {
			t.Fatalf("Write() %d error = %v", i, err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat current log: %v", err)
	}
	if info.Size() > 1<<20 {
		t.Fatalf("current log = %d bytes, want <= 1MB", info.Size())
	}
}

func TestRotatingWriterKeepsPreviousGeneration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")
	w, err := newRotatingLogWriter(path, 1)
	if err != nil {
		t.Fatalf("newRotatingLogWriter() error = %v", err)
	}
	defer w.Close()

	chunk := make([]byte, 600<<10)
	if _, err := w.Write(chunk); err != nil {
		t.Fatalf("first Write() error = %v", err)
	}
	if _, err := w.Write(chunk); err != nil {
		t.Fatalf("second Write() error = %v", err)
	}

	rotated, err := os.Stat(path + ".1")
	if err != nil {
		t.Fatalf("stat rotated log: %v", err)
	}
	if rotated.Size() != 600<<10 {
		t.Fatalf("rotated log = %d bytes, want %d", rotated.Size(), 600<<10)
	}
}

func TestRotatingWriterReopensAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")
	w, err := newRotatingLogWriter(path, 1)
	if err != nil {
		t.Fatalf("newRotatingLogWriter() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := w.Write([]byte("after close\n")); err != nil {
		t.Fatalf("Write() after close error = %v", err)
	}
	w.Close()
}
