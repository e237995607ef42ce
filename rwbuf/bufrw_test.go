package rwbuf

import (
	"os"
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T) *os.File {
	t.Helper()
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "data.bin"), os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		t.Fatalf("open temp file: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestWriteThenReadBack(t *testing.T) {
	f := openTemp(t)
	rw, err := NewWriter(f)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if _, err := rw.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := rw.Seek(0); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	buf := make([]byte, 11)
	if _, err := rw.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "hello world" {
		t.Fatalf("got %q, want %q", buf, "hello world")
	}
}

func TestWriteAfterReadReanchors(t *testing.T) {
	f := openTemp(t)
	rw, err := NewWriter(f)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := rw.Write([]byte("0123456789")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := rw.Seek(0); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	small := make([]byte, 2)
	if _, err := rw.Read(small); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(small) != "01" {
		t.Fatalf("got %q", small)
	}

	// Write without an explicit seek: must re-anchor at pos=2, not at
	// whatever the read buffer had pre-fetched beyond that.
	if _, err := rw.Write([]byte("XY")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := rw.Seek(0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	buf := make([]byte, 10)
	if _, err := rw.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "01XY456789" {
		t.Fatalf("got %q, want %q", buf, "01XY456789")
	}
}

func TestSeekRelativeStaysInReadMode(t *testing.T) {
	f := openTemp(t)
	rw, err := NewWriter(f)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := rw.Write([]byte("abcdefghij")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := rw.Seek(0); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	// Read one byte first so the handle is in read mode.
	first := make([]byte, 1)
	if _, err := rw.Read(first); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(first) != "a" {
		t.Fatalf("got %q, want %q", first, "a")
	}

	if err := rw.SeekRelative(2); err != nil {
		t.Fatalf("SeekRelative: %v", err)
	}
	if !rw.IsReadMode() {
		t.Fatalf("expected to remain in read mode after forward SeekRelative")
	}
	if got := rw.StreamPosition(); got != 3 {
		t.Fatalf("StreamPosition = %d, want 3", got)
	}

	buf := make([]byte, 3)
	if _, err := rw.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "def" {
		t.Fatalf("got %q, want %q", buf, "def")
	}
}
