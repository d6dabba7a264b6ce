package sink

import (
	"os"
	"path/filepath"
	"testing"

	"gtorrent/torrentfile"
)

func TestFileSinkWriteAtSpansFileBoundary(t *testing.T) {
	dir := t.TempDir()
	info := &torrentfile.Info{
		Name:   "test",
		Length: 10,
		Files: []torrentfile.File{
			{Length: 4, Path: "a.bin"},
			{Length: 6, Path: "b.bin"},
		},
	}

	s, err := NewFileSink(info, dir)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	defer s.Close()

	// Bytes [2,8) straddle a.bin (offsets 2-3) and b.bin (offsets 0-3).
	payload := []byte{1, 2, 3, 4, 5, 6}
	n, err := s.WriteAt(2, payload)
	if err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("n = %d, want %d", n, len(payload))
	}

	a, err := os.ReadFile(filepath.Join(dir, "a.bin"))
	if err != nil {
		t.Fatalf("reading a.bin: %v", err)
	}
	want := []byte{0, 0, 1, 2}
	if string(a) != string(want) {
		t.Errorf("a.bin = %v, want %v", a, want)
	}

	b, err := os.ReadFile(filepath.Join(dir, "b.bin"))
	if err != nil {
		t.Fatalf("reading b.bin: %v", err)
	}
	wantB := []byte{3, 4, 5, 6, 0, 0}
	if string(b) != string(wantB) {
		t.Errorf("b.bin = %v, want %v", b, wantB)
	}
}

func TestCachingSinkPeekAfterWrite(t *testing.T) {
	dir := t.TempDir()
	info := &torrentfile.Info{
		Name:   "test",
		Length: 4,
		Files:  []torrentfile.File{{Length: 4, Path: "a.bin"}},
	}
	underlying, err := NewFileSink(info, dir)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	defer underlying.Close()

	cs := NewCachingSink(underlying, 2)
	if _, err := cs.WriteAt(0, []byte{9, 9, 9, 9}); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	data, ok := cs.Peek(0)
	if !ok {
		t.Fatal("expected cached page at offset 0")
	}
	if string(data) != string([]byte{9, 9, 9, 9}) {
		t.Errorf("Peek = %v, want {9,9,9,9}", data)
	}
}
