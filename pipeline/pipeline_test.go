package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/osm"

	"osmreplica/model"
	"osmreplica/osmio"
	"osmreplica/store"
)

func TestSequencePath(t *testing.T) {
	cases := map[uint64]string{
		0:          "000/000/000",
		1:          "000/000/001",
		1234567:    "001/234/567",
		999999999:  "999/999/999",
		1000000000: "000/000/000",
	}
	for n, want := range cases {
		if got := SequencePath(n); got != want {
			t.Errorf("SequencePath(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestReadStateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.txt")
	content := "#comment\ntimestamp=2026-07-29T00:00:00Z\nsequenceNumber=42\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	n, err := ReadStateFile(path)
	if err != nil {
		t.Fatalf("ReadStateFile: %v", err)
	}
	if n != 42 {
		t.Fatalf("sequence = %d, want 42", n)
	}
}

func TestReadStateFileMissing(t *testing.T) {
	_, err := ReadStateFile(filepath.Join(t.TempDir(), "missing.txt"))
	if err == nil {
		t.Fatal("expected an error for a missing state file")
	}
}

// fakeDownloader serves every URL from a local directory keyed by the
// URL's final path segment, so tests never touch the network.
type fakeDownloader struct {
	dir string
}

func (d *fakeDownloader) Download(url, destPath string) error {
	rel := strings.TrimPrefix(url, "fake://")
	src := filepath.Join(d.dir, rel)
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0777); err != nil {
		return err
	}
	return os.WriteFile(destPath, data, 0o644)
}

func writeState(t *testing.T, path string, n uint64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	content := "sequenceNumber=" + itoa(n) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

const squareRegionPoly = `inside
outline
0.0 0.0
10.0 0.0
10.0 10.0
0.0 10.0
0.0 0.0
END
END
`

func TestPipelineRunProcessesOneMinute(t *testing.T) {
	remoteRoot := t.TempDir()
	remoteSeq := SequencePath(43)

	// Upstream has one new sequence number beyond what the store knows.
	if err := os.WriteFile(filepath.Join(remoteRoot, "state.txt"), []byte("sequenceNumber=43\n"), 0o644); err != nil {
		t.Fatalf("WriteFile remote state: %v", err)
	}
	remoteStatePath := filepath.Join(remoteRoot, remoteSeq+".state.txt")
	if err := os.MkdirAll(filepath.Dir(remoteStatePath), 0777); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(remoteStatePath, []byte("sequenceNumber=43\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	remoteDiffPath := filepath.Join(remoteRoot, remoteSeq+".osc.gz")
	writeSampleChange(t, remoteDiffPath)

	diffsDir := t.TempDir()
	writeState(t, filepath.Join(diffsDir, "planet", "minute", "state.txt"), 42)

	storeDir := t.TempDir()
	if err := store.Init(storeDir); err != nil {
		t.Fatalf("store.Init: %v", err)
	}

	polygonDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(polygonDir, "inside.poly"), []byte(squareRegionPoly), 0o644); err != nil {
		t.Fatalf("WriteFile poly: %v", err)
	}

	p, err := New(Config{
		StoreDir:   storeDir,
		DiffsDir:   diffsDir,
		PolygonDir: polygonDir,
		URLDiffs:   "fake://",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.downloader = &fakeDownloader{dir: remoteRoot}

	if err := p.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The planet tree now points at sequence 43.
	n, err := ReadStateFile(filepath.Join(diffsDir, "planet", "minute", "state.txt"))
	if err != nil {
		t.Fatalf("ReadStateFile planet: %v", err)
	}
	if n != 43 {
		t.Fatalf("planet sequence = %d, want 43", n)
	}

	// The bbox tree and the "inside" region both produced output.
	if _, err := os.Stat(filepath.Join(diffsDir, "bbox", "minute", remoteSeq+".osc.gz")); err != nil {
		t.Fatalf("bbox diff missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(diffsDir, "inside", "minute", remoteSeq+".osc.gz")); err != nil {
		t.Fatalf("region diff missing: %v", err)
	}

	// A second Run is a no-op: already caught up.
	p.downloader = &fakeDownloader{dir: remoteRoot}
	if err := p.Run(); err != nil {
		t.Fatalf("second Run: %v", err)
	}
}

// writeSampleChange writes a tiny osmChange file creating one node
// inside the test polygon, used by TestPipelineRunProcessesOneMinute.
func writeSampleChange(t *testing.T, path string) {
	t.Helper()
	sink, err := osmio.CreateXmlSink(path)
	if err != nil {
		t.Fatalf("CreateXmlSink: %v", err)
	}
	n := model.Node{
		ID:           osm.NodeID(1),
		DecimicroLat: 50000000,
		DecimicroLon: 50000000,
	}
	if err := sink.WriteNode(n, model.ActionCreate); err != nil {
		t.Fatalf("WriteNode: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
