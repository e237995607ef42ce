package filter

import (
	"path/filepath"
	"testing"
)

func TestLoadPolyCachedReusesUnchangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.poly")
	writePolyFile(t, path, squarePoly)

	first, err := loadPolyCached(path)
	if err != nil {
		t.Fatalf("loadPolyCached: %v", err)
	}
	second, err := loadPolyCached(path)
	if err != nil {
		t.Fatalf("loadPolyCached: %v", err)
	}
	if first != second {
		t.Fatal("expected the same *Poly to be reused when the file hasn't changed")
	}
}

func TestLoadPolyCachedReparsesOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.poly")
	writePolyFile(t, path, squarePoly)

	first, err := loadPolyCached(path)
	if err != nil {
		t.Fatalf("loadPolyCached: %v", err)
	}

	const renamed = `renamed
square_outline
0.0 0.0
10.0 0.0
10.0 10.0
0.0 10.0
0.0 0.0
END
END
`
	writePolyFile(t, path, renamed)

	second, err := loadPolyCached(path)
	if err != nil {
		t.Fatalf("loadPolyCached: %v", err)
	}
	if first == second {
		t.Fatal("expected a changed file to be reparsed into a new *Poly")
	}
	if second.Name != "renamed" {
		t.Fatalf("name = %q, want renamed", second.Name)
	}
}

func TestLoadTreeReloadIsStableAcrossTicks(t *testing.T) {
	root := t.TempDir()
	writePolyFile(t, filepath.Join(root, "region.poly"), squarePoly)

	first, err := LoadTree(root)
	if err != nil {
		t.Fatalf("LoadTree: %v", err)
	}
	second, err := LoadTree(root)
	if err != nil {
		t.Fatalf("LoadTree: %v", err)
	}
	if first.Children[0].Poly != second.Children[0].Poly {
		t.Fatal("expected an unchanged .poly file to yield the same cached *Poly across reloads")
	}
}
