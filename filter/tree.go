package filter

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
)

// Tree is one node of the region hierarchy: a directory,
// optionally restricted by a polygon file of the same base name, and
// its child regions. A nil Poly means "no restriction here" — either
// the tree root (the whole planet) or a grouping directory that exists
// purely to organise its children (e.g. a continent folder holding
// per-country .poly files but no continent-wide one of its own).
type Tree struct {
	Name     string
	Dir      string
	Poly     *Poly
	Children []*Tree

	polyPath string // "" for a nil-Poly node; used only to order siblings
}

// LoadTree walks dir recursively, pairing each "foo.poly" file with its
// sibling "foo/" directory (if any) to become that child's subtree.
// Every directory with no matching .poly file also becomes an
// (unrestricted) child, whether or not it holds further regions.
func LoadTree(dir string) (*Tree, error) {
	children, err := loadChildren(dir)
	if err != nil {
		return nil, err
	}
	return &Tree{Name: filepath.Base(dir), Dir: dir, Children: children}, nil
}

func loadChildren(dir string) ([]*Tree, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list region directory %s", dir)
	}

	polyFiles := map[string]string{}
	dirs := map[string]bool{}
	for _, e := range entries {
		if e.IsDir() {
			dirs[e.Name()] = true
			continue
		}
		if strings.HasSuffix(e.Name(), ".poly") {
			name := strings.TrimSuffix(e.Name(), ".poly")
			polyFiles[name] = filepath.Join(dir, e.Name())
		}
	}

	var children []*Tree
	for name, path := range polyFiles {
		poly, err := loadPolyCached(path)
		if err != nil {
			return nil, err
		}
		child := &Tree{Name: name, Dir: filepath.Join(dir, name), Poly: poly, polyPath: path}
		if dirs[name] {
			child.Children, err = loadChildren(child.Dir)
			if err != nil {
				return nil, err
			}
		}
		children = append(children, child)
	}
	for name := range dirs {
		if _, ok := polyFiles[name]; ok {
			continue
		}
		childDir := filepath.Join(dir, name)
		grandChildren, err := loadChildren(childDir)
		if err != nil {
			return nil, err
		}
		children = append(children, &Tree{Name: name, Dir: childDir, Children: grandChildren})
	}

	sort.Slice(children, func(i, j int) bool {
		a, b := children[i], children[j]
		if a.polyPath == "" && b.polyPath == "" {
			return a.Name < b.Name
		}
		if a.polyPath == "" {
			return false
		}
		if b.polyPath == "" {
			return true
		}
		return a.polyPath < b.polyPath
	})

	return children, nil
}

// Walk calls fn for every node in the tree, including t itself,
// depth-first in child order.
func (t *Tree) Walk(fn func(*Tree) error) error {
	if err := fn(t); err != nil {
		return err
	}
	for _, c := range t.Children {
		if err := c.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

var (
	polyCacheMu sync.Mutex
	polyCache   = map[string]cachedPoly{}
)

type cachedPoly struct {
	hash uint64
	poly *Poly
}

// loadPolyCached parses path, skipping the parse (and the orb polygon
// construction and buffered-bound computation it triggers) when the
// file's content hash matches what was cached from a previous call —
// LoadTree re-reads the whole region tree every pipeline tick, and most
// .poly files never change between ticks.
func loadPolyCached(path string) (*Poly, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read poly file %s", path)
	}
	hash := xxh3.Hash(data)

	polyCacheMu.Lock()
	if c, ok := polyCache[path]; ok && c.hash == hash {
		polyCacheMu.Unlock()
		return c.poly, nil
	}
	polyCacheMu.Unlock()

	poly, err := ParsePolyFile(path)
	if err != nil {
		return nil, err
	}

	polyCacheMu.Lock()
	polyCache[path] = cachedPoly{hash: hash, poly: poly}
	polyCacheMu.Unlock()
	return poly, nil
}
