package store

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// freeList tracks recyclable way.data offsets, bucketed by exact node
// count. way.free is text lines "<offset>;<num_nodes>\n", read once at
// open and rewritten once at close.
type freeList struct {
	buckets map[uint16][]int64
}

func newFreeList() *freeList {
	return &freeList{buckets: map[uint16][]int64{}}
}

func loadFreeList(path string) (*freeList, error) {
	fl := newFreeList()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return fl, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open free-list file %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ";", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("malformed free-list line %q in %s", line, path)
		}
		offset, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed free-list offset in line %q", line)
		}
		numNodes, err := strconv.ParseUint(parts[1], 10, 16)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed free-list node count in line %q", line)
		}
		fl.push(uint16(numNodes), offset)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "unable to read free-list file %s", path)
	}

	return fl, nil
}

func (fl *freeList) save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create free-list file %s", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for numNodes, offsets := range fl.buckets {
		for _, offset := range offsets {
			if _, err := fmt.Fprintf(w, "%d;%d\n", offset, numNodes); err != nil {
				return errors.Wrapf(err, "unable to write free-list entry for %s", path)
			}
		}
	}
	return errors.Wrapf(w.Flush(), "unable to flush free-list file %s", path)
}

// push records offset as reusable for a way with exactly numNodes nodes.
func (fl *freeList) push(numNodes uint16, offset int64) {
	fl.buckets[numNodes] = append(fl.buckets[numNodes], offset)
}

// pop returns a reusable offset for numNodes, if one exists.
func (fl *freeList) pop(numNodes uint16) (int64, bool) {
	bucket := fl.buckets[numNodes]
	if len(bucket) == 0 {
		return 0, false
	}
	offset := bucket[len(bucket)-1]
	fl.buckets[numNodes] = bucket[:len(bucket)-1]
	return offset, true
}
