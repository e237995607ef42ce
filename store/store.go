// Package store implements a packed, direct-offset on-disk database: a
// node coordinate file addressed by id×8, a way index/data pair
// addressed by id×5 with a free-list of recyclable way.data slots, and
// one structured-text file per relation under a 3/3/3 directory split.
//
// The same
// file names, the same "don't seek if we're already there" discipline
// (carried here by rwbuf.RandomIO), and the same absent-sentinel
// convention (a stored record of all-zero bytes, not a zero decimicro
// value — decimicro 0 still round-trips through the +1.8e9 shift to a
// nonzero byte pattern, so a real coordinate at 0,0 is never confused
// with "absent").
package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"

	"osmreplica/filelock"
	"osmreplica/model"
	"osmreplica/rwbuf"
)

const (
	nodeCrdFile = "node.crd"
	wayIdxFile  = "way.idx"
	wayDataFile = "way.data"
	wayFreeFile = "way.free"
	relationDir = "relation"
	lockFile    = "update.lock"

	// wayDataReserved is the 2-byte sentinel prefix of way.data so offset
	// 0 never looks like a valid record.
	wayDataReservedSize = 2

	// smallGapThreshold bounds how far a read or write will cross a
	// sparse gap by emitting/discarding bytes instead of seeking; beyond
	// it a seek is cheaper than materializing the skipped region.
	smallGapThreshold = 4096
)

var wayDataReserved = [wayDataReservedSize]byte{'-', '-'}

// Mode selects whether Open acquires the single-writer lock.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// Store is the packed on-disk database. Not safe for concurrent use; the
// pipeline serializes access to a single Store via the update.lock file
// and in-process callers should do the same with a mutex.
type Store struct {
	dir  string
	mode Mode

	nodeCrd *rwbuf.RandomIO
	wayIdx  *rwbuf.RandomIO
	wayData *rwbuf.RandomIO

	// wayIdxInitialSize starts at way.idx's size at Open time and grows
	// with every write; WriteWay compares a candidate offset against it
	// to decide whether a delete pass is worth attempting.
	wayIdxInitialSize int64
	wayDataSize       int64

	free *freeList
	lock *filelock.Lock
}

// Stats is a point-in-time summary of the way files and the free-list;
// it has no counterpart in the on-disk format itself.
type Stats struct {
	WayIdxSize  int64
	WayDataSize int64
	FreeSlots   int
}

// Init creates an empty store at dir: the three packed files (way.data
// pre-seeded with its reserved 2-byte sentinel), an empty free-list, and
// the relation directory root.
func Init(dir string) error {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return errors.Wrapf(err, "unable to create store directory %s", dir)
	}
	if err := os.MkdirAll(filepath.Join(dir, relationDir), 0777); err != nil {
		return errors.Wrapf(err, "unable to create relation directory under %s", dir)
	}

	for _, name := range []string{nodeCrdFile, wayIdxFile, wayFreeFile} {
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			return errors.Wrapf(err, "unable to create %s", name)
		}
		f.Close()
	}

	wd, err := os.OpenFile(filepath.Join(dir, wayDataFile), os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return errors.Wrap(err, "unable to create way.data")
	}
	defer wd.Close()
	if _, err := wd.Write(wayDataReserved[:]); err != nil {
		return errors.Wrap(err, "unable to write way.data sentinel")
	}

	return nil
}

// Open opens an existing store. ReadWrite acquires the update.lock
// single-writer guard and fails immediately if another process already
// holds it.
func Open(dir string, mode Mode) (*Store, error) {
	s := &Store{dir: dir, mode: mode}

	if mode == ReadWrite {
		s.lock = filelock.New(filepath.Join(dir, lockFile))
		ok, err := s.lock.TryLock()
		if err != nil {
			return nil, errors.Wrapf(err, "unable to acquire store lock in %s", dir)
		}
		if !ok {
			return nil, errors.Errorf("store %s is already open for writing", dir)
		}
	}

	var err error
	if s.nodeCrd, err = openBuffered(filepath.Join(dir, nodeCrdFile), mode); err != nil {
		s.releaseLock()
		return nil, err
	}
	if s.wayIdx, err = openBuffered(filepath.Join(dir, wayIdxFile), mode); err != nil {
		s.releaseLock()
		return nil, err
	}
	if s.wayData, err = openBuffered(filepath.Join(dir, wayDataFile), mode); err != nil {
		s.releaseLock()
		return nil, err
	}

	if info, err := os.Stat(filepath.Join(dir, wayIdxFile)); err == nil {
		s.wayIdxInitialSize = info.Size()
	}
	if info, err := os.Stat(filepath.Join(dir, wayDataFile)); err == nil {
		s.wayDataSize = info.Size()
	} else {
		s.wayDataSize = wayDataReservedSize
	}

	s.free, err = loadFreeList(filepath.Join(dir, wayFreeFile))
	if err != nil {
		s.releaseLock()
		return nil, err
	}

	return s, nil
}

func openBuffered(path string, mode Mode) (*rwbuf.RandomIO, error) {
	if mode == ReadWrite {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0666)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to open %s for writing", path)
		}
		return rwbuf.NewWriter(f)
	}
	f, err := os.OpenFile(path, os.O_RDONLY, 0666)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s for reading", path)
	}
	return rwbuf.NewReader(f)
}

func (s *Store) releaseLock() {
	if s.lock != nil {
		s.lock.Unlock()
	}
}

// Close flushes and persists the free-list (write mode only) and
// releases the update.lock.
func (s *Store) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.mode == ReadWrite {
		record(s.free.save(filepath.Join(s.dir, wayFreeFile)))
	}
	record(s.nodeCrd.Close())
	record(s.wayIdx.Close())
	record(s.wayData.Close())
	s.releaseLock()

	return firstErr
}

func (s *Store) Stats() Stats {
	free := 0
	for _, bucket := range s.free.buckets {
		free += len(bucket)
	}
	return Stats{WayIdxSize: s.wayIdxInitialSize, WayDataSize: s.wayDataSize, FreeSlots: free}
}

// --- low-level sparse helpers -------------------------------------------------

// seekTo moves rw's position to offset, preferring to stay within the
// buffer for small forward gaps (discarding in read mode, the caller
// zero-pads in write mode) rather than forcing a seek.
func seekTo(rw *rwbuf.RandomIO, offset int64) error {
	delta := offset - rw.StreamPosition()
	if delta >= 0 && delta <= smallGapThreshold && rw.IsReadMode() {
		return rw.SeekRelative(delta)
	}
	if delta == 0 {
		return nil
	}
	return rw.Seek(offset)
}

// readRecord reads size bytes at offset, treating a short read that hits
// EOF as the sparse-file zero-fill a writer never reached.
func readRecord(rw *rwbuf.RandomIO, offset int64, size int) ([]byte, error) {
	if err := seekTo(rw, offset); err != nil {
		if errors.Is(err, io.EOF) {
			// Skipping forward ran off the end of the file: the record
			// lies in the sparse tail a writer never reached.
			return make([]byte, size), nil
		}
		return nil, err
	}
	buf := make([]byte, size)
	n, err := io.ReadFull(rw, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			for i := n; i < size; i++ {
				buf[i] = 0
			}
			return buf, nil
		}
		return nil, err
	}
	return buf, nil
}

// writeRecord writes data at offset. A small forward gap is bridged by
// emitting zero bytes first so the sparse hole is never violated
// mid-buffer; a larger gap or a backward move seeks instead.
func writeRecord(rw *rwbuf.RandomIO, offset int64, data []byte) error {
	delta := offset - rw.StreamPosition()
	switch {
	case delta == 0:
		// already positioned
	case delta > 0 && delta <= smallGapThreshold:
		if _, err := rw.Write(make([]byte, delta)); err != nil {
			return errors.Wrap(err, "unable to zero-pad sparse gap")
		}
	default:
		if err := rw.Seek(offset); err != nil {
			return err
		}
	}
	_, err := rw.Write(data)
	return err
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func checkID(id uint64) error {
	if id > model.MaxPackedID {
		return errors.Wrapf(model.ErrIntegrityOverflow, "id %d", id)
	}
	return nil
}

// --- node --------------------------------------------------------------------

// ReadNode returns the node's stored coordinates, or ok=false if absent.
// This is a plain backing-store read with no memoization: read-through
// caching of resolved fragments is layered on top by the osmcache
// package, which wraps a Store as its Resolver rather than Store
// caching internally.
func (s *Store) ReadNode(id osm.NodeID) (model.Node, bool, error) {
	if err := checkID(uint64(id)); err != nil {
		return model.Node{}, false, err
	}
	offset := int64(id) * nodeCrdRecordSize
	buf, err := readRecord(s.nodeCrd, offset, nodeCrdRecordSize)
	if err != nil {
		return model.Node{}, false, errors.Wrapf(err, "unable to read node %d", id)
	}
	if allZero(buf) {
		return model.Node{}, false, nil
	}
	var latB, lonB [4]byte
	copy(latB[:], buf[0:4])
	copy(lonB[:], buf[4:8])
	return model.Node{ID: id, DecimicroLat: bytesToCoord(latB), DecimicroLon: bytesToCoord(lonB)}, true, nil
}

// WriteNode always writes; callers that want delete semantics use
// UpdateNode with model.ActionDelete.
func (s *Store) WriteNode(n model.Node) error {
	if err := checkID(uint64(n.ID)); err != nil {
		return err
	}
	offset := int64(n.ID) * nodeCrdRecordSize
	latB := coordToBytes(n.DecimicroLat)
	lonB := coordToBytes(n.DecimicroLon)
	data := append(append([]byte{}, latB[:]...), lonB[:]...)
	if err := writeRecord(s.nodeCrd, offset, data); err != nil {
		return errors.Wrapf(err, "unable to write node %d", n.ID)
	}
	return nil
}

func (s *Store) deleteNode(id osm.NodeID) error {
	offset := int64(id) * nodeCrdRecordSize
	return errors.Wrapf(writeRecord(s.nodeCrd, offset, make([]byte, nodeCrdRecordSize)), "unable to delete node %d", id)
}

// UpdateNode applies a change-file action: Create and Modify both write
// through, Delete zeroes the record.
func (s *Store) UpdateNode(n model.Node, action model.Action) error {
	if action == model.ActionDelete {
		return s.deleteNode(n.ID)
	}
	return s.WriteNode(n)
}

// --- way -----------------------------------------------------------------

// ReadWay returns only the ordered node-id list; tags are never
// persisted.
func (s *Store) ReadWay(id osm.WayID) (model.Way, bool, error) {
	if err := checkID(uint64(id)); err != nil {
		return model.Way{}, false, err
	}

	idxOffset := int64(id) * wayPtrSize
	idxBuf, err := readRecord(s.wayIdx, idxOffset, wayPtrSize)
	if err != nil {
		return model.Way{}, false, errors.Wrapf(err, "unable to read way.idx for way %d", id)
	}
	if allZero(idxBuf) {
		return model.Way{}, false, nil
	}
	var ptr [5]byte
	copy(ptr[:], idxBuf)
	dataOffset := int64(bytesToInt40(ptr))

	countBuf, err := readRecord(s.wayData, dataOffset, 2)
	if err != nil {
		return model.Way{}, false, errors.Wrapf(err, "unable to read way.data header for way %d", id)
	}
	var countB [2]byte
	copy(countB[:], countBuf)
	count := bytesToUint16(countB)
	if count == 0 {
		return model.Way{}, false, errors.Wrapf(model.ErrInputCorrupt, "way %d has a live pointer but zero node count", id)
	}

	nodesBuf, err := readRecord(s.wayData, dataOffset+2, int(count)*nodeIDSize)
	if err != nil {
		return model.Way{}, false, errors.Wrapf(err, "unable to read way.data nodes for way %d", id)
	}
	nodes := make([]osm.NodeID, count)
	for i := 0; i < int(count); i++ {
		var nb [5]byte
		copy(nb[:], nodesBuf[i*nodeIDSize:(i+1)*nodeIDSize])
		nodes[i] = osm.NodeID(bytesToInt40(nb))
	}

	return model.Way{ID: id, Nodes: nodes}, true, nil
}

// WriteWay deletes any prior record for the id (if it could possibly be
// present), then allocates a slot from the free-list (by exact node
// count) or extends way.data, and updates way.idx.
func (s *Store) WriteWay(w model.Way) error {
	if err := checkID(uint64(w.ID)); err != nil {
		return err
	}
	if len(w.Nodes) > 1<<16-1 {
		return errors.Errorf("way %d has %d nodes, exceeds the 2-byte node count", w.ID, len(w.Nodes))
	}

	idxOffset := int64(w.ID) * wayPtrSize
	if idxOffset < s.wayIdxInitialSize {
		if err := s.deleteWay(w.ID); err != nil {
			return err
		}
	}

	numNodes := uint16(len(w.Nodes))
	offset, reused := s.free.pop(numNodes)
	if !reused {
		offset = s.wayDataSize
	}

	record := make([]byte, 0, 2+len(w.Nodes)*nodeIDSize)
	countB := uint16ToBytes(numNodes)
	record = append(record, countB[:]...)
	for _, nodeID := range w.Nodes {
		b := int40ToBytes(uint64(nodeID))
		record = append(record, b[:]...)
	}

	if err := writeRecord(s.wayData, offset, record); err != nil {
		return errors.Wrapf(err, "unable to write way.data for way %d", w.ID)
	}
	if !reused {
		s.wayDataSize = offset + int64(len(record))
	}

	ptr := int40ToBytes(uint64(offset))
	if err := writeRecord(s.wayIdx, idxOffset, ptr[:]); err != nil {
		return errors.Wrapf(err, "unable to write way.idx for way %d", w.ID)
	}
	if idxOffset+wayPtrSize > s.wayIdxInitialSize {
		s.wayIdxInitialSize = idxOffset + wayPtrSize
	}

	return nil
}

// deleteWay zeroes the way's way.idx slot and way.data count, recycling
// the vacated offset into the free-list under its former node count.
func (s *Store) deleteWay(id osm.WayID) error {
	idxOffset := int64(id) * wayPtrSize
	idxBuf, err := readRecord(s.wayIdx, idxOffset, wayPtrSize)
	if err != nil {
		return errors.Wrapf(err, "unable to read way.idx while deleting way %d", id)
	}
	if allZero(idxBuf) {
		return nil
	}
	var ptr [5]byte
	copy(ptr[:], idxBuf)
	dataOffset := int64(bytesToInt40(ptr))

	countBuf, err := readRecord(s.wayData, dataOffset, 2)
	if err != nil {
		return errors.Wrapf(err, "unable to read way.data header while deleting way %d", id)
	}
	var countB [2]byte
	copy(countB[:], countBuf)
	count := bytesToUint16(countB)
	if count == 0 {
		return errors.Wrapf(model.ErrInputCorrupt, "way %d has a live pointer but zero node count", id)
	}

	s.free.push(count, dataOffset)

	if err := writeRecord(s.wayData, dataOffset, make([]byte, 2)); err != nil {
		return errors.Wrapf(err, "unable to zero way.data header while deleting way %d", id)
	}
	if err := writeRecord(s.wayIdx, idxOffset, make([]byte, wayPtrSize)); err != nil {
		return errors.Wrapf(err, "unable to zero way.idx while deleting way %d", id)
	}
	return nil
}

// UpdateWay applies a change-file action.
func (s *Store) UpdateWay(w model.Way, action model.Action) error {
	if action == model.ActionDelete {
		return s.deleteWay(w.ID)
	}
	return s.WriteWay(w)
}

// --- relation --------------------------------------------------------------

func (s *Store) ReadRelation(id osm.RelationID) (model.Relation, bool, error) {
	if err := checkID(uint64(id)); err != nil {
		return model.Relation{}, false, err
	}
	return readRelationFile(s.dir, id)
}

func (s *Store) WriteRelation(r model.Relation) error {
	if err := checkID(uint64(r.ID)); err != nil {
		return err
	}
	return writeRelationFile(s.dir, r)
}

func (s *Store) deleteRelation(id osm.RelationID) error {
	return deleteRelationFile(s.dir, id)
}

// UpdateRelation applies a change-file action.
func (s *Store) UpdateRelation(r model.Relation, action model.Action) error {
	if action == model.ActionDelete {
		return s.deleteRelation(r.ID)
	}
	return s.WriteRelation(r)
}

// --- full resolution ---------------------------------------------------------

// ReadWayFull reads the way and sets its Bound to the box spanning the
// stored coordinates of its nodes. w.Nodes is returned unchanged; nodes
// the store no longer has (a dangling reference) are silently left out
// of the box, symmetric with how ReadRelationFull treats cycles.
func (s *Store) ReadWayFull(id osm.WayID) (model.Way, bool, error) {
	w, ok, err := s.ReadWay(id)
	if err != nil || !ok {
		return w, ok, err
	}

	bound := (*model.BoundingBox)(nil)
	for _, nodeID := range w.Nodes {
		n, ok, err := s.ReadNode(nodeID)
		if err != nil {
			return model.Way{}, false, err
		}
		if !ok {
			continue
		}
		pb := model.PointBox(n.DecimicroLat, n.DecimicroLon)
		bound = model.UnionBBox(bound, &pb)
	}
	w.Bound = bound
	return w, true, nil
}

// ReadRelationFull recursively resolves a relation's bounding box by
// walking its members. Relation self- or cycle-references are detected
// via the ancestor chain on the call stack and dropped rather than
// raised as an error, exactly as the bbox pass does it.
func (s *Store) ReadRelationFull(id osm.RelationID) (model.Relation, bool, error) {
	r, ok, err := s.ReadRelation(id)
	if err != nil || !ok {
		return r, ok, err
	}
	bound, err := s.relationBound(r, []osm.RelationID{id})
	if err != nil {
		return model.Relation{}, false, err
	}
	r.Bound = bound
	return r, true, nil
}

func (s *Store) relationBound(r model.Relation, ancestors []osm.RelationID) (*model.BoundingBox, error) {
	var bound *model.BoundingBox
	for _, m := range r.Members {
		var mb *model.BoundingBox
		var err error
		switch m.Type {
		case osm.TypeNode:
			n, ok, rerr := s.ReadNode(osm.NodeID(m.Ref))
			err = rerr
			if rerr == nil && ok {
				pb := model.PointBox(n.DecimicroLat, n.DecimicroLon)
				mb = &pb
			}
		case osm.TypeWay:
			w, ok, rerr := s.ReadWayFull(osm.WayID(m.Ref))
			err = rerr
			if rerr == nil && ok {
				mb = w.Bound
			}
		case osm.TypeRelation:
			mb, err = s.resolveMemberRelation(osm.RelationID(m.Ref), ancestors)
		default:
			sigolo.Debugf("relation %d has member of unsupported type %q, ignoring", r.ID, m.Type)
		}
		if err != nil {
			return nil, err
		}
		bound = model.UnionBBox(bound, mb)
	}
	return bound, nil
}

func (s *Store) resolveMemberRelation(id osm.RelationID, ancestors []osm.RelationID) (*model.BoundingBox, error) {
	for _, a := range ancestors {
		if a == id {
			sigolo.Debugf("detected relation recursion on id=%d, ancestors=%v", id, ancestors)
			return nil, nil
		}
	}
	sub, ok, err := s.ReadRelation(id)
	if err != nil || !ok {
		return nil, err
	}
	return s.relationBound(sub, append(append([]osm.RelationID{}, ancestors...), id))
}

// --- check -------------------------------------------------------------------

// CheckResult describes the first dangling reference found by Check, if any.
type CheckResult struct {
	RelationID osm.RelationID
	Ancestors  []osm.RelationID
	Missing    string // e.g. "way 12345" or "node 9"
}

// Check walks the relation directory from the 9-digit prefix ≥ startID
// in lexicographic order and verifies every referenced node, way, and
// descendant relation resolves. It reports the first failing reference
// and the top-level relation it was reached from; CheckResult.Ancestors
// holds only that relation's id, not the sub-relations in between.
// Relation self-reference is silently skipped, consistent with the read
// path.
func (s *Store) Check(startID uint64) (*CheckResult, error) {
	root := filepath.Join(s.dir, relationDir)
	startParts := relationPathPrefix(startID)

	var result *CheckResult
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if result != nil {
			return filepath.SkipAll
		}
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel < startParts {
			return nil
		}

		id, err := parseRelationPath(rel)
		if err != nil {
			return errors.Wrapf(model.ErrInputCorrupt, "relation path %s: %v", rel, err)
		}

		r, ok, err := s.ReadRelation(osm.RelationID(id))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if missing := s.checkRelation(r, []osm.RelationID{r.ID}); missing != "" {
			result = &CheckResult{RelationID: r.ID, Ancestors: []osm.RelationID{r.ID}, Missing: missing}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to walk relation directory")
	}
	return result, nil
}

func (s *Store) checkRelation(r model.Relation, ancestors []osm.RelationID) string {
	for _, m := range r.Members {
		switch m.Type {
		case osm.TypeNode:
			if _, ok, _ := s.ReadNode(osm.NodeID(m.Ref)); !ok {
				return fmt.Sprintf("node %d", m.Ref)
			}
		case osm.TypeWay:
			if _, ok, _ := s.ReadWay(osm.WayID(m.Ref)); !ok {
				return fmt.Sprintf("way %d", m.Ref)
			}
		case osm.TypeRelation:
			id := osm.RelationID(m.Ref)
			isCycle := false
			for _, a := range ancestors {
				if a == id {
					isCycle = true
					break
				}
			}
			if isCycle {
				continue
			}
			sub, ok, _ := s.ReadRelation(id)
			if !ok {
				return fmt.Sprintf("relation %d", m.Ref)
			}
			if missing := s.checkRelation(sub, append(append([]osm.RelationID{}, ancestors...), id)); missing != "" {
				return missing
			}
		}
	}
	return ""
}

func relationPathPrefix(id uint64) string {
	a, b, c := relationPathParts(id)
	return filepath.Join(a, b, c)
}

func parseRelationPath(rel string) (uint64, error) {
	a, b, c := splitPathParts(rel)
	var id uint64
	for _, part := range []string{a, b, c} {
		for _, r := range part {
			if r < '0' || r > '9' {
				return 0, errors.Errorf("non-numeric path component %q", part)
			}
			id = id*10 + uint64(r-'0')
		}
	}
	return id, nil
}

func splitPathParts(rel string) (a, b, c string) {
	segs := make([]string, 0, 3)
	cur := rel
	for len(segs) < 3 {
		idx := indexByte(cur, filepath.Separator)
		if idx < 0 {
			segs = append(segs, cur)
			break
		}
		segs = append(segs, cur[:idx])
		cur = cur[idx+1:]
	}
	for len(segs) < 3 {
		segs = append(segs, "")
	}
	return segs[0], segs[1], segs[2]
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// --- bulk import / change application ---------------------------------------

// Source streams entities for Import in nodes -> ways -> relations
// order, the source's own invariant, as a single push-based callback
// rather than a multi-handler fan-out, since the store is the only
// consumer of a bulk import; osmio.EntitySource (from OpenPbf or
// OpenXml) implements it.
type Source interface {
	Read(nodeFn func(model.Node) error, wayFn func(model.Way) error, relFn func(model.Relation) error) error
}

// Import drives src to populate the store. The free-list is persisted on
// Close, not here, so a caller may Import from several files in sequence.
func (s *Store) Import(src Source) error {
	return errors.Wrap(src.Read(s.WriteNode, s.WriteWay, s.WriteRelation), "import failed")
}

// ChangeSource streams change-file entities for Update, each carrying the
// action it was created, modified, or deleted under.
type ChangeSource interface {
	ReadChanges(
		nodeFn func(model.Node, model.Action) error,
		wayFn func(model.Way, model.Action) error,
		relFn func(model.Relation, model.Action) error,
	) error
}

// Update applies every change in src via the corresponding Update*
// operation.
func (s *Store) Update(src ChangeSource) error {
	return errors.Wrap(src.ReadChanges(s.UpdateNode, s.UpdateWay, s.UpdateRelation), "update failed")
}
