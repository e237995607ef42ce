package store

import (
	"testing"

	"github.com/paulmach/osm"

	"osmreplica/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	if err := Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	s, err := Open(dir, ReadWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Scenario 1: node round-trip.
func TestNodeRoundTrip(t *testing.T) {
	s := openTestStore(t)

	n := model.Node{ID: 266053077, DecimicroLat: 179031745, DecimicroLon: -628363074}
	if err := s.WriteNode(n); err != nil {
		t.Fatalf("WriteNode: %v", err)
	}

	got, ok, err := s.ReadNode(266053077)
	if err != nil {
		t.Fatalf("ReadNode: %v", err)
	}
	if !ok {
		t.Fatal("expected node to be present")
	}
	if got.DecimicroLat != n.DecimicroLat || got.DecimicroLon != n.DecimicroLon {
		t.Fatalf("got %+v, want %+v", got, n)
	}
}

// Scenario 2: way sparsity.
func TestWaySparsity(t *testing.T) {
	s := openTestStore(t)

	nodes := []osm.NodeID{2610107905, 2610107903, 2610107901, 2610107902, 2610107904, 2610107905}
	w := model.Way{ID: 255316725, Nodes: nodes}
	if err := s.WriteWay(w); err != nil {
		t.Fatalf("WriteWay: %v", err)
	}

	got, ok, err := s.ReadWay(255316725)
	if err != nil {
		t.Fatalf("ReadWay: %v", err)
	}
	if !ok {
		t.Fatal("expected way to be present")
	}
	if len(got.Nodes) != len(nodes) {
		t.Fatalf("got %d nodes, want %d", len(got.Nodes), len(nodes))
	}
	for i := range nodes {
		if got.Nodes[i] != nodes[i] {
			t.Fatalf("node %d: got %d, want %d", i, got.Nodes[i], nodes[i])
		}
	}

	_, ok, err = s.ReadWay(1)
	if err != nil {
		t.Fatalf("ReadWay(1): %v", err)
	}
	if ok {
		t.Fatal("expected way 1 to be absent")
	}
}

// Scenario 3: relation with tags.
func TestRelationWithTags(t *testing.T) {
	s := openTestStore(t)

	r := model.Relation{
		ID: 529891,
		Members: []model.Member{
			{Type: osm.TypeNode, Ref: 670634766, Role: ""},
			{Type: osm.TypeNode, Ref: 670634768, Role: ""},
		},
		Tags: osm.Tags{{Key: "name", Value: "Saint-Barthélemy III"}},
	}
	if err := s.WriteRelation(r); err != nil {
		t.Fatalf("WriteRelation: %v", err)
	}

	got, ok, err := s.ReadRelation(529891)
	if err != nil {
		t.Fatalf("ReadRelation: %v", err)
	}
	if !ok {
		t.Fatal("expected relation to be present")
	}
	if len(got.Members) != 2 || got.Members[0].Ref != 670634766 || got.Members[1].Ref != 670634768 {
		t.Fatalf("unexpected members: %+v", got.Members)
	}
	if got.Tags.Find("name") != "Saint-Barthélemy III" {
		t.Fatalf("expected name tag, got %+v", got.Tags)
	}
}

// Scenario 4: delete is sparse.
func TestDeleteNodeIsSparse(t *testing.T) {
	s := openTestStore(t)

	n := model.Node{ID: 266053077, DecimicroLat: 179031745, DecimicroLon: -628363074}
	if err := s.WriteNode(n); err != nil {
		t.Fatalf("WriteNode: %v", err)
	}
	if err := s.UpdateNode(n, model.ActionDelete); err != nil {
		t.Fatalf("UpdateNode delete: %v", err)
	}

	_, ok, err := s.ReadNode(266053077)
	if err != nil {
		t.Fatalf("ReadNode: %v", err)
	}
	if ok {
		t.Fatal("expected node to be absent after delete")
	}
}

// Scenario 5: way free-list reuse.
func TestWayFreeListReuse(t *testing.T) {
	s := openTestStore(t)

	nodesA := []osm.NodeID{1, 2, 3}
	a := model.Way{ID: 100, Nodes: nodesA}
	b := model.Way{ID: 200, Nodes: []osm.NodeID{4, 5, 6}}
	if err := s.WriteWay(a); err != nil {
		t.Fatalf("WriteWay a: %v", err)
	}
	if err := s.WriteWay(b); err != nil {
		t.Fatalf("WriteWay b: %v", err)
	}

	idxOffsetA := int64(a.ID) * wayPtrSize
	idxBufA, err := readRecord(s.wayIdx, idxOffsetA, wayPtrSize)
	if err != nil {
		t.Fatalf("readRecord idx a: %v", err)
	}
	var ptrA [5]byte
	copy(ptrA[:], idxBufA)
	offsetA := int64(bytesToInt40(ptrA))

	if err := s.UpdateWay(a, model.ActionDelete); err != nil {
		t.Fatalf("delete a: %v", err)
	}

	c := model.Way{ID: 300, Nodes: []osm.NodeID{7, 8, 9}}
	if err := s.WriteWay(c); err != nil {
		t.Fatalf("WriteWay c: %v", err)
	}

	idxOffsetC := int64(c.ID) * wayPtrSize
	idxBufC, err := readRecord(s.wayIdx, idxOffsetC, wayPtrSize)
	if err != nil {
		t.Fatalf("readRecord idx c: %v", err)
	}
	var ptrC [5]byte
	copy(ptrC[:], idxBufC)
	offsetC := int64(bytesToInt40(ptrC))

	if offsetC != offsetA {
		t.Fatalf("expected way C to reuse way A's offset %d, got %d", offsetA, offsetC)
	}
}

func TestReadWayFullResolvesNodes(t *testing.T) {
	s := openTestStore(t)

	if err := s.WriteNode(model.Node{ID: 1, DecimicroLat: 10, DecimicroLon: 20}); err != nil {
		t.Fatalf("WriteNode 1: %v", err)
	}
	if err := s.WriteNode(model.Node{ID: 2, DecimicroLat: -5, DecimicroLon: 30}); err != nil {
		t.Fatalf("WriteNode 2: %v", err)
	}
	if err := s.WriteWay(model.Way{ID: 42, Nodes: []osm.NodeID{1, 2}}); err != nil {
		t.Fatalf("WriteWay: %v", err)
	}

	w, ok, err := s.ReadWayFull(42)
	if err != nil {
		t.Fatalf("ReadWayFull: %v", err)
	}
	if !ok {
		t.Fatal("expected way 42 to be present")
	}
	if w.Bound == nil {
		t.Fatal("expected a resolved bounding box")
	}
	if w.Bound.MinLat != -5 || w.Bound.MaxLat != 10 || w.Bound.MinLon != 20 || w.Bound.MaxLon != 30 {
		t.Fatalf("unexpected bound: %+v", w.Bound)
	}
}

func TestReadRelationFullDropsCycle(t *testing.T) {
	s := openTestStore(t)

	// relation 1 references relation 2, which references relation 1 back.
	r1 := model.Relation{ID: 1, Members: []model.Member{{Type: osm.TypeRelation, Ref: 2}}}
	r2 := model.Relation{ID: 2, Members: []model.Member{{Type: osm.TypeRelation, Ref: 1}}}
	if err := s.WriteRelation(r1); err != nil {
		t.Fatalf("WriteRelation r1: %v", err)
	}
	if err := s.WriteRelation(r2); err != nil {
		t.Fatalf("WriteRelation r2: %v", err)
	}

	_, ok, err := s.ReadRelationFull(1)
	if err != nil {
		t.Fatalf("ReadRelationFull: %v", err)
	}
	if !ok {
		t.Fatal("expected relation 1 to resolve despite the cycle")
	}
}

func TestCheckDetectsDanglingReference(t *testing.T) {
	s := openTestStore(t)

	r := model.Relation{ID: 529891, Members: []model.Member{{Type: osm.TypeWay, Ref: 999999}}}
	if err := s.WriteRelation(r); err != nil {
		t.Fatalf("WriteRelation: %v", err)
	}

	result, err := s.Check(0)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result == nil {
		t.Fatal("expected a dangling reference to be reported")
	}
	if result.RelationID != 529891 {
		t.Fatalf("got relation %d, want 529891", result.RelationID)
	}
	if result.Missing != "way 999999" {
		t.Fatalf("got missing %q, want %q", result.Missing, "way 999999")
	}
}

func TestOpenReadWriteTwiceFailsLock(t *testing.T) {
	dir := t.TempDir()
	if err := Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}

	first, err := Open(dir, ReadWrite)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	defer first.Close()

	if _, err := Open(dir, ReadWrite); err == nil {
		t.Fatal("expected second writer to fail acquiring the lock")
	}
}
