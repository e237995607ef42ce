package enrich

import (
	"testing"

	"github.com/paulmach/osm"

	"osmreplica/model"
)

type fakeResolver struct {
	nodes     map[osm.NodeID]model.Node
	ways      map[osm.WayID]model.Way
	relations map[osm.RelationID]model.Relation
}

func (f *fakeResolver) ReadNode(id osm.NodeID) (model.Node, bool, error) {
	n, ok := f.nodes[id]
	return n, ok, nil
}

func (f *fakeResolver) ReadWay(id osm.WayID) (model.Way, bool, error) {
	w, ok := f.ways[id]
	return w, ok, nil
}

func (f *fakeResolver) ReadRelation(id osm.RelationID) (model.Relation, bool, error) {
	r, ok := f.relations[id]
	return r, ok, nil
}

type recordedWrite struct {
	kind   string
	id     int64
	bound  *model.BoundingBox
	action model.Action
}

type captureSink struct {
	writes []recordedWrite
}

func (c *captureSink) WriteNode(n model.Node, action model.Action) error {
	c.writes = append(c.writes, recordedWrite{kind: "node", id: int64(n.ID), bound: n.Bound, action: action})
	return nil
}

func (c *captureSink) WriteWay(w model.Way, action model.Action) error {
	c.writes = append(c.writes, recordedWrite{kind: "way", id: int64(w.ID), bound: w.Bound, action: action})
	return nil
}

func (c *captureSink) WriteRelation(r model.Relation, action model.Action) error {
	c.writes = append(c.writes, recordedWrite{kind: "relation", id: int64(r.ID), bound: r.Bound, action: action})
	return nil
}

// TestNodeBBoxCombinesOldAndNew exercises a change where two
// previously-absent nodes get real coordinates for the first time, then
// a way referencing them (plus a pre-existing third node) is enriched
// and must span all three.
func TestNodeBBoxCombinesOldAndNew(t *testing.T) {
	src := &fakeResolver{
		nodes: map[osm.NodeID]model.Node{
			// node 3 already existed in the store before this change.
			3: {ID: 3, DecimicroLat: 100, DecimicroLon: 200},
		},
		ways: map[osm.WayID]model.Way{},
	}
	sink := &captureSink{}
	e := NewBBoxEnricher(sink, src)

	n1 := model.Node{ID: 2619283348, DecimicroLat: 500, DecimicroLon: -500}
	n2 := model.Node{ID: 2619283354, DecimicroLat: 600, DecimicroLon: -600}

	if err := e.Node(n1, model.ActionCreate); err != nil {
		t.Fatalf("Node 1: %v", err)
	}
	if err := e.Node(n2, model.ActionCreate); err != nil {
		t.Fatalf("Node 2: %v", err)
	}

	way := model.Way{ID: 255316716, Nodes: []osm.NodeID{2619283348, 2619283354, 3}}
	if err := e.Way(way, model.ActionModify); err != nil {
		t.Fatalf("Way: %v", err)
	}

	if len(sink.writes) != 3 {
		t.Fatalf("got %d writes, want 3", len(sink.writes))
	}

	wayWrite := sink.writes[2]
	if wayWrite.bound == nil {
		t.Fatal("way bbox not set")
	}
	want := model.BoundingBox{MinLat: 100, MaxLat: 600, MinLon: -600, MaxLon: 200}
	if *wayWrite.bound != want {
		t.Fatalf("way bbox = %+v, want %+v", *wayWrite.bound, want)
	}

	// Node bboxes were recorded for later lookups within the same pass.
	if sink.writes[0].bound == nil || sink.writes[0].bound.MaxLat != 500 {
		t.Fatalf("unexpected node 1 bbox: %+v", sink.writes[0].bound)
	}
}

// TestNodeBBoxUnionsPreviousStoredPosition covers a node that already
// had coordinates in the store and is moved: its bbox must span both
// its old and new position.
func TestNodeBBoxUnionsPreviousStoredPosition(t *testing.T) {
	src := &fakeResolver{
		nodes: map[osm.NodeID]model.Node{
			1: {ID: 1, DecimicroLat: 10, DecimicroLon: 10},
		},
	}
	sink := &captureSink{}
	e := NewBBoxEnricher(sink, src)

	if err := e.Node(model.Node{ID: 1, DecimicroLat: 50, DecimicroLon: 50}, model.ActionModify); err != nil {
		t.Fatalf("Node: %v", err)
	}

	got := sink.writes[0].bound
	want := model.BoundingBox{MinLat: 10, MaxLat: 50, MinLon: 10, MaxLon: 50}
	if got == nil || *got != want {
		t.Fatalf("bbox = %+v, want %+v", got, want)
	}
}

// TestDeletedNodeBBoxUsesOnlyStoredPosition covers a delete, whose
// incoming record carries no real coordinates: the bbox must come
// entirely from the node's last stored position.
func TestDeletedNodeBBoxUsesOnlyStoredPosition(t *testing.T) {
	src := &fakeResolver{
		nodes: map[osm.NodeID]model.Node{
			7: {ID: 7, DecimicroLat: 77, DecimicroLon: 77},
		},
	}
	sink := &captureSink{}
	e := NewBBoxEnricher(sink, src)

	if err := e.Node(model.Node{ID: 7}, model.ActionDelete); err != nil {
		t.Fatalf("Node: %v", err)
	}

	got := sink.writes[0].bound
	want := model.BoundingBox{MinLat: 77, MaxLat: 77, MinLon: 77, MaxLon: 77}
	if got == nil || *got != want {
		t.Fatalf("bbox = %+v, want %+v", got, want)
	}
}

// TestRelationBBoxGuardsAgainstCycle exercises the recursion guard:
// a relation that (indirectly) refers back to itself must still
// resolve without looping forever.
func TestRelationBBoxGuardsAgainstCycle(t *testing.T) {
	src := &fakeResolver{
		nodes: map[osm.NodeID]model.Node{
			1: {ID: 1, DecimicroLat: 1, DecimicroLon: 1},
		},
		relations: map[osm.RelationID]model.Relation{
			2: {ID: 2, Members: []model.Member{
				{Type: osm.TypeRelation, Ref: 1},
			}},
		},
	}
	sink := &captureSink{}
	e := NewBBoxEnricher(sink, src)

	r1 := model.Relation{ID: 1, Members: []model.Member{
		{Type: osm.TypeNode, Ref: 1},
		{Type: osm.TypeRelation, Ref: 2},
	}}
	if err := e.Relation(r1, model.ActionModify); err != nil {
		t.Fatalf("Relation: %v", err)
	}

	got := sink.writes[0].bound
	if got == nil || got.MinLat != 1 || got.MaxLat != 1 {
		t.Fatalf("bbox = %+v", got)
	}
}

func TestCacheExposesResolvedEntries(t *testing.T) {
	src := &fakeResolver{nodes: map[osm.NodeID]model.Node{
		1: {ID: 1, DecimicroLat: 5, DecimicroLon: 5},
	}}
	sink := &captureSink{}
	e := NewBBoxEnricher(sink, src)

	if err := e.Node(model.Node{ID: 1, DecimicroLat: 9, DecimicroLon: 9}, model.ActionModify); err != nil {
		t.Fatalf("Node: %v", err)
	}

	cache := e.Cache()
	n, ok, err := cache.ReadNode(1)
	if err != nil || !ok || n.DecimicroLat != 5 {
		t.Fatalf("cache should hold the pre-change node: %+v ok=%v err=%v", n, ok, err)
	}
}
