package osmcache

import (
	"testing"

	"github.com/paulmach/osm"

	"osmreplica/model"
)

type fakeResolver struct {
	nodes map[osm.NodeID]model.Node
}

func (f fakeResolver) ReadNode(id osm.NodeID) (model.Node, bool, error) {
	n, ok := f.nodes[id]
	return n, ok, nil
}

func (f fakeResolver) ReadWay(id osm.WayID) (model.Way, bool, error) {
	return model.Way{}, false, nil
}

func (f fakeResolver) ReadRelation(id osm.RelationID) (model.Relation, bool, error) {
	return model.Relation{}, false, nil
}

func TestBuilderResolvesThroughSourceOnce(t *testing.T) {
	src := fakeResolver{nodes: map[osm.NodeID]model.Node{
		1: {ID: 1, DecimicroLat: 10, DecimicroLon: 20},
	}}
	b := NewBuilder(src)

	n, ok, err := b.Node(1)
	if err != nil || !ok || n.DecimicroLat != 10 {
		t.Fatalf("Node(1) = %+v, %v, %v", n, ok, err)
	}

	_, ok, err = b.Node(2)
	if err != nil || ok {
		t.Fatalf("Node(2) should resolve absent, got ok=%v err=%v", ok, err)
	}

	cache := b.Freeze()
	got, ok, err := cache.ReadNode(1)
	if err != nil || !ok || got.DecimicroLat != 10 {
		t.Fatalf("cache.ReadNode(1) = %+v, %v, %v", got, ok, err)
	}
	_, ok, _ = cache.ReadNode(2)
	if ok {
		t.Fatal("expected node 2 to be absent in frozen cache")
	}
}

func TestCachePanicsOnUncoveredID(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for an id never resolved by the builder")
		}
	}()
	cache := NewBuilder(fakeResolver{nodes: map[osm.NodeID]model.Node{}}).Freeze()
	_, _, _ = cache.ReadNode(42)
}
