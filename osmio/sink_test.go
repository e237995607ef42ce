package osmio

import (
	"path/filepath"
	"testing"

	"github.com/paulmach/osm"

	"osmreplica/model"
)

func TestSinkThenSourceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.osc")

	sink, err := CreateXmlSink(path)
	if err != nil {
		t.Fatalf("CreateXmlSink: %v", err)
	}

	if err := sink.WriteNode(model.Node{ID: 1, DecimicroLat: 10, DecimicroLon: 20}, model.ActionCreate); err != nil {
		t.Fatalf("WriteNode: %v", err)
	}
	if err := sink.WriteNode(model.Node{ID: 2, DecimicroLat: 30, DecimicroLon: 40}, model.ActionCreate); err != nil {
		t.Fatalf("WriteNode 2: %v", err)
	}
	bound := &model.BoundingBox{MinLat: 10, MaxLat: 30, MinLon: 20, MaxLon: 40}
	way := model.Way{ID: 5, Nodes: []osm.NodeID{1, 2}, Bound: bound}
	if err := sink.WriteWay(way, model.ActionModify); err != nil {
		t.Fatalf("WriteWay: %v", err)
	}
	if err := sink.WriteNode(model.Node{ID: 3}, model.ActionDelete); err != nil {
		t.Fatalf("WriteNode delete: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	src, err := OpenChange(path)
	if err != nil {
		t.Fatalf("OpenChange: %v", err)
	}
	defer src.Close()

	var gotNodes []model.Node
	var gotNodeActions []model.Action
	var gotWays []model.Way

	err = src.ReadChanges(
		func(n model.Node, a model.Action) error {
			gotNodes = append(gotNodes, n)
			gotNodeActions = append(gotNodeActions, a)
			return nil
		},
		func(w model.Way, a model.Action) error {
			gotWays = append(gotWays, w)
			if a != model.ActionModify {
				t.Errorf("way action = %v, want Modify", a)
			}
			return nil
		},
		func(r model.Relation, a model.Action) error { return nil },
	)
	if err != nil {
		t.Fatalf("ReadChanges: %v", err)
	}

	if len(gotNodes) != 3 {
		t.Fatalf("got %d nodes, want 3", len(gotNodes))
	}
	if gotNodeActions[0] != model.ActionCreate || gotNodeActions[2] != model.ActionDelete {
		t.Fatalf("unexpected actions: %v", gotNodeActions)
	}
	if gotNodes[1].ID != 2 || gotNodes[1].DecimicroLat != 30 {
		t.Fatalf("unexpected node 2: %+v", gotNodes[1])
	}

	if len(gotWays) != 1 || len(gotWays[0].Nodes) != 2 {
		t.Fatalf("unexpected ways: %+v", gotWays)
	}
	if gotWays[0].Bound == nil || gotWays[0].Bound.MaxLon != 40 {
		t.Fatalf("expected bbox to round-trip, got %+v", gotWays[0].Bound)
	}
}

func TestSinkGzipSuffix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.osc.gz")

	sink, err := CreateXmlSink(path)
	if err != nil {
		t.Fatalf("CreateXmlSink: %v", err)
	}
	if err := sink.WriteNode(model.Node{ID: 1, DecimicroLat: 1, DecimicroLon: 2}, model.ActionCreate); err != nil {
		t.Fatalf("WriteNode: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	src, err := OpenChange(path)
	if err != nil {
		t.Fatalf("OpenChange: %v", err)
	}
	defer src.Close()

	count := 0
	err = src.ReadChanges(
		func(n model.Node, a model.Action) error { count++; return nil },
		func(w model.Way, a model.Action) error { return nil },
		func(r model.Relation, a model.Action) error { return nil },
	)
	if err != nil {
		t.Fatalf("ReadChanges: %v", err)
	}
	if count != 1 {
		t.Fatalf("got %d nodes, want 1", count)
	}
}
