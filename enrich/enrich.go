// Package enrich attaches a bounding box to every way and relation
// passing through a change pipeline before it reaches a PolygonFilter,
// so the filter never has to re-resolve member geometry from the
// store.
//
// Each entity's bbox is the union of (a) its bbox as it stood in the
// store before this change, (b) any bbox this same id was already given
// earlier in the same pass (a node/way can appear more than once
// across create/modify/delete groups), and (c) the incoming entity's
// own new geometry. Relation recursion carries an ancestor chain and
// aborts instead of looping.
package enrich

import (
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"

	"osmreplica/model"
	"osmreplica/osmcache"
)

// Sink is the subset of osmio.XmlSink a BBoxEnricher writes through.
type Sink interface {
	WriteNode(n model.Node, action model.Action) error
	WriteWay(w model.Way, action model.Action) error
	WriteRelation(r model.Relation, action model.Action) error
}

// BBoxEnricher sits between a change source and a Sink, attaching a
// bbox to every node/way/relation it forwards and recording it in its
// own modified-so-far maps so later entities in the same pass that
// reference an already-seen id pick up its new position, not a stale
// one still on disk.
type BBoxEnricher struct {
	sink    Sink
	builder *osmcache.Builder

	nodesModified     map[osm.NodeID]model.BoundingBox
	waysModified      map[osm.WayID]model.BoundingBox
	relationsModified map[osm.RelationID]model.BoundingBox
}

// NewBBoxEnricher wraps sink, resolving pre-change geometry through src.
func NewBBoxEnricher(sink Sink, src osmcache.Resolver) *BBoxEnricher {
	return &BBoxEnricher{
		sink:              sink,
		builder:           osmcache.NewBuilder(src),
		nodesModified:     map[osm.NodeID]model.BoundingBox{},
		waysModified:      map[osm.WayID]model.BoundingBox{},
		relationsModified: map[osm.RelationID]model.BoundingBox{},
	}
}

// Cache freezes everything resolved from the store during the pass.
// Call only after the pass is done; the builder must not be reused.
func (e *BBoxEnricher) Cache() *osmcache.Cache {
	return e.builder.Freeze()
}

func expandPoint(bbox *model.BoundingBox, n model.Node) *model.BoundingBox {
	if !n.Present() {
		return bbox
	}
	b := model.PointBox(n.DecimicroLat, n.DecimicroLon)
	return model.UnionBBox(bbox, &b)
}

func (e *BBoxEnricher) expandNodeID(bbox *model.BoundingBox, id osm.NodeID) (*model.BoundingBox, error) {
	if bb, ok := e.nodesModified[id]; ok {
		bbox = model.UnionBBox(bbox, &bb)
	}
	n, ok, err := e.builder.Node(id)
	if err != nil {
		return bbox, err
	}
	if ok {
		bbox = expandPoint(bbox, n)
	}
	return bbox, nil
}

func (e *BBoxEnricher) expandNode(n model.Node) (*model.BoundingBox, error) {
	bbox, err := e.expandNodeID(nil, n.ID)
	if err != nil {
		return nil, err
	}
	return expandPoint(bbox, n), nil
}

func (e *BBoxEnricher) expandWayOnly(bbox *model.BoundingBox, w model.Way) (*model.BoundingBox, error) {
	for _, id := range w.Nodes {
		var err error
		bbox, err = e.expandNodeID(bbox, id)
		if err != nil {
			return bbox, err
		}
	}
	return bbox, nil
}

func (e *BBoxEnricher) expandWayID(bbox *model.BoundingBox, id osm.WayID) (*model.BoundingBox, error) {
	if bb, ok := e.waysModified[id]; ok {
		bbox = model.UnionBBox(bbox, &bb)
	}
	w, ok, err := e.builder.Way(id)
	if err != nil {
		return bbox, err
	}
	if ok {
		return e.expandWayOnly(bbox, w)
	}
	return bbox, nil
}

func (e *BBoxEnricher) expandWay(w model.Way) (*model.BoundingBox, error) {
	bbox, err := e.expandWayID(nil, w.ID)
	if err != nil {
		return nil, err
	}
	return e.expandWayOnly(bbox, w)
}

func (e *BBoxEnricher) expandRelationOnly(bbox *model.BoundingBox, r model.Relation, ancestors []osm.RelationID) (*model.BoundingBox, error) {
	var err error
	for _, m := range r.Members {
		switch m.Type {
		case osm.TypeNode:
			bbox, err = e.expandNodeID(bbox, osm.NodeID(m.Ref))
		case osm.TypeWay:
			bbox, err = e.expandWayID(bbox, osm.WayID(m.Ref))
		case osm.TypeRelation:
			bbox, err = e.expandRelationID(bbox, osm.RelationID(m.Ref), ancestors)
		default:
			err = errors.Errorf("unsupported relation member type %q in relation %d", m.Type, r.ID)
		}
		if err != nil {
			return bbox, err
		}
	}
	return bbox, nil
}

func (e *BBoxEnricher) expandRelationID(bbox *model.BoundingBox, id osm.RelationID, ancestors []osm.RelationID) (*model.BoundingBox, error) {
	for _, a := range ancestors {
		if a == id {
			sigolo.Debugf("detected relation recursion on id=%d ancestors=%v", id, ancestors)
			return bbox, nil
		}
	}

	if bb, ok := e.relationsModified[id]; ok {
		bbox = model.UnionBBox(bbox, &bb)
	}

	r, ok, err := e.builder.Relation(id)
	if err != nil {
		return bbox, err
	}
	if !ok {
		return bbox, nil
	}

	next := make([]osm.RelationID, len(ancestors), len(ancestors)+1)
	copy(next, ancestors)
	next = append(next, id)
	return e.expandRelationOnly(bbox, r, next)
}

func (e *BBoxEnricher) expandRelation(r model.Relation) (*model.BoundingBox, error) {
	bbox, err := e.expandRelationID(nil, r.ID, nil)
	if err != nil {
		return nil, err
	}
	return e.expandRelationOnly(bbox, r, []osm.RelationID{r.ID})
}

// Node resolves n's bbox, records it, and forwards n to the sink. Its
// signature matches store.ChangeSource's nodeFn, so a BBoxEnricher can
// sit directly between a ChangeSource and an XmlSink.
func (e *BBoxEnricher) Node(n model.Node, action model.Action) error {
	bbox, err := e.expandNode(n)
	if err != nil {
		return errors.Wrapf(err, "resolving bbox for node %d", n.ID)
	}
	n.Bound = bbox
	if bbox != nil {
		e.nodesModified[n.ID] = *bbox
	}
	return e.sink.WriteNode(n, action)
}

func (e *BBoxEnricher) Way(w model.Way, action model.Action) error {
	bbox, err := e.expandWay(w)
	if err != nil {
		return errors.Wrapf(err, "resolving bbox for way %d", w.ID)
	}
	w.Bound = bbox
	if bbox != nil {
		e.waysModified[w.ID] = *bbox
	}
	return e.sink.WriteWay(w, action)
}

func (e *BBoxEnricher) Relation(r model.Relation, action model.Action) error {
	bbox, err := e.expandRelation(r)
	if err != nil {
		return errors.Wrapf(err, "resolving bbox for relation %d", r.ID)
	}
	r.Bound = bbox
	if bbox != nil {
		e.relationsModified[r.ID] = *bbox
	}
	return e.sink.WriteRelation(r, action)
}
