package filter

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"

	"osmreplica/model"
	"osmreplica/osmcache"
)

// Sink is the subset of osmio.XmlSink a PolygonFilter writes through.
type Sink interface {
	WriteNode(n model.Node, action model.Action) error
	WriteWay(w model.Way, action model.Action) error
	WriteRelation(r model.Relation, action model.Action) error
}

const decimicroScale = 1e-7

func pointOf(lat, lon int32) orb.Point {
	return orb.Point{float64(lon) * decimicroScale, float64(lat) * decimicroScale}
}

// PolygonFilter drives one region's output from a bbox-enriched change
// file. It tracks membership with two families of sets per entity kind:
// nodesIn/waysIn/relationsIn record exact polygon membership, and a
// parallel *_InBuffered family records membership against the buffered
// (slightly expanded) polygon, so an entity that exits the exact region
// but is still inside the buffer gets reported as a delete rather than
// silently dropped.
type PolygonFilter struct {
	poly  *Poly
	sink  Sink
	cache osmcache.Resolver

	nodesIn             map[osm.NodeID]bool
	nodesInBuffered     map[osm.NodeID]bool
	waysIn              map[osm.WayID]bool
	waysInBuffered      map[osm.WayID]bool
	relationsIn         map[osm.RelationID]bool
	relationsInBuffered map[osm.RelationID]bool
}

// NewPolygonFilter returns a filter for region poly, writing survivors
// to sink and resolving member geometry through cache (normally the
// *osmcache.Cache produced by the same change's BBoxEnricher pass).
func NewPolygonFilter(poly *Poly, sink Sink, cache osmcache.Resolver) *PolygonFilter {
	return &PolygonFilter{
		poly:                poly,
		sink:                sink,
		cache:               cache,
		nodesIn:             map[osm.NodeID]bool{},
		nodesInBuffered:     map[osm.NodeID]bool{},
		waysIn:              map[osm.WayID]bool{},
		waysInBuffered:      map[osm.WayID]bool{},
		relationsIn:         map[osm.RelationID]bool{},
		relationsInBuffered: map[osm.RelationID]bool{},
	}
}

func (f *PolygonFilter) nodeInPoly(id osm.NodeID) (bool, error) {
	if f.nodesIn[id] {
		return true, nil
	}
	n, ok, err := f.cache.ReadNode(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if f.poly.ContainsExact(pointOf(n.DecimicroLat, n.DecimicroLon)) {
		f.nodesIn[id] = true
		return true, nil
	}
	return false, nil
}

func (f *PolygonFilter) nodeInBufferedPoly(id osm.NodeID) (bool, error) {
	if f.nodesInBuffered[id] {
		return true, nil
	}
	n, ok, err := f.cache.ReadNode(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if f.poly.ContainsBuffered(pointOf(n.DecimicroLat, n.DecimicroLon)) {
		f.nodesInBuffered[id] = true
		return true, nil
	}
	return false, nil
}

func (f *PolygonFilter) wayInPoly(id osm.WayID) (bool, error) {
	if f.waysIn[id] {
		return true, nil
	}
	w, ok, err := f.cache.ReadWay(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	for _, n := range w.Nodes {
		in, err := f.nodeInPoly(n)
		if err != nil {
			return false, err
		}
		if in {
			f.waysIn[id] = true
			return true, nil
		}
	}
	return false, nil
}

func (f *PolygonFilter) wayInBufferedPoly(id osm.WayID) (bool, error) {
	if f.waysInBuffered[id] {
		return true, nil
	}
	w, ok, err := f.cache.ReadWay(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	for _, n := range w.Nodes {
		in, err := f.nodeInBufferedPoly(n)
		if err != nil {
			return false, err
		}
		if in {
			f.waysInBuffered[id] = true
			return true, nil
		}
	}
	return false, nil
}

func (f *PolygonFilter) memberInPoly(m model.Member, ancestors []osm.RelationID) (bool, error) {
	switch m.Type {
	case osm.TypeNode:
		return f.nodeInPoly(osm.NodeID(m.Ref))
	case osm.TypeWay:
		return f.wayInPoly(osm.WayID(m.Ref))
	case osm.TypeRelation:
		return f.relationInPoly(osm.RelationID(m.Ref), ancestors)
	default:
		return false, errors.Errorf("unsupported relation member type %q", m.Type)
	}
}

func (f *PolygonFilter) memberInBufferedPoly(m model.Member, ancestors []osm.RelationID) (bool, error) {
	switch m.Type {
	case osm.TypeNode:
		return f.nodeInBufferedPoly(osm.NodeID(m.Ref))
	case osm.TypeWay:
		return f.wayInBufferedPoly(osm.WayID(m.Ref))
	case osm.TypeRelation:
		return f.relationInBufferedPoly(osm.RelationID(m.Ref), ancestors)
	default:
		return false, errors.Errorf("unsupported relation member type %q", m.Type)
	}
}

func containsRelationID(ancestors []osm.RelationID, id osm.RelationID) bool {
	for _, a := range ancestors {
		if a == id {
			return true
		}
	}
	return false
}

func (f *PolygonFilter) relationInPoly(id osm.RelationID, ancestors []osm.RelationID) (bool, error) {
	if f.relationsIn[id] {
		return true, nil
	}
	if containsRelationID(ancestors, id) {
		return false, nil
	}
	r, ok, err := f.cache.ReadRelation(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	next := append(append([]osm.RelationID{}, ancestors...), id)
	for _, m := range r.Members {
		in, err := f.memberInPoly(m, next)
		if err != nil {
			return false, err
		}
		if in {
			f.relationsIn[id] = true
			return true, nil
		}
	}
	return false, nil
}

func (f *PolygonFilter) relationInBufferedPoly(id osm.RelationID, ancestors []osm.RelationID) (bool, error) {
	if f.relationsInBuffered[id] {
		return true, nil
	}
	if containsRelationID(ancestors, id) {
		return false, nil
	}
	r, ok, err := f.cache.ReadRelation(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	next := append(append([]osm.RelationID{}, ancestors...), id)
	for _, m := range r.Members {
		in, err := f.memberInBufferedPoly(m, next)
		if err != nil {
			return false, err
		}
		if in {
			f.relationsInBuffered[id] = true
			return true, nil
		}
	}
	return false, nil
}

// Node decides whether n survives the filter, writing a plain delete
// for a node that falls out of the buffered region after previously
// being reported inside it.
func (f *PolygonFilter) Node(n model.Node, action model.Action) error {
	pt := pointOf(n.DecimicroLat, n.DecimicroLon)
	if !f.poly.ContainsBuffered(pt) && !f.nodesInBuffered[n.ID] {
		return nil
	}
	if f.poly.ContainsExact(pt) {
		f.nodesIn[n.ID] = true
		f.nodesInBuffered[n.ID] = true
		return f.sink.WriteNode(n, action)
	}
	f.nodesInBuffered[n.ID] = true
	return f.sink.WriteNode(n, model.ActionDelete)
}

// Way decides whether w survives the filter. w.Bound must already be
// set by a prior BBoxEnricher pass.
func (f *PolygonFilter) Way(w model.Way, action model.Action) error {
	if w.Bound == nil {
		return errors.Errorf("way %d has no bbox; run BBoxEnricher before PolygonFilter", w.ID)
	}
	if !f.poly.BoundIntersectsBuffered(*w.Bound) {
		return nil
	}

	anyIn := false
	for _, id := range w.Nodes {
		in, err := f.nodeInPoly(id)
		if err != nil {
			return err
		}
		if in {
			anyIn = true
			break
		}
	}
	if anyIn {
		f.waysIn[w.ID] = true
		f.waysInBuffered[w.ID] = true
		return f.sink.WriteWay(w, action)
	}

	anyBuffered := f.waysInBuffered[w.ID]
	for i := 0; !anyBuffered && i < len(w.Nodes); i++ {
		in, err := f.nodeInBufferedPoly(w.Nodes[i])
		if err != nil {
			return err
		}
		anyBuffered = in
	}
	if anyBuffered {
		f.waysInBuffered[w.ID] = true
		return f.sink.WriteWay(w, model.ActionDelete)
	}
	return nil
}

// Relation decides whether r survives the filter. A missing bbox is
// treated as always-intersecting, erring on the side of keeping
// untagged or geometry-less relations rather than dropping them.
func (f *PolygonFilter) Relation(r model.Relation, action model.Action) error {
	if r.Bound != nil && !f.poly.BoundIntersectsBuffered(*r.Bound) {
		return nil
	}

	anyIn := false
	for _, m := range r.Members {
		in, err := f.memberInPoly(m, nil)
		if err != nil {
			return err
		}
		if in {
			anyIn = true
			break
		}
	}
	if anyIn {
		f.relationsIn[r.ID] = true
		f.relationsInBuffered[r.ID] = true
		return f.sink.WriteRelation(r, action)
	}

	anyBuffered := f.relationsInBuffered[r.ID]
	for i := 0; !anyBuffered && i < len(r.Members); i++ {
		in, err := f.memberInBufferedPoly(r.Members[i], nil)
		if err != nil {
			return err
		}
		anyBuffered = in
	}
	if anyBuffered {
		f.relationsInBuffered[r.ID] = true
		return f.sink.WriteRelation(r, model.ActionDelete)
	}
	return nil
}
