// Package osmcache implements a read-only, shareable snapshot of
// resolved store lookups.
//
// Three maps (node coordinate-or-absent, way node-list-or-absent,
// relation-or-absent) built once during a producing phase and read many
// times afterwards. Cache is immutable after Freeze and a pointer can
// be handed to any number of goroutines without synchronization.
package osmcache

import (
	"sync"

	"github.com/paulmach/osm"
	"github.com/pkg/errors"

	"osmreplica/model"
)

// Resolver is the subset of Store that a Builder reads through. It is
// satisfied directly by *store.Store without that package depending on
// osmcache, and by Cache itself so a cache can be layered on another
// cache in tests.
type Resolver interface {
	ReadNode(id osm.NodeID) (model.Node, bool, error)
	ReadWay(id osm.WayID) (model.Way, bool, error)
	ReadRelation(id osm.RelationID) (model.Relation, bool, error)
}

type nodeCoord struct {
	lat, lon int32
}

// Builder accumulates resolved fragments during the bbox-enrichment
// pass. It is safe for concurrent use; Freeze publishes an immutable
// Cache from its contents.
type Builder struct {
	src Resolver

	mu        sync.Mutex
	nodes     map[osm.NodeID]*nodeCoord
	ways      map[osm.WayID][]osm.NodeID
	relations map[osm.RelationID]*model.Relation
}

// NewBuilder returns a Builder that falls back to src for ids not yet
// resolved, recording every lookup's outcome (present or absent) so the
// frozen Cache's coverage is exactly what was actually touched.
func NewBuilder(src Resolver) *Builder {
	return &Builder{
		src:       src,
		nodes:     map[osm.NodeID]*nodeCoord{},
		ways:      map[osm.WayID][]osm.NodeID{},
		relations: map[osm.RelationID]*model.Relation{},
	}
}

// Node resolves a node's coordinates, consulting and then populating
// the builder's map: a miss falls through to src and the outcome,
// present or absent, is cached either way.
func (b *Builder) Node(id osm.NodeID) (model.Node, bool, error) {
	b.mu.Lock()
	if c, ok := b.nodes[id]; ok {
		b.mu.Unlock()
		if c == nil {
			return model.Node{}, false, nil
		}
		return model.Node{ID: id, DecimicroLat: c.lat, DecimicroLon: c.lon}, true, nil
	}
	b.mu.Unlock()

	n, ok, err := b.src.ReadNode(id)
	if err != nil {
		return model.Node{}, false, err
	}

	b.mu.Lock()
	if ok {
		b.nodes[id] = &nodeCoord{lat: n.DecimicroLat, lon: n.DecimicroLon}
	} else {
		b.nodes[id] = nil
	}
	b.mu.Unlock()

	return n, ok, nil
}

func (b *Builder) Way(id osm.WayID) (model.Way, bool, error) {
	b.mu.Lock()
	if nodes, ok := b.ways[id]; ok {
		b.mu.Unlock()
		if nodes == nil {
			return model.Way{}, false, nil
		}
		return model.Way{ID: id, Nodes: nodes}, true, nil
	}
	b.mu.Unlock()

	w, ok, err := b.src.ReadWay(id)
	if err != nil {
		return model.Way{}, false, err
	}

	b.mu.Lock()
	if ok {
		b.ways[id] = w.Nodes
	} else {
		b.ways[id] = nil
	}
	b.mu.Unlock()

	return w, ok, nil
}

func (b *Builder) Relation(id osm.RelationID) (model.Relation, bool, error) {
	b.mu.Lock()
	if r, ok := b.relations[id]; ok {
		b.mu.Unlock()
		if r == nil {
			return model.Relation{}, false, nil
		}
		return *r, true, nil
	}
	b.mu.Unlock()

	r, ok, err := b.src.ReadRelation(id)
	if err != nil {
		return model.Relation{}, false, err
	}

	b.mu.Lock()
	if ok {
		rc := r
		b.relations[id] = &rc
	} else {
		b.relations[id] = nil
	}
	b.mu.Unlock()

	return r, ok, nil
}

// Freeze publishes an immutable Cache from everything resolved so far.
// The Builder must not be used afterwards.
func (b *Builder) Freeze() *Cache {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &Cache{
		nodes:     b.nodes,
		ways:      b.ways,
		relations: b.relations,
	}
}

// Cache is the immutable, append-only-during-build snapshot. Once
// frozen it is strictly read-only and safe to share across goroutines
// without locking.
type Cache struct {
	nodes     map[osm.NodeID]*nodeCoord
	ways      map[osm.WayID][]osm.NodeID
	relations map[osm.RelationID]*model.Relation
}

// ReadNode implements Resolver. Looking up an id the cache was never
// asked to resolve during the build pass is a contract violation and
// panics rather than silently reporting it absent.
func (c *Cache) ReadNode(id osm.NodeID) (model.Node, bool, error) {
	coord, ok := c.nodes[id]
	if !ok {
		panic(errors.Errorf("node %d not found in cache", id).Error())
	}
	if coord == nil {
		return model.Node{}, false, nil
	}
	return model.Node{ID: id, DecimicroLat: coord.lat, DecimicroLon: coord.lon}, true, nil
}

func (c *Cache) ReadWay(id osm.WayID) (model.Way, bool, error) {
	nodes, ok := c.ways[id]
	if !ok {
		panic(errors.Errorf("way %d not found in cache", id).Error())
	}
	if nodes == nil {
		return model.Way{}, false, nil
	}
	return model.Way{ID: id, Nodes: nodes}, true, nil
}

func (c *Cache) ReadRelation(id osm.RelationID) (model.Relation, bool, error) {
	r, ok := c.relations[id]
	if !ok {
		panic(errors.Errorf("relation %d not found in cache", id).Error())
	}
	if r == nil {
		return model.Relation{}, false, nil
	}
	return *r, true, nil
}
