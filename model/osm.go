// Package model holds the entity types shared by the store, the change
// pipeline and the geometry filters. It deliberately mirrors the field
// names paulmach/osm already uses (ID, Tags, Nodes, Members) so that
// converting to and from osm.Node/osm.Way/osm.Relation is a flat field
// copy, not a translation layer. Coordinates are the exception: they are
// held as DecimicroLat/DecimicroLon integers (degrees scaled by 1e7).
package model

import (
	"github.com/paulmach/osm"

	"osmreplica/util"
)

// Action is the change-file action associated with one entity.
type Action int

const (
	ActionNone Action = iota
	ActionCreate
	ActionModify
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionModify:
		return "modify"
	case ActionDelete:
		return "delete"
	case ActionNone:
		return "none"
	}
	util.LogFatalBug("unknown Action %d", a)
	return ""
}

// ObjectType is the OSM entity kind, independent of any query context.
type ObjectType int

const (
	ObjNode ObjectType = iota
	ObjWay
	ObjRelation
)

func (o ObjectType) String() string {
	switch o {
	case ObjNode:
		return "node"
	case ObjWay:
		return "way"
	case ObjRelation:
		return "relation"
	}
	util.LogFatalBug("unknown ObjectType %d", o)
	return ""
}

// MaxPackedID is the largest id the store can address: ids must fit in
// 40 bits (5 bytes). Exceeding this is a fatal IntegrityOverflow error.
const MaxPackedID = 1<<40 - 1

// Node is a point entity. Tags and metadata are optional and are not
// persisted by the store (only decimicro coordinates are); they exist so
// that a Node read from a source can be forwarded to a sink unchanged.
type Node struct {
	ID           osm.NodeID
	DecimicroLat int32
	DecimicroLon int32
	Tags         osm.Tags
	Meta         Metadata
	Bound        *BoundingBox
}

// Present reports whether a Node carries real coordinates. Used by
// callers that construct a Node directly (parsers, change sources)
// rather than getting one back from a store read, where absence is
// instead reported via a separate ok bool.
func (n Node) Present() bool {
	return n.DecimicroLat != 0 || n.DecimicroLon != 0
}

// Way is a polyline entity: an ordered list of node ids. The store only
// ever persists the node-id list, never tags.
type Way struct {
	ID    osm.WayID
	Nodes []osm.NodeID
	Tags  osm.Tags
	Meta  Metadata
	Bound *BoundingBox
}

// Member is one element of a relation's ordered member list.
type Member struct {
	Type osm.Type
	Ref  int64
	Role string
}

// Relation is an ordered list of members plus tags. Unlike nodes and
// ways, the store persists relation tags too.
type Relation struct {
	ID      osm.RelationID
	Members []Member
	Tags    osm.Tags
	Meta    Metadata
	Bound   *BoundingBox
}

// Metadata is the optional versioning information carried by entities
// read from or written to OSM XML. The store never persists it.
type Metadata struct {
	Version   int
	Timestamp int64 // unix seconds; zero means absent
	UID       int64
	User      string
	Changeset int64
}

func (m Metadata) Empty() bool {
	return m == Metadata{}
}
