// Package osmio provides the format boundary: EntitySource (opened with
// OpenPbf or OpenXml) streams entities out of planet/extract dumps in
// nodes → ways → relations order (the osm.Scanner contract), ChangeSource streams an
// osmChange document's create/modify/delete groups, and XmlSink writes
// an osmChange document back out.
package osmio

import (
	"context"
	"os"
	"strings"

	"github.com/hauke96/sigolo/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/pkg/errors"

	"osmreplica/model"
)

// EntitySource wraps an osm.Scanner (either osmpbf or osmxml) and drives
// it through a store.Source-compatible Read, logging progress as
// "(1/3)", "(2/3)", "(3/3)" the first time each entity kind is seen.
type EntitySource struct {
	file    *os.File
	gz      *gzip.Reader
	scanner osm.Scanner
}

// OpenPbf opens a .osm.pbf file for streaming import.
func OpenPbf(path string) (*EntitySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open pbf file %s", path)
	}
	return &EntitySource{file: f, scanner: osmpbf.New(context.Background(), f, 1)}, nil
}

// OpenXml opens a .osm or .osm.gz file for streaming import.
func OpenXml(path string) (*EntitySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open xml file %s", path)
	}

	var gz *gzip.Reader
	if strings.HasSuffix(path, ".gz") {
		gz, err = gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "unable to open gzip stream in %s", path)
		}
		return &EntitySource{file: f, gz: gz, scanner: osmxml.New(context.Background(), gz)}, nil
	}

	return &EntitySource{file: f, scanner: osmxml.New(context.Background(), f)}, nil
}

// Read implements store.Source: it scans the file once, dispatching
// every node, way and relation to the matching callback in the order
// they're encountered (nodes, then ways, then relations, per the
// source's own invariant).
func (s *EntitySource) Read(
	nodeFn func(model.Node) error,
	wayFn func(model.Way) error,
	relFn func(model.Relation) error,
) error {
	var sawNode, sawWay, sawRelation bool

	for s.scanner.Scan() {
		switch obj := s.scanner.Object().(type) {
		case *osm.Node:
			if !sawNode {
				sigolo.Debug("start processing nodes (1/3)")
				sawNode = true
			}
			if err := nodeFn(nodeFromOSM(obj)); err != nil {
				return errors.Wrapf(err, "handling node %d", obj.ID)
			}
		case *osm.Way:
			if !sawWay {
				sigolo.Debug("start processing ways (2/3)")
				sawWay = true
			}
			if err := wayFn(wayFromOSM(obj)); err != nil {
				return errors.Wrapf(err, "handling way %d", obj.ID)
			}
		case *osm.Relation:
			if !sawRelation {
				sigolo.Debug("start processing relations (3/3)")
				sawRelation = true
			}
			if err := relFn(relationFromOSM(obj)); err != nil {
				return errors.Wrapf(err, "handling relation %d", obj.ID)
			}
		}
	}
	if err := s.scanner.Err(); err != nil {
		return errors.Wrapf(model.ErrInputCorrupt, "scanning failed: %v", err)
	}
	return nil
}

func (s *EntitySource) Close() error {
	var firstErr error
	if err := s.scanner.Close(); err != nil {
		firstErr = err
	}
	if s.gz != nil {
		if err := s.gz.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func nodeFromOSM(n *osm.Node) model.Node {
	return model.Node{
		ID:           n.ID,
		DecimicroLat: int32(n.Lat * 1e7),
		DecimicroLon: int32(n.Lon * 1e7),
		Tags:         n.Tags,
		Meta:         metaFromOSM(n.Version, n.Timestamp.Unix(), int64(n.ChangesetID), int64(n.UserID), n.User),
	}
}

func wayFromOSM(w *osm.Way) model.Way {
	nodes := make([]osm.NodeID, len(w.Nodes))
	for i, wn := range w.Nodes {
		nodes[i] = wn.ID
	}
	return model.Way{
		ID:    w.ID,
		Nodes: nodes,
		Tags:  w.Tags,
		Meta:  metaFromOSM(w.Version, w.Timestamp.Unix(), int64(w.ChangesetID), int64(w.UserID), w.User),
	}
}

func relationFromOSM(r *osm.Relation) model.Relation {
	members := make([]model.Member, len(r.Members))
	for i, m := range r.Members {
		members[i] = model.Member{Type: m.Type, Ref: m.Ref, Role: m.Role}
	}
	return model.Relation{
		ID:      r.ID,
		Members: members,
		Tags:    r.Tags,
		Meta:    metaFromOSM(r.Version, r.Timestamp.Unix(), int64(r.ChangesetID), int64(r.UserID), r.User),
	}
}

func metaFromOSM(version int, timestamp, changeset, uid int64, user string) model.Metadata {
	return model.Metadata{Version: version, Timestamp: timestamp, UID: uid, User: user, Changeset: changeset}
}
