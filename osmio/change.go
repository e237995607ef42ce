package osmio

import (
	"encoding/xml"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"

	"osmreplica/model"
)

// ChangeSource streams an osmChange document's create/modify/delete
// groups. paulmach/osm's scanners cover full planet/extract XML but not
// the osmChange wire format, so this is a small hand-rolled
// encoding/xml.Decoder state machine: track which group we're in, and
// decode each node/way/relation element found inside it.
type ChangeSource struct {
	file *os.File
	gz   *gzip.Reader
	dec  *xml.Decoder
}

// OpenChange opens a .osc or .osc.gz change file.
func OpenChange(path string) (*ChangeSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open change file %s", path)
	}

	var r io.Reader = f
	var gz *gzip.Reader
	if strings.HasSuffix(path, ".gz") {
		gz, err = gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "unable to open gzip stream in %s", path)
		}
		r = gz
	}

	return &ChangeSource{file: f, gz: gz, dec: xml.NewDecoder(r)}, nil
}

func (c *ChangeSource) Close() error {
	var firstErr error
	if c.gz != nil {
		if err := c.gz.Close(); err != nil {
			firstErr = err
		}
	}
	if err := c.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ReadChanges implements store.ChangeSource.
func (c *ChangeSource) ReadChanges(
	nodeFn func(model.Node, model.Action) error,
	wayFn func(model.Way, model.Action) error,
	relFn func(model.Relation, model.Action) error,
) error {
	action := model.ActionNone

	for {
		tok, err := c.dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(model.ErrInputCorrupt, "reading change file: %v", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "create":
				action = model.ActionCreate
			case "modify":
				action = model.ActionModify
			case "delete":
				action = model.ActionDelete
			case "node":
				var n xmlNode
				if err := c.dec.DecodeElement(&n, &t); err != nil {
					return errors.Wrap(err, "decoding node element")
				}
				if err := nodeFn(n.toModel(), action); err != nil {
					return errors.Wrapf(err, "handling node %d", n.ID)
				}
			case "way":
				var w xmlWay
				if err := c.dec.DecodeElement(&w, &t); err != nil {
					return errors.Wrap(err, "decoding way element")
				}
				if err := wayFn(w.toModel(), action); err != nil {
					return errors.Wrapf(err, "handling way %d", w.ID)
				}
			case "relation":
				var r xmlRelation
				if err := c.dec.DecodeElement(&r, &t); err != nil {
					return errors.Wrap(err, "decoding relation element")
				}
				if err := relFn(r.toModel(), action); err != nil {
					return errors.Wrapf(err, "handling relation %d", r.ID)
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "create", "modify", "delete":
				action = model.ActionNone
			}
		}
	}

	return nil
}

// --- wire structs --------------------------------------------------------

type xmlTag struct {
	K string `xml:"k,attr"`
	V string `xml:"v,attr"`
}

type xmlNd struct {
	Ref int64 `xml:"ref,attr"`
}

type xmlMember struct {
	Type string `xml:"type,attr"`
	Ref  int64  `xml:"ref,attr"`
	Role string `xml:"role,attr"`
}

// xmlBBox is the <bbox> child BBoxEnricher attaches to ways and
// relations; a later PolygonFilter pass reads it back to avoid
// re-resolving member geometry from the store.
type xmlBBox struct {
	MinLat int32 `xml:"minlat,attr"`
	MaxLat int32 `xml:"maxlat,attr"`
	MinLon int32 `xml:"minlon,attr"`
	MaxLon int32 `xml:"maxlon,attr"`
}

func bboxFromModel(b *model.BoundingBox) *xmlBBox {
	if b == nil {
		return nil
	}
	return &xmlBBox{MinLat: b.MinLat, MaxLat: b.MaxLat, MinLon: b.MinLon, MaxLon: b.MaxLon}
}

func (b *xmlBBox) toModel() *model.BoundingBox {
	if b == nil {
		return nil
	}
	return &model.BoundingBox{MinLat: b.MinLat, MaxLat: b.MaxLat, MinLon: b.MinLon, MaxLon: b.MaxLon}
}

// degree is a coordinate value with custom attribute marshaling: the
// default encoding/xml float formatting (strconv's shortest-round-trip
// 'g' verb) drops trailing zeros and switches to scientific notation
// for small magnitudes, neither of which upstream OSM XML readers
// accept. degree always writes fixed-point with 7 fractional digits.
type degree float64

func (d degree) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: strconv.FormatFloat(float64(d), 'f', 7, 64)}, nil
}

type xmlNode struct {
	ID        int64    `xml:"id,attr"`
	Lat       degree   `xml:"lat,attr"`
	Lon       degree   `xml:"lon,attr"`
	Version   int      `xml:"version,attr"`
	Timestamp string   `xml:"timestamp,attr"`
	UID       int64    `xml:"uid,attr"`
	User      string   `xml:"user,attr"`
	Changeset int64    `xml:"changeset,attr"`
	Tags      []xmlTag `xml:"tag"`
}

func (n xmlNode) toModel() model.Node {
	tags := make(osm.Tags, len(n.Tags))
	for i, t := range n.Tags {
		tags[i] = osm.Tag{Key: t.K, Value: t.V}
	}
	return model.Node{
		ID:           osm.NodeID(n.ID),
		DecimicroLat: int32(float64(n.Lat) * 1e7),
		DecimicroLon: int32(float64(n.Lon) * 1e7),
		Tags:         tags,
		Meta:         xmlMeta(n.Version, n.Timestamp, n.Changeset, n.UID, n.User),
	}
}

type xmlWay struct {
	ID        int64    `xml:"id,attr"`
	Version   int      `xml:"version,attr"`
	Timestamp string   `xml:"timestamp,attr"`
	UID       int64    `xml:"uid,attr"`
	User      string   `xml:"user,attr"`
	Changeset int64    `xml:"changeset,attr"`
	Nd        []xmlNd  `xml:"nd"`
	Tags      []xmlTag `xml:"tag"`
	Bbox      *xmlBBox `xml:"bbox"`
}

func (w xmlWay) toModel() model.Way {
	nodes := make([]osm.NodeID, len(w.Nd))
	for i, nd := range w.Nd {
		nodes[i] = osm.NodeID(nd.Ref)
	}
	tags := make(osm.Tags, len(w.Tags))
	for i, t := range w.Tags {
		tags[i] = osm.Tag{Key: t.K, Value: t.V}
	}
	return model.Way{
		ID:    osm.WayID(w.ID),
		Nodes: nodes,
		Tags:  tags,
		Meta:  xmlMeta(w.Version, w.Timestamp, w.Changeset, w.UID, w.User),
		Bound: w.Bbox.toModel(),
	}
}

type xmlRelation struct {
	ID        int64       `xml:"id,attr"`
	Version   int         `xml:"version,attr"`
	Timestamp string      `xml:"timestamp,attr"`
	UID       int64       `xml:"uid,attr"`
	User      string      `xml:"user,attr"`
	Changeset int64       `xml:"changeset,attr"`
	Members   []xmlMember `xml:"member"`
	Tags      []xmlTag    `xml:"tag"`
	Bbox      *xmlBBox    `xml:"bbox"`
}

func (r xmlRelation) toModel() model.Relation {
	members := make([]model.Member, len(r.Members))
	for i, m := range r.Members {
		members[i] = model.Member{Type: osm.Type(m.Type), Ref: m.Ref, Role: m.Role}
	}
	tags := make(osm.Tags, len(r.Tags))
	for i, t := range r.Tags {
		tags[i] = osm.Tag{Key: t.K, Value: t.V}
	}
	return model.Relation{
		ID:      osm.RelationID(r.ID),
		Members: members,
		Tags:    tags,
		Meta:    xmlMeta(r.Version, r.Timestamp, r.Changeset, r.UID, r.User),
		Bound:   r.Bbox.toModel(),
	}
}

func xmlNodeFromModel(n model.Node) xmlNode {
	tags := make([]xmlTag, len(n.Tags))
	for i, t := range n.Tags {
		tags[i] = xmlTag{K: t.Key, V: t.Value}
	}
	x := xmlNode{
		ID:   int64(n.ID),
		Lat:  degree(float64(n.DecimicroLat) / 1e7),
		Lon:  degree(float64(n.DecimicroLon) / 1e7),
		Tags: tags,
	}
	if !n.Meta.Empty() {
		x.Version, x.UID, x.User, x.Changeset = n.Meta.Version, n.Meta.UID, n.Meta.User, n.Meta.Changeset
		x.Timestamp = time.Unix(n.Meta.Timestamp, 0).UTC().Format(time.RFC3339)
	}
	return x
}

func xmlWayFromModel(w model.Way) xmlWay {
	nd := make([]xmlNd, len(w.Nodes))
	for i, id := range w.Nodes {
		nd[i] = xmlNd{Ref: int64(id)}
	}
	tags := make([]xmlTag, len(w.Tags))
	for i, t := range w.Tags {
		tags[i] = xmlTag{K: t.Key, V: t.Value}
	}
	x := xmlWay{ID: int64(w.ID), Nd: nd, Tags: tags, Bbox: bboxFromModel(w.Bound)}
	if !w.Meta.Empty() {
		x.Version, x.UID, x.User, x.Changeset = w.Meta.Version, w.Meta.UID, w.Meta.User, w.Meta.Changeset
		x.Timestamp = time.Unix(w.Meta.Timestamp, 0).UTC().Format(time.RFC3339)
	}
	return x
}

func xmlRelationFromModel(r model.Relation) xmlRelation {
	members := make([]xmlMember, len(r.Members))
	for i, m := range r.Members {
		members[i] = xmlMember{Type: string(m.Type), Ref: m.Ref, Role: m.Role}
	}
	tags := make([]xmlTag, len(r.Tags))
	for i, t := range r.Tags {
		tags[i] = xmlTag{K: t.Key, V: t.Value}
	}
	x := xmlRelation{ID: int64(r.ID), Members: members, Tags: tags, Bbox: bboxFromModel(r.Bound)}
	if !r.Meta.Empty() {
		x.Version, x.UID, x.User, x.Changeset = r.Meta.Version, r.Meta.UID, r.Meta.User, r.Meta.Changeset
		x.Timestamp = time.Unix(r.Meta.Timestamp, 0).UTC().Format(time.RFC3339)
	}
	return x
}

func xmlMeta(version int, timestamp string, changeset, uid int64, user string) model.Metadata {
	m := model.Metadata{Version: version, UID: uid, User: user, Changeset: changeset}
	if timestamp != "" {
		if t, err := time.Parse(time.RFC3339, timestamp); err == nil {
			m.Timestamp = t.Unix()
		}
	}
	return m
}
