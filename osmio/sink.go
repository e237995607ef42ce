package osmio

import (
	"encoding/xml"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"osmreplica/model"
)

// XmlSink streams entities out as an osmChange document, grouping
// consecutive entities under <create>/<modify>/<delete> and only
// switching groups when the action actually changes between
// consecutive entities — mirroring a write-action-transition design: a
// new group start tag is only emitted across an action boundary, not
// once per entity.
type XmlSink struct {
	file *os.File
	gz   *gzip.Writer
	enc  *xml.Encoder

	action model.Action
	open   bool
}

// CreateXmlSink creates (or truncates) path and writes the opening
// <osmChange> tag. Output is gzip-compressed when path ends in ".gz".
func CreateXmlSink(path string) (*XmlSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create change output file %s", path)
	}

	s := &XmlSink{file: f}
	if strings.HasSuffix(path, ".gz") {
		s.gz = gzip.NewWriter(f)
		s.enc = xml.NewEncoder(s.gz)
	} else {
		s.enc = xml.NewEncoder(f)
	}

	if err := s.enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Local: "osmChange"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "version"}, Value: "0.6"}},
	}); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "unable to write osmChange start tag")
	}

	return s, nil
}

func groupName(a model.Action) string {
	switch a {
	case model.ActionCreate:
		return "create"
	case model.ActionModify:
		return "modify"
	case model.ActionDelete:
		return "delete"
	}
	return ""
}

func (s *XmlSink) transitionTo(action model.Action) error {
	if s.open && s.action == action {
		return nil
	}
	if s.open {
		if err := s.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: groupName(s.action)}}); err != nil {
			return err
		}
	}
	if err := s.enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: groupName(action)}}); err != nil {
		return err
	}
	s.action = action
	s.open = true
	return nil
}

func (s *XmlSink) WriteNode(n model.Node, action model.Action) error {
	if err := s.transitionTo(action); err != nil {
		return errors.Wrap(err, "unable to open node group")
	}
	return errors.Wrapf(
		s.enc.EncodeElement(xmlNodeFromModel(n), xml.StartElement{Name: xml.Name{Local: "node"}}),
		"unable to write node %d", n.ID,
	)
}

func (s *XmlSink) WriteWay(w model.Way, action model.Action) error {
	if err := s.transitionTo(action); err != nil {
		return errors.Wrap(err, "unable to open way group")
	}
	return errors.Wrapf(
		s.enc.EncodeElement(xmlWayFromModel(w), xml.StartElement{Name: xml.Name{Local: "way"}}),
		"unable to write way %d", w.ID,
	)
}

func (s *XmlSink) WriteRelation(r model.Relation, action model.Action) error {
	if err := s.transitionTo(action); err != nil {
		return errors.Wrap(err, "unable to open relation group")
	}
	return errors.Wrapf(
		s.enc.EncodeElement(xmlRelationFromModel(r), xml.StartElement{Name: xml.Name{Local: "relation"}}),
		"unable to write relation %d", r.ID,
	)
}

// Close writes the closing group tag (if one is open), the closing
// </osmChange> tag, flushes the encoder, and closes the gzip writer and
// underlying file.
func (s *XmlSink) Close() error {
	if s.open {
		if err := s.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: groupName(s.action)}}); err != nil {
			return errors.Wrap(err, "unable to close trailing group element")
		}
		s.open = false
	}
	if err := s.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: "osmChange"}}); err != nil {
		return errors.Wrap(err, "unable to write osmChange end tag")
	}
	if err := s.enc.Flush(); err != nil {
		return errors.Wrap(err, "unable to flush xml encoder")
	}

	var firstErr error
	if s.gz != nil {
		if err := s.gz.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
