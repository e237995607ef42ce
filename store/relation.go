package store

import (
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"

	"osmreplica/model"
)

// relationFile is the structured-text serialization of one relation: a
// JSON object per relation file, using goccy/go-json for the
// encode/decode (the same library jpl-au-folio reaches for on its own
// hot path).
type relationFile struct {
	ID      int64             `json:"id"`
	Members []relationMember  `json:"members"`
	Tags    map[string]string `json:"tags,omitempty"`
}

type relationMember struct {
	Type string `json:"type"`
	Ref  int64  `json:"ref"`
	Role string `json:"role"`
}

func toRelationFile(r model.Relation) relationFile {
	rf := relationFile{ID: int64(r.ID)}
	if len(r.Tags) > 0 {
		rf.Tags = map[string]string{}
		for _, t := range r.Tags {
			rf.Tags[t.Key] = t.Value
		}
	}
	rf.Members = make([]relationMember, len(r.Members))
	for i, m := range r.Members {
		rf.Members[i] = relationMember{Type: string(m.Type), Ref: m.Ref, Role: m.Role}
	}
	return rf
}

func fromRelationFile(rf relationFile) model.Relation {
	r := model.Relation{ID: osm.RelationID(rf.ID)}
	if len(rf.Tags) > 0 {
		r.Tags = make(osm.Tags, 0, len(rf.Tags))
		for k, v := range rf.Tags {
			r.Tags = append(r.Tags, osm.Tag{Key: k, Value: v})
		}
	}
	r.Members = make([]model.Member, len(rf.Members))
	for i, m := range rf.Members {
		r.Members[i] = model.Member{Type: osm.Type(m.Type), Ref: m.Ref, Role: m.Role}
	}
	return r
}

// relationPath returns the AAA/BBB/CCC path for a relation id, rooted at dir.
func relationPath(dir string, id osm.RelationID) string {
	a, b, c := relationPathParts(uint64(id))
	return filepath.Join(dir, "relation", a, b, c)
}

func readRelationFile(dir string, id osm.RelationID) (model.Relation, bool, error) {
	path := relationPath(dir, id)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return model.Relation{}, false, nil
	}
	if err != nil {
		return model.Relation{}, false, errors.Wrapf(err, "unable to read relation file %s", path)
	}

	var rf relationFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return model.Relation{}, false, errors.Wrapf(model.ErrInputCorrupt, "relation file %s: %v", path, err)
	}
	return fromRelationFile(rf), true, nil
}

func writeRelationFile(dir string, r model.Relation) error {
	path := relationPath(dir, r.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return errors.Wrapf(err, "unable to create relation directory for %s", path)
	}

	data, err := json.Marshal(toRelationFile(r))
	if err != nil {
		return errors.Wrapf(err, "unable to marshal relation %d", r.ID)
	}
	if err := os.WriteFile(path, data, 0666); err != nil {
		return errors.Wrapf(err, "unable to write relation file %s", path)
	}
	return nil
}

func deleteRelationFile(dir string, id osm.RelationID) error {
	path := relationPath(dir, id)
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "unable to delete relation file %s", path)
	}
	return nil
}
