// Package statusapi exposes a small read-only HTTP surface over a
// replication output tree: the overall planet/bbox sequence and the
// per-region sequence for every node of the region tree, built on a
// gorilla/mux router with JSON body writing.
package statusapi

import (
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/hauke96/sigolo/v2"

	"osmreplica/filter"
	"osmreplica/pipeline"
)

// Server answers status requests about one replication output tree.
type Server struct {
	diffsDir string
	tree     *filter.Tree
}

// NewServer loads the region tree once at startup; per-request handlers
// re-read each region's state.txt since it changes every minute.
func NewServer(diffsDir, polygonDir string) (*Server, error) {
	tree, err := filter.LoadTree(polygonDir)
	if err != nil {
		return nil, err
	}
	return &Server{diffsDir: diffsDir, tree: tree}, nil
}

// Status describes one tree's replication progress.
type Status struct {
	Name     string   `json:"name"`
	Sequence uint64   `json:"sequence,omitempty"`
	Error    string   `json:"error,omitempty"`
	Regions  []Status `json:"regions,omitempty"`
}

func (s *Server) treeStatus(node *filter.Tree, regionPath string) Status {
	status := Status{Name: node.Name}

	if node.Poly != nil || regionPath == "" {
		path := regionPath
		if path == "" {
			path = "planet"
		}
		n, err := pipeline.ReadStateFile(s.diffsDir + "/" + path + "/minute/state.txt")
		if err != nil {
			status.Error = err.Error()
		} else {
			status.Sequence = n
		}
	}

	for _, child := range node.Children {
		childPath := child.Name
		if regionPath != "" {
			childPath = regionPath + "/" + child.Name
		}
		status.Regions = append(status.Regions, s.treeStatus(child, childPath))
	}
	return status
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.bboxStatus())
}

// bboxStatus reports the bbox tree's overall sequence plus the region
// tree nested below it, since that is what operators actually consume
// (the planet tree is an internal staging artifact).
func (s *Server) bboxStatus() Status {
	bbox := Status{Name: "bbox"}
	n, err := pipeline.ReadStateFile(s.diffsDir + "/bbox/minute/state.txt")
	if err != nil {
		bbox.Error = err.Error()
	} else {
		bbox.Sequence = n
	}
	for _, child := range s.tree.Children {
		bbox.Regions = append(bbox.Regions, s.treeStatus(child, child.Name))
	}
	return bbox
}

func findRegion(node *filter.Tree, regionPath, name string) (*filter.Tree, string) {
	if node.Name == name {
		return node, regionPath
	}
	for _, child := range node.Children {
		childPath := child.Name
		if regionPath != "" {
			childPath = regionPath + "/" + child.Name
		}
		if found, path := findRegion(child, childPath, name); found != nil {
			return found, path
		}
	}
	return nil, ""
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	found, path := findRegion(s.tree, "", name)
	if found == nil {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, s.treeStatus(found, path))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		sigolo.Errorf("error writing status response: %+v", err)
	}
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/regions/{name}", s.handleRegion).Methods(http.MethodGet)
	return r
}

// ListenAndServe starts the status HTTP server on addr (e.g. ":8080").
func (s *Server) ListenAndServe(addr string) error {
	sigolo.Infof("starting status server on %s", addr)
	return http.ListenAndServe(addr, s.router())
}
