package main

import (
	"fmt"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"

	"osmreplica/enrich"
	"osmreplica/filter"
	"osmreplica/model"
	"osmreplica/osmcache"
	"osmreplica/osmio"
	"osmreplica/pipeline"
	"osmreplica/statusapi"
	"osmreplica/store"
)

const VERSION = "v0.1.0"

var cli struct {
	Logging              string      `help:"Logging verbosity." enum:"info,debug,trace" short:"l" default:"info"`
	Version              VersionFlag `help:"Print version information and quit" name:"version" short:"v"`
	DiagnosticsProfiling bool        `help:"Enable profiling and write results to ./profiling.prof."`

	Store struct {
		Dir    string `help:"Store directory." required:""`
		Init   bool   `help:"Create an empty store at --dir."`
		Import string `help:"Import a .osm/.osm.pbf/.osm.gz dump into the store." placeholder:"<file>"`
		Update string `help:"Apply a .osc/.osc.gz change file to the store." placeholder:"<file>"`
		Read   string `help:"Read one entity, formatted KIND:ID (e.g. node:123)." placeholder:"<kind>:<id>"`
		Check  int64  `help:"Run the integrity check starting at this id." default:"-1"`
	} `cmd:"" help:"Operate directly on a store."`

	Xml struct {
		Source string `help:"Input .osm[.gz]/.osc[.gz] file." required:""`
		Dest   string `help:"Output file." required:""`
		Bbox   bool   `help:"Enrich every entity with its bounding box."`
		Filter string `help:"Restrict output to the given .poly file." placeholder:"<poly-file>"`
		Store  string `help:"Store directory, required for --bbox/--filter."`
	} `cmd:"" help:"Convert between raw, bbox-enriched and polygon-filtered OSM change files."`

	Diffs struct {
		Polygons   string `help:"Region tree root directory." required:""`
		Store      string `help:"Store directory." required:""`
		Source     string `help:"Input .osc[.gz] change file." required:""`
		State      string `help:"Input state.txt for this change." required:""`
		DestDir    string `help:"Output tree root." required:""`
		DestSuffix string `help:"Suffix appended to each region's output filename stem." default:""`
	} `cmd:"" help:"Split one change file recursively across a region tree."`

	Update struct {
		Polygons string `help:"Region tree root directory." required:""`
		Store    string `help:"Store directory." required:""`
		Diffs    string `help:"Output tree root." required:""`
		UrlDiffs string `help:"Base URL of the upstream minute-diff mirror." required:""`
		MaxState uint64 `help:"Stop at this upstream sequence number, if set."`
	} `cmd:"" help:"Run the full replication loop once."`

	Serve struct {
		Addr     string `help:"Listen address." default:":8080"`
		Diffs    string `help:"Output tree root." required:""`
		Polygons string `help:"Region tree root directory." required:""`
	} `cmd:"" help:"Serve replication status over HTTP."`
}

type VersionFlag string

func (v VersionFlag) Decode(ctx *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                         { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

func main() {
	ctx := kong.Parse(
		&cli,
		kong.Name("osmreplica"),
		kong.Description("An OSM region-replica replication service."),
		kong.Vars{
			"version": VERSION,
		},
	)

	switch strings.ToLower(cli.Logging) {
	case "debug":
		sigolo.SetDefaultLogLevel(sigolo.LOG_DEBUG)
	case "trace":
		sigolo.SetDefaultLogLevel(sigolo.LOG_TRACE)
	case "info":
		sigolo.SetDefaultLogLevel(sigolo.LOG_INFO)
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
	default:
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
		sigolo.Fatalf("Unknown logging level '%s'", cli.Logging)
	}

	if cli.DiagnosticsProfiling {
		sigolo.Info("Activate CPU profiling")
		f, err := os.Create("profiling.prof")
		sigolo.FatalCheck(err)
		err = pprof.StartCPUProfile(f)
		sigolo.FatalCheck(err)
		defer pprof.StopCPUProfile()
	}

	switch ctx.Command() {
	case "store":
		runStore()
	case "xml":
		runXml()
	case "diffs":
		runDiffs()
	case "update":
		runUpdate()
	case "serve":
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogDefaultStatic)
		runServe()
	default:
		sigolo.Errorf("Unknown command '%s'", ctx.Command())
		os.Exit(1)
	}
}

func runStore() {
	switch {
	case cli.Store.Init:
		sigolo.FatalCheck(store.Init(cli.Store.Dir))
	case cli.Store.Import != "":
		s, err := store.Open(cli.Store.Dir, store.ReadWrite)
		sigolo.FatalCheck(err)
		defer s.Close()

		src, err := openEntitySource(cli.Store.Import)
		sigolo.FatalCheck(err)
		defer src.Close()

		sigolo.FatalCheck(s.Import(src))
	case cli.Store.Update != "":
		s, err := store.Open(cli.Store.Dir, store.ReadWrite)
		sigolo.FatalCheck(err)
		defer s.Close()

		src, err := osmio.OpenChange(cli.Store.Update)
		sigolo.FatalCheck(err)
		defer src.Close()

		sigolo.FatalCheck(s.Update(src))
	case cli.Store.Read != "":
		runStoreRead()
	case cli.Store.Check >= 0:
		runStoreCheck()
	default:
		sigolo.Fatalf("store requires exactly one of --init, --import, --update, --read or --check")
	}
}

func runStoreRead() {
	kind, idStr, ok := strings.Cut(cli.Store.Read, ":")
	if !ok {
		sigolo.Fatalf("--read wants KIND:ID, e.g. node:123")
	}
	var id int64
	if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
		sigolo.Fatalf("invalid id in --read %s: %v", cli.Store.Read, err)
	}

	s, err := store.Open(cli.Store.Dir, store.ReadOnly)
	sigolo.FatalCheck(err)
	defer s.Close()

	switch kind {
	case "node":
		n, found, err := s.ReadNode(osm.NodeID(id))
		sigolo.FatalCheck(err)
		printEntity(model.ObjNode, id, found, n)
	case "way":
		w, found, err := s.ReadWay(osm.WayID(id))
		sigolo.FatalCheck(err)
		printEntity(model.ObjWay, id, found, w)
	case "relation":
		r, found, err := s.ReadRelation(osm.RelationID(id))
		sigolo.FatalCheck(err)
		printEntity(model.ObjRelation, id, found, r)
	default:
		sigolo.Fatalf("unknown entity kind %q", kind)
	}
}

func printEntity(kind model.ObjectType, id int64, found bool, v any) {
	if !found {
		fmt.Printf("%s %d: absent\n", kind, id)
		return
	}
	fmt.Printf("%s %d: %+v\n", kind, id, v)
}

func runStoreCheck() {
	s, err := store.Open(cli.Store.Dir, store.ReadOnly)
	sigolo.FatalCheck(err)
	defer s.Close()

	result, err := s.Check(uint64(cli.Store.Check))
	sigolo.FatalCheck(err)
	if result != nil {
		sigolo.Errorf("relation %d missing %s (ancestors %v)", result.RelationID, result.Missing, result.Ancestors)
		os.Exit(1)
	}
	sigolo.Info("check passed, no dangling references found")
}

func openEntitySource(path string) (store.Source, error) {
	switch {
	case strings.HasSuffix(path, ".pbf"):
		return osmio.OpenPbf(path)
	case strings.HasSuffix(path, ".osm"), strings.HasSuffix(path, ".osm.gz"):
		return osmio.OpenXml(path)
	}
	return nil, fmt.Errorf("%w: %s", model.ErrNotSupportedFormat, path)
}

// runXml implements the `xml` command. --filter always implies a bbox
// pass first (a way/relation needs its bbox to be tested against a
// region's buffered bound), so a filtered conversion runs the source
// through BBoxEnricher into a scratch file, then PolygonFilter reads
// that scratch file into the real destination — the same two-stage
// shape pipeline.tick uses for one minute of replication.
func runXml() {
	var resolver osmcache.Resolver
	if cli.Xml.Bbox || cli.Xml.Filter != "" {
		if cli.Xml.Store == "" {
			sigolo.Fatalf("--bbox/--filter require --store")
		}
		s, err := store.Open(cli.Xml.Store, store.ReadOnly)
		sigolo.FatalCheck(err)
		defer s.Close()
		resolver = s
	}

	if cli.Xml.Filter == "" {
		runXmlDirect(cli.Xml.Source, cli.Xml.Dest, cli.Xml.Bbox, resolver)
		return
	}

	poly, err := filter.ParsePolyFile(cli.Xml.Filter)
	sigolo.FatalCheck(err)

	scratch := cli.Xml.Dest + "-bbox-tmp.osc.gz"
	cache := runXmlBbox(cli.Xml.Source, scratch, resolver)
	defer os.Remove(scratch)

	src, err := osmio.OpenChange(scratch)
	sigolo.FatalCheck(err)
	defer src.Close()

	sink, err := osmio.CreateXmlSink(cli.Xml.Dest)
	sigolo.FatalCheck(err)

	pf := filter.NewPolygonFilter(poly, sink, cache)
	sigolo.FatalCheck(src.ReadChanges(pf.Node, pf.Way, pf.Relation))
	sigolo.FatalCheck(sink.Close())
}

func runXmlDirect(source, dest string, bbox bool, resolver osmcache.Resolver) {
	src, err := osmio.OpenChange(source)
	sigolo.FatalCheck(err)
	defer src.Close()

	sink, err := osmio.CreateXmlSink(dest)
	sigolo.FatalCheck(err)

	if bbox {
		enricher := enrich.NewBBoxEnricher(sink, resolver)
		sigolo.FatalCheck(src.ReadChanges(enricher.Node, enricher.Way, enricher.Relation))
	} else {
		sigolo.FatalCheck(src.ReadChanges(sink.WriteNode, sink.WriteWay, sink.WriteRelation))
	}
	sigolo.FatalCheck(sink.Close())
}

func runXmlBbox(source, dest string, resolver osmcache.Resolver) *osmcache.Cache {
	src, err := osmio.OpenChange(source)
	sigolo.FatalCheck(err)
	defer src.Close()

	sink, err := osmio.CreateXmlSink(dest)
	sigolo.FatalCheck(err)

	enricher := enrich.NewBBoxEnricher(sink, resolver)
	sigolo.FatalCheck(src.ReadChanges(enricher.Node, enricher.Way, enricher.Relation))
	sigolo.FatalCheck(sink.Close())

	return enricher.Cache()
}

func runDiffs() {
	tree, err := filter.LoadTree(cli.Diffs.Polygons)
	sigolo.FatalCheck(err)

	s, err := store.Open(cli.Diffs.Store, store.ReadOnly)
	sigolo.FatalCheck(err)
	defer s.Close()

	scratch := cli.Diffs.DestDir + "/bbox" + cli.Diffs.DestSuffix + ".osc.gz"
	cache := runXmlBbox(cli.Diffs.Source, scratch, s)
	defer os.Remove(scratch)

	for _, child := range tree.Children {
		sigolo.FatalCheck(splitRegion(child, scratch, cli.Diffs.DestDir, cli.Diffs.DestSuffix, cache))
	}
}

func splitRegion(node *filter.Tree, inputPath, destDir, suffix string, cache *osmcache.Cache) error {
	if node.Poly == nil {
		for _, child := range node.Children {
			if err := splitRegion(child, inputPath, destDir, suffix, cache); err != nil {
				return err
			}
		}
		return nil
	}

	outPath := destDir + "/" + node.Name + suffix + ".osc.gz"
	src, err := osmio.OpenChange(inputPath)
	if err != nil {
		return err
	}
	defer src.Close()

	sink, err := osmio.CreateXmlSink(outPath)
	if err != nil {
		return err
	}
	pf := filter.NewPolygonFilter(node.Poly, sink, cache)
	if err := src.ReadChanges(pf.Node, pf.Way, pf.Relation); err != nil {
		return err
	}
	if err := sink.Close(); err != nil {
		return err
	}

	for _, child := range node.Children {
		if err := splitRegion(child, outPath, destDir, suffix, cache); err != nil {
			return err
		}
	}
	return nil
}

func runUpdate() {
	p, err := pipeline.New(pipeline.Config{
		StoreDir:   cli.Update.Store,
		DiffsDir:   cli.Update.Diffs,
		PolygonDir: cli.Update.Polygons,
		URLDiffs:   cli.Update.UrlDiffs,
		MaxState:   cli.Update.MaxState,
	})
	sigolo.FatalCheck(err)
	sigolo.FatalCheck(p.Run())
}

func runServe() {
	s, err := statusapi.NewServer(cli.Serve.Diffs, cli.Serve.Polygons)
	sigolo.FatalCheck(err)
	sigolo.FatalCheck(s.ListenAndServe(cli.Serve.Addr))
}
