package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"

	"osmreplica/enrich"
	"osmreplica/filelock"
	"osmreplica/filter"
	"osmreplica/osmcache"
	"osmreplica/osmio"
	"osmreplica/store"
)

// Config holds everything a Pipeline needs to drive replication for one
// store against one region tree, matching the "update" subcommand's
// flags.
type Config struct {
	StoreDir   string // the osmbin-style region-replica store
	DiffsDir   string // output root: planet/, bbox/ and one tree per region
	PolygonDir string // root directory handed to filter.LoadTree
	URLDiffs   string // base URL of the upstream minute-diff mirror
	MaxState   uint64 // 0 means "no ceiling"
}

// Pipeline drives the per-minute replication loop: it downloads each
// new sequence number, enriches it with bounding boxes, fans it out
// through the region tree, and finally applies the original
// (unfiltered) change to the store.
type Pipeline struct {
	cfg        Config
	tree       *filter.Tree
	downloader Downloader
}

// New validates cfg.PolygonDir by loading the region tree once and
// returns a Pipeline ready to Run. Each tick reloads the tree fresh, so
// this initial load exists only to fail fast on a bad polygon directory
// before any network access happens.
func New(cfg Config) (*Pipeline, error) {
	tree, err := filter.LoadTree(cfg.PolygonDir)
	if err != nil {
		return nil, errors.Wrapf(err, "loading region tree from %s", cfg.PolygonDir)
	}
	return &Pipeline{cfg: cfg, tree: tree, downloader: newHTTPDownloader()}, nil
}

func parentDir(path string) string {
	return filepath.Dir(path)
}

func (p *Pipeline) planetDir() string {
	return filepath.Join(p.cfg.DiffsDir, "planet", "minute")
}

func (p *Pipeline) bboxDir() string {
	return filepath.Join(p.cfg.DiffsDir, "bbox", "minute")
}

// Run acquires the update.lock, compares the locally recorded sequence
// number against the upstream one, and processes every minute in
// between in order. It is a no-op (not an error) when already caught
// up, so it can be invoked unconditionally from a cron-style caller.
func (p *Pipeline) Run() error {
	lock := filelock.New(filepath.Join(p.cfg.DiffsDir, "update.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return errors.Wrap(err, "acquiring update.lock")
	}
	if !ok {
		return errors.New("another update is already running")
	}
	defer lock.Unlock()

	planetState := filepath.Join(p.planetDir(), "state.txt")
	current, err := ReadStateFile(planetState)
	if err != nil {
		return err
	}

	remote, err := p.readRemoteState()
	if err != nil {
		return err
	}
	if p.cfg.MaxState > 0 && remote > p.cfg.MaxState {
		remote = p.cfg.MaxState
	}
	if remote <= current {
		sigolo.Debugf("already at sequence %d, nothing to do", current)
		return nil
	}

	for n := current + 1; n <= remote; n++ {
		sigolo.Infof("processing sequence %d", n)
		if err := p.tick(n); err != nil {
			return errors.Wrapf(err, "processing sequence %d", n)
		}
	}
	return nil
}

func (p *Pipeline) readRemoteState() (uint64, error) {
	tmp, err := os.CreateTemp("", "osmreplica-remote-state-*.txt")
	if err != nil {
		return 0, errors.Wrap(err, "creating temp file for remote state")
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	url := strings.TrimSuffix(p.cfg.URLDiffs, "/") + "/state.txt"
	if err := p.downloader.Download(url, tmpPath); err != nil {
		return 0, errors.Wrap(err, "fetching upstream state.txt")
	}
	return ReadStateFile(tmpPath)
}

// tick runs steps (a)-(g) of the replication loop for a single sequence
// number: download, bbox-enrich, fan out through the region tree,
// apply to the store, then repoint state symlinks. The region tree is
// reloaded fresh every tick so an operator can add or edit a .poly file
// between minutes without restarting the process; filter's content-hash
// cache keeps that reload cheap when nothing actually changed.
func (p *Pipeline) tick(n uint64) error {
	seq := SequencePath(n)

	tree, err := filter.LoadTree(p.cfg.PolygonDir)
	if err != nil {
		return errors.Wrapf(err, "reloading region tree from %s", p.cfg.PolygonDir)
	}
	p.tree = tree

	// (a)-(b): download the original diff and its state file.
	planetDiff := filepath.Join(p.planetDir(), seq+".osc.gz")
	planetState := filepath.Join(p.planetDir(), seq+".state.txt")
	if err := p.downloader.Download(p.cfg.URLDiffs+"/"+seq+".osc.gz", planetDiff); err != nil {
		return err
	}
	if err := p.downloader.Download(p.cfg.URLDiffs+"/"+seq+".state.txt", planetState); err != nil {
		return err
	}

	// (c): bbox-enrich the diff against the store's pre-change state.
	cache, err := p.enrichBBox(seq, planetDiff)
	if err != nil {
		return err
	}

	// (d): link/repoint the bbox tree's state file.
	if err := hardLinkState(planetState, filepath.Join(p.bboxDir(), seq+".state.txt")); err != nil {
		return err
	}
	if err := repointStateSymlink(p.bboxDir(), seq); err != nil {
		return err
	}

	// (e): fan the bbox-enriched diff out through the region tree.
	bboxDiff := filepath.Join(p.bboxDir(), seq+".osc.gz")
	if err := p.filterTree(p.tree, bboxDiff, cache, seq, planetState, ""); err != nil {
		return err
	}

	// (f): apply the ORIGINAL (unfiltered) diff to the store. Must run
	// after (c)-(e), which all read the store's pre-change contents.
	if err := p.applyToStore(planetDiff); err != nil {
		return err
	}

	// (g): repoint the planet tree's state file last, marking the whole
	// minute as durably processed.
	return repointStateSymlink(p.planetDir(), seq)
}

func (p *Pipeline) enrichBBox(seq, planetDiff string) (*osmcache.Cache, error) {
	bboxDiff := filepath.Join(p.bboxDir(), seq+".osc.gz")
	if err := os.MkdirAll(parentDir(bboxDiff), 0777); err != nil {
		return nil, errors.Wrapf(err, "creating directory for %s", bboxDiff)
	}

	storeRO, err := store.Open(p.cfg.StoreDir, store.ReadOnly)
	if err != nil {
		return nil, errors.Wrap(err, "opening store for bbox enrichment")
	}
	defer storeRO.Close()

	src, err := osmio.OpenChange(planetDiff)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	sink, err := osmio.CreateXmlSink(bboxDiff)
	if err != nil {
		return nil, err
	}

	enricher := enrich.NewBBoxEnricher(sink, storeRO)
	readErr := src.ReadChanges(enricher.Node, enricher.Way, enricher.Relation)
	closeErr := sink.Close()
	if readErr != nil {
		return nil, errors.Wrapf(readErr, "enriching %s", planetDiff)
	}
	if closeErr != nil {
		return nil, errors.Wrapf(closeErr, "closing %s", bboxDiff)
	}

	return enricher.Cache(), nil
}

func (p *Pipeline) applyToStore(planetDiff string) error {
	storeRW, err := store.Open(p.cfg.StoreDir, store.ReadWrite)
	if err != nil {
		return errors.Wrap(err, "opening store for update")
	}
	defer storeRW.Close()

	src, err := osmio.OpenChange(planetDiff)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := storeRW.Update(src); err != nil {
		return errors.Wrapf(err, "applying %s to store", planetDiff)
	}
	return nil
}

// filterTree walks node's children concurrently. inputDiff is the
// change file node's own filter (if any) should read from; planetState
// is the original downloaded state file, hard-linked unchanged into
// every region regardless of nesting depth, matching
// the upstream region-split tool's recursive diff generation (every
// level links the one orig_state_file the top-level Diff was built
// with). regionPath is the output-tree path accumulated so far.
func (p *Pipeline) filterTree(node *filter.Tree, inputDiff string, cache *osmcache.Cache, seq, planetState, regionPath string) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(node.Children))

	for _, child := range node.Children {
		child := child
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.filterNode(child, inputDiff, cache, seq, planetState, regionPath); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) filterNode(node *filter.Tree, inputDiff string, cache *osmcache.Cache, seq, planetState, regionPath string) error {
	childRegionPath := filepath.Join(regionPath, node.Name)
	childInput := inputDiff

	if node.Poly != nil {
		regionDir := filepath.Join(p.cfg.DiffsDir, childRegionPath, "minute")
		outDiff := filepath.Join(regionDir, seq+".osc.gz")
		if err := os.MkdirAll(regionDir, 0777); err != nil {
			return errors.Wrapf(err, "creating directory for region %s", childRegionPath)
		}

		if err := p.runRegionFilter(node, inputDiff, outDiff, cache); err != nil {
			return errors.Wrapf(err, "filtering region %s", childRegionPath)
		}
		if err := hardLinkState(planetState, filepath.Join(regionDir, seq+".state.txt")); err != nil {
			return err
		}
		if err := repointStateSymlink(regionDir, seq); err != nil {
			return err
		}
		childInput = outDiff
	}

	return p.filterTree(node, childInput, cache, seq, planetState, childRegionPath)
}

func (p *Pipeline) runRegionFilter(node *filter.Tree, inputDiff, outDiff string, cache *osmcache.Cache) error {
	src, err := osmio.OpenChange(inputDiff)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := outDiff + "-tmp"
	sink, err := osmio.CreateXmlSink(tmp)
	if err != nil {
		return err
	}

	pf := filter.NewPolygonFilter(node.Poly, sink, cache)
	readErr := src.ReadChanges(pf.Node, pf.Way, pf.Relation)
	closeErr := sink.Close()
	if readErr != nil {
		os.Remove(tmp)
		return errors.Wrapf(readErr, "filtering %s", inputDiff)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return errors.Wrapf(closeErr, "closing %s", tmp)
	}

	return os.Rename(tmp, outDiff)
}

// hardLinkState hard-links src onto dest, matching
// the upstream region-split tool's use of a hard link (rather than a
// copy) for every tree's per-minute state file.
func hardLinkState(src, dest string) error {
	if err := os.MkdirAll(parentDir(dest), 0777); err != nil {
		return errors.Wrapf(err, "creating directory for %s", dest)
	}
	os.Remove(dest)
	if err := os.Link(src, dest); err != nil {
		return errors.Wrapf(err, "hard-linking %s to %s", src, dest)
	}
	return nil
}

// repointStateSymlink makes dir/state.txt a relative symlink to
// seq+".state.txt", matching the upstream tool's use of a relative symlink
// target (e.g. "002/345/678.state.txt") rather than an absolute path.
func repointStateSymlink(dir, seq string) error {
	link := filepath.Join(dir, "state.txt")
	target := seq + ".state.txt"

	tmp := link + "-tmp"
	os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return errors.Wrapf(err, "symlinking %s", tmp)
	}
	return os.Rename(tmp, link)
}
