// Package filter implements region geometry (the "polygon filter" text
// format), the region tree that drives parallel per-region passes, and
// PolygonFilter itself.
package filter

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"

	"osmreplica/model"
)

// DefaultBufferEpsilon is the margin P is grown by to produce P⁺: its
// bounding box expanded by this many degrees on every side, used
// directly as P⁺. That trivially contains P and bounds the extra
// margin, which is all a buffering routine needs to guarantee.
const DefaultBufferEpsilon = 0.1

// Poly is one polygon-filter file: the exact region P and its buffered
// form P⁺, plus their precomputed bounds for the cheap bbox-vs-bbox
// pre-check every filter decision starts with.
type Poly struct {
	Name string

	exact    orb.MultiPolygon
	buffered orb.MultiPolygon

	exactBound    orb.Bound
	bufferedBound orb.Bound
}

// ParsePolyFile reads the "polygon filter" text format: a name line,
// then one or more "[!]label / lon lat... / END" sections, terminated
// by a final bare END. The leading '!' marking a subtractive ring is
// recognised but ignored — every section becomes one more polygon
// unioned into the region.
func ParsePolyFile(path string) (*Poly, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open poly file %s", path)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	if !sc.Scan() {
		return nil, errors.Errorf("poly file %s is empty", path)
	}
	name := strings.TrimSpace(sc.Text())

	var polygons orb.MultiPolygon
	terminated := false
	for sc.Scan() {
		label := strings.TrimSpace(sc.Text())
		if label == "END" {
			terminated = true
			break
		}
		label = strings.TrimPrefix(label, "!")

		var ring orb.Ring
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "END" {
				break
			}
			pt, err := parseVertex(line)
			if err != nil {
				return nil, errors.Wrapf(err, "poly file %s, section %q", path, label)
			}
			ring = append(ring, pt)
		}
		if len(ring) < 3 {
			return nil, errors.Errorf("poly file %s, section %q: ring has fewer than 3 vertices", path, label)
		}
		polygons = append(polygons, orb.Polygon{ring})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading poly file %s", path)
	}
	if !terminated {
		return nil, errors.Wrapf(model.ErrInputCorrupt, "poly file %s: missing END terminator", path)
	}
	if len(polygons) == 0 {
		return nil, errors.Errorf("poly file %s defines no rings", path)
	}

	return newPoly(name, polygons), nil
}

func parseVertex(line string) (orb.Point, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return orb.Point{}, errors.Errorf("expected \"lon lat\", got %q", line)
	}
	lon, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return orb.Point{}, errors.Wrapf(err, "parsing longitude %q", fields[0])
	}
	lat, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return orb.Point{}, errors.Wrapf(err, "parsing latitude %q", fields[1])
	}
	return orb.Point{lon, lat}, nil
}

func newPoly(name string, polygons orb.MultiPolygon) *Poly {
	bound := polygons.Bound()
	bufferedBound := orb.Bound{
		Min: orb.Point{bound.Min[0] - DefaultBufferEpsilon, bound.Min[1] - DefaultBufferEpsilon},
		Max: orb.Point{bound.Max[0] + DefaultBufferEpsilon, bound.Max[1] + DefaultBufferEpsilon},
	}
	return &Poly{
		Name:          name,
		exact:         polygons,
		buffered:      orb.MultiPolygon{boxPolygon(bufferedBound)},
		exactBound:    bound,
		bufferedBound: bufferedBound,
	}
}

// ContainsExact reports whether pt lies in P.
func (p *Poly) ContainsExact(pt orb.Point) bool {
	return containsAny(p.exact, pt)
}

// ContainsBuffered reports whether pt lies in P⁺.
func (p *Poly) ContainsBuffered(pt orb.Point) bool {
	return containsAny(p.buffered, pt)
}

func containsAny(mp orb.MultiPolygon, pt orb.Point) bool {
	for _, poly := range mp {
		if planar.PolygonContains(poly, pt) {
			return true
		}
	}
	return false
}

// BoundIntersectsBuffered reports whether b (a decimicro-degree box)
// intersects P⁺ — the cheap pre-check every way/relation filter
// decision starts with.
func (p *Poly) BoundIntersectsBuffered(b model.BoundingBox) bool {
	return p.bufferedBound.Intersects(b.Bound())
}

func boxPolygon(b orb.Bound) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{b.Min[0], b.Min[1]},
		{b.Max[0], b.Min[1]},
		{b.Max[0], b.Max[1]},
		{b.Min[0], b.Max[1]},
		{b.Min[0], b.Min[1]},
	}}
}
