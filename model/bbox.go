package model

import "github.com/paulmach/orb"

// BoundingBox is a decimicro-degree axis-aligned box. Invariant: Min <= Max
// on both axes (enforced by Expand/Union, never by the zero value).
type BoundingBox struct {
	MinLat, MaxLat int32
	MinLon, MaxLon int32
}

// PointBox returns the degenerate bounding box containing exactly one point.
func PointBox(decimicroLat, decimicroLon int32) BoundingBox {
	return BoundingBox{
		MinLat: decimicroLat, MaxLat: decimicroLat,
		MinLon: decimicroLon, MaxLon: decimicroLon,
	}
}

// ExpandPoint grows b (in place via pointer) so it also contains the given point.
func (b *BoundingBox) ExpandPoint(decimicroLat, decimicroLon int32) {
	if decimicroLat < b.MinLat {
		b.MinLat = decimicroLat
	}
	if decimicroLat > b.MaxLat {
		b.MaxLat = decimicroLat
	}
	if decimicroLon < b.MinLon {
		b.MinLon = decimicroLon
	}
	if decimicroLon > b.MaxLon {
		b.MaxLon = decimicroLon
	}
}

// Union grows b so it also contains other.
func (b *BoundingBox) Union(other BoundingBox) {
	b.ExpandPoint(other.MinLat, other.MinLon)
	b.ExpandPoint(other.MaxLat, other.MaxLon)
}

// UnionBBox merges a and b into a new box. Either may be nil, meaning "no box yet".
func UnionBBox(a, b *BoundingBox) *BoundingBox {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	u := *a
	u.Union(*b)
	return &u
}

// Bound converts to an orb.Bound for use with orb's intersection tests.
// orb coordinates are (lon, lat) in plain degrees.
func (b BoundingBox) Bound() orb.Bound {
	const scale = 1e-7
	return orb.Bound{
		Min: orb.Point{float64(b.MinLon) * scale, float64(b.MinLat) * scale},
		Max: orb.Point{float64(b.MaxLon) * scale, float64(b.MaxLat) * scale},
	}
}

// Intersects is a standard axis-aligned box intersection test.
func (b BoundingBox) Intersects(other BoundingBox) bool {
	return b.MinLat <= other.MaxLat && b.MaxLat >= other.MinLat &&
		b.MinLon <= other.MaxLon && b.MaxLon >= other.MinLon
}
