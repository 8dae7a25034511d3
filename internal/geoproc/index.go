package geoproc

import (
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// minExtent keeps degenerate (point or axis-aligned) bounds valid for the
// R-tree, which rejects zero-length sides.
const minExtent = 1e-9

// boundIndex is an R-tree over the bounds of a slice of geometries. Search
// returns slice positions in ascending order so callers stay deterministic.
type boundIndex struct {
	tree *rtreego.Rtree
	size int
}

type indexedBound struct {
	pos  int
	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (b *indexedBound) Bounds() rtreego.Rect { return b.rect }

func rectOf(b orb.Bound) rtreego.Rect {
	point := rtreego.Point{b.Min[0], b.Min[1]}
	lengths := []float64{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1]}
	for i := range lengths {
		if lengths[i] < minExtent {
			lengths[i] = minExtent
		}
	}
	rect, _ := rtreego.NewRect(point, lengths)
	return rect
}

func newBoundIndex(bounds []orb.Bound) *boundIndex {
	tree := rtreego.NewTree(2, 25, 50)
	for i, b := range bounds {
		tree.Insert(&indexedBound{pos: i, rect: rectOf(b)})
	}
	return &boundIndex{tree: tree, size: len(bounds)}
}

// search returns the positions whose bounds intersect or touch b.
func (x *boundIndex) search(b orb.Bound) []int {
	if x.size == 0 {
		return nil
	}
	hits := x.tree.SearchIntersect(rectOf(b.Pad(minExtent)))
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*indexedBound).pos)
	}
	sort.Ints(out)
	return out
}

// geometryBounds returns the bound of every geometry; nil geometries get an
// empty bound far from any data so they never match.
func geometryBounds(geoms []orb.Geometry) []orb.Bound {
	out := make([]orb.Bound, len(geoms))
	for i, g := range geoms {
		if g == nil {
			out[i] = orb.Bound{Min: orb.Point{1e300, 1e300}, Max: orb.Point{1e300, 1e300}}
			continue
		}
		out[i] = g.Bound()
	}
	return out
}
