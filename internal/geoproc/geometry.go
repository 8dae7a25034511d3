package geoproc

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// eps is the absolute tolerance, in map units, below which two positions
// along a line are treated as the same.
const eps = 1e-9

// lineParts returns the line parts of a linear geometry.
func lineParts(g orb.Geometry) []orb.LineString {
	switch v := g.(type) {
	case orb.LineString:
		return []orb.LineString{v}
	case orb.MultiLineString:
		return v
	default:
		return nil
	}
}

// polygonParts returns the polygons of an areal geometry.
func polygonParts(g orb.Geometry) []orb.Polygon {
	switch v := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{v}
	case orb.MultiPolygon:
		return v
	default:
		return nil
	}
}

// edgeParts returns every linear edge chain of g: line parts for linear
// geometries and rings for areal ones.
func edgeParts(g orb.Geometry) []orb.LineString {
	if parts := lineParts(g); parts != nil {
		return parts
	}
	var out []orb.LineString
	for _, p := range polygonParts(g) {
		for _, r := range p {
			out = append(out, orb.LineString(r))
		}
	}
	return out
}

// containsPoint reports whether an areal geometry contains pt. Points on the
// boundary count as contained.
func containsPoint(g orb.Geometry, pt orb.Point) bool {
	switch v := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(v, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(v, pt)
	default:
		return false
	}
}

// edgeTol is the distance, in map units, within which a position counts as
// lying on a ring.
const edgeTol = 1e-7

// onBoundary reports whether pt lies on a ring of the areal geometry region.
func onBoundary(region orb.Geometry, pt orb.Point) bool {
	for _, p := range polygonParts(region) {
		for _, r := range p {
			for j := 0; j+1 < len(r); j++ {
				if segmentDistance(r[j], r[j+1], pt) <= edgeTol {
					return true
				}
			}
		}
	}
	return false
}

// interior reports whether pt lies inside region and off its boundary.
func interior(region orb.Geometry, pt orb.Point) bool {
	return containsPoint(region, pt) && !onBoundary(region, pt)
}

// claims reports whether region owns pt. Interior points belong to every
// region containing them; a boundary point belongs only to region when none
// of the prior regions contains it, so a point on a shared edge is owned once.
func claims(region orb.Geometry, prior []orb.Geometry, pt orb.Point) bool {
	if !containsPoint(region, pt) {
		return false
	}
	if !onBoundary(region, pt) {
		return true
	}
	for _, p := range prior {
		if containsPoint(p, pt) {
			return false
		}
	}
	return true
}

// eachPiece cuts every segment of ls at its crossings with the rings of
// region and calls fn with the midpoint and length of each piece.
func eachPiece(ls orb.LineString, region orb.Geometry, fn func(mid orb.Point, length float64)) {
	polys := polygonParts(region)
	for i := 0; i+1 < len(ls); i++ {
		a, b := ls[i], ls[i+1]
		segLen := planar.Distance(a, b)
		if segLen <= eps {
			continue
		}

		cuts := []float64{0, 1}
		for _, p := range polys {
			for _, r := range p {
				for j := 0; j+1 < len(r); j++ {
					cuts = append(cuts, segmentCrossings(a, b, r[j], r[j+1])...)
				}
			}
		}
		sort.Float64s(cuts)

		for k := 0; k+1 < len(cuts); k++ {
			t0, t1 := cuts[k], cuts[k+1]
			if (t1-t0)*segLen <= eps {
				continue
			}
			fn(lerp(a, b, (t0+t1)/2), (t1-t0)*segLen)
		}
	}
}

// lengthClaimed returns the length of ls owned by region: pieces inside it,
// plus pieces on its boundary that none of the prior regions contains.
func lengthClaimed(ls orb.LineString, region orb.Geometry, prior []orb.Geometry) float64 {
	var total float64
	eachPiece(ls, region, func(mid orb.Point, length float64) {
		if claims(region, prior, mid) {
			total += length
		}
	})
	return total
}

func segmentDistance(a, b, pt orb.Point) float64 {
	ab := orb.Point{b[0] - a[0], b[1] - a[1]}
	l2 := ab[0]*ab[0] + ab[1]*ab[1]
	if l2 == 0 {
		return planar.Distance(a, pt)
	}
	t := ((pt[0]-a[0])*ab[0] + (pt[1]-a[1])*ab[1]) / l2
	t = math.Max(0, math.Min(1, t))
	return planar.Distance(lerp(a, b, t), pt)
}

// segmentCrossings returns the parameters t in [0,1] along a→b at which the
// segment meets c→d. Collinear overlaps contribute their end points.
func segmentCrossings(a, b, c, d orb.Point) []float64 {
	r := orb.Point{b[0] - a[0], b[1] - a[1]}
	s := orb.Point{d[0] - c[0], d[1] - c[1]}
	denom := cross(r, s)
	qp := orb.Point{c[0] - a[0], c[1] - a[1]}

	rr := r[0]*r[0] + r[1]*r[1]
	if rr == 0 {
		return nil
	}

	if math.Abs(denom) <= 1e-12*math.Sqrt(rr*(s[0]*s[0]+s[1]*s[1])) {
		// Parallel: only collinear overlaps matter.
		if math.Abs(cross(qp, r)) > 1e-12*rr {
			return nil
		}
		var out []float64
		for _, p := range []orb.Point{c, d} {
			t := ((p[0]-a[0])*r[0] + (p[1]-a[1])*r[1]) / rr
			if t > 0 && t < 1 {
				out = append(out, t)
			}
		}
		return out
	}

	t := cross(qp, s) / denom
	u := cross(qp, r) / denom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return nil
	}
	return []float64{t}
}

func cross(p, q orb.Point) float64 {
	return p[0]*q[1] - p[1]*q[0]
}

func lerp(a, b orb.Point, t float64) orb.Point {
	return orb.Point{a[0] + (b[0]-a[0])*t, a[1] + (b[1]-a[1])*t}
}

// projection describes the closest position on a line to a point.
type projection struct {
	point   orb.Point
	dist    float64 // distance from the query point
	measure float64 // distance along the line from its start
}

// project returns the closest position on ls to pt.
func project(ls orb.LineString, pt orb.Point) (projection, bool) {
	if len(ls) == 0 {
		return projection{}, false
	}
	best := projection{point: ls[0], dist: planar.Distance(ls[0], pt)}
	var walked float64
	for i := 0; i+1 < len(ls); i++ {
		a, b := ls[i], ls[i+1]
		segLen := planar.Distance(a, b)
		t := 0.0
		if segLen > 0 {
			t = ((pt[0]-a[0])*(b[0]-a[0]) + (pt[1]-a[1])*(b[1]-a[1])) / (segLen * segLen)
			t = math.Max(0, math.Min(1, t))
		}
		q := lerp(a, b, t)
		if d := planar.Distance(q, pt); d < best.dist {
			best = projection{point: q, dist: d, measure: walked + t*segLen}
		}
		walked += segLen
	}
	return best, true
}

// cutLine splits ls at the given measures. Measures are sorted, and any
// that coincide with each other or with the line ends are ignored, so no
// zero-length piece is produced.
func cutLine(ls orb.LineString, measures []float64) []orb.LineString {
	total := planar.Length(ls)
	ms := make([]float64, 0, len(measures))
	for _, m := range measures {
		if m > eps && m < total-eps {
			ms = append(ms, m)
		}
	}
	sort.Float64s(ms)
	uniq := ms[:0]
	for _, m := range ms {
		if len(uniq) == 0 || m-uniq[len(uniq)-1] > eps {
			uniq = append(uniq, m)
		}
	}

	var pieces []orb.LineString
	current := orb.LineString{ls[0]}
	var walked float64
	next := 0
	for i := 0; i+1 < len(ls); i++ {
		a, b := ls[i], ls[i+1]
		segLen := planar.Distance(a, b)
		for next < len(uniq) && uniq[next] <= walked+segLen {
			t := 0.0
			if segLen > 0 {
				t = (uniq[next] - walked) / segLen
			}
			cut := lerp(a, b, t)
			current = append(current, cut)
			pieces = append(pieces, current)
			current = orb.LineString{cut}
			next++
		}
		if planar.Distance(current[len(current)-1], b) > 0 {
			current = append(current, b)
		}
		walked += segLen
	}
	if len(current) > 1 {
		pieces = append(pieces, current)
	}
	return pieces
}

// completelyWithin reports whether g lies inside the areal geometry region:
// no part of g is outside it and some part is in its interior. A feature
// lying only on the region's boundary is not within it.
func completelyWithin(g orb.Geometry, region orb.Geometry) bool {
	switch v := g.(type) {
	case orb.Point:
		return interior(region, v)
	case orb.MultiPoint:
		if len(v) == 0 {
			return false
		}
		inner := false
		for _, p := range v {
			if !containsPoint(region, p) {
				return false
			}
			inner = inner || !onBoundary(region, p)
		}
		return inner
	}

	parts := edgeParts(g)
	if len(parts) == 0 {
		return false
	}
	var inner float64
	for _, part := range parts {
		for _, p := range part {
			if !containsPoint(region, p) {
				return false
			}
		}
		outside := false
		eachPiece(part, region, func(mid orb.Point, length float64) {
			switch {
			case !containsPoint(region, mid):
				outside = true
			case !onBoundary(region, mid):
				inner += length
			}
		})
		if outside {
			return false
		}
	}
	return inner > eps
}
