package ingest

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"
)

// EncodeWKB converts a go-shp geometry to little-endian WKB. Z and M
// ordinates are dropped. Returns nil, nil for unsupported or empty shapes.
func EncodeWKB(shape shp.Shape) ([]byte, error) {
	g := toGeom(shape)
	if g == nil {
		return nil, nil
	}
	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: encode WKB")
	}
	return data, nil
}

func toGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.PointZ:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.MultiPoint:
		if len(s.Points) == 0 {
			return nil
		}
		return geom.NewMultiPointFlat(geom.XY, flatPoints(s.Points))
	case *shp.PolyLine:
		return linesToGeom(splitParts(s.Parts, s.Points))
	case *shp.PolyLineZ:
		return linesToGeom(splitParts(s.Parts, s.Points))
	case *shp.Polygon:
		return ringsToGeom(splitParts(s.Parts, s.Points))
	case *shp.PolygonZ:
		return ringsToGeom(splitParts(s.Parts, s.Points))
	default:
		return nil
	}
}

// splitParts cuts a shapefile point array at the part offsets.
func splitParts(parts []int32, points []shp.Point) [][]shp.Point {
	if len(points) == 0 {
		return nil
	}
	if len(parts) == 0 {
		return [][]shp.Point{points}
	}
	out := make([][]shp.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start >= end || end > int32(len(points)) {
			continue
		}
		out = append(out, points[start:end])
	}
	return out
}

// linesToGeom returns a LineString for a single part and a MultiLineString
// otherwise. Parts with fewer than two points are dropped.
func linesToGeom(parts [][]shp.Point) geom.T {
	mls := geom.NewMultiLineString(geom.XY)
	for i, part := range parts {
		if len(part) < 2 {
			continue
		}
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, flatPoints(part))); err != nil {
			zap.L().Debug("ingest: skipping malformed linestring part", zap.Int("part", i), zap.Error(err))
		}
	}
	switch mls.NumLineStrings() {
	case 0:
		return nil
	case 1:
		return mls.LineString(0)
	default:
		return mls
	}
}

// ringsToGeom groups shapefile rings into polygons. Clockwise rings start a
// new polygon; counter-clockwise rings are holes of the polygon before them.
// A hole with no preceding outer ring is promoted to an outer ring.
func ringsToGeom(rings [][]shp.Point) geom.T {
	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon
	flush := func() {
		if current == nil {
			return
		}
		if err := mp.Push(current); err != nil {
			zap.L().Debug("ingest: skipping malformed polygon", zap.Error(err))
		}
		current = nil
	}

	for i, ring := range rings {
		if len(ring) < 4 {
			zap.L().Debug("ingest: skipping degenerate ring", zap.Int("ring", i), zap.Int("points", len(ring)))
			continue
		}
		lr := geom.NewLinearRingFlat(geom.XY, flatPoints(ring))
		if signedArea(ring) > 0 && current != nil {
			if err := current.Push(lr); err != nil {
				zap.L().Debug("ingest: skipping malformed hole", zap.Int("ring", i), zap.Error(err))
			}
			continue
		}
		flush()
		current = geom.NewPolygon(geom.XY)
		if err := current.Push(lr); err != nil {
			zap.L().Debug("ingest: skipping malformed ring", zap.Int("ring", i), zap.Error(err))
			current = nil
		}
	}
	flush()

	switch mp.NumPolygons() {
	case 0:
		return nil
	case 1:
		return mp.Polygon(0)
	default:
		return mp
	}
}

// signedArea is the shoelace area of a ring: positive for counter-clockwise.
func signedArea(ring []shp.Point) float64 {
	var sum float64
	for i := 0; i+1 < len(ring); i++ {
		sum += ring[i].X*ring[i+1].Y - ring[i+1].X*ring[i].Y
	}
	return sum / 2
}

func flatPoints(points []shp.Point) []float64 {
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
