package geoproc

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/psrf/sows-cli/internal/geoerr"
	"github.com/psrf/sows-cli/internal/workspace"
)

// FeatureToPoint writes the centroid of every feature of in to a new point
// feature class out. Attributes are copied and ORIG_FID records the source
// row. Features without geometry are skipped.
func (t *Toolbox) FeatureToPoint(ctx context.Context, in, out string) (int, error) {
	var n int
	err := t.run("FeatureToPoint", func() error {
		l, err := t.describeFeatureClass(ctx, in)
		if err != nil {
			return err
		}
		feats, err := t.ws.ReadFeatures(ctx, l.Name)
		if err != nil {
			return err
		}

		taken := takenNames(l.Fields)
		origField := uniqueFieldName(taken, OrigFIDField)
		fields := append(append([]workspace.Field(nil), l.Fields...),
			workspace.Field{Name: origField, Type: workspace.FieldInteger})

		points := make([]workspace.Feature, 0, len(feats))
		var skipped int
		for _, f := range feats {
			if f.Geometry == nil {
				skipped++
				continue
			}
			c, _ := planar.CentroidArea(f.Geometry)
			values := make(map[string]any, len(fields))
			for k, v := range f.Values {
				values[k] = v
			}
			values[origField] = f.FID
			points = append(points, workspace.Feature{FID: f.FID, Geometry: c, Values: values})
		}
		if skipped > 0 {
			t.msgs.Addf("WARNING: %d features of %s have no geometry and were skipped", skipped, l.Name)
		}

		if err := t.ws.CreateLayer(ctx, workspace.Schema{
			Name:         out,
			Kind:         workspace.KindFeature,
			GeometryType: workspace.GeomPoint,
			Fields:       fields,
		}); err != nil {
			return err
		}
		if err := t.ws.InsertFeatures(ctx, out, points); err != nil {
			return err
		}
		n = len(points)
		t.msgs.Addf("Created %d centroids from %s in %s", n, l.Name, out)
		return nil
	})
	return n, err
}

// edge is one segment of a snapping or splitting target.
type edge struct {
	a, b orb.Point
}

func collectEdges(feats []workspace.Feature) []edge {
	var edges []edge
	for _, f := range feats {
		for _, part := range edgeParts(f.Geometry) {
			for i := 0; i+1 < len(part); i++ {
				edges = append(edges, edge{a: part[i], b: part[i+1]})
			}
		}
	}
	return edges
}

// Snap moves every point of the points feature class in place to the
// nearest position on an edge of target when that position is within
// tolerance map units. Points farther away are left untouched. It returns
// the number of points that lie on target afterwards.
func (t *Toolbox) Snap(ctx context.Context, points, target string, tolerance float64) (int, error) {
	var snapped int
	err := t.run("Snap", func() error {
		if tolerance < 0 {
			return geoerr.Schema("geoproc: snap", "negative tolerance %v", tolerance)
		}
		pl, err := t.describeFeatureClass(ctx, points, workspace.GeomPoint)
		if err != nil {
			return err
		}
		tl, err := t.describeFeatureClass(ctx, target, workspace.GeomLine, workspace.GeomPolygon)
		if err != nil {
			return err
		}

		pts, err := t.ws.ReadFeatures(ctx, pl.Name)
		if err != nil {
			return err
		}
		targets, err := t.ws.ReadFeatures(ctx, tl.Name)
		if err != nil {
			return err
		}

		edges := collectEdges(targets)
		bounds := make([]orb.Bound, len(edges))
		for i, e := range edges {
			bounds[i] = orb.LineString{e.a, e.b}.Bound()
		}
		idx := newBoundIndex(bounds)

		updates := make(map[int64]orb.Geometry)
		var outside int
		for _, f := range pts {
			if err := ctx.Err(); err != nil {
				return err
			}
			pt, ok := f.Geometry.(orb.Point)
			if !ok {
				continue
			}

			best := projection{dist: -1}
			for _, ei := range idx.search(pt.Bound().Pad(tolerance)) {
				e := edges[ei]
				pr, _ := project(orb.LineString{e.a, e.b}, pt)
				if best.dist < 0 || pr.dist < best.dist {
					best = pr
				}
			}
			if best.dist < 0 || best.dist > tolerance {
				outside++
				continue
			}
			if best.dist > 0 {
				updates[f.FID] = best.point
			}
			snapped++
		}

		if err := t.ws.UpdateGeometries(ctx, pl.Name, updates); err != nil {
			return err
		}
		t.msgs.Addf("Snapped %d of %d points of %s to %s (tolerance %v)", snapped, len(pts), pl.Name, tl.Name, tolerance)
		if outside > 0 {
			t.msgs.Addf("WARNING: %d points of %s are farther than %v from %s and were not snapped", outside, pl.Name, tolerance, tl.Name)
		}
		return nil
	})
	return snapped, err
}
