package geoproc

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/psrf/sows-cli/internal/geoerr"
	"github.com/psrf/sows-cli/internal/workspace"
)

// SplitLineAtPoint cuts every line of lines at the projection of each point
// of points lying within radius map units of it and writes the pieces to a
// new polyline feature class out. Pieces keep the source attributes plus
// ORIG_FID and are written in source, part and measure order.
func (t *Toolbox) SplitLineAtPoint(ctx context.Context, lines, points, out string, radius float64) (int, error) {
	var n int
	err := t.run("SplitLineAtPoint", func() error {
		if radius < 0 {
			return geoerr.Schema("geoproc: split line at point", "negative search radius %v", radius)
		}
		ll, err := t.describeFeatureClass(ctx, lines, workspace.GeomLine)
		if err != nil {
			return err
		}
		pl, err := t.describeFeatureClass(ctx, points, workspace.GeomPoint)
		if err != nil {
			return err
		}

		lineFeats, err := t.ws.ReadFeatures(ctx, ll.Name)
		if err != nil {
			return err
		}
		pointFeats, err := t.ws.ReadFeatures(ctx, pl.Name)
		if err != nil {
			return err
		}

		var cutters []orb.Point
		for _, f := range pointFeats {
			switch g := f.Geometry.(type) {
			case orb.Point:
				cutters = append(cutters, g)
			case orb.MultiPoint:
				cutters = append(cutters, g...)
			}
		}
		bounds := make([]orb.Bound, len(cutters))
		for i, p := range cutters {
			bounds[i] = p.Bound()
		}
		idx := newBoundIndex(bounds)

		taken := takenNames(ll.Fields)
		origField := uniqueFieldName(taken, OrigFIDField)
		fields := append(append([]workspace.Field(nil), ll.Fields...),
			workspace.Field{Name: origField, Type: workspace.FieldInteger})

		var pieces []workspace.Feature
		for _, f := range lineFeats {
			if err := ctx.Err(); err != nil {
				return err
			}
			for _, part := range lineParts(f.Geometry) {
				if len(part) < 2 {
					continue
				}
				var measures []float64
				for _, pi := range idx.search(part.Bound().Pad(radius)) {
					pr, ok := project(part, cutters[pi])
					if ok && pr.dist <= radius {
						measures = append(measures, pr.measure)
					}
				}
				for _, piece := range cutLine(part, measures) {
					values := make(map[string]any, len(fields))
					for k, v := range f.Values {
						values[k] = v
					}
					values[origField] = f.FID
					pieces = append(pieces, workspace.Feature{Geometry: piece, Values: values})
				}
			}
		}

		if err := t.ws.CreateLayer(ctx, workspace.Schema{
			Name:         out,
			Kind:         workspace.KindFeature,
			GeometryType: workspace.GeomLine,
			Fields:       fields,
		}); err != nil {
			return err
		}
		if err := t.ws.InsertFeatures(ctx, out, pieces); err != nil {
			return err
		}
		n = len(pieces)
		t.msgs.Addf("Split %d lines of %s at %d points of %s into %d segments in %s (radius %v)",
			len(lineFeats), ll.Name, len(cutters), pl.Name, n, out, radius)
		return nil
	})
	return n, err
}

// CalculateGeometryLength stores the planar length of every line of layer,
// converted to unit, in the numeric field.
func (t *Toolbox) CalculateGeometryLength(ctx context.Context, layer, field string, unit Unit) error {
	return t.run("CalculateGeometryAttributes", func() error {
		if unit.Meters() == 0 {
			return geoerr.Schema("geoproc: calculate geometry length", "unknown linear unit %q", unit)
		}
		l, err := t.describeFeatureClass(ctx, layer, workspace.GeomLine, workspace.GeomPolygon)
		if err != nil {
			return err
		}
		f, ok := l.Field(field)
		if !ok {
			return geoerr.Schema("geoproc: calculate geometry length", "field %s not found in %s", field, l.Name)
		}
		if f.Type != workspace.FieldDouble {
			return geoerr.Schema("geoproc: calculate geometry length", "field %s of %s is %s, want DOUBLE", f.Name, l.Name, f.Type)
		}

		feats, err := t.ws.ReadFeatures(ctx, l.Name)
		if err != nil {
			return err
		}
		values := make(map[int64]any, len(feats))
		for _, ft := range feats {
			if ft.Geometry == nil {
				values[ft.FID] = nil
				continue
			}
			var length float64
			for _, part := range edgeParts(ft.Geometry) {
				length += planar.Length(part)
			}
			values[ft.FID] = t.lengthIn(length, unit)
		}
		if err := t.ws.UpdateValues(ctx, l.Name, f.Name, values); err != nil {
			return err
		}
		t.msgs.Addf("Calculated %s.%s as length in %s for %d features", l.Name, f.Name, unit, len(feats))
		return nil
	})
}

// SelectCompletelyWithin copies the features of in that lie entirely inside
// at least one polygon of polygons to a new feature class out. FIDs and
// attributes are preserved.
func (t *Toolbox) SelectCompletelyWithin(ctx context.Context, in, polygons, out string) (int, error) {
	var n int
	err := t.run("SelectLayerByLocation", func() error {
		il, err := t.describeFeatureClass(ctx, in)
		if err != nil {
			return err
		}
		rl, err := t.describeFeatureClass(ctx, polygons, workspace.GeomPolygon)
		if err != nil {
			return err
		}

		feats, err := t.ws.ReadFeatures(ctx, il.Name)
		if err != nil {
			return err
		}
		regions, err := t.ws.ReadFeatures(ctx, rl.Name)
		if err != nil {
			return err
		}
		regionGeoms := make([]orb.Geometry, len(regions))
		for i, r := range regions {
			regionGeoms[i] = r.Geometry
		}
		idx := newBoundIndex(geometryBounds(regionGeoms))

		var selected []workspace.Feature
		for _, f := range feats {
			if err := ctx.Err(); err != nil {
				return err
			}
			if f.Geometry == nil {
				continue
			}
			for _, ri := range idx.search(f.Geometry.Bound()) {
				if completelyWithin(f.Geometry, regionGeoms[ri]) {
					selected = append(selected, f)
					break
				}
			}
		}

		if err := t.ws.CreateLayer(ctx, workspace.Schema{
			Name:         out,
			Kind:         workspace.KindFeature,
			GeometryType: il.GeometryType,
			Fields:       il.Fields,
		}); err != nil {
			return err
		}
		if err := t.ws.InsertFeatures(ctx, out, selected); err != nil {
			return err
		}
		n = len(selected)
		t.msgs.Addf("Selected %d of %d features of %s completely within %s into %s", n, len(feats), il.Name, rl.Name, out)
		return nil
	})
	return n, err
}
