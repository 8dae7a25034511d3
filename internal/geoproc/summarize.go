package geoproc

import (
	"context"
	"math"
	"slices"

	"github.com/montanaflynn/stats"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/psrf/sows-cli/internal/geoerr"
	"github.com/psrf/sows-cli/internal/workspace"
)

// SummarizeParams configures SummarizeWithin.
type SummarizeParams struct {
	Polygons    string // regions to summarize within
	SumFeatures string // features to summarize
	Out         string
	// KeepAll keeps regions with no matching features (count 0, null stats).
	KeepAll bool
	Stats   []StatField
	// ShapeSum adds the summed length (lines) or area (polygons) of the
	// matched features, in ShapeUnit (square ShapeUnit for areas).
	ShapeSum  bool
	ShapeUnit Unit
}

// SummarizeResult reports the output dataset and the engine names chosen
// for the added fields.
type SummarizeResult struct {
	Out           string
	CountField    string
	ShapeSumField string
	StatFields    map[StatField]string
	Rows          int
	Matched       int // summary features assigned to at least one region
}

type regionAgg struct {
	count  int
	shape  float64
	values map[string]stats.Float64Data
}

// SummarizeWithin counts the features of SumFeatures that fall within each
// region of Polygons and computes the requested statistics.
//
// Points match the regions that contain them. Lines match every region they
// have positive length in, and only that length is added to the shape sum.
// Polygons match the region containing their centroid and add their full
// area. A point or line piece on an edge shared by several regions goes to
// the first of them in FID order only.
func (t *Toolbox) SummarizeWithin(ctx context.Context, p SummarizeParams) (*SummarizeResult, error) {
	var res *SummarizeResult
	err := t.run("SummarizeWithin", func() error {
		var err error
		res, err = t.summarizeWithin(ctx, p)
		return err
	})
	return res, err
}

func (t *Toolbox) summarizeWithin(ctx context.Context, p SummarizeParams) (*SummarizeResult, error) {
	regionLayer, err := t.describeFeatureClass(ctx, p.Polygons, workspace.GeomPolygon)
	if err != nil {
		return nil, err
	}
	sumLayer, err := t.describeFeatureClass(ctx, p.SumFeatures)
	if err != nil {
		return nil, err
	}
	if p.ShapeSum && p.ShapeUnit == "" {
		p.ShapeUnit = Kilometers
	}

	statSource := make(map[StatField]string, len(p.Stats))
	var sourceFields []string
	for _, s := range p.Stats {
		f, ok := sumLayer.Field(s.Field)
		if !ok {
			return nil, geoerr.Schema("geoproc: summarize within", "field %s not found in %s", s.Field, sumLayer.Name)
		}
		if f.Type != workspace.FieldDouble && f.Type != workspace.FieldInteger {
			return nil, geoerr.Schema("geoproc: summarize within", "field %s of %s is %s, not numeric", f.Name, sumLayer.Name, f.Type)
		}
		if !slices.Contains(sourceFields, f.Name) {
			sourceFields = append(sourceFields, f.Name)
		}
		statSource[s] = f.Name
	}

	// Output schema: region fields, then stats, shape sum and count.
	taken := takenNames(regionLayer.Fields)
	outFields := append([]workspace.Field(nil), regionLayer.Fields...)
	res := &SummarizeResult{Out: p.Out, StatFields: make(map[StatField]string, len(p.Stats))}
	for _, s := range p.Stats {
		name := uniqueFieldName(taken, StatFieldName(StatField{Field: statSource[s], Stat: s.Stat}))
		res.StatFields[s] = name
		outFields = append(outFields, workspace.Field{Name: name, Type: workspace.FieldDouble})
	}
	if p.ShapeSum {
		res.ShapeSumField = uniqueFieldName(taken, ShapeSumFieldName(sumLayer.GeometryType, p.ShapeUnit))
		outFields = append(outFields, workspace.Field{Name: res.ShapeSumField, Type: workspace.FieldDouble})
	}
	res.CountField = uniqueFieldName(taken, CountFieldName(sumLayer.GeometryType))
	outFields = append(outFields, workspace.Field{Name: res.CountField, Type: workspace.FieldInteger})

	regions, err := t.ws.ReadFeatures(ctx, regionLayer.Name)
	if err != nil {
		return nil, err
	}
	features, err := t.ws.ReadFeatures(ctx, sumLayer.Name)
	if err != nil {
		return nil, err
	}

	regionGeoms := make([]orb.Geometry, len(regions))
	for i, r := range regions {
		regionGeoms[i] = r.Geometry
	}
	idx := newBoundIndex(geometryBounds(regionGeoms))

	aggs := make([]regionAgg, len(regions))
	for i := range aggs {
		aggs[i].values = make(map[string]stats.Float64Data)
	}

	var skipped int
	for _, feat := range features {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if feat.Geometry == nil {
			skipped++
			continue
		}

		matched := false
		cands := idx.search(feat.Geometry.Bound())
		candGeoms := make([]orb.Geometry, len(cands))
		for k, ri := range cands {
			candGeoms[k] = regionGeoms[ri]
		}
		for k, ri := range cands {
			shape, ok := t.match(feat.Geometry, regionGeoms[ri], candGeoms[:k], p.ShapeUnit)
			if !ok {
				continue
			}
			matched = true
			agg := &aggs[ri]
			agg.count++
			agg.shape += shape
			for _, field := range sourceFields {
				if v, ok := feat.Float(field); ok {
					agg.values[field] = append(agg.values[field], v)
				}
			}
		}
		if matched {
			res.Matched++
		}
	}
	if skipped > 0 {
		t.msgs.Addf("WARNING: %d features of %s have no geometry and were skipped", skipped, sumLayer.Name)
	}

	out := make([]workspace.Feature, 0, len(regions))
	for i, r := range regions {
		agg := aggs[i]
		if agg.count == 0 && !p.KeepAll {
			continue
		}
		values := make(map[string]any, len(outFields))
		for k, v := range r.Values {
			values[k] = v
		}
		for s, name := range res.StatFields {
			v, ok, err := compute(s.Stat, agg.values[statSource[s]])
			if err != nil {
				return nil, err
			}
			if ok {
				values[name] = v
			} else {
				values[name] = nil
			}
		}
		if p.ShapeSum {
			values[res.ShapeSumField] = agg.shape
		}
		values[res.CountField] = int64(agg.count)
		out = append(out, workspace.Feature{FID: r.FID, Geometry: r.Geometry, Values: values})
	}

	if err := t.ws.CreateLayer(ctx, workspace.Schema{
		Name:         p.Out,
		Kind:         workspace.KindFeature,
		GeometryType: workspace.GeomPolygon,
		Fields:       outFields,
	}); err != nil {
		return nil, err
	}
	if err := t.ws.InsertFeatures(ctx, p.Out, out); err != nil {
		return nil, err
	}

	res.Rows = len(out)
	t.msgs.Addf("Summarized %d features of %s within %d of %d polygons of %s into %s",
		res.Matched, sumLayer.Name, res.Rows, len(regions), regionLayer.Name, p.Out)
	return res, nil
}

// match decides whether feature geometry g falls within region and returns
// its shape contribution in unit u. prior holds the candidate regions that
// come before region in FID order; a position on a boundary shared with one
// of them is theirs, so nothing on a shared edge is counted twice.
func (t *Toolbox) match(g, region orb.Geometry, prior []orb.Geometry, u Unit) (float64, bool) {
	switch v := g.(type) {
	case orb.Point:
		return 0, claims(region, prior, v)
	case orb.MultiPoint:
		for _, pt := range v {
			if claims(region, prior, pt) {
				return 0, true
			}
		}
		return 0, false
	case orb.LineString, orb.MultiLineString:
		var inside float64
		for _, part := range lineParts(v) {
			inside += lengthClaimed(part, region, prior)
		}
		if inside <= eps {
			return 0, false
		}
		if u == "" {
			return 0, true
		}
		return t.lengthIn(inside, u), true
	case orb.Polygon, orb.MultiPolygon:
		c, _ := planar.CentroidArea(v)
		if !claims(region, prior, c) {
			return 0, false
		}
		if u == "" {
			return 0, true
		}
		return t.areaIn(math.Abs(planar.Area(v)), u), true
	default:
		return 0, false
	}
}
