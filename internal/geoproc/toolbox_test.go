package geoproc

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psrf/sows-cli/internal/geoerr"
	"github.com/psrf/sows-cli/internal/workspace"
)

func newTestToolbox(t *testing.T) *Toolbox {
	t.Helper()
	ws, err := workspace.Open(filepath.Join(t.TempDir(), "geoproc.db"), workspace.Options{Overwrite: true, Create: true})
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() }) //nolint:errcheck
	return New(ws)
}

func createLayer(t *testing.T, tb *Toolbox, name string, gt workspace.GeometryType, fields []workspace.Field, feats []workspace.Feature) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, tb.Workspace().CreateLayer(ctx, workspace.Schema{
		Name: name, Kind: workspace.KindFeature, GeometryType: gt, Fields: fields,
	}))
	require.NoError(t, tb.Workspace().InsertFeatures(ctx, name, feats))
}

// twoRegions lays out A = [0,10]x[0,10] and B = [10,20]x[0,10].
func twoRegions(t *testing.T, tb *Toolbox) {
	createLayer(t, tb, "Regions", workspace.GeomPolygon,
		[]workspace.Field{{Name: "NAME", Type: workspace.FieldText}},
		[]workspace.Feature{
			{FID: 1, Geometry: square(0, 0, 10), Values: map[string]any{"NAME": "A"}},
			{FID: 2, Geometry: square(10, 0, 10), Values: map[string]any{"NAME": "B"}},
			{FID: 3, Geometry: square(100, 100, 10), Values: map[string]any{"NAME": "Empty"}},
		})
}

func byFID(feats []workspace.Feature) map[int64]workspace.Feature {
	out := make(map[int64]workspace.Feature, len(feats))
	for _, f := range feats {
		out[f.FID] = f
	}
	return out
}

func TestSummarizeWithin_Polygons(t *testing.T) {
	ctx := context.Background()
	tb := newTestToolbox(t)
	twoRegions(t, tb)
	createLayer(t, tb, "Structures", workspace.GeomPolygon,
		[]workspace.Field{{Name: "Area_M", Type: workspace.FieldDouble}},
		[]workspace.Feature{
			{Geometry: square(1, 1, 1), Values: map[string]any{"Area_M": 10.0}},
			{Geometry: square(3, 3, 2), Values: map[string]any{"Area_M": 30.0}},
			{Geometry: square(12, 2, 1), Values: map[string]any{"Area_M": 5.0}},
			// Centroid at (10.5, 5) falls in B only.
			{Geometry: square(9.5, 4.5, 2), Values: map[string]any{"Area_M": nil}},
		})

	res, err := tb.SummarizeWithin(ctx, SummarizeParams{
		Polygons:    "Regions",
		SumFeatures: "Structures",
		Out:         "Regions_sum1",
		KeepAll:     true,
		Stats:       StatsFor("Area_M", AllStats...),
		ShapeSum:    true,
		ShapeUnit:   Meters,
	})
	require.NoError(t, err)
	assert.Equal(t, "Polygon_Count", res.CountField)
	assert.Equal(t, "sum_Area_SQUAREMETERS", res.ShapeSumField)
	assert.Equal(t, "mean_Area_M", res.StatFields[StatField{Field: "Area_M", Stat: StatMean}])
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, 4, res.Matched)

	l, err := tb.Workspace().Describe(ctx, "Regions_sum1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"NAME", "mean_Area_M", "sum_Area_M", "min_Area_M", "max_Area_M", "stddev_Area_M",
		"sum_Area_SQUAREMETERS", "Polygon_Count",
	}, l.FieldNames())

	feats, err := tb.Workspace().ReadFeatures(ctx, "Regions_sum1")
	require.NoError(t, err)
	got := byFID(feats)

	a := got[1]
	assert.Equal(t, int64(2), a.Values["Polygon_Count"])
	assert.InDelta(t, 20.0, a.Values["mean_Area_M"], 1e-9)
	assert.InDelta(t, 40.0, a.Values["sum_Area_M"], 1e-9)
	assert.InDelta(t, 10.0, a.Values["stddev_Area_M"], 1e-9)
	assert.InDelta(t, 5.0, a.Values["sum_Area_SQUAREMETERS"], 1e-9)

	b := got[2]
	assert.Equal(t, int64(2), b.Values["Polygon_Count"])
	assert.InDelta(t, 5.0, b.Values["mean_Area_M"], 1e-9)
	assert.InDelta(t, 0.0, b.Values["stddev_Area_M"], 1e-9)

	empty := got[3]
	assert.Equal(t, int64(0), empty.Values["Polygon_Count"])
	assert.Nil(t, empty.Values["mean_Area_M"])
	assert.InDelta(t, 0.0, empty.Values["sum_Area_SQUAREMETERS"], 1e-9)
	assert.Equal(t, "Empty", empty.Values["NAME"])
}

func TestSummarizeWithin_DropsEmptyWithoutKeepAll(t *testing.T) {
	ctx := context.Background()
	tb := newTestToolbox(t)
	twoRegions(t, tb)
	createLayer(t, tb, "Pts", workspace.GeomPoint, nil,
		[]workspace.Feature{{Geometry: orb.Point{5, 5}}, {Geometry: orb.Point{10, 5}}})

	res, err := tb.SummarizeWithin(ctx, SummarizeParams{Polygons: "Regions", SumFeatures: "Pts", Out: "Pts_sum"})
	require.NoError(t, err)
	assert.Equal(t, "Point_Count", res.CountField)
	assert.Equal(t, 1, res.Rows)

	feats, err := tb.Workspace().ReadFeatures(ctx, "Pts_sum")
	require.NoError(t, err)
	got := byFID(feats)
	// The shared-edge point goes to A, the first region holding it.
	assert.Equal(t, int64(2), got[1].Values["Point_Count"])
	assert.NotContains(t, got, int64(2))
	assert.NotContains(t, got, int64(3))
}

func TestSummarizeWithin_SharedEdgeLineCountedOnce(t *testing.T) {
	ctx := context.Background()
	tb := newTestToolbox(t)
	twoRegions(t, tb)
	createLayer(t, tb, "Shore", workspace.GeomLine, nil,
		[]workspace.Feature{
			// Runs along the A|B edge, then into B.
			{Geometry: orb.LineString{{10, 0}, {10, 10}, {15, 10}, {15, 5}}},
		})

	_, err := tb.SummarizeWithin(ctx, SummarizeParams{
		Polygons: "Regions", SumFeatures: "Shore", Out: "Shore_sum",
		KeepAll: true, ShapeSum: true, ShapeUnit: Meters,
	})
	require.NoError(t, err)

	feats, err := tb.Workspace().ReadFeatures(ctx, "Shore_sum")
	require.NoError(t, err)
	got := byFID(feats)
	// The shared edge goes to A only. B keeps its own outer edge and the
	// interior leg.
	assert.InDelta(t, 10.0, got[1].Values["sum_Length_METERS"], 1e-9)
	assert.Equal(t, int64(1), got[1].Values["Line_Count"])
	assert.InDelta(t, 10.0, got[2].Values["sum_Length_METERS"], 1e-9)
	assert.Equal(t, int64(1), got[2].Values["Line_Count"])
	assert.Equal(t, int64(0), got[3].Values["Line_Count"])
}

func TestSummarizeWithin_LinesAndCollisions(t *testing.T) {
	ctx := context.Background()
	tb := newTestToolbox(t)
	createLayer(t, tb, "Regions", workspace.GeomPolygon,
		[]workspace.Field{
			{Name: "sum_Length_KILOMETERS", Type: workspace.FieldDouble},
			{Name: "Line_Count", Type: workspace.FieldInteger},
		},
		[]workspace.Feature{{FID: 7, Geometry: square(0, 0, 1000), Values: map[string]any{
			"sum_Length_KILOMETERS": 99.0, "Line_Count": int64(9),
		}}})
	createLayer(t, tb, "Shore", workspace.GeomLine, nil,
		[]workspace.Feature{{Geometry: orb.LineString{{500, 500}, {1500, 500}}}})

	res, err := tb.SummarizeWithin(ctx, SummarizeParams{
		Polygons: "Regions", SumFeatures: "Shore", Out: "Regions_sum2",
		KeepAll: true, ShapeSum: true, ShapeUnit: Kilometers,
	})
	require.NoError(t, err)
	assert.Equal(t, "sum_Length_KILOMETERS_1", res.ShapeSumField)
	assert.Equal(t, "Line_Count_1", res.CountField)

	feats, err := tb.Workspace().ReadFeatures(ctx, "Regions_sum2")
	require.NoError(t, err)
	require.Len(t, feats, 1)
	assert.Equal(t, int64(7), feats[0].FID)
	assert.InDelta(t, 0.5, feats[0].Values["sum_Length_KILOMETERS_1"], 1e-9)
	assert.Equal(t, int64(1), feats[0].Values["Line_Count_1"])
	assert.InDelta(t, 99.0, feats[0].Values["sum_Length_KILOMETERS"], 1e-9)
}

func TestSummarizeWithin_Errors(t *testing.T) {
	ctx := context.Background()
	tb := newTestToolbox(t)
	twoRegions(t, tb)
	createLayer(t, tb, "Pts", workspace.GeomPoint,
		[]workspace.Field{{Name: "label", Type: workspace.FieldText}}, nil)

	_, err := tb.SummarizeWithin(ctx, SummarizeParams{Polygons: "Nope", SumFeatures: "Pts", Out: "x"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, geoerr.ErrInputNotFound))

	_, err = tb.SummarizeWithin(ctx, SummarizeParams{Polygons: "Pts", SumFeatures: "Regions", Out: "x"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, geoerr.ErrSchemaMismatch))

	_, err = tb.SummarizeWithin(ctx, SummarizeParams{
		Polygons: "Regions", SumFeatures: "Pts", Out: "x", Stats: StatsFor("label", StatMean),
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, geoerr.ErrSchemaMismatch))

	assert.Contains(t, tb.Messages().String(), "Failed to execute (SummarizeWithin).")
}

func TestFeatureToPoint(t *testing.T) {
	ctx := context.Background()
	tb := newTestToolbox(t)
	createLayer(t, tb, "Structures", workspace.GeomPolygon,
		[]workspace.Field{{Name: "Area_M", Type: workspace.FieldDouble}},
		[]workspace.Feature{
			{FID: 4, Geometry: square(0, 0, 2), Values: map[string]any{"Area_M": 4.0}},
			{FID: 9, Values: map[string]any{"Area_M": 1.0}},
		})

	n, err := tb.FeatureToPoint(ctx, "Structures", "Centroids")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	l, err := tb.Workspace().Describe(ctx, "Centroids")
	require.NoError(t, err)
	assert.Equal(t, workspace.GeomPoint, l.GeometryType)
	assert.Equal(t, []string{"Area_M", OrigFIDField}, l.FieldNames())

	feats, err := tb.Workspace().ReadFeatures(ctx, "Centroids")
	require.NoError(t, err)
	require.Len(t, feats, 1)
	assert.Equal(t, int64(4), feats[0].FID)
	assert.Equal(t, orb.Point{1, 1}, feats[0].Geometry)
	assert.Equal(t, int64(4), feats[0].Values[OrigFIDField])
	assert.Contains(t, tb.Messages().String(), "have no geometry")
}

func TestSnap(t *testing.T) {
	ctx := context.Background()
	tb := newTestToolbox(t)
	createLayer(t, tb, "Shore", workspace.GeomLine, nil,
		[]workspace.Feature{{Geometry: orb.LineString{{0, 0}, {100, 0}}}})
	createLayer(t, tb, "Pts", workspace.GeomPoint, nil,
		[]workspace.Feature{
			{FID: 1, Geometry: orb.Point{10, 5}},
			{FID: 2, Geometry: orb.Point{50, 0}},
			{FID: 3, Geometry: orb.Point{60, 40}},
		})

	n, err := tb.Snap(ctx, "Pts", "Shore", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	feats, err := tb.Workspace().ReadFeatures(ctx, "Pts")
	require.NoError(t, err)
	got := byFID(feats)
	assert.Equal(t, orb.Point{10, 0}, got[1].Geometry)
	assert.Equal(t, orb.Point{50, 0}, got[2].Geometry)
	assert.Equal(t, orb.Point{60, 40}, got[3].Geometry)
	assert.Contains(t, tb.Messages().String(), "were not snapped")

	_, err = tb.Snap(ctx, "Pts", "Shore", -1)
	assert.True(t, eris.Is(err, geoerr.ErrSchemaMismatch))
}

func TestSplitLineAtPoint(t *testing.T) {
	ctx := context.Background()
	tb := newTestToolbox(t)
	createLayer(t, tb, "Shore", workspace.GeomLine,
		[]workspace.Field{{Name: "kind", Type: workspace.FieldText}},
		[]workspace.Feature{
			{FID: 1, Geometry: orb.LineString{{0, 0}, {100, 0}}, Values: map[string]any{"kind": "beach"}},
			{FID: 2, Geometry: orb.LineString{{0, 50}, {100, 50}}, Values: map[string]any{"kind": "bluff"}},
		})
	createLayer(t, tb, "Pts", workspace.GeomPoint, nil,
		[]workspace.Feature{
			{Geometry: orb.Point{30, 0}},
			{Geometry: orb.Point{30, 0.1}}, // duplicate cut within radius
			{Geometry: orb.Point{70, 0}},
			{Geometry: orb.Point{0, 0}}, // line start
			{Geometry: orb.Point{50, 20}},
		})

	n, err := tb.SplitLineAtPoint(ctx, "Shore", "Pts", "Shore_split", 0.3048)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	feats, err := tb.Workspace().ReadFeatures(ctx, "Shore_split")
	require.NoError(t, err)
	require.Len(t, feats, 4)

	var lengths []float64
	for _, f := range feats {
		ls := f.Geometry.(orb.LineString)
		lengths = append(lengths, ls[len(ls)-1][0]-ls[0][0])
	}
	assert.InDeltaSlice(t, []float64{30, 40, 30, 100}, lengths, 1e-9)
	assert.Equal(t, int64(1), feats[0].Values[OrigFIDField])
	assert.Equal(t, "beach", feats[0].Values["kind"])
	assert.Equal(t, int64(2), feats[3].Values[OrigFIDField])
	assert.Equal(t, "bluff", feats[3].Values["kind"])
}

func TestCalculateGeometryLength(t *testing.T) {
	ctx := context.Background()
	tb := newTestToolbox(t)
	createLayer(t, tb, "Shore", workspace.GeomLine,
		[]workspace.Field{{Name: "label", Type: workspace.FieldText}},
		[]workspace.Feature{
			{FID: 1, Geometry: orb.LineString{{0, 0}, {300, 400}}},
			{FID: 2, Geometry: orb.MultiLineString{{{0, 0}, {1000, 0}}, {{0, 0}, {0, 500}}}},
		})

	require.NoError(t, tb.AddField(ctx, "Shore", workspace.Field{Name: "len_km", Type: workspace.FieldDouble}))
	require.NoError(t, tb.CalculateGeometryLength(ctx, "Shore", "len_km", Kilometers))

	feats, err := tb.Workspace().ReadFeatures(ctx, "Shore")
	require.NoError(t, err)
	got := byFID(feats)
	assert.InDelta(t, 0.5, got[1].Values["len_km"], 1e-12)
	assert.InDelta(t, 1.5, got[2].Values["len_km"], 1e-12)

	err = tb.CalculateGeometryLength(ctx, "Shore", "label", Kilometers)
	assert.True(t, eris.Is(err, geoerr.ErrSchemaMismatch))
}

func TestSelectCompletelyWithin(t *testing.T) {
	ctx := context.Background()
	tb := newTestToolbox(t)
	twoRegions(t, tb)
	createLayer(t, tb, "Segments", workspace.GeomLine, nil,
		[]workspace.Feature{
			{FID: 1, Geometry: orb.LineString{{1, 5}, {9, 5}}},
			{FID: 2, Geometry: orb.LineString{{5, 5}, {15, 5}}}, // crosses A|B
			{FID: 3, Geometry: orb.LineString{{12, 1}, {18, 9}}},
			{FID: 4, Geometry: orb.LineString{{50, 50}, {60, 50}}},
			{FID: 5, Geometry: orb.LineString{{10, 2}, {10, 8}}},    // on the A|B edge
			{FID: 6, Geometry: orb.LineString{{0, 0}, {10, 0}, {9, 1}}}, // A's edge, then inside
		})

	n, err := tb.SelectCompletelyWithin(ctx, "Segments", "Regions", "Segments_select")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	feats, err := tb.Workspace().ReadFeatures(ctx, "Segments_select")
	require.NoError(t, err)
	var fids []int64
	for _, f := range feats {
		fids = append(fids, f.FID)
	}
	assert.Equal(t, []int64{1, 3, 6}, fids)
}

func TestCalculateRatio(t *testing.T) {
	ctx := context.Background()
	tb := newTestToolbox(t)
	createLayer(t, tb, "R", workspace.GeomPolygon,
		[]workspace.Field{
			{Name: "Polygon_Count", Type: workspace.FieldInteger},
			{Name: "sum_Length_KILOMETERS", Type: workspace.FieldDouble},
		},
		[]workspace.Feature{
			{FID: 1, Geometry: square(0, 0, 1), Values: map[string]any{"Polygon_Count": int64(3), "sum_Length_KILOMETERS": 2.0}},
			{FID: 2, Geometry: square(2, 0, 1), Values: map[string]any{"Polygon_Count": int64(3), "sum_Length_KILOMETERS": 0.0}},
		})
	require.NoError(t, tb.AddField(ctx, "R", workspace.Field{Name: "density", Type: workspace.FieldDouble}))
	require.NoError(t, tb.CalculateRatio(ctx, "R", "density", "Polygon_Count", "sum_Length_KILOMETERS"))

	feats, err := tb.Workspace().ReadFeatures(ctx, "R")
	require.NoError(t, err)
	got := byFID(feats)
	assert.InDelta(t, 1.5, got[1].Values["density"], 1e-12)
	assert.Nil(t, got[2].Values["density"])
}
