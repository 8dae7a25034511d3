package sows

import (
	"context"

	"go.uber.org/zap"

	"github.com/psrf/sows-cli/internal/fieldmap"
	"github.com/psrf/sows-cli/internal/geoproc"
	"github.com/psrf/sows-cli/internal/workspace"
)

// Step names as reported in results and logs.
const (
	StepAreaStats = "summarize_structures"
	StepShoreline = "summarize_shoreline"
	StepDensity   = "density"
	StepCentroids = "centroids"
	StepSnap      = "snap"
	StepSplit     = "split_shoreline"
	StepSegmentKm = "segment_length"
	StepSelect    = "select_within"
	StepSpacing   = "summarize_spacing"
	StepNormalize = "normalize_fields"
)

type step struct {
	name string
	fn   func(ctx context.Context) (output string, rows int, err error)
}

// run carries the state of one geography between steps.
type run struct {
	p      *Pipeline
	tb     *geoproc.Toolbox
	region string
	log    *zap.Logger

	sum1, sum2 *geoproc.SummarizeResult
	rows       int
}

func (r *run) steps() []step {
	return []step{
		{StepAreaStats, r.areaStats},
		{StepShoreline, r.shoreline},
		{StepDensity, r.density},
		{StepCentroids, r.centroids},
		{StepSnap, r.snap},
		{StepSplit, r.split},
		{StepSegmentKm, r.segmentLength},
		{StepSelect, r.selectWithin},
		{StepSpacing, r.spacing},
		{StepNormalize, r.normalize},
	}
}

func (r *run) areaStats(ctx context.Context) (string, int, error) {
	res, err := r.tb.SummarizeWithin(ctx, geoproc.SummarizeParams{
		Polygons:    r.region,
		SumFeatures: r.p.cfg.Structures,
		Out:         r.region + Sum1Suffix,
		KeepAll:     true,
		Stats:       geoproc.StatsFor(r.p.cfg.AreaField, geoproc.AllStats...),
		ShapeSum:    true,
		ShapeUnit:   geoproc.Kilometers,
	})
	if err != nil {
		return "", 0, err
	}
	r.sum1 = res
	return res.Out, res.Rows, nil
}

func (r *run) shoreline(ctx context.Context) (string, int, error) {
	res, err := r.tb.SummarizeWithin(ctx, geoproc.SummarizeParams{
		Polygons:    r.sum1.Out,
		SumFeatures: r.p.cfg.Shoreline,
		Out:         r.region + Sum2Suffix,
		KeepAll:     true,
		ShapeSum:    true,
		ShapeUnit:   geoproc.Kilometers,
	})
	if err != nil {
		return "", 0, err
	}
	r.sum2 = res
	return res.Out, res.Rows, nil
}

// density adds structures per shoreline kilometre, null where the region has
// no shoreline.
func (r *run) density(ctx context.Context) (string, int, error) {
	if err := r.tb.AddField(ctx, r.sum2.Out, workspace.Field{Name: fieldmap.DensityField, Type: workspace.FieldDouble}); err != nil {
		return "", 0, err
	}
	if err := r.tb.CalculateRatio(ctx, r.sum2.Out, fieldmap.DensityField, r.sum1.CountField, r.sum2.ShapeSumField); err != nil {
		return "", 0, err
	}
	return r.sum2.Out, r.sum2.Rows, nil
}

func (r *run) centroids(ctx context.Context) (string, int, error) {
	n, err := r.tb.FeatureToPoint(ctx, r.p.cfg.Structures, CentroidsLayer)
	return CentroidsLayer, n, err
}

func (r *run) snap(ctx context.Context) (string, int, error) {
	n, err := r.tb.Snap(ctx, CentroidsLayer, r.p.cfg.Shoreline, r.p.cfg.SnapTolerance)
	return CentroidsLayer, n, err
}

func (r *run) split(ctx context.Context) (string, int, error) {
	n, err := r.tb.SplitLineAtPoint(ctx, r.p.cfg.Shoreline, CentroidsLayer, SplitShorelineLayer, r.p.SplitRadius())
	return SplitShorelineLayer, n, err
}

func (r *run) segmentLength(ctx context.Context) (string, int, error) {
	if err := r.tb.AddField(ctx, SplitShorelineLayer, workspace.Field{Name: fieldmap.SpacingField, Type: workspace.FieldDouble}); err != nil {
		return "", 0, err
	}
	if err := r.tb.CalculateGeometryLength(ctx, SplitShorelineLayer, fieldmap.SpacingField, geoproc.Kilometers); err != nil {
		return "", 0, err
	}
	n, err := r.tb.Workspace().Count(ctx, SplitShorelineLayer)
	return SplitShorelineLayer, n, err
}

func (r *run) selectWithin(ctx context.Context) (string, int, error) {
	n, err := r.tb.SelectCompletelyWithin(ctx, SplitShorelineLayer, r.region, SelectedSplitLayer)
	return SelectedSplitLayer, n, err
}

func (r *run) spacing(ctx context.Context) (string, int, error) {
	res, err := r.tb.SummarizeWithin(ctx, geoproc.SummarizeParams{
		Polygons:    r.sum2.Out,
		SumFeatures: SelectedSplitLayer,
		Out:         r.region + Sum3Suffix,
		KeepAll:     true,
		Stats:       geoproc.StatsFor(fieldmap.SpacingField, geoproc.AllStats...),
		ShapeSum:    true,
		ShapeUnit:   geoproc.Kilometers,
	})
	if err != nil {
		return "", 0, err
	}
	return res.Out, res.Rows, nil
}

func (r *run) normalize(ctx context.Context) (string, int, error) {
	out := OutputName(r.region)
	l, err := r.p.cfg.Fields.Normalize(ctx, r.tb.Workspace(), r.region+Sum3Suffix, out)
	if err != nil {
		return "", 0, err
	}
	r.rows = l.RowCount
	r.log.Debug("sows: normalized schema", zap.Strings("fields", l.FieldNames()))
	return out, l.RowCount, nil
}
