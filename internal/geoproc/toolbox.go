// Package geoproc implements the planar geoprocessing tools used by the SOWS
// statistics pipeline: summarize-within, feature-to-point, snapping, line
// splitting, length calculation and containment selection.
//
// Every tool reads its inputs from a workspace and persists its output as a
// new dataset there, so each step can be inspected after a run.
package geoproc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/psrf/sows-cli/internal/geoerr"
	"github.com/psrf/sows-cli/internal/workspace"
)

// Field names the tools add to their outputs.
const (
	OrigFIDField = "ORIG_FID"
)

// Option configures a Toolbox.
type Option func(*Toolbox)

// WithMetersPerUnit sets the length of one map unit in meters.
func WithMetersPerUnit(m float64) Option {
	return func(t *Toolbox) {
		if m > 0 {
			t.metersPerUnit = m
		}
	}
}

// WithMessages shares a diagnostic buffer with the caller.
func WithMessages(m *Messages) Option {
	return func(t *Toolbox) { t.msgs = m }
}

// Toolbox runs geoprocessing tools against one workspace.
type Toolbox struct {
	ws            *workspace.Workspace
	metersPerUnit float64
	msgs          *Messages
	log           *zap.Logger
}

// New creates a Toolbox bound to ws. Map units default to meters.
func New(ws *workspace.Workspace, opts ...Option) *Toolbox {
	t := &Toolbox{
		ws:            ws,
		metersPerUnit: 1,
		msgs:          &Messages{},
		log:           zap.L().With(zap.String("component", "geoproc")),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Messages returns the diagnostic buffer.
func (t *Toolbox) Messages() *Messages { return t.msgs }

// Workspace returns the bound workspace.
func (t *Toolbox) Workspace() *workspace.Workspace { return t.ws }

// run wraps a tool invocation with diagnostics and error categorization.
func (t *Toolbox) run(tool string, fn func() error) error {
	start := time.Now()
	t.msgs.Addf("Start Time: %s", start.Format(time.DateTime))
	t.msgs.Addf("Running %s", tool)

	err := fn()
	elapsed := time.Since(start)
	if err != nil {
		t.msgs.Addf("ERROR: %v", err)
		t.msgs.Addf("Failed to execute (%s).", tool)
		t.log.Debug("tool failed", zap.String("tool", tool), zap.Duration("elapsed", elapsed), zap.Error(err))
		return geoerr.Engine("geoproc: "+tool, err)
	}

	t.msgs.Addf("Succeeded at %s (Elapsed Time: %.2f seconds)", time.Now().Format(time.DateTime), elapsed.Seconds())
	t.log.Debug("tool succeeded", zap.String("tool", tool), zap.Duration("elapsed", elapsed))
	return nil
}

// CountFieldName is the engine name of the count field for summary features
// of geometry type gt.
func CountFieldName(gt workspace.GeometryType) string {
	switch gt {
	case workspace.GeomPoint:
		return "Point_Count"
	case workspace.GeomLine:
		return "Line_Count"
	default:
		return "Polygon_Count"
	}
}

// StatFieldName is the engine name of a statistic field, e.g. mean_Area_M.
func StatFieldName(s StatField) string {
	return string(s.Stat) + "_" + s.Field
}

// ShapeSumFieldName is the engine name of the summed geometry field:
// sum_Length_<UNIT> for lines and sum_Area_SQUARE<UNIT> for polygons.
func ShapeSumFieldName(gt workspace.GeometryType, u Unit) string {
	if gt == workspace.GeomPolygon {
		return "sum_Area_SQUARE" + string(u)
	}
	return "sum_Length_" + string(u)
}

// uniqueFieldName appends _1, _2, ... to name until it is free in taken,
// then reserves it.
func uniqueFieldName(taken map[string]bool, name string) string {
	candidate := name
	for i := 1; taken[strings.ToLower(candidate)]; i++ {
		candidate = fmt.Sprintf("%s_%d", name, i)
	}
	taken[strings.ToLower(candidate)] = true
	return candidate
}

func takenNames(fields []workspace.Field) map[string]bool {
	taken := make(map[string]bool, len(fields))
	for _, f := range fields {
		taken[strings.ToLower(f.Name)] = true
	}
	return taken
}

// describeFeatureClass returns the catalog entry of name and checks that it
// is a feature class of one of the allowed geometry types.
func (t *Toolbox) describeFeatureClass(ctx context.Context, name string, allowed ...workspace.GeometryType) (*workspace.Layer, error) {
	l, err := t.ws.Describe(ctx, name)
	if err != nil {
		return nil, err
	}
	if l.Kind != workspace.KindFeature {
		return nil, geoerr.Schema("geoproc: describe", "%s is a table, not a feature class", l.Name)
	}
	if len(allowed) == 0 {
		return l, nil
	}
	for _, gt := range allowed {
		if l.GeometryType == gt {
			return l, nil
		}
	}
	return nil, geoerr.Schema("geoproc: describe", "%s has geometry type %s, want one of %v", l.Name, l.GeometryType, allowed)
}

// AddField adds a field to a dataset.
func (t *Toolbox) AddField(ctx context.Context, layer string, f workspace.Field) error {
	return t.run("AddField", func() error {
		if err := t.ws.AddField(ctx, layer, f); err != nil {
			return err
		}
		t.msgs.Addf("Added field %s (%s) to %s", f.Name, f.Type, layer)
		return nil
	})
}

// CalculateRatio sets target = numerator / denominator, leaving null where
// the denominator is zero or null.
func (t *Toolbox) CalculateRatio(ctx context.Context, layer, target, numerator, denominator string) error {
	return t.run("CalculateField", func() error {
		if err := t.ws.CalculateRatio(ctx, layer, target, numerator, denominator); err != nil {
			return err
		}
		t.msgs.Addf("Calculated %s.%s = %s / %s", layer, target, numerator, denominator)
		return nil
	})
}
