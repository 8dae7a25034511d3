// Package sows runs the SOWS statistics pipeline: for each region layer it
// aggregates structure counts and areas, shoreline length, density and
// structure spacing along the shoreline, then normalizes the field names.
package sows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/psrf/sows-cli/internal/fieldmap"
	"github.com/psrf/sows-cli/internal/geoerr"
	"github.com/psrf/sows-cli/internal/geoproc"
	"github.com/psrf/sows-cli/internal/workspace"
)

// Shared intermediate layers. Each run replaces them.
const (
	CentroidsLayer      = "sows_centroids"
	SplitShorelineLayer = "shoreline_split"
	SelectedSplitLayer  = "shorelines_split_select"
)

// Output layer suffixes appended to the region layer name.
const (
	Sum1Suffix  = "_sum1"
	Sum2Suffix  = "_sum2"
	Sum3Suffix  = "_sum3"
	StatsSuffix = "_SOWS_Stats"
)

// Config holds the analysis inputs and parameters.
type Config struct {
	Structures     string   // structure polygons (or points) carrying AreaField
	Shoreline      string   // shoreline polylines
	AreaField      string   // numeric area attribute of Structures
	SnapTolerance  float64  // map units
	SplitTolerance float64  // search radius for splitting, meters
	MetersPerUnit  float64  // length of one map unit in meters
	Geographies    []string // region layers processed by RunAll
	Fields         fieldmap.Table
}

// DefaultConfig returns the parameters of the standard analysis.
func DefaultConfig() Config {
	return Config{
		Structures:     "NOAA_SOWS_filtered",
		Shoreline:      "noaa_shoreline_diss",
		AreaField:      "Area_M",
		SnapTolerance:  500,
		SplitTolerance: 0.3048,
		MetersPerUnit:  1,
		Geographies:    []string{"Subbasins", "Counties", "DriftCells", "Shoretypes"},
		Fields:         fieldmap.Default(),
	}
}

// StepResult records one pipeline step.
type StepResult struct {
	Name     string        `json:"name"`
	Output   string        `json:"output,omitempty"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Result is the outcome of one geography.
type Result struct {
	Geography string        `json:"geography"`
	RunID     string        `json:"run_id"`
	Output    string        `json:"output,omitempty"`
	Rows      int           `json:"rows"`
	Steps     []StepResult  `json:"steps"`
	Messages  []string      `json:"messages,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// RunError is returned when a geography fails. It carries the diagnostic
// messages of the toolbox calls made up to the failure.
type RunError struct {
	Geography string
	Step      string
	Messages  []string
	Err       error
}

func (e *RunError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("sows: %s: %v", e.Geography, e.Err)
	}
	return fmt.Sprintf("sows: %s: step %s: %v", e.Geography, e.Step, e.Err)
}

// Unwrap returns the underlying cause so its category stays visible.
func (e *RunError) Unwrap() error { return e.Err }

// Pipeline runs the analysis against one workspace.
type Pipeline struct {
	ws  *workspace.Workspace
	cfg Config
}

// New creates a Pipeline. Zero-valued parameters fall back to DefaultConfig.
func New(ws *workspace.Workspace, cfg Config) *Pipeline {
	def := DefaultConfig()
	if cfg.Structures == "" {
		cfg.Structures = def.Structures
	}
	if cfg.Shoreline == "" {
		cfg.Shoreline = def.Shoreline
	}
	if cfg.AreaField == "" {
		cfg.AreaField = def.AreaField
	}
	if cfg.SnapTolerance <= 0 {
		cfg.SnapTolerance = def.SnapTolerance
	}
	if cfg.SplitTolerance <= 0 {
		cfg.SplitTolerance = def.SplitTolerance
	}
	if cfg.MetersPerUnit <= 0 {
		cfg.MetersPerUnit = def.MetersPerUnit
	}
	if cfg.Fields.Rename == nil && cfg.Fields.Drop == nil {
		cfg.Fields = def.Fields
	}
	return &Pipeline{ws: ws, cfg: cfg}
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// SplitRadius is the split search radius in map units.
func (p *Pipeline) SplitRadius() float64 { return p.cfg.SplitTolerance / p.cfg.MetersPerUnit }

// OutputName is the final layer name for region.
func OutputName(region string) string { return region + StatsSuffix }

// RunAll processes every configured geography in order. A failing geography
// does not stop the ones after it; all failures are combined in the returned
// error.
func (p *Pipeline) RunAll(ctx context.Context) ([]*Result, error) {
	return p.Run(ctx, p.cfg.Geographies...)
}

// Run processes the given region layers in order, like RunAll.
func (p *Pipeline) Run(ctx context.Context, regions ...string) ([]*Result, error) {
	if len(regions) == 0 {
		return nil, eris.New("sows: no geographies to process")
	}

	var (
		results []*Result
		errs    error
	)
	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, eris.Wrap(err, "sows: run cancelled"))
			break
		}
		res, err := p.RunGeography(ctx, region)
		results = append(results, res)
		errs = multierr.Append(errs, err)
	}
	return results, errs
}

// RunGeography runs the full step sequence for one region layer and returns
// its result. On failure the result holds the steps completed so far and the
// error is a *RunError; layers created before the failure remain.
func (p *Pipeline) RunGeography(ctx context.Context, region string) (*Result, error) {
	start := time.Now()
	runID := uuid.New().String()
	ws := p.ws.WithRunID(runID)
	msgs := &geoproc.Messages{}
	tb := geoproc.New(ws, geoproc.WithMetersPerUnit(p.cfg.MetersPerUnit), geoproc.WithMessages(msgs))

	log := zap.L().With(
		zap.String("component", "sows"),
		zap.String("geography", region),
		zap.String("run_id", runID),
	)
	log.Info("sows: starting geography")

	res := &Result{Geography: region, RunID: runID}
	fail := func(step string, err error) (*Result, error) {
		res.Messages = msgs.Lines()
		res.Duration = time.Since(start)
		log.Error("sows: geography failed",
			zap.String("step", step),
			zap.String("category", geoerr.KindOf(err)),
			zap.Error(err),
		)
		if len(res.Messages) > 0 {
			log.Error("sows: toolbox messages", zap.String("messages", strings.Join(res.Messages, "\n")))
		}
		return res, &RunError{Geography: region, Step: step, Messages: res.Messages, Err: err}
	}

	if err := p.validate(ctx, region); err != nil {
		return fail("", err)
	}

	r := &run{p: p, tb: tb, region: region, log: log}
	for _, s := range r.steps() {
		stepStart := time.Now()
		out, rows, err := s.fn(ctx)
		sr := StepResult{Name: s.name, Output: out, Rows: rows, Duration: time.Since(stepStart)}
		if err != nil {
			sr.Error = err.Error()
			res.Steps = append(res.Steps, sr)
			return fail(s.name, err)
		}
		res.Steps = append(res.Steps, sr)
		log.Info("sows: step complete",
			zap.String("step", s.name),
			zap.String("output", out),
			zap.Int("rows", rows),
			zap.Duration("duration", sr.Duration),
		)
	}

	res.Output = OutputName(region)
	res.Rows = r.rows
	res.Messages = msgs.Lines()
	res.Duration = time.Since(start)
	log.Debug("sows: toolbox messages", zap.String("messages", strings.Join(res.Messages, "\n")))
	log.Info("sows: geography complete",
		zap.String("output", res.Output),
		zap.Int("rows", res.Rows),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// validate checks every input before the first step writes anything.
func (p *Pipeline) validate(ctx context.Context, region string) error {
	type input struct {
		name    string
		role    string
		allowed []workspace.GeometryType
	}
	inputs := []input{
		{region, "region", []workspace.GeometryType{workspace.GeomPolygon}},
		{p.cfg.Structures, "structures", []workspace.GeometryType{workspace.GeomPolygon}},
		{p.cfg.Shoreline, "shoreline", []workspace.GeometryType{workspace.GeomLine}},
	}

	layers := make(map[string]*workspace.Layer, len(inputs))
	for _, in := range inputs {
		l, err := p.ws.Describe(ctx, in.name)
		if err != nil {
			return eris.Wrapf(err, "sows: %s layer", in.role)
		}
		if l.Kind != workspace.KindFeature {
			return geoerr.Schema("sows: validate", "%s layer %s is a table, not a feature class", in.role, l.Name)
		}
		ok := false
		for _, gt := range in.allowed {
			ok = ok || l.GeometryType == gt
		}
		if !ok {
			return geoerr.Schema("sows: validate", "%s layer %s has geometry type %s, want %v", in.role, l.Name, l.GeometryType, in.allowed)
		}
		layers[in.role] = l
	}

	f, ok := layers["structures"].Field(p.cfg.AreaField)
	if !ok {
		return geoerr.Schema("sows: validate", "structures layer %s has no %s field", layers["structures"].Name, p.cfg.AreaField)
	}
	if f.Type != workspace.FieldDouble && f.Type != workspace.FieldInteger {
		return geoerr.Schema("sows: validate", "field %s of %s is %s, not numeric", f.Name, layers["structures"].Name, f.Type)
	}

	for _, derived := range []string{region + Sum1Suffix, region + Sum2Suffix, region + Sum3Suffix, OutputName(region)} {
		if err := workspace.ValidateName(derived); err != nil {
			return eris.Wrapf(err, "sows: output name for %s", region)
		}
	}
	return nil
}
