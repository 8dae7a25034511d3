// Package fieldmap renames the engine-generated fields of a summary layer to
// their semantic names, attaches aliases and drops redundant columns.
package fieldmap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/psrf/sows-cli/internal/geoerr"
	"github.com/psrf/sows-cli/internal/workspace"
)

// Engine field names produced by the summary steps.
const (
	EngineCount         = "Polygon_Count"
	EngineAreaMean      = "mean_Area_M"
	EngineAreaSum       = "sum_Area_M"
	EngineAreaMin       = "min_Area_M"
	EngineAreaMax       = "max_Area_M"
	EngineAreaStddev    = "stddev_Area_M"
	EngineAreaShapeSum  = "sum_Area_SQUAREKILOMETERS"
	EngineShoreLength   = "sum_Length_KILOMETERS"
	EngineShoreCount    = "Line_Count"
	EngineSpacingLength = "sum_Length_KILOMETERS_1"
	EngineSpacingCount  = "Line_Count_1"
	EngineSpacingMean   = "mean_" + SpacingField
	EngineSpacingSum    = "sum_" + SpacingField
	EngineSpacingMin    = "min_" + SpacingField
	EngineSpacingMax    = "max_" + SpacingField
	EngineSpacingStddev = "stddev_" + SpacingField
	EngineDensity       = DensityField
)

const (
	mappingRootKey = "fields"
	maxAliasLen    = 255
)

// Fields the pipeline adds itself.
const (
	DensityField = "density_sows_km"
	SpacingField = "sows_dist_km"
)

// Semantic field names of the normalized layer.
const (
	SOWSCount           = "sows_count"
	MeanSOWSArea        = "mean_sows_area_m"
	TotalSOWSArea       = "total_sows_area_m"
	MinSOWSArea         = "min_sows_area_m"
	MaxSOWSArea         = "max_sows_area_m"
	StddevSOWSArea      = "stddev_sows_area_m"
	TotalShorelineKm    = "total_shoreline_km"
	SOWSDensity         = "density_sows_km"
	SpacingSegmentCount = "spacing_segment_count"
	MeanSOWSSpacingKm   = "mean_sows_spacing_km"
	TotalSOWSSpacingKm  = "total_sows_spacing_km"
	MinSOWSSpacingKm    = "min_sows_spacing_km"
	MaxSOWSSpacingKm    = "max_sows_spacing_km"
	StddevSOWSSpacingKm = "stddev_sows_spacing_km"
)

// Rule renames one field and sets its alias. From and To may be equal to
// only relabel a field.
type Rule struct {
	From  string `yaml:"from"`
	To    string `yaml:"to"`
	Alias string `yaml:"alias"`
}

// Table is a complete field mapping.
type Table struct {
	Rename []Rule   `yaml:"rename"`
	Drop   []string `yaml:"drop"`
}

// Default is the mapping applied to <region>_sum3 layers.
func Default() Table {
	return Table{
		Rename: []Rule{
			{From: EngineCount, To: SOWSCount, Alias: "SOWS Count"},
			{From: EngineAreaMean, To: MeanSOWSArea, Alias: "Mean SOWS Area (m²)"},
			{From: EngineAreaSum, To: TotalSOWSArea, Alias: "Total SOWS Area (m²)"},
			{From: EngineAreaMin, To: MinSOWSArea, Alias: "Min SOWS Area (m²)"},
			{From: EngineAreaMax, To: MaxSOWSArea, Alias: "Max SOWS Area (m²)"},
			{From: EngineAreaStddev, To: StddevSOWSArea, Alias: "Std Dev SOWS Area (m²)"},
			{From: EngineShoreLength, To: TotalShorelineKm, Alias: "Total Shoreline (km)"},
			{From: EngineDensity, To: SOWSDensity, Alias: "SOWS Density (per km)"},
			{From: EngineSpacingCount, To: SpacingSegmentCount, Alias: "Spacing Segment Count"},
			{From: EngineSpacingMean, To: MeanSOWSSpacingKm, Alias: "Mean SOWS Spacing (km)"},
			{From: EngineSpacingSum, To: TotalSOWSSpacingKm, Alias: "Total SOWS Spacing (km)"},
			{From: EngineSpacingMin, To: MinSOWSSpacingKm, Alias: "Min SOWS Spacing (km)"},
			{From: EngineSpacingMax, To: MaxSOWSSpacingKm, Alias: "Max SOWS Spacing (km)"},
			{From: EngineSpacingStddev, To: StddevSOWSSpacingKm, Alias: "Std Dev SOWS Spacing (km)"},
		},
		Drop: []string{EngineAreaShapeSum, EngineShoreCount, EngineSpacingLength},
	}
}

// Load returns the mapping from the YAML file at path, or Default when path
// is empty. The file holds a top-level "fields" key with rename and drop
// lists.
func Load(path string) (Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, geoerr.NotFound("fieldmap: read mapping", "cannot read %s: %v", path, err)
	}

	var wrapper map[string]Table
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Table{}, eris.Wrapf(err, "fieldmap: parse mapping %s", path)
	}
	t, ok := wrapper[mappingRootKey]
	if !ok {
		return Table{}, geoerr.Schema("fieldmap: parse mapping", "%s has no top-level %q key", path, mappingRootKey)
	}
	if err := t.validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// validate checks the table itself: names are valid and no two rules write
// the same target.
func (t Table) validate() error {
	targets := make(map[string]bool, len(t.Rename))
	for _, r := range t.Rename {
		for _, n := range []string{r.From, r.To} {
			if err := workspace.ValidateName(n); err != nil {
				return eris.Wrapf(err, "fieldmap: rule %s -> %s", r.From, r.To)
			}
		}
		if len(r.Alias) > maxAliasLen {
			return geoerr.Schema("fieldmap: validate", "alias of %s is longer than %d bytes", r.To, maxAliasLen)
		}
		key := strings.ToLower(r.To)
		if targets[key] {
			return geoerr.Schema("fieldmap: validate", "field %s is the target of more than one rule", r.To)
		}
		targets[key] = true
	}
	for _, d := range t.Drop {
		if targets[strings.ToLower(d)] {
			return geoerr.Schema("fieldmap: validate", "field %s is both renamed to and dropped", d)
		}
	}
	return nil
}

// Check verifies that l carries every field the table renames or drops and
// that no rename target collides with a field that is kept.
func (t Table) Check(l *workspace.Layer) error {
	if err := t.validate(); err != nil {
		return err
	}

	var missing []string
	for _, r := range t.Rename {
		if _, ok := l.Field(r.From); !ok {
			missing = append(missing, r.From)
		}
	}
	for _, d := range t.Drop {
		if _, ok := l.Field(d); !ok {
			missing = append(missing, d)
		}
	}
	if len(missing) > 0 {
		return geoerr.Schema("fieldmap: check", "%s is missing fields: %s", l.Name, strings.Join(missing, ", "))
	}

	leaving := make(map[string]bool, len(t.Rename)+len(t.Drop))
	for _, r := range t.Rename {
		leaving[strings.ToLower(r.From)] = true
	}
	for _, d := range t.Drop {
		leaving[strings.ToLower(d)] = true
	}
	for _, r := range t.Rename {
		if f, ok := l.Field(r.To); ok && !leaving[strings.ToLower(f.Name)] {
			return geoerr.Schema("fieldmap: check", "renaming %s to %s would collide with an existing field of %s", r.From, r.To, l.Name)
		}
	}
	return nil
}

// Normalize copies in to out and applies the table to the copy. The source
// layer is checked before anything is written, so a mismatch leaves the
// workspace untouched.
func (t Table) Normalize(ctx context.Context, ws *workspace.Workspace, in, out string) (*workspace.Layer, error) {
	src, err := ws.Describe(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := t.Check(src); err != nil {
		return nil, err
	}

	if _, err := ws.CopyLayer(ctx, src.Name, out); err != nil {
		return nil, err
	}
	for _, d := range t.Drop {
		if err := ws.DeleteField(ctx, out, d); err != nil {
			return nil, eris.Wrapf(err, "fieldmap: drop %s", d)
		}
	}

	// Renames go through temporary names so chains and swaps cannot collide.
	type pending struct {
		tmp  string
		rule Rule
	}
	staged := make([]pending, 0, len(t.Rename))
	for i, r := range t.Rename {
		tmp := r.From
		if !strings.EqualFold(r.From, r.To) {
			tmp = fmt.Sprintf("fm_tmp_%d", i)
			if err := ws.RenameField(ctx, out, r.From, tmp); err != nil {
				return nil, eris.Wrapf(err, "fieldmap: rename %s", r.From)
			}
		}
		staged = append(staged, pending{tmp: tmp, rule: r})
	}
	for _, p := range staged {
		if p.tmp != p.rule.To {
			if err := ws.RenameField(ctx, out, p.tmp, p.rule.To); err != nil {
				return nil, eris.Wrapf(err, "fieldmap: rename %s", p.rule.From)
			}
		}
		if p.rule.Alias != "" {
			if err := ws.SetAlias(ctx, out, p.rule.To, p.rule.Alias); err != nil {
				return nil, eris.Wrapf(err, "fieldmap: alias %s", p.rule.To)
			}
		}
	}

	zap.L().Debug("fields normalized",
		zap.String("component", "fieldmap"),
		zap.String("from", src.Name),
		zap.String("to", out),
		zap.Int("renamed", len(t.Rename)),
		zap.Int("dropped", len(t.Drop)),
	)
	return ws.Describe(ctx, out)
}
