package fieldmap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psrf/sows-cli/internal/geoerr"
	"github.com/psrf/sows-cli/internal/workspace"
)

func newTestWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.Open(filepath.Join(t.TempDir(), "fieldmap.db"), workspace.Options{Overwrite: true, Create: true})
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() }) //nolint:errcheck
	return ws
}

// engineLayer creates a layer shaped like the last summary step's output.
func engineLayer(t *testing.T, ws *workspace.Workspace, name string, skip ...string) {
	t.Helper()
	fields := []workspace.Field{{Name: "NAME", Type: workspace.FieldText}}
	for _, n := range []string{
		EngineAreaMean, EngineAreaSum, EngineAreaMin, EngineAreaMax, EngineAreaStddev,
		EngineAreaShapeSum, EngineCount, EngineShoreLength, EngineShoreCount, EngineDensity,
		EngineSpacingMean, EngineSpacingSum, EngineSpacingMin, EngineSpacingMax, EngineSpacingStddev,
		EngineSpacingLength, EngineSpacingCount,
	} {
		omit := false
		for _, s := range skip {
			omit = omit || s == n
		}
		if omit {
			continue
		}
		ft := workspace.FieldDouble
		if n == EngineCount || n == EngineShoreCount || n == EngineSpacingCount {
			ft = workspace.FieldInteger
		}
		fields = append(fields, workspace.Field{Name: n, Type: ft})
	}

	ctx := context.Background()
	require.NoError(t, ws.CreateLayer(ctx, workspace.Schema{
		Name: name, Kind: workspace.KindFeature, GeometryType: workspace.GeomPolygon, Fields: fields,
	}))
	values := map[string]any{"NAME": "Whidbey"}
	for _, f := range fields[1:] {
		if f.Type == workspace.FieldInteger {
			values[f.Name] = int64(3)
		} else {
			values[f.Name] = 1.5
		}
	}
	require.NoError(t, ws.InsertFeatures(ctx, name, []workspace.Feature{{
		FID:      5,
		Geometry: orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}},
		Values:   values,
	}}))
}

func TestNormalize_Default(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorkspace(t)
	engineLayer(t, ws, "Counties_sum3")

	l, err := Default().Normalize(ctx, ws, "Counties_sum3", "Counties_SOWS_Stats")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"NAME",
		MeanSOWSArea, TotalSOWSArea, MinSOWSArea, MaxSOWSArea, StddevSOWSArea,
		SOWSCount, TotalShorelineKm, SOWSDensity,
		MeanSOWSSpacingKm, TotalSOWSSpacingKm, MinSOWSSpacingKm, MaxSOWSSpacingKm, StddevSOWSSpacingKm,
		SpacingSegmentCount,
	}, l.FieldNames())

	aliases := make(map[string]string)
	for _, f := range l.Fields {
		aliases[f.Name] = f.Alias
	}
	for _, r := range Default().Rename {
		assert.Equal(t, r.Alias, aliases[r.To], r.To)
	}
	assert.Equal(t, "Mean SOWS Area (m²)", aliases[MeanSOWSArea])

	for _, dropped := range []string{EngineAreaShapeSum, EngineShoreCount, EngineSpacingLength} {
		_, ok := l.Field(dropped)
		assert.False(t, ok, dropped)
	}

	feats, err := ws.ReadFeatures(ctx, "Counties_SOWS_Stats")
	require.NoError(t, err)
	require.Len(t, feats, 1)
	assert.Equal(t, int64(5), feats[0].FID)
	assert.Equal(t, int64(3), feats[0].Values[SOWSCount])
	assert.InDelta(t, 1.5, feats[0].Values[TotalShorelineKm], 1e-12)

	// The source layer is left as it was.
	src, err := ws.Describe(ctx, "Counties_sum3")
	require.NoError(t, err)
	_, ok := src.Field(EngineCount)
	assert.True(t, ok)
}

func TestNormalize_MissingFieldsLeaveWorkspaceUntouched(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorkspace(t)
	engineLayer(t, ws, "Counties_sum3", EngineSpacingCount, EngineAreaShapeSum)

	_, err := Default().Normalize(ctx, ws, "Counties_sum3", "Counties_SOWS_Stats")
	require.Error(t, err)
	assert.True(t, eris.Is(err, geoerr.ErrSchemaMismatch))
	assert.Contains(t, err.Error(), EngineSpacingCount)
	assert.Contains(t, err.Error(), EngineAreaShapeSum)

	exists, err := ws.Exists(ctx, "Counties_SOWS_Stats")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNormalize_MissingLayer(t *testing.T) {
	_, err := Default().Normalize(context.Background(), newTestWorkspace(t), "Nope_sum3", "Nope_SOWS_Stats")
	require.Error(t, err)
	assert.True(t, eris.Is(err, geoerr.ErrInputNotFound))
}

func TestNormalize_Swap(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorkspace(t)
	require.NoError(t, ws.CreateLayer(ctx, workspace.Schema{
		Name: "T", Kind: workspace.KindTable,
		Fields: []workspace.Field{{Name: "a", Type: workspace.FieldInteger}, {Name: "b", Type: workspace.FieldText}},
	}))
	require.NoError(t, ws.InsertFeatures(ctx, "T", []workspace.Feature{{Values: map[string]any{"a": int64(1), "b": "x"}}}))

	table := Table{Rename: []Rule{{From: "a", To: "b"}, {From: "b", To: "a", Alias: "Was B"}}}
	l, err := table.Normalize(ctx, ws, "T", "T_out")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, l.FieldNames())

	rows, err := ws.ReadFeatures(ctx, "T_out")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows[0].Values["b"])
	assert.Equal(t, "x", rows[0].Values["a"])
}

func TestTable_CheckCollision(t *testing.T) {
	l := &workspace.Layer{Name: "L", Fields: []workspace.Field{{Name: "x"}, {Name: "y"}}}
	err := Table{Rename: []Rule{{From: "x", To: "y"}}}.Check(l)
	require.Error(t, err)
	assert.True(t, eris.Is(err, geoerr.ErrSchemaMismatch))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	tbl, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), tbl)

	path := filepath.Join(dir, "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
fields:
  rename:
    - from: Polygon_Count
      to: structure_count
      alias: Structures
  drop:
    - Line_Count
`), 0o644))
	tbl, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, []Rule{{From: "Polygon_Count", To: "structure_count", Alias: "Structures"}}, tbl.Rename)
	assert.Equal(t, []string{"Line_Count"}, tbl.Drop)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("other:\n  rename: []\n"), 0o644))
	_, err = Load(bad)
	assert.True(t, eris.Is(err, geoerr.ErrSchemaMismatch))

	dup := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(dup, []byte(`
fields:
  rename:
    - {from: a, to: c}
    - {from: b, to: c}
`), 0o644))
	_, err = Load(dup)
	assert.True(t, eris.Is(err, geoerr.ErrSchemaMismatch))

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.True(t, eris.Is(err, geoerr.ErrInputNotFound))
}
