//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/psrf/sows-cli/internal/export"
	"github.com/psrf/sows-cli/internal/ingest"
	"github.com/psrf/sows-cli/internal/sows"
	"github.com/psrf/sows-cli/internal/workspace"
)

func TestFormatResults(t *testing.T) {
	results := []*sows.Result{
		{
			Geography: "Counties",
			Output:    "Counties_SOWS_Stats",
			Rows:      39,
			Steps:     make([]sows.StepResult, 10),
			Duration:  1500 * time.Millisecond,
			Messages:  []string{"Start Time: SummarizeWithin", "Succeeded at SummarizeWithin"},
		},
		{
			Geography: "Subbasins",
			Steps:     nil,
		},
	}
	runErr := multierr.Append(nil, &sows.RunError{
		Geography: "Subbasins",
		Err:       eris.New("dataset Subbasins not found"),
	})

	var buf bytes.Buffer
	formatResults(&buf, results, runErr, false)
	out := buf.String()
	assert.Contains(t, out, "GEOGRAPHY")
	assert.Contains(t, out, "Counties_SOWS_Stats")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "Subbasins not found")
	assert.NotContains(t, out, "Succeeded at")

	buf.Reset()
	formatResults(&buf, results, runErr, true)
	assert.Contains(t, buf.String(), "Counties:\n  Start Time: SummarizeWithin")
}

func TestRunErrors(t *testing.T) {
	assert.Empty(t, runErrors(nil))

	a := &sows.RunError{Geography: "Subbasins", Err: eris.New("a")}
	b := &sows.RunError{Geography: "Shoretypes", Step: sows.StepSnap, Err: eris.New("b")}
	errs := runErrors(multierr.Combine(a, eris.New("cancelled"), b))
	require.Len(t, errs, 2)
	assert.Equal(t, "Subbasins", errs[0].Geography)
	assert.Equal(t, "Shoretypes", errs[1].Geography)
}

func TestFormatImportsAndFiles(t *testing.T) {
	var buf bytes.Buffer
	formatImports(&buf, nil)
	assert.Empty(t, buf.String())

	formatImports(&buf, []ingest.Result{{Name: "Counties", Kind: workspace.KindFeature, Rows: 39, Skipped: 1}})
	assert.Contains(t, buf.String(), "Counties")
	assert.Contains(t, buf.String(), "feature")

	buf.Reset()
	formatFiles(&buf, []export.File{{Dataset: "Counties_SOWS_Stats", Path: "deliverables/Counties_SOWS_Stats.csv", Rows: 39}})
	assert.Contains(t, buf.String(), "deliverables/Counties_SOWS_Stats.csv")
}
