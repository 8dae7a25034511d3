package geoproc

import (
	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"

	"github.com/psrf/sows-cli/internal/geoerr"
)

// Statistic is a summary statistic computed over a numeric field.
type Statistic string

const (
	StatMean   Statistic = "mean"
	StatSum    Statistic = "sum"
	StatMin    Statistic = "min"
	StatMax    Statistic = "max"
	StatStddev Statistic = "stddev"
)

// AllStats is the mean/sum/min/max/stddev set in output order.
var AllStats = []Statistic{StatMean, StatSum, StatMin, StatMax, StatStddev}

// StatField requests one statistic of one field.
type StatField struct {
	Field string
	Stat  Statistic
}

// StatsFor expands field into one StatField per statistic.
func StatsFor(field string, list ...Statistic) []StatField {
	out := make([]StatField, len(list))
	for i, s := range list {
		out[i] = StatField{Field: field, Stat: s}
	}
	return out
}

// compute returns the statistic over data. Empty input yields ok=false.
// Stddev is the population standard deviation.
func compute(s Statistic, data stats.Float64Data) (float64, bool, error) {
	if len(data) == 0 {
		return 0, false, nil
	}
	var (
		v   float64
		err error
	)
	switch s {
	case StatMean:
		v, err = stats.Mean(data)
	case StatSum:
		v, err = stats.Sum(data)
	case StatMin:
		v, err = stats.Min(data)
	case StatMax:
		v, err = stats.Max(data)
	case StatStddev:
		v, err = stats.StandardDeviationPopulation(data)
	default:
		return 0, false, geoerr.Schema("geoproc: statistic", "unknown statistic %q", s)
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "geoproc: compute %s", s)
	}
	return v, true, nil
}
