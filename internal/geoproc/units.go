package geoproc

import (
	"strings"

	"github.com/psrf/sows-cli/internal/geoerr"
)

// Unit is a linear unit used for length and area outputs.
type Unit string

const (
	Meters     Unit = "METERS"
	Kilometers Unit = "KILOMETERS"
	Feet       Unit = "FEET"
	Miles      Unit = "MILES"
)

var unitMeters = map[Unit]float64{
	Meters:     1,
	Kilometers: 1000,
	Feet:       0.3048,
	Miles:      1609.344,
}

// ParseUnit resolves a unit name case-insensitively.
func ParseUnit(s string) (Unit, error) {
	u := Unit(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := unitMeters[u]; !ok {
		return "", geoerr.Schema("geoproc: parse unit", "unknown linear unit %q", s)
	}
	return u, nil
}

// Meters returns the length of one u in meters.
func (u Unit) Meters() float64 {
	return unitMeters[u]
}

// lengthIn converts a planar length in map units to u.
func (t *Toolbox) lengthIn(mapLength float64, u Unit) float64 {
	return mapLength * t.metersPerUnit / u.Meters()
}

// areaIn converts a planar area in square map units to square u.
func (t *Toolbox) areaIn(mapArea float64, u Unit) float64 {
	f := t.metersPerUnit / u.Meters()
	return mapArea * f * f
}
