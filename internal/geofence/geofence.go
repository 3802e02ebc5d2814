// Package geofence validates report coordinates against the configured
// service regions. Containment is a rectangular bounding-box test; regions
// are static configuration, not derived at runtime.
package geofence

import (
	"github.com/rotisserie/eris"
)

// Bounds is an axis-aligned geographic rectangle.
type Bounds struct {
	North float64 `json:"north" yaml:"north" mapstructure:"north"`
	South float64 `json:"south" yaml:"south" mapstructure:"south"`
	East  float64 `json:"east" yaml:"east" mapstructure:"east"`
	West  float64 `json:"west" yaml:"west" mapstructure:"west"`
}

// Contains reports whether the point falls inside the rectangle. Edges are
// inclusive.
func (b Bounds) Contains(lat, lng float64) bool {
	return lat >= b.South && lat <= b.North && lng >= b.West && lng <= b.East
}

// Validate checks that the bounds are ordered and within world range.
func (b Bounds) Validate() error {
	if b.North < -90 || b.North > 90 || b.South < -90 || b.South > 90 {
		return eris.Errorf("geofence: latitude bounds out of range: south=%v north=%v", b.South, b.North)
	}
	if b.East < -180 || b.East > 180 || b.West < -180 || b.West > 180 {
		return eris.Errorf("geofence: longitude bounds out of range: west=%v east=%v", b.West, b.East)
	}
	if b.South > b.North {
		return eris.Errorf("geofence: south %v exceeds north %v", b.South, b.North)
	}
	if b.West > b.East {
		return eris.Errorf("geofence: west %v exceeds east %v", b.West, b.East)
	}
	return nil
}

// Region is a named rectangle where report submission is permitted.
type Region struct {
	Name   string `json:"name" yaml:"name" mapstructure:"name"`
	Bounds `mapstructure:",squash" yaml:",inline"`
}

// Sentinel errors for coordinate range validation. These are distinct from
// the out-of-region case: a range failure means the value is not a legal
// coordinate at all.
var (
	ErrLatitudeRange  = eris.New("geofence: latitude must be between -90 and 90")
	ErrLongitudeRange = eris.New("geofence: longitude must be between -180 and 180")
)

// CheckCoordinates rejects values outside the legal coordinate range.
// Callers must run this before any containment check.
func CheckCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return ErrLatitudeRange
	}
	if lng < -180 || lng > 180 {
		return ErrLongitudeRange
	}
	return nil
}

// Validator answers containment queries against an ordered set of regions.
// It is pure: no side effects, safe for concurrent use.
type Validator struct {
	regions []Region
}

// NewValidator builds a Validator, validating every region up front.
// Region order is preserved; attribution returns the first match.
func NewValidator(regions []Region) (*Validator, error) {
	if len(regions) == 0 {
		return nil, eris.New("geofence: no service regions configured")
	}
	for _, r := range regions {
		if r.Name == "" {
			return nil, eris.New("geofence: region missing name")
		}
		if err := r.Validate(); err != nil {
			return nil, eris.Wrapf(err, "geofence: region %s", r.Name)
		}
	}
	out := make([]Region, len(regions))
	copy(out, regions)
	return &Validator{regions: out}, nil
}

// InRegion reports whether the point falls inside the named rectangle.
func (v *Validator) InRegion(lat, lng float64, region Region) bool {
	return region.Contains(lat, lng)
}

// InAnyRegion reports whether the point falls inside at least one
// configured region. Regions may overlap.
func (v *Validator) InAnyRegion(lat, lng float64) bool {
	for _, r := range v.regions {
		if r.Contains(lat, lng) {
			return true
		}
	}
	return false
}

// RegionName returns the name of the first configured region containing the
// point. Iteration order is the configured order, so attribution is
// deterministic even when regions overlap.
func (v *Validator) RegionName(lat, lng float64) (string, bool) {
	for _, r := range v.regions {
		if r.Contains(lat, lng) {
			return r.Name, true
		}
	}
	return "", false
}

// Regions returns the configured regions in order.
func (v *Validator) Regions() []Region {
	out := make([]Region, len(v.regions))
	copy(out, v.regions)
	return out
}
