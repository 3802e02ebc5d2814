package geofence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRegions = []Region{
	{Name: "Volusia", Bounds: Bounds{North: 29.3, South: 28.7, East: -80.7, West: -81.5}},
	{Name: "Palm Beach", Bounds: Bounds{North: 27.0, South: 26.1, East: -80.0, West: -80.9}},
}

func TestBoundsContains(t *testing.T) {
	b := Bounds{North: 29.3, South: 28.7, East: -80.7, West: -81.5}

	assert.True(t, b.Contains(29.0, -81.1))
	assert.False(t, b.Contains(29.5, -81.1), "north of region")
	assert.False(t, b.Contains(29.0, -80.5), "east of region")

	// Edges are inclusive.
	assert.True(t, b.Contains(29.3, -81.1))
	assert.True(t, b.Contains(28.7, -80.7))
	assert.True(t, b.Contains(29.0, -81.5))
}

func TestBoundsValidate(t *testing.T) {
	assert.NoError(t, Bounds{North: 1, South: -1, East: 1, West: -1}.Validate())
	assert.Error(t, Bounds{North: 91, South: 0, East: 1, West: -1}.Validate())
	assert.Error(t, Bounds{North: 1, South: 0, East: 181, West: -1}.Validate())
	assert.Error(t, Bounds{North: -1, South: 1, East: 1, West: -1}.Validate(), "inverted latitudes")
	assert.Error(t, Bounds{North: 1, South: -1, East: -1, West: 1}.Validate(), "inverted longitudes")
}

func TestNewValidator(t *testing.T) {
	_, err := NewValidator(nil)
	assert.Error(t, err)

	_, err = NewValidator([]Region{{Bounds: Bounds{North: 1, South: 0, East: 1, West: 0}}})
	assert.Error(t, err, "unnamed region")

	_, err = NewValidator([]Region{{Name: "bad", Bounds: Bounds{North: 0, South: 1, East: 1, West: 0}}})
	assert.Error(t, err)

	v, err := NewValidator(testRegions)
	require.NoError(t, err)
	assert.Len(t, v.Regions(), 2)
}

func TestInAnyRegion(t *testing.T) {
	v, err := NewValidator(testRegions)
	require.NoError(t, err)

	assert.True(t, v.InAnyRegion(29.0, -81.1), "inside Volusia")
	assert.True(t, v.InAnyRegion(26.5, -80.3), "inside Palm Beach")
	assert.False(t, v.InAnyRegion(28.4, -81.3), "Orlando, between regions")
	assert.False(t, v.InAnyRegion(40.7, -74.0), "far outside")
}

func TestRegionName(t *testing.T) {
	// Overlapping regions: the first configured match wins.
	overlapping := []Region{
		{Name: "first", Bounds: Bounds{North: 30, South: 20, East: -75, West: -85}},
		{Name: "second", Bounds: Bounds{North: 30, South: 20, East: -75, West: -85}},
	}
	v, err := NewValidator(overlapping)
	require.NoError(t, err)

	name, ok := v.RegionName(25, -80)
	require.True(t, ok)
	assert.Equal(t, "first", name)

	_, ok = v.RegionName(0, 0)
	assert.False(t, ok)
}

func TestCheckCoordinates(t *testing.T) {
	assert.NoError(t, CheckCoordinates(29.0, -81.1))
	assert.NoError(t, CheckCoordinates(-90, 180))

	assert.ErrorIs(t, CheckCoordinates(90.1, 0), ErrLatitudeRange)
	assert.ErrorIs(t, CheckCoordinates(-91, 0), ErrLatitudeRange)
	assert.ErrorIs(t, CheckCoordinates(0, 180.5), ErrLongitudeRange)
	assert.ErrorIs(t, CheckCoordinates(0, -181), ErrLongitudeRange)
}
