/*
Copyright © 2021 the greyzone authors.
This file is part of greyzone.

greyzone is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

greyzone is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with greyzone.  If not, see <http://www.gnu.org/licenses/>.
*/

package greyzone

import (
	"fmt"
	"time"

	"github.com/ctessum/sparse"
	"github.com/ctessum/unit"
)

// Standard names of the coordinates and fields that the correction
// layer and the analyses rely on.
const (
	HybridHeight     = "atmosphere_hybrid_height_coordinate"
	EllipsoidHeight  = "height_above_reference_ellipsoid"
	Altitude         = "altitude"
	GridLatitude     = "grid_latitude"
	GridLongitude    = "grid_longitude"
	VerticalVelocity = "upward_air_velocity"
	AirDensity       = "air_density"
)

// Coord is a one-dimensional coordinate: a named set of points with
// optional cell bounds.
type Coord struct {
	Name   string
	Units  string
	Points []float64
	Bounds [][2]float64
}

// Len returns the number of points in c.
func (c *Coord) Len() int { return len(c.Points) }

// Equal reports whether c and o have the same name, units and points.
// Bounds are not compared.
func (c *Coord) Equal(o *Coord) bool {
	if c == o {
		return true
	}
	if c == nil || o == nil {
		return false
	}
	if c.Name != o.Name || c.Units != o.Units || len(c.Points) != len(o.Points) {
		return false
	}
	for i, p := range c.Points {
		if p != o.Points[i] {
			return false
		}
	}
	return true
}

// Copy returns a deep copy of c.
func (c *Coord) Copy() *Coord {
	if c == nil {
		return nil
	}
	o := &Coord{Name: c.Name, Units: c.Units}
	o.Points = append([]float64(nil), c.Points...)
	if c.Bounds != nil {
		o.Bounds = append([][2]float64(nil), c.Bounds...)
	}
	return o
}

// Translate returns a copy of c with offset added to every point and bound.
func (c *Coord) Translate(offset float64) *Coord {
	o := c.Copy()
	for i := range o.Points {
		o.Points[i] += offset
	}
	for i := range o.Bounds {
		o.Bounds[i][0] += offset
		o.Bounds[i][1] += offset
	}
	return o
}

// AuxCoord is an auxiliary coordinate that spans one axis of a field
// without being that axis's dimension coordinate.
type AuxCoord struct {
	*Coord
	Axis int
}

// Field is a labelled array of one physical quantity at one time.
// Data is ordered as [z,] y, x.
type Field struct {
	Name  string
	Units string

	// Dims are the names of the dimensions of Data, and Coords
	// holds the matching dimension coordinates (nil where a dimension
	// has none).
	Dims   []string
	Coords []*Coord
	Aux    []AuxCoord

	Data *sparse.DenseArray

	// Time is the instant the data is valid at. For time-accumulated
	// quantities TimeBounds holds the accumulation interval and Time
	// is its midpoint.
	Time       time.Time
	TimeBounds [2]time.Time
}

// NDim returns the number of axes in f's data.
func (f *Field) NDim() int { return len(f.Data.Shape) }

// Accumulated reports whether f is accumulated over a time interval.
func (f *Field) Accumulated() bool { return !f.TimeBounds[1].IsZero() }

// Coord returns the dimension or auxiliary coordinate with the given
// name, or nil if f has none.
func (f *Field) Coord(name string) *Coord {
	for _, c := range f.Coords {
		if c != nil && c.Name == name {
			return c
		}
	}
	for _, a := range f.Aux {
		if a.Name == name {
			return a.Coord
		}
	}
	return nil
}

// HasCoord reports whether f carries a coordinate with the given name.
func (f *Field) HasCoord(name string) bool { return f.Coord(name) != nil }

// CoordAxis returns the data axis that the named coordinate spans, or -1.
func (f *Field) CoordAxis(name string) int {
	for i, c := range f.Coords {
		if c != nil && c.Name == name {
			return i
		}
	}
	for _, a := range f.Aux {
		if a.Name == name {
			return a.Axis
		}
	}
	return -1
}

// Vertical returns the dimension coordinate of the first axis of a
// three-dimensional field, or nil for fields with fewer axes.
func (f *Field) Vertical() *Coord {
	if f.NDim() != 3 {
		return nil
	}
	return f.Coords[0]
}

// Horizontal returns the y and x dimension coordinates of f.
func (f *Field) Horizontal() (y, x *Coord) {
	n := f.NDim()
	if n < 2 {
		return nil, nil
	}
	return f.Coords[n-2], f.Coords[n-1]
}

// Dimensions parses f's units into physical dimensions.
func (f *Field) Dimensions() (unit.Dimensions, error) {
	d, err := ParseUnits(f.Units)
	if err != nil {
		return nil, fmt.Errorf("greyzone: field %s: %w", f.Name, err)
	}
	return d, nil
}

// Copy returns a deep copy of f.
func (f *Field) Copy() *Field {
	o := &Field{
		Name:       f.Name,
		Units:      f.Units,
		Dims:       append([]string(nil), f.Dims...),
		Coords:     make([]*Coord, len(f.Coords)),
		Data:       f.Data.Copy(),
		Time:       f.Time,
		TimeBounds: f.TimeBounds,
	}
	for i, c := range f.Coords {
		o.Coords[i] = c.Copy()
	}
	for _, a := range f.Aux {
		o.Aux = append(o.Aux, AuxCoord{Coord: a.Coord.Copy(), Axis: a.Axis})
	}
	return o
}

// denseFrom returns an array of the given shape holding vals.
func denseFrom(shape []int, vals []float64) *sparse.DenseArray {
	a := sparse.ZerosDense(shape...)
	copy(a.Elements, vals)
	return a
}

// sameGrid reports whether f and o share every dimension coordinate.
func (f *Field) sameGrid(o *Field) bool {
	if len(f.Coords) != len(o.Coords) {
		return false
	}
	for i, c := range f.Coords {
		if !c.Equal(o.Coords[i]) {
			return false
		}
	}
	return true
}

// Snapshot is the collection of fields valid at one time.
// Fields keep the order they were added in.
type Snapshot struct {
	Time   time.Time
	fields []*Field
}

// NewSnapshot returns a snapshot holding the given fields.
func NewSnapshot(t time.Time, fields ...*Field) *Snapshot {
	return &Snapshot{Time: t, fields: append([]*Field(nil), fields...)}
}

// Len returns the number of fields in s.
func (s *Snapshot) Len() int { return len(s.fields) }

// Fields returns the fields in s.
func (s *Snapshot) Fields() []*Field { return append([]*Field(nil), s.fields...) }

// Names returns the names of the fields in s.
func (s *Snapshot) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Field returns the named field.
func (s *Snapshot) Field(name string) (*Field, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Has reports whether s holds the named field.
func (s *Snapshot) Has(name string) bool {
	_, ok := s.Field(name)
	return ok
}

// Add appends f to s. It is an error to add a second field with the
// same name.
func (s *Snapshot) Add(f *Field) error {
	if s.Has(f.Name) {
		return fmt.Errorf("greyzone: snapshot already has a field named %s", f.Name)
	}
	s.fields = append(s.fields, f)
	return nil
}

// Replace swaps the field with f's name for f, keeping its position,
// or appends f if there is no such field.
func (s *Snapshot) Replace(f *Field) {
	for i, old := range s.fields {
		if old.Name == f.Name {
			s.fields[i] = f
			return
		}
	}
	s.fields = append(s.fields, f)
}

// Remove deletes the named field and reports whether it was present.
func (s *Snapshot) Remove(name string) bool {
	for i, f := range s.fields {
		if f.Name == name {
			s.fields = append(s.fields[:i], s.fields[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	o := &Snapshot{Time: s.Time, fields: make([]*Field, len(s.fields))}
	for i, f := range s.fields {
		o.fields[i] = f.Copy()
	}
	return o
}
