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
	"testing"
)

func TestCorrectRegridsStaggeredFields(t *testing.T) {
	s := massGridSnapshot(testStart)
	c := NewCorrector(testLogger())
	if err := c.Correct(s); err != nil {
		t.Fatal(err)
	}
	w, _ := s.Field(VerticalVelocity)
	u, _ := s.Field("x_wind")
	if !onGrid(u, w) {
		t.Fatal("x_wind not on the reference grid")
	}
	if !reflectNames(s.Names(), []string{VerticalVelocity, "x_wind", "specific_humidity"}) {
		t.Errorf("field order changed: %v", s.Names())
	}
	// x_wind is linear in every coordinate and the reference grid is
	// inside its grid, so interpolation is exact.
	for i, v := range w.Data.Elements {
		if !similar(u.Data.Elements[i], v) {
			t.Errorf("element %d: %g != %g", i, u.Data.Elements[i], v)
		}
	}
	for _, f := range []*Field{w, u} {
		if f.HasCoord(EllipsoidHeight) {
			t.Errorf("%s still has %s", f.Name, EllipsoidHeight)
		}
		if !f.HasCoord(Altitude) {
			t.Errorf("%s has no altitude", f.Name)
		}
	}
}

func reflectNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCorrectIdempotent(t *testing.T) {
	s := massGridSnapshot(testStart)
	c := NewCorrector(testLogger())
	if err := c.Correct(s); err != nil {
		t.Fatal(err)
	}
	once := s.Clone()
	u1, _ := s.Field("x_wind")
	if err := c.Correct(s); err != nil {
		t.Fatal(err)
	}
	u2, _ := s.Field("x_wind")
	if u1 != u2 {
		t.Error("x_wind regridded a second time")
	}
	for _, f := range once.Fields() {
		g, _ := s.Field(f.Name)
		if !g.Vertical().Equal(f.Vertical()) {
			t.Errorf("%s vertical coordinate changed", f.Name)
		}
		for i, v := range f.Data.Elements {
			if g.Data.Elements[i] != v {
				t.Fatalf("%s data changed", f.Name)
			}
		}
	}
}

func TestCorrectSkipped(t *testing.T) {
	s := massGridSnapshot(testStart)
	s.Remove(VerticalVelocity)
	before := s.Clone()
	c := NewCorrector(testLogger())
	if ok, _ := c.Applicable(s); ok {
		t.Fatal("applicable without reference field")
	}
	if err := c.Correct(s); err != nil {
		t.Fatal(err)
	}
	u, _ := s.Field("x_wind")
	ub, _ := before.Field("x_wind")
	if !u.Vertical().Equal(ub.Vertical()) || !u.HasCoord(EllipsoidHeight) {
		t.Error("snapshot changed without reference field")
	}

	// A reference field without hybrid height is not height-level data.
	s = massGridSnapshot(testStart)
	w, _ := s.Field(VerticalVelocity)
	w.Coords[0] = &Coord{Name: "model_level_number", Points: []float64{1, 2, 3}}
	if ok, _ := c.Applicable(s); ok {
		t.Error("applicable without hybrid height")
	}
	if err := c.Correct(s); err != nil {
		t.Fatal(err)
	}
	if u, _ := s.Field("x_wind"); u.Data.Shape[0] != 4 {
		t.Error("x_wind regridded without hybrid height")
	}
}

func TestRemap3DClamps(t *testing.T) {
	src := newField("air_density", "kg m-3", []string{"z", "y", "x"},
		[]*Coord{hybrid(10, 20), lat(0, 1), lon(0, 1)}, func(c ...float64) float64 { return c[0] })
	ref := newField(VerticalVelocity, "m s-1", []string{"z", "y", "x"},
		[]*Coord{hybrid(0, 15, 40), lat(0, 1), lon(0, 1)}, func(c ...float64) float64 { return 0 })
	out, err := Remap3D(src, ref)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{10, 15, 20}
	for k, w := range want {
		if v := out.Data.Get(k, 1, 1); !similar(v, w) {
			t.Errorf("level %d: %g != %g", k, v, w)
		}
	}
	if out.Name != "air_density" || out.Units != "kg m-3" {
		t.Errorf("metadata not kept: %s %s", out.Name, out.Units)
	}
}
