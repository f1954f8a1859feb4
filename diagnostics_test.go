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

func densitySnapshot() *Snapshot {
	s := massGridSnapshot(testStart)
	rho := newField(AirDensity, "kg m-3", []string{"z", "y", "x"},
		[]*Coord{hybrid(10, 20, 30), lat(0, 1), lon(0, 1, 2)}, func(c ...float64) float64 { return 1.2 - c[0]/100 })
	s.Add(rho)
	return s
}

func TestTotalColumn(t *testing.T) {
	s := densitySnapshot()
	tcw, err := TotalColumn(s)
	if err != nil {
		t.Fatal(err)
	}
	if tcw.Name != TotalColumnWater || tcw.Units != "kg m-2" || tcw.NDim() != 2 {
		t.Fatalf("%s %s %v", tcw.Name, tcw.Units, tcw.Data.Shape)
	}
	// Layers are 10 m thick.
	want := 0.01 * 10 * (1.1 + 1.0 + 0.9)
	for i, v := range tcw.Data.Elements {
		if !similar(v, want) {
			t.Errorf("point %d: %g != %g", i, v, want)
		}
	}
	if y, x := tcw.Horizontal(); y.Name != GridLatitude || x.Name != GridLongitude {
		t.Errorf("horizontal coordinates %s %s", y.Name, x.Name)
	}

	// The lowest layer starts at the surface.
	rho, _ := s.Field(AirDensity)
	rho.Coords[0] = &Coord{Name: HybridHeight, Units: "m", Points: []float64{10, 20, 30},
		Bounds: [][2]float64{{0, 15}, {15, 25}, {25, 35}}}
	q, _ := s.Field("specific_humidity")
	q.Coords[0] = rho.Coords[0]
	tcw, err = TotalColumn(s, "specific_humidity")
	if err != nil {
		t.Fatal(err)
	}
	want = 0.01 * (15*1.1 + 10*1.0 + 10*0.9)
	if !similar(tcw.Data.Elements[0], want) {
		t.Errorf("%g != %g", tcw.Data.Elements[0], want)
	}
}

func TestTotalColumnErrors(t *testing.T) {
	s := massGridSnapshot(testStart)
	if _, err := TotalColumn(s); err == nil {
		t.Error("no error without air density")
	}
	s = densitySnapshot()
	if _, err := TotalColumn(s, "mass_fraction_of_cloud_ice_in_air"); err == nil {
		t.Error("no error for missing species")
	}
	if _, err := TotalColumn(s, VerticalVelocity); err == nil {
		t.Error("no error for wrong units")
	}
	if _, err := TotalColumn(s, "x_wind"); err == nil {
		t.Error("no error for field on another grid")
	}
}
