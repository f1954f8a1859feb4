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
	"math"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const testTolerance = 1.0e-8

func similar(a, b float64) bool {
	return math.Abs(a-b) <= testTolerance*math.Max(1, math.Abs(a)+math.Abs(b))
}

var testStart = time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func seq(start, step float64, n int) []float64 {
	o := make([]float64, n)
	for i := range o {
		o[i] = start + step*float64(i)
	}
	return o
}

// newField builds a field whose values are given by fn of the
// coordinate values at each point.
func newField(name, units string, dims []string, coords []*Coord, fn func(c ...float64) float64) *Field {
	shape := make([]int, len(coords))
	for i, c := range coords {
		shape[i] = c.Len()
	}
	f := &Field{Name: name, Units: units, Dims: dims, Coords: coords, Data: sparse.ZerosDense(shape...)}
	vals := make([]float64, len(shape))
	for i := range f.Data.Elements {
		idx := f.Data.IndexNd(i)
		for a, k := range idx {
			vals[a] = coords[a].Points[k]
		}
		f.Data.Elements[i] = fn(vals...)
	}
	return f
}

func hybrid(pts ...float64) *Coord { return &Coord{Name: HybridHeight, Units: "m", Points: pts} }

func lat(pts ...float64) *Coord { return &Coord{Name: GridLatitude, Units: "degrees", Points: pts} }

func lon(pts ...float64) *Coord { return &Coord{Name: GridLongitude, Units: "degrees", Points: pts} }

// massGridSnapshot returns vertical velocity on the mass grid and x_wind
// on a grid staggered in the vertical and in x. Both are linear in
// every coordinate.
func massGridSnapshot(t time.Time) *Snapshot {
	linear := func(c ...float64) float64 { return c[0] + 10*c[1] + 100*c[2] }
	w := newField(VerticalVelocity, "m s-1", []string{"z", "y", "x"},
		[]*Coord{hybrid(10, 20, 30), lat(0, 1), lon(0, 1, 2)}, linear)
	w.Aux = []AuxCoord{{Coord: &Coord{Name: EllipsoidHeight, Units: "m", Points: []float64{10, 20, 30}}, Axis: 0}}
	u := newField("x_wind", "m s-1", []string{"z_rho", "y", "x_u"},
		[]*Coord{hybrid(5, 15, 25, 35), lat(0, 1), lon(-0.5, 0.5, 1.5, 2.5)}, linear)
	u.Aux = []AuxCoord{{Coord: &Coord{Name: EllipsoidHeight, Units: "m", Points: []float64{5, 15, 25, 35}}, Axis: 0}}
	q := newField("specific_humidity", "kg kg-1", []string{"z", "y", "x"},
		[]*Coord{hybrid(10, 20, 30), lat(0, 1), lon(0, 1, 2)}, func(c ...float64) float64 { return 0.01 })
	w.Time, u.Time, q.Time = t, t, t
	return NewSnapshot(t, w, u, q)
}

// writeRecords writes a file holding one variable with a record per
// time, with optional accumulation bounds.
func writeRecords(t *testing.T, fs afero.Fs, path, name string, times []time.Time, bounds [][2]time.Time, values []float64) {
	t.Helper()
	ny, nx := 2, 2
	h := cdf.NewHeader([]string{"time", "bnds", "y", "x"}, []int{len(times), 2, ny, nx})
	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "standard_name", "time")
	h.AddAttribute("time", "units", TimeUnits)
	if bounds != nil {
		h.AddAttribute("time", "bounds", "time_bnds")
		h.AddVariable("time_bnds", []string{"time", "bnds"}, []float64{0})
	}
	h.AddVariable("y", []string{"y"}, []float64{0})
	h.AddAttribute("y", "standard_name", GridLatitude)
	h.AddAttribute("y", "units", "degrees")
	h.AddVariable("x", []string{"x"}, []float64{0})
	h.AddAttribute("x", "standard_name", GridLongitude)
	h.AddAttribute("x", "units", "degrees")
	h.AddVariable(name, []string{"time", "y", "x"}, []float32{0})
	h.AddAttribute(name, "standard_name", name)
	h.AddAttribute(name, "units", "kg m-2")
	h.Define()

	w, err := fs.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	f, err := cdf.Create(w, h)
	if err != nil {
		t.Fatal(err)
	}
	write := func(v string, data interface{}) {
		if _, err := f.Writer(v, nil, nil).Write(data); err != nil {
			t.Fatalf("writing %s: %v", v, err)
		}
	}
	tv := make([]float64, len(times))
	for i, tt := range times {
		tv[i] = hoursSinceEpoch(tt)
	}
	write("time", tv)
	if bounds != nil {
		var bv []float64
		for _, b := range bounds {
			bv = append(bv, hoursSinceEpoch(b[0]), hoursSinceEpoch(b[1]))
		}
		write("time_bnds", bv)
	}
	write("y", []float64{0, 1})
	write("x", []float64{0, 1})
	var data []float32
	for _, v := range values {
		for i := 0; i < ny*nx; i++ {
			data = append(data, float32(v))
		}
	}
	write(name, data)
}

// writeSnapshot writes the fields of s to path.
func writeSnapshot(t *testing.T, fs afero.Fs, path string, s *Snapshot) {
	t.Helper()
	if err := WriteNCFFile(fs, path, map[string]string{"history": "test"}, s.Fields()...); err != nil {
		t.Fatal(err)
	}
}
