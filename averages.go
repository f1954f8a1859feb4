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
	"io"
	"math"
	"time"

	"github.com/tealeg/xlsx"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Circle is a circular region of a latitude-longitude grid, in degrees.
type Circle struct {
	Lon, Lat, Radius float64
}

// EUREC4ACircle is the circle flown by the HALO aircraft during the
// EUREC4A campaign.
var EUREC4ACircle = Circle{Lon: -57.717, Lat: 13.3, Radius: 1}

// Contains reports whether the point (lon, lat) is inside c. Grid
// longitudes above 180 are taken to be degrees east of the
// antimeridian and are shifted by -360.
func (c Circle) Contains(lon, lat float64) bool {
	if lon > 180 {
		lon -= 360
	}
	return math.Hypot(lon-c.Lon, lat-c.Lat) < c.Radius
}

// cellBounds returns the bounds of c, guessing them from the midpoints
// between points where c has none.
func cellBounds(c *Coord) [][2]float64 {
	if c.Bounds != nil {
		return c.Bounds
	}
	n := c.Len()
	b := make([][2]float64, n)
	if n == 1 {
		b[0] = [2]float64{c.Points[0] - 0.5, c.Points[0] + 0.5}
		return b
	}
	for i := range b {
		switch i {
		case 0:
			b[i][0] = c.Points[0] - (c.Points[1]-c.Points[0])/2
		default:
			b[i][0] = (c.Points[i-1] + c.Points[i]) / 2
		}
		switch i {
		case n - 1:
			b[i][1] = c.Points[n-1] + (c.Points[n-1]-c.Points[n-2])/2
		default:
			b[i][1] = (c.Points[i] + c.Points[i+1]) / 2
		}
	}
	return b
}

func isDegrees(c *Coord) bool {
	switch c.Units {
	case "degrees", "degree", "degrees_north", "degrees_east":
		return true
	}
	return false
}

// AreaWeights returns the relative areas of the cells of the horizontal
// grid given by y and x, in row-major order. Grids in degrees are
// weighted by the spherical cell area and other grids by the product
// of cell widths. If circle is not nil, cells whose centres are
// outside it get zero weight.
func AreaWeights(y, x *Coord, circle *Circle) []float64 {
	yb, xb := cellBounds(y), cellBounds(x)
	deg := isDegrees(y) && isDegrees(x)
	w := make([]float64, y.Len()*x.Len())
	for j, b := range yb {
		dy := math.Abs(b[1] - b[0])
		if deg {
			dy = math.Abs(math.Sin(b[1]*math.Pi/180) - math.Sin(b[0]*math.Pi/180))
		}
		for i, a := range xb {
			dx := math.Abs(a[1] - a[0])
			if deg {
				dx *= math.Pi / 180
			}
			w[j*x.Len()+i] = dy * dx
			if circle != nil && !circle.Contains(x.Points[i], y.Points[j]) {
				w[j*x.Len()+i] = 0
			}
		}
	}
	return w
}

// HorizontalMoments returns, for each level of the two- or
// three-dimensional field f, the weighted mean over the horizontal
// grid and the weighted root mean square of the anomaly from it.
func HorizontalMoments(f *Field, weights []float64) (mean, stdDev []float64, err error) {
	n := f.NDim()
	if n != 2 && n != 3 {
		return nil, nil, fmt.Errorf("greyzone: averaging %s: field has %d axes", f.Name, n)
	}
	npts := f.Data.Shape[n-2] * f.Data.Shape[n-1]
	if len(weights) != npts {
		return nil, nil, fmt.Errorf("greyzone: averaging %s: %d weights for %d points", f.Name, len(weights), npts)
	}
	nz := len(f.Data.Elements) / npts
	mean, stdDev = make([]float64, nz), make([]float64, nz)
	anom := make([]float64, npts)
	for k := 0; k < nz; k++ {
		level := f.Data.Elements[k*npts : (k+1)*npts]
		mean[k] = stat.Mean(level, weights)
		copy(anom, level)
		floats.AddConst(-mean[k], anom)
		floats.Mul(anom, anom)
		stdDev[k] = math.Sqrt(stat.Mean(anom, weights))
	}
	return mean, stdDev, nil
}

// DomainAverager accumulates the horizontal mean and standard deviation
// of every field in a sequence of snapshots.
type DomainAverager struct {
	// Circle restricts the averages to a region when not nil.
	Circle *Circle

	times  []time.Time
	order  []string
	series map[string]*averageSeries
}

type averageSeries struct {
	name, units string
	vdim        string
	vertical    *Coord
	mean, std   map[int][]float64
}

// Add computes the averages of every field of s with two or three axes
// and horizontal coordinates.
func (a *DomainAverager) Add(s *Snapshot) error {
	if a.series == nil {
		a.series = make(map[string]*averageSeries)
	}
	ti := len(a.times)
	a.times = append(a.times, s.Time)
	for _, f := range s.Fields() {
		n := f.NDim()
		if n != 2 && n != 3 {
			continue
		}
		y, x := f.Horizontal()
		if y == nil || x == nil {
			continue
		}
		mean, std, err := HorizontalMoments(f, AreaWeights(y, x, a.Circle))
		if err != nil {
			return err
		}
		ser, ok := a.series[f.Name]
		if !ok {
			ser = &averageSeries{name: f.Name, units: f.Units,
				mean: make(map[int][]float64), std: make(map[int][]float64)}
			if n == 3 {
				ser.vdim, ser.vertical = f.Dims[0], f.Coords[0]
			}
			a.series[f.Name] = ser
			a.order = append(a.order, f.Name)
		}
		if len(mean) != seriesLevels(ser) {
			return fmt.Errorf("greyzone: averaging %s: number of levels changed from %d to %d",
				f.Name, seriesLevels(ser), len(mean))
		}
		ser.mean[ti], ser.std[ti] = mean, std
	}
	return nil
}

func seriesLevels(s *averageSeries) int {
	if s.vertical == nil {
		return 1
	}
	return s.vertical.Len()
}

// Fields returns the time series of averages as fields named
// <name>_mean and <name>_std_dev. Times at which a field was absent are
// filled with NaN.
func (a *DomainAverager) Fields() []*Field {
	tc := &Coord{Name: "time", Units: TimeUnits, Points: make([]float64, len(a.times))}
	for i, t := range a.times {
		tc.Points[i] = hoursSinceEpoch(t)
	}
	var out []*Field
	for _, name := range a.order {
		ser := a.series[name]
		nz := seriesLevels(ser)
		for _, v := range []struct {
			suffix string
			vals   map[int][]float64
		}{{"_mean", ser.mean}, {"_std_dev", ser.std}} {
			f := &Field{Name: name + v.suffix, Units: ser.units}
			if ser.vertical != nil {
				f.Dims = []string{"time", ser.vdim}
				f.Coords = []*Coord{tc, ser.vertical}
				f.Data = denseFrom([]int{len(a.times), nz}, nil)
			} else {
				f.Dims = []string{"time"}
				f.Coords = []*Coord{tc}
				f.Data = denseFrom([]int{len(a.times)}, nil)
			}
			for ti := range a.times {
				vals, ok := v.vals[ti]
				for k := 0; k < nz; k++ {
					x := math.NaN()
					if ok {
						x = vals[k]
					}
					f.Data.Elements[ti*nz+k] = x
				}
			}
			out = append(out, f)
		}
	}
	return out
}

// WriteXLSX writes the time series of the averages of two-dimensional
// fields to w as a spreadsheet, one row per time and one column per
// statistic. Missing values are left blank.
func (a *DomainAverager) WriteXLSX(w io.Writer) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("averages")
	if err != nil {
		return err
	}
	header := sheet.AddRow()
	header.AddCell().SetString("time")
	var cols []map[int][]float64
	for _, name := range a.order {
		ser := a.series[name]
		if ser.vertical != nil {
			continue
		}
		header.AddCell().SetString(fmt.Sprintf("%s_mean (%s)", name, ser.units))
		header.AddCell().SetString(fmt.Sprintf("%s_std_dev (%s)", name, ser.units))
		cols = append(cols, ser.mean, ser.std)
	}
	for ti, t := range a.times {
		row := sheet.AddRow()
		row.AddCell().SetString(t.UTC().Format(time.RFC3339))
		for _, col := range cols {
			c := row.AddCell()
			if v, ok := col[ti]; ok && !math.IsNaN(v[0]) {
				c.SetFloat(v[0])
			}
		}
	}
	return f.Write(w)
}
