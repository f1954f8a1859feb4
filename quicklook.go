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
	"math"
	"path"

	"github.com/spf13/afero"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// DefaultQuicklookLevels are the altitudes in metres that
// three-dimensional fields are plotted at.
var DefaultQuicklookLevels = []float64{50, 300, 500, 1000, 1500, 2000, 3000, 4000}

// fieldGrid adapts a two-dimensional field to plotter.GridXYZ.
type fieldGrid struct {
	f    *Field
	y, x *Coord
}

func (g fieldGrid) Dims() (c, r int)   { return g.x.Len(), g.y.Len() }
func (g fieldGrid) Z(c, r int) float64 { return g.f.Data.Elements[r*g.x.Len()+c] }
func (g fieldGrid) X(c int) float64    { return g.x.Points[c] }
func (g fieldGrid) Y(r int) float64    { return g.y.Points[r] }

// Quicklook draws heat maps of the fields in snapshots.
type Quicklook struct {
	Fs  afero.Fs
	Dir string

	// Levels are the altitudes three-dimensional fields are plotted at.
	Levels []float64

	// Range fixes the colour scale of the named fields. Other fields
	// are scaled to their data.
	Range map[string][2]float64

	Width, Height vg.Length
}

// NewQuicklook returns a Quicklook that writes to dir on fs with the
// default levels and image size.
func NewQuicklook(fs afero.Fs, dir string) *Quicklook {
	return &Quicklook{
		Fs:     fs,
		Dir:    dir,
		Levels: DefaultQuicklookLevels,
		Width:  6 * vg.Inch,
		Height: 5 * vg.Inch,
	}
}

// Plot draws every field of s with two or three axes and returns the
// names of the files written. Three-dimensional fields are interpolated
// to q.Levels, using their altitude coordinate if they have one.
func (q *Quicklook) Plot(s *Snapshot, leadTime int) ([]string, error) {
	var files []string
	for _, f := range s.Fields() {
		switch f.NDim() {
		case 2:
			name := path.Join(q.Dir, fmt.Sprintf("%s_T+%02d.png", f.Name, leadTime))
			if err := q.save(name, f, f.Name); err != nil {
				return files, err
			}
			files = append(files, name)
		case 3:
			z := heightCoord(f)
			if z == nil {
				continue
			}
			fz, err := InterpolateLevels(f, z.Name, q.Levels)
			if err != nil {
				return files, err
			}
			for k, level := range q.Levels {
				f2, err := Level(fz, k)
				if err != nil {
					return files, err
				}
				title := fmt.Sprintf("%s at %g m", f.Name, level)
				name := path.Join(q.Dir, fmt.Sprintf("%s_altitude%g_T+%02d.png", f.Name, level, leadTime))
				if err := q.save(name, f2, title); err != nil {
					return files, err
				}
				files = append(files, name)
			}
		}
	}
	return files, nil
}

func (q *Quicklook) save(name string, f *Field, title string) error {
	if err := q.Fs.MkdirAll(path.Dir(name), 0755); err != nil {
		return err
	}
	w, err := q.Fs.Create(name)
	if err != nil {
		return err
	}
	defer w.Close()

	r, ok := q.Range[f.Name]
	if !ok {
		r = dataRange(f.Data.Elements)
	}
	p, err := HeatMap(f, title, r[0], r[1])
	if err != nil {
		return err
	}
	c := vgimg.NewWith(vgimg.UseWH(q.Width, q.Height), vgimg.UseDPI(96))
	p.Draw(draw.New(c))
	png := vgimg.PngCanvas{Canvas: c}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("greyzone: writing %s: %v", name, err)
	}
	return w.Close()
}

// dataRange returns the smallest and largest finite values in x.
func dataRange(x []float64) [2]float64 {
	finite := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return [2]float64{0, 1}
	}
	r := [2]float64{floats.Min(finite), floats.Max(finite)}
	if r[0] == r[1] {
		r[1] = r[0] + 1
	}
	return r
}

// HeatMap returns a plot of the two-dimensional field f coloured
// between vmin and vmax.
func HeatMap(f *Field, title string, vmin, vmax float64) (*plot.Plot, error) {
	if f.NDim() != 2 {
		return nil, fmt.Errorf("greyzone: plotting %s: field has %d axes", f.Name, f.NDim())
	}
	y, x := f.Horizontal()
	if y == nil || x == nil {
		return nil, fmt.Errorf("greyzone: plotting %s: no horizontal coordinates", f.Name)
	}
	p, err := plot.New()
	if err != nil {
		return nil, err
	}
	p.Title.Text = title
	if f.Units != "" {
		p.Title.Text += " (" + f.Units + ")"
	}
	p.X.Label.Text = x.Name
	p.Y.Label.Text = y.Name

	cm := moreland.ExtendedBlackBody()
	cm.SetMin(vmin)
	cm.SetMax(vmax)
	h := plotter.NewHeatMap(fieldGrid{f: f, y: y, x: x}, cm.Palette(255))
	h.Min, h.Max = vmin, vmax
	p.Add(h)
	return p, nil
}
