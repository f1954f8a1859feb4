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
	"path"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/geom"
)

// GridSpec describes a regular grid_latitude/grid_longitude grid by
// the centre of its first cell, its spacing and its size.
type GridSpec struct {
	X0, Y0 float64
	DX, DY float64
	NX, NY int
}

// Coords returns the y and x coordinates of g, with bounds.
func (g GridSpec) Coords() (y, x *Coord) {
	axis := func(name string, p0, d float64, n int) *Coord {
		c := &Coord{Name: name, Units: "degrees", Points: make([]float64, n), Bounds: make([][2]float64, n)}
		for i := range c.Points {
			c.Points[i] = p0 + float64(i)*d
			c.Bounds[i] = [2]float64{c.Points[i] - d/2, c.Points[i] + d/2}
		}
		return c
	}
	return axis(GridLatitude, g.Y0, g.DY, g.NY), axis(GridLongitude, g.X0, g.DX, g.NX)
}

// TrajectoryPoint is the position of an air mass in grid coordinates
// at one time.
type TrajectoryPoint struct {
	Time time.Time
	X, Y float64
}

// Trajectory is a path through the model domain together with the grid
// to extract around its first point. The grid moves with the
// trajectory.
//
// It is read from TOML such as:
//
//	[Grid]
//	X0 = 301.5
//	Y0 = 12.5
//	DX = 0.01
//	DY = 0.01
//	NX = 100
//	NY = 100
//
//	[[Point]]
//	Time = 2020-02-01T01:00:00Z
//	X = 302.0
//	Y = 13.0
type Trajectory struct {
	Grid   GridSpec
	Points []TrajectoryPoint `toml:"Point"`
}

// LoadTrajectory reads a trajectory from r.
func LoadTrajectory(r io.Reader) (*Trajectory, error) {
	tr := new(Trajectory)
	if _, err := toml.DecodeReader(r, tr); err != nil {
		return nil, fmt.Errorf("greyzone: reading trajectory: %v", err)
	}
	if err := tr.check(); err != nil {
		return nil, err
	}
	return tr, nil
}

func (tr *Trajectory) check() error {
	if len(tr.Points) == 0 {
		return fmt.Errorf("greyzone: trajectory has no points")
	}
	g := tr.Grid
	if g.NX < 1 || g.NY < 1 || g.DX <= 0 || g.DY <= 0 {
		return fmt.Errorf("greyzone: trajectory grid %+v is empty", g)
	}
	for i := 1; i < len(tr.Points); i++ {
		if !tr.Points[i].Time.After(tr.Points[i-1].Time) {
			return fmt.Errorf("greyzone: trajectory point %d at %v is not after the one before it",
				i, tr.Points[i].Time)
		}
	}
	return nil
}

// Times returns the times of the trajectory points.
func (tr *Trajectory) Times() []time.Time {
	o := make([]time.Time, len(tr.Points))
	for i, p := range tr.Points {
		o[i] = p.Time.UTC()
	}
	return o
}

// GridAt returns the grid translated by the displacement of the
// trajectory from its first point to its point at t. It is an error
// for t not to be one of the trajectory's times.
func (tr *Trajectory) GridAt(t time.Time) (y, x *Coord, err error) {
	for _, p := range tr.Points {
		if p.Time.Equal(t) {
			y, x = tr.Grid.Coords()
			first := tr.Points[0]
			return y.Translate(p.Y - first.Y), x.Translate(p.X - first.X), nil
		}
	}
	return nil, nil, fmt.Errorf("greyzone: trajectory has no point at %v", t)
}

// Lagrangian interpolates every field of s with horizontal coordinates
// onto the trajectory grid at s's time. Other fields are dropped. The
// grid must lie within each field's domain.
func (tr *Trajectory) Lagrangian(s *Snapshot) (*Snapshot, error) {
	y, x, err := tr.GridAt(s.Time)
	if err != nil {
		return nil, err
	}
	target := domain(y, x).Bounds()
	out := NewSnapshot(s.Time)
	for _, f := range s.Fields() {
		if f.NDim() < 2 {
			continue
		}
		fy, fx := f.Horizontal()
		if fy == nil || fx == nil {
			continue
		}
		if target.Within(domain(fy, fx)) == geom.Outside {
			return nil, fmt.Errorf("greyzone: Lagrangian grid at %v leaves the domain of %s", s.Time, f.Name)
		}
		g, err := RegridHorizontal(f, y, x)
		if err != nil {
			return nil, err
		}
		if err := out.Add(g); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// domain returns the rectangle spanned by the points of y and x.
func domain(y, x *Coord) geom.Polygon {
	b := geom.NewBounds()
	for _, yp := range []float64{y.Points[0], y.Points[y.Len()-1]} {
		for _, xp := range []float64{x.Points[0], x.Points[x.Len()-1]} {
			b.Extend(geom.NewBoundsPoint(geom.Point{X: xp, Y: yp}))
		}
	}
	return geom.Polygon{{b.Min, {X: b.Max.X, Y: b.Min.Y}, b.Max, {X: b.Min.X, Y: b.Max.Y}}}
}

// LagrangianOutputName returns the file that Lagrangian grid output for
// the given lead time is saved to.
func LagrangianOutputName(dir string, start time.Time, resolution string, leadTime int) string {
	return path.Join(dir, fmt.Sprintf("%s_%s_T+%02d_lagrangian_grid.nc",
		start.UTC().Format(StartTimeFormat), resolution, leadTime))
}
