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
	"sort"

	"github.com/ctessum/sparse"
)

type weight struct {
	i0, i1 int
	w      float64 // weight of i1
}

// linearWeight returns the points of pts bracketing x and the weight of
// the upper one. pts must be monotonic; x outside its range is clamped
// to the nearest end.
func linearWeight(pts []float64, x float64) weight {
	n := len(pts)
	if n == 1 {
		return weight{}
	}
	asc := pts[n-1] >= pts[0]
	first, last := 0, n-1
	if !asc {
		first, last = last, first
	}
	if x <= pts[first] {
		return weight{i0: first, i1: first}
	}
	if x >= pts[last] {
		return weight{i0: last, i1: last}
	}
	i := sort.Search(n, func(i int) bool {
		if asc {
			return pts[i] >= x
		}
		return pts[i] <= x
	})
	i0, i1 := i-1, i
	return weight{i0: i0, i1: i1, w: (x - pts[i0]) / (pts[i1] - pts[i0])}
}

func axisWeights(src, dst []float64) []weight {
	w := make([]weight, len(dst))
	for i, x := range dst {
		w[i] = linearWeight(src, x)
	}
	return w
}

// verticalCoord returns the coordinate used to interpolate f in the
// vertical: its hybrid height coordinate where that spans the first
// axis, otherwise the first axis's dimension coordinate.
func verticalCoord(f *Field) *Coord {
	if f.CoordAxis(HybridHeight) == 0 {
		return f.Coord(HybridHeight)
	}
	return f.Coords[0]
}

// Remap3D linearly interpolates the three-dimensional field f onto the
// grid of ref. Values outside the range of f's coordinates take the
// value at the nearest edge. The result carries ref's coordinates.
func Remap3D(f, ref *Field) (*Field, error) {
	if f.NDim() != 3 || ref.NDim() != 3 {
		return nil, fmt.Errorf("greyzone: remapping %s onto %s: both fields must be three-dimensional", f.Name, ref.Name)
	}
	zs, zd := verticalCoord(f), verticalCoord(ref)
	ys, xs := f.Horizontal()
	yd, xd := ref.Horizontal()
	for _, c := range []*Coord{zs, zd, ys, xs, yd, xd} {
		if c == nil {
			return nil, fmt.Errorf("greyzone: remapping %s onto %s: missing coordinate", f.Name, ref.Name)
		}
	}
	wz := axisWeights(zs.Points, zd.Points)
	wy := axisWeights(ys.Points, yd.Points)
	wx := axisWeights(xs.Points, xd.Points)

	out := regridded(f, ref.Dims, ref.Coords, ref.Aux)
	out.Data = sparse.ZerosDense(len(wz), len(wy), len(wx))
	src := f.Data
	for k, a := range wz {
		for j, b := range wy {
			for i, c := range wx {
				v := (1-a.w)*((1-b.w)*((1-c.w)*src.Get(a.i0, b.i0, c.i0)+c.w*src.Get(a.i0, b.i0, c.i1))+
					b.w*((1-c.w)*src.Get(a.i0, b.i1, c.i0)+c.w*src.Get(a.i0, b.i1, c.i1))) +
					a.w*((1-b.w)*((1-c.w)*src.Get(a.i1, b.i0, c.i0)+c.w*src.Get(a.i1, b.i0, c.i1))+
						b.w*((1-c.w)*src.Get(a.i1, b.i1, c.i0)+c.w*src.Get(a.i1, b.i1, c.i1)))
				out.Data.Set(v, k, j, i)
			}
		}
	}
	return out, nil
}

// regridded returns a copy of f's metadata on a new grid, without data.
func regridded(f *Field, dims []string, coords []*Coord, aux []AuxCoord) *Field {
	return &Field{
		Name:       f.Name,
		Units:      f.Units,
		Dims:       append([]string(nil), dims...),
		Coords:     append([]*Coord(nil), coords...),
		Aux:        append([]AuxCoord(nil), aux...),
		Time:       f.Time,
		TimeBounds: f.TimeBounds,
	}
}

// RegridHorizontal bilinearly interpolates the last two axes of f onto
// the y and x coordinates given, clamping at the edges. Auxiliary
// coordinates on the horizontal axes are dropped.
func RegridHorizontal(f *Field, y, x *Coord) (*Field, error) {
	n := f.NDim()
	if n < 2 {
		return nil, fmt.Errorf("greyzone: regridding %s: field has %d axes", f.Name, n)
	}
	ys, xs := f.Horizontal()
	if ys == nil || xs == nil {
		return nil, fmt.Errorf("greyzone: regridding %s: missing horizontal coordinate", f.Name)
	}
	wy := axisWeights(ys.Points, y.Points)
	wx := axisWeights(xs.Points, x.Points)

	coords := append([]*Coord(nil), f.Coords[:n-2]...)
	coords = append(coords, y, x)
	var aux []AuxCoord
	for _, a := range f.Aux {
		if a.Axis < n-2 {
			aux = append(aux, a)
		}
	}
	out := regridded(f, f.Dims, coords, aux)

	nz := 1
	if n == 3 {
		nz = f.Data.Shape[0]
		out.Data = sparse.ZerosDense(nz, len(wy), len(wx))
	} else {
		out.Data = sparse.ZerosDense(len(wy), len(wx))
	}
	nyo, nxo := len(wy), len(wx)
	nys, nxs := f.Data.Shape[n-2], f.Data.Shape[n-1]
	for k := 0; k < nz; k++ {
		src := f.Data.Elements[k*nys*nxs : (k+1)*nys*nxs]
		dst := out.Data.Elements[k*nyo*nxo : (k+1)*nyo*nxo]
		for j, b := range wy {
			for i, c := range wx {
				dst[j*nxo+i] = (1-b.w)*((1-c.w)*src[b.i0*nxs+c.i0]+c.w*src[b.i0*nxs+c.i1]) +
					b.w*((1-c.w)*src[b.i1*nxs+c.i0]+c.w*src[b.i1*nxs+c.i1])
			}
		}
	}
	return out, nil
}

// InterpolateLevels linearly interpolates the three-dimensional field f
// to the given values of the named coordinate, which must span f's
// first axis. Levels outside the coordinate's range are clamped.
func InterpolateLevels(f *Field, coord string, levels []float64) (*Field, error) {
	if f.NDim() != 3 {
		return nil, fmt.Errorf("greyzone: interpolating %s to %s levels: field is not three-dimensional", f.Name, coord)
	}
	c := f.Coord(coord)
	if c == nil || f.CoordAxis(coord) != 0 {
		return nil, fmt.Errorf("greyzone: interpolating %s: no %s coordinate on the vertical axis", f.Name, coord)
	}
	wz := axisWeights(c.Points, levels)
	coords := append([]*Coord{{Name: coord, Units: c.Units, Points: append([]float64(nil), levels...)}},
		f.Coords[1:]...)
	var aux []AuxCoord
	for _, a := range f.Aux {
		if a.Axis != 0 {
			aux = append(aux, a)
		}
	}
	dims := append([]string{coord}, f.Dims[1:]...)
	out := regridded(f, dims, coords, aux)
	ny, nx := f.Data.Shape[1], f.Data.Shape[2]
	out.Data = sparse.ZerosDense(len(levels), ny, nx)
	n := ny * nx
	for k, a := range wz {
		lo := f.Data.Elements[a.i0*n : (a.i0+1)*n]
		hi := f.Data.Elements[a.i1*n : (a.i1+1)*n]
		dst := out.Data.Elements[k*n : (k+1)*n]
		for i := range dst {
			dst[i] = (1-a.w)*lo[i] + a.w*hi[i]
		}
	}
	return out, nil
}

// Level returns the two-dimensional slice k of the three-dimensional
// field f.
func Level(f *Field, k int) (*Field, error) {
	if f.NDim() != 3 {
		return nil, fmt.Errorf("greyzone: taking level of %s: field is not three-dimensional", f.Name)
	}
	if k < 0 || k >= f.Data.Shape[0] {
		return nil, fmt.Errorf("greyzone: level %d of %s out of range", k, f.Name)
	}
	var aux []AuxCoord
	for _, a := range f.Aux {
		if a.Axis != 0 {
			aux = append(aux, AuxCoord{Coord: a.Coord, Axis: a.Axis - 1})
		}
	}
	out := regridded(f, f.Dims[1:], f.Coords[1:], aux)
	n := f.Data.Shape[1] * f.Data.Shape[2]
	out.Data = denseFrom(f.Data.Shape[1:], f.Data.Elements[k*n:(k+1)*n])
	return out, nil
}
