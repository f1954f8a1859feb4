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

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Scales is a field split into three additive parts of decreasing
// horizontal scale. LargeScale and Mesoscale are on the coarse grid and
// SmallScale is on the grid of the original field.
type Scales struct {
	LargeScale, Mesoscale, SmallScale *Field
}

// DecomposeScales splits the two- or three-dimensional field f into
// horizontal scales. The coarse field is the area-weighted mean of f
// over blocks of coarseFactor by coarseFactor cells; rows and columns
// that do not fill a whole block are left out of it. The large scale is
// the domain mean of f when largeScaleFactor is zero, or otherwise a
// median filter of size largeScaleFactor over the coarse field. The
// mesoscale is the coarse field minus the large scale and the small
// scale is f minus the coarse field mapped back to f's grid by nearest
// neighbour.
func DecomposeScales(f *Field, coarseFactor, largeScaleFactor int) (*Scales, error) {
	n := f.NDim()
	if n != 2 && n != 3 {
		return nil, fmt.Errorf("greyzone: decomposing %s: field has %d axes", f.Name, n)
	}
	if coarseFactor < 1 || largeScaleFactor < 0 {
		return nil, fmt.Errorf("greyzone: decomposing %s: invalid factors %d and %d",
			f.Name, coarseFactor, largeScaleFactor)
	}
	y, x := f.Horizontal()
	if y == nil || x == nil {
		return nil, fmt.Errorf("greyzone: decomposing %s: no horizontal coordinates", f.Name)
	}
	ny, nx := y.Len(), x.Len()
	cny, cnx := ny/coarseFactor, nx/coarseFactor
	if cny == 0 || cnx == 0 {
		return nil, fmt.Errorf("greyzone: decomposing %s: %dx%d grid is smaller than coarse factor %d",
			f.Name, ny, nx, coarseFactor)
	}
	cy, cx := coarsen(y, coarseFactor, cny), coarsen(x, coarseFactor, cnx)
	weights := AreaWeights(y, x, nil)
	nz := len(f.Data.Elements) / (ny * nx)

	coarseDims := append([]string(nil), f.Dims...)
	coarseDims[n-2] += "_coarse"
	coarseDims[n-1] += "_coarse"
	coarseCoords := append([]*Coord(nil), f.Coords...)
	coarseCoords[n-2], coarseCoords[n-1] = cy, cx
	var aux []AuxCoord
	if n == 3 {
		for _, a := range f.Aux {
			if a.Axis == 0 {
				aux = append(aux, a)
			}
		}
	}
	coarseShape := append(append([]int(nil), f.Data.Shape[:n-2]...), cny, cnx)
	newCoarse := func(suffix string) *Field {
		o := regridded(f, coarseDims, coarseCoords, aux)
		o.Name = f.Name + suffix
		o.Data = denseFrom(coarseShape, nil)
		return o
	}
	out := &Scales{
		LargeScale: newCoarse("_large_scale"),
		Mesoscale:  newCoarse("_mesoscale"),
		SmallScale: f.Copy(),
	}
	out.SmallScale.Name = f.Name + "_small_scale"

	block := make([]float64, 0, coarseFactor*coarseFactor)
	bw := make([]float64, 0, coarseFactor*coarseFactor)
	for k := 0; k < nz; k++ {
		level := f.Data.Elements[k*ny*nx : (k+1)*ny*nx]
		meso := out.Mesoscale.Data.Elements[k*cny*cnx : (k+1)*cny*cnx]
		for j := 0; j < cny; j++ {
			for i := 0; i < cnx; i++ {
				block, bw = block[:0], bw[:0]
				for jj := j * coarseFactor; jj < (j+1)*coarseFactor; jj++ {
					for ii := i * coarseFactor; ii < (i+1)*coarseFactor; ii++ {
						block = append(block, level[jj*nx+ii])
						bw = append(bw, weights[jj*nx+ii])
					}
				}
				meso[j*cnx+i] = stat.Mean(block, bw)
			}
		}

		small := out.SmallScale.Data.Elements[k*ny*nx : (k+1)*ny*nx]
		for jj := 0; jj < ny; jj++ {
			j := nearestBlock(jj, coarseFactor, cny)
			for ii := 0; ii < nx; ii++ {
				small[jj*nx+ii] = level[jj*nx+ii] - meso[j*cnx+nearestBlock(ii, coarseFactor, cnx)]
			}
		}

		large := out.LargeScale.Data.Elements[k*cny*cnx : (k+1)*cny*cnx]
		if largeScaleFactor == 0 {
			m := stat.Mean(level, nil)
			for i := range large {
				large[i] = m
			}
		} else {
			copy(large, medianFilter(meso, cny, cnx, largeScaleFactor))
		}
		floats.Sub(meso, large)
	}
	return out, nil
}

// coarsen returns the coordinate of blocks of factor cells of c.
func coarsen(c *Coord, factor, n int) *Coord {
	b := cellBounds(c)
	o := &Coord{Name: c.Name, Units: c.Units, Points: make([]float64, n), Bounds: make([][2]float64, n)}
	for i := range o.Points {
		o.Points[i] = stat.Mean(c.Points[i*factor:(i+1)*factor], nil)
		o.Bounds[i] = [2]float64{b[i*factor][0], b[(i+1)*factor-1][1]}
	}
	return o
}

// nearestBlock returns the block holding cell i, with cells past the
// last whole block assigned to it.
func nearestBlock(i, factor, n int) int {
	if b := i / factor; b < n {
		return b
	}
	return n - 1
}

// medianFilter returns the median of each size by size window of the
// ny by nx array a. Windows are reflected about the array edges.
func medianFilter(a []float64, ny, nx, size int) []float64 {
	out := make([]float64, len(a))
	win := make([]float64, 0, size*size)
	lo := size / 2
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			win = win[:0]
			for jj := j - lo; jj < j-lo+size; jj++ {
				for ii := i - lo; ii < i-lo+size; ii++ {
					win = append(win, a[mirror(jj, ny)*nx+mirror(ii, nx)])
				}
			}
			out[j*nx+i] = median(win)
		}
	}
	return out
}

// mirror maps i onto [0, n) by mirroring about the edges, repeating
// the edge value.
func mirror(i, n int) int {
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}

// median sorts x in place and returns its median.
func median(x []float64) float64 {
	sort.Float64s(x)
	m := len(x) / 2
	if len(x)%2 == 1 {
		return x[m]
	}
	return (x[m-1] + x[m]) / 2
}
