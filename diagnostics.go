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

	"github.com/ctessum/unit"
)

// TotalColumnWater is the name of the field returned by TotalColumn.
const TotalColumnWater = "total_column_water"

// WaterSpecies are the mass fractions summed by TotalColumn when no
// names are given. Species missing from a snapshot are skipped.
var WaterSpecies = []string{
	"specific_humidity",
	"mass_fraction_of_cloud_liquid_water_in_air",
	"mass_fraction_of_cloud_ice_in_air",
	"mass_fraction_of_rain_in_air",
	"mass_fraction_of_graupel_in_air",
}

// heightCoord returns the coordinate on the vertical axis of f that
// gives layer heights in metres.
func heightCoord(f *Field) *Coord {
	for _, name := range []string{Altitude, HybridHeight} {
		if f.CoordAxis(name) == 0 {
			return f.Coord(name)
		}
	}
	return nil
}

// TotalColumn integrates the named mass fractions in s, multiplied by
// air density, over the thickness of each model layer. Every named
// field must be present and on the air density grid. With no names,
// the WaterSpecies present in s are used. The units of the result are
// checked to be kg m-2.
func TotalColumn(s *Snapshot, names ...string) (*Field, error) {
	rho, ok := s.Field(AirDensity)
	if !ok {
		return nil, fmt.Errorf("greyzone: total column: no %s field", AirDensity)
	}
	if rho.NDim() != 3 {
		return nil, fmt.Errorf("greyzone: total column: %s has %d axes", AirDensity, rho.NDim())
	}
	z := heightCoord(rho)
	if z == nil {
		return nil, fmt.Errorf("greyzone: total column: %s has no height coordinate", AirDensity)
	}
	rhoDims, err := rho.Dimensions()
	if err != nil {
		return nil, err
	}

	required := len(names) > 0
	if !required {
		names = WaterSpecies
	}
	var species []*Field
	for _, name := range names {
		f, ok := s.Field(name)
		if !ok {
			if required {
				return nil, fmt.Errorf("greyzone: total column: no %s field", name)
			}
			continue
		}
		if !f.sameGrid(rho) {
			return nil, fmt.Errorf("greyzone: total column: %s is not on the %s grid", name, AirDensity)
		}
		d, err := f.Dimensions()
		if err != nil {
			return nil, err
		}
		col := unit.Mul(unit.New(1, d), unit.New(1, rhoDims), unit.New(1, unit.Meter))
		if err := col.Check(KilogramPerMeter2); err != nil {
			return nil, fmt.Errorf("greyzone: total column of %s: %v", name, err)
		}
		species = append(species, f)
	}
	if len(species) == 0 {
		return nil, fmt.Errorf("greyzone: total column: none of %v present", names)
	}

	bounds := cellBounds(z)
	ny, nx := rho.Data.Shape[1], rho.Data.Shape[2]
	n := ny * nx
	out := regridded(rho, rho.Dims[1:], rho.Coords[1:], nil)
	out.Name, out.Units = TotalColumnWater, "kg m-2"
	out.Data = denseFrom([]int{ny, nx}, nil)
	for _, a := range rho.Aux {
		if a.Axis > 0 {
			out.Aux = append(out.Aux, AuxCoord{Coord: a.Coord, Axis: a.Axis - 1})
		}
	}
	for k, b := range bounds {
		dz := b[1] - b[0]
		if k == 0 && b[0] < 0 {
			dz = b[1]
		}
		for _, f := range species {
			q := f.Data.Elements[k*n : (k+1)*n]
			r := rho.Data.Elements[k*n : (k+1)*n]
			for i := range out.Data.Elements {
				out.Data.Elements[i] += q[i] * r[i] * dz
			}
		}
	}
	return out, nil
}
