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
	"github.com/sirupsen/logrus"
)

// Corrector reconciles the metadata of freshly decoded snapshots. It
// renames the ellipsoid height coordinate to altitude and interpolates
// three-dimensional fields that are on a staggered grid onto the grid
// of a reference field.
type Corrector struct {
	// Reference is the name of the field that defines the target grid.
	// It defaults to upward_air_velocity, which is on the mass levels
	// at the centre of the C-grid.
	Reference string

	Log logrus.FieldLogger
}

// NewCorrector returns a Corrector using the default reference field.
func NewCorrector(log logrus.FieldLogger) *Corrector {
	return &Corrector{Reference: VerticalVelocity, Log: log}
}

func (c *Corrector) logger() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

func (c *Corrector) reference() string {
	if c.Reference == "" {
		return VerticalVelocity
	}
	return c.Reference
}

// Applicable reports whether s carries height-level data that c can
// correct: the reference field with exactly one hybrid height
// coordinate. If not, the reason is returned.
func (c *Corrector) Applicable(s *Snapshot) (bool, string) {
	ref, ok := s.Field(c.reference())
	if !ok {
		return false, "no " + c.reference() + " field"
	}
	if ref.NDim() != 3 {
		return false, c.reference() + " is not three-dimensional"
	}
	if n := countCoords(ref, HybridHeight); n != 1 {
		return false, c.reference() + " does not have exactly one " + HybridHeight + " coordinate"
	}
	return true, ""
}

// Correct modifies s in place. Snapshots without height-level data are
// left untouched. Correcting a snapshot twice has the same effect as
// correcting it once.
func (c *Corrector) Correct(s *Snapshot) error {
	log := c.logger().WithField("time", s.Time)
	if ok, reason := c.Applicable(s); !ok {
		log.WithField("reason", reason).Debug("correction skipped")
		return nil
	}
	for _, f := range s.Fields() {
		if f.NDim() == 3 {
			renameCoord(f, EllipsoidHeight, Altitude)
		}
	}

	ref, _ := s.Field(c.reference())
	for _, f := range s.Fields() {
		if f == ref || f.NDim() != 3 || onGrid(f, ref) {
			continue
		}
		if f.CoordAxis(HybridHeight) != 0 {
			log.WithField("field", f.Name).Debug("not on height levels, not regridded")
			continue
		}
		g, err := Remap3D(f, ref)
		if err != nil {
			return err
		}
		log.WithField("field", f.Name).Debug("regridded onto reference grid")
		s.Replace(g)
	}
	return nil
}

// onGrid reports whether f shares the vertical and horizontal
// coordinates of ref.
func onGrid(f, ref *Field) bool {
	if !verticalCoord(f).Equal(verticalCoord(ref)) {
		return false
	}
	fy, fx := f.Horizontal()
	ry, rx := ref.Horizontal()
	return fy.Equal(ry) && fx.Equal(rx)
}

func countCoords(f *Field, name string) int {
	n := 0
	for _, c := range f.Coords {
		if c != nil && c.Name == name {
			n++
		}
	}
	for _, a := range f.Aux {
		if a.Name == name {
			n++
		}
	}
	return n
}

// renameCoord renames every coordinate of f called from.
func renameCoord(f *Field, from, to string) {
	for _, c := range f.Coords {
		if c != nil && c.Name == from {
			c.Name = to
		}
	}
	for _, a := range f.Aux {
		if a.Name == from {
			a.Name = to
		}
	}
}
