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

// Package greyzone reads the output of the EUREC4A grey-zone
// simulations as a sequence of snapshots, one per forecast lead time.
//
// A Mapping gives the files that hold the data for each time, a Loader
// decodes and caches the fields valid at a time, a Corrector puts
// fields on a common vertical grid, and a Forecast is a cursor that
// moves through the times of one simulation. The rest of the package
// computes diagnostics from snapshots: domain and circle averages,
// scale decompositions, column integrals, Lagrangian subdomains and
// quicklook images.
package greyzone

// Version gives the version number.
const Version = "0.3.0"
