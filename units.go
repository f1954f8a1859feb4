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
	"strconv"
	"strings"
	"unicode"

	"github.com/ctessum/unit"
)

// KilogramPerMeter2 is the dimension of a column-integrated mass.
var KilogramPerMeter2 = unit.Dimensions{unit.MassDim: 1, unit.LengthDim: -2}

// derivedUnits maps unit symbols that are not SI base units to their
// dimensions.
var derivedUnits = map[string]unit.Dimensions{
	"Pa":            {unit.MassDim: 1, unit.LengthDim: -1, unit.TimeDim: -2},
	"J":             {unit.MassDim: 1, unit.LengthDim: 2, unit.TimeDim: -2},
	"W":             {unit.MassDim: 1, unit.LengthDim: 2, unit.TimeDim: -3},
	"N":             {unit.MassDim: 1, unit.LengthDim: 1, unit.TimeDim: -2},
	"g":             {unit.MassDim: 1},
	"h":             {unit.TimeDim: 1},
	"hour":          {unit.TimeDim: 1},
	"hours":         {unit.TimeDim: 1},
	"min":           {unit.TimeDim: 1},
	"degree":        {unit.AngleDim: 1},
	"degrees":       {unit.AngleDim: 1},
	"degrees_north": {unit.AngleDim: 1},
	"degrees_east":  {unit.AngleDim: 1},
	"1":             {},
	"-":             {},
	"%":             {},
}

var baseUnits = map[string]unit.Dimension{
	"A":   unit.CurrentDim,
	"m":   unit.LengthDim,
	"cd":  unit.LuminousIntensityDim,
	"kg":  unit.MassDim,
	"K":   unit.TemperatureDim,
	"s":   unit.TimeDim,
	"rad": unit.AngleDim,
}

// SI prefixes that may precede a unit symbol. The scale they imply is
// irrelevant to the dimensions and is dropped.
var prefixes = []string{"da", "k", "h", "d", "c", "m", "u", "μ", "n", "M", "G"}

// ParseUnits converts a CF-style unit string such as "kg m-2 s-1" or
// "m.s-1" into its physical dimensions. An empty string is
// dimensionless.
func ParseUnits(s string) (unit.Dimensions, error) {
	d := make(unit.Dimensions)
	s = strings.TrimSpace(s)
	if s == "" {
		return d, nil
	}
	tokens := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == '.' || r == '*' })
	for _, tok := range tokens {
		sym, pow, err := splitPower(tok)
		if err != nil {
			return nil, fmt.Errorf("unit %q: %w", s, err)
		}
		td, ok := lookupSymbol(sym)
		if !ok {
			return nil, fmt.Errorf("unit %q: unknown symbol %q", s, sym)
		}
		for dim, p := range td {
			d[dim] += p * pow
			if d[dim] == 0 {
				delete(d, dim)
			}
		}
	}
	return d, nil
}

// splitPower splits a token like "m-2" into its symbol and exponent.
func splitPower(tok string) (string, int, error) {
	i := len(tok)
	for i > 0 {
		r := rune(tok[i-1])
		if !unicode.IsDigit(r) && r != '-' && r != '+' && r != '^' {
			break
		}
		i--
	}
	sym, exp := tok[:i], strings.TrimPrefix(tok[i:], "^")
	if sym == "" {
		// A bare number such as "1".
		return tok, 1, nil
	}
	if exp == "" {
		return sym, 1, nil
	}
	pow, err := strconv.Atoi(exp)
	if err != nil {
		return "", 0, fmt.Errorf("bad exponent in %q", tok)
	}
	return sym, pow, nil
}

func lookupSymbol(sym string) (unit.Dimensions, bool) {
	if d, ok := derivedUnits[sym]; ok {
		return d, true
	}
	if d, ok := baseUnits[sym]; ok {
		return unit.Dimensions{d: 1}, true
	}
	for _, p := range prefixes {
		rest := strings.TrimPrefix(sym, p)
		if rest == sym || rest == "" {
			continue
		}
		if d, ok := derivedUnits[rest]; ok {
			return d, true
		}
		if d, ok := baseUnits[rest]; ok {
			return unit.Dimensions{d: 1}, true
		}
	}
	return nil, false
}
