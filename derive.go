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
	"sort"

	"github.com/Knetic/govaluate"
)

// derivedFunctions are the functions available to derived field
// expressions.
var derivedFunctions = map[string]govaluate.ExpressionFunction{
	"exp":  unaryFunction("exp", math.Exp),
	"sqrt": unaryFunction("sqrt", math.Sqrt),
	"abs":  unaryFunction("abs", math.Abs),
	"log":  unaryFunction("log", math.Log),
}

func unaryFunction(name string, f func(float64) float64) govaluate.ExpressionFunction {
	return func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("greyzone: got %d arguments for function '%s', but needs 1", len(arg), name)
		}
		v, ok := arg[0].(float64)
		if !ok {
			return nil, fmt.Errorf("greyzone: argument to '%s' is %T, not a number", name, arg[0])
		}
		return f(v), nil
	}
}

// Derivation computes a new field from the fields of a snapshot.
type Derivation struct {
	Name string
	Expr string

	expr *govaluate.EvaluableExpression
	vars []string
}

// NewDerivations parses a map of field names to expressions such as
// "sqrt(x_wind**2 + y_wind**2)". Expressions may refer to other derived
// fields. The result is ordered so that every derivation comes after
// the ones it depends on.
func NewDerivations(exprs map[string]string) ([]*Derivation, error) {
	names := make([]string, 0, len(exprs))
	for name := range exprs {
		names = append(names, name)
	}
	sort.Strings(names)
	pending := make(map[string]*Derivation, len(names))
	for _, name := range names {
		e, err := govaluate.NewEvaluableExpressionWithFunctions(exprs[name], derivedFunctions)
		if err != nil {
			return nil, fmt.Errorf("greyzone: derived field %s: %v", name, err)
		}
		d := &Derivation{Name: name, Expr: exprs[name], expr: e, vars: uniqueStrings(e.Vars())}
		if len(d.vars) == 0 {
			return nil, fmt.Errorf("greyzone: derived field %s: expression %q uses no fields", name, d.Expr)
		}
		pending[name] = d
	}

	var ordered []*Derivation
	for len(pending) > 0 {
		progress := false
		for _, name := range names {
			d, ok := pending[name]
			if !ok {
				continue
			}
			ready := true
			for _, v := range d.vars {
				if _, waiting := pending[v]; waiting && v != d.Name {
					ready = false
					break
				}
			}
			if ready {
				ordered = append(ordered, d)
				delete(pending, name)
				progress = true
			}
		}
		if !progress {
			var cycle []string
			for _, name := range names {
				if _, ok := pending[name]; ok {
					cycle = append(cycle, name)
				}
			}
			return nil, fmt.Errorf("greyzone: derived fields %v depend on each other", cycle)
		}
	}
	return ordered, nil
}

func uniqueStrings(s []string) []string {
	seen := make(map[string]bool)
	var o []string
	for _, v := range s {
		if !seen[v] {
			seen[v] = true
			o = append(o, v)
		}
	}
	return o
}

// Vars returns the names of the fields that d uses.
func (d *Derivation) Vars() []string { return append([]string(nil), d.vars...) }

// Evaluate computes d cell by cell over the fields of s it refers to,
// which must all have the same shape. The result takes its grid and
// time from the first of them and has no units.
func (d *Derivation) Evaluate(s *Snapshot) (*Field, error) {
	inputs := make([]*Field, len(d.vars))
	for i, v := range d.vars {
		f, ok := s.Field(v)
		if !ok {
			return nil, fmt.Errorf("greyzone: derived field %s: no field %s", d.Name, v)
		}
		if i > 0 && !sameShape(f, inputs[0]) {
			return nil, fmt.Errorf("greyzone: derived field %s: %s has shape %v, %s has %v",
				d.Name, f.Name, f.Data.Shape, inputs[0].Name, inputs[0].Data.Shape)
		}
		inputs[i] = f
	}
	first := inputs[0]
	out := regridded(first, first.Dims, first.Coords, first.Aux)
	out.Name, out.Units = d.Name, ""
	out.Data = denseFrom(first.Data.Shape, nil)
	params := make(map[string]interface{}, len(inputs))
	for i := range out.Data.Elements {
		for _, f := range inputs {
			params[f.Name] = f.Data.Elements[i]
		}
		r, err := d.expr.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("greyzone: derived field %s: %v", d.Name, err)
		}
		v, ok := r.(float64)
		if !ok {
			return nil, fmt.Errorf("greyzone: derived field %s: expression gives %T, not a number", d.Name, r)
		}
		out.Data.Elements[i] = v
	}
	return out, nil
}

func sameShape(a, b *Field) bool {
	if len(a.Data.Shape) != len(b.Data.Shape) {
		return false
	}
	for i, n := range a.Data.Shape {
		if b.Data.Shape[i] != n {
			return false
		}
	}
	return true
}

// AddDerived evaluates ds in order and stores the results in s,
// replacing fields of the same name.
func AddDerived(s *Snapshot, ds []*Derivation) error {
	for _, d := range ds {
		f, err := d.Evaluate(s)
		if err != nil {
			return err
		}
		s.Replace(f)
	}
	return nil
}
