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
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/kr/pretty"
	"github.com/spf13/afero"
)

func TestNCFRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	tt := testStart.Add(3 * time.Hour)
	s := massGridSnapshot(tt)
	rain := newField("stratiform_rainfall_amount", "kg m-2", []string{"y", "x"},
		[]*Coord{lat(0, 1), lon(0, 1, 2)}, func(c ...float64) float64 { return c[0] * c[1] })
	rain.Time = tt.Add(-30 * time.Minute)
	rain.TimeBounds = [2]time.Time{tt.Add(-time.Hour), tt}
	if err := s.Add(rain); err != nil {
		t.Fatal(err)
	}
	writeSnapshot(t, fs, "out/test.nc", s)

	fields, err := NewNCFDecoder(fs).Decode("out/test.nc")
	if err != nil {
		t.Fatal(err)
	}
	have := NewSnapshot(tt, fields...)
	if !reflect.DeepEqual(have.Names(), s.Names()) {
		t.Fatal(pretty.Diff(have.Names(), s.Names()))
	}
	for _, want := range s.Fields() {
		f, _ := have.Field(want.Name)
		if f.Units != want.Units {
			t.Errorf("%s units: %s != %s", f.Name, f.Units, want.Units)
		}
		if !f.Time.Equal(want.Time) || f.TimeBounds != want.TimeBounds {
			t.Errorf("%s time: %v %v != %v %v", f.Name, f.Time, f.TimeBounds, want.Time, want.TimeBounds)
		}
		if !reflect.DeepEqual(f.Data.Shape, want.Data.Shape) {
			t.Fatalf("%s shape: %v != %v", f.Name, f.Data.Shape, want.Data.Shape)
		}
		for i, v := range want.Data.Elements {
			// Data are stored in single precision.
			if d := f.Data.Elements[i] - v; d > 1e-4*v || d < -1e-4*v {
				t.Errorf("%s element %d: %g != %g", f.Name, i, f.Data.Elements[i], v)
			}
		}
		for i, c := range want.Coords {
			if !f.Coords[i].Equal(c) {
				t.Errorf("%s coordinate %d: %v", f.Name, i, pretty.Diff(f.Coords[i], c))
			}
		}
		if len(f.Aux) != len(want.Aux) {
			t.Fatalf("%s has %d auxiliary coordinates, want %d", f.Name, len(f.Aux), len(want.Aux))
		}
		for i, a := range want.Aux {
			if !f.Aux[i].Equal(a.Coord) || f.Aux[i].Axis != a.Axis {
				t.Errorf("%s aux %d: %v", f.Name, i, pretty.Diff(f.Aux[i], a))
			}
		}
	}
}

func TestNCFDecodeMultipleRecords(t *testing.T) {
	fs := afero.NewMemMapFs()
	times := []time.Time{
		testStart.Add(30 * time.Minute),
		testStart.Add(90 * time.Minute),
		testStart.Add(150 * time.Minute),
	}
	var bounds [][2]time.Time
	for _, tt := range times {
		bounds = append(bounds, [2]time.Time{tt.Add(-30 * time.Minute), tt.Add(30 * time.Minute)})
	}
	writeRecords(t, fs, "rain.nc", "rainfall_amount", times, bounds, []float64{1, 2, 3})

	fields, err := NewNCFDecoder(fs).Decode("rain.nc")
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 3 {
		t.Fatalf("have %d records, want 3", len(fields))
	}
	for i, f := range fields {
		if f.Name != "rainfall_amount" {
			t.Errorf("name %s", f.Name)
		}
		if !f.Time.Equal(times[i]) {
			t.Errorf("record %d time %v, want %v", i, f.Time, times[i])
		}
		if f.TimeBounds != bounds[i] {
			t.Errorf("record %d bounds %v, want %v", i, f.TimeBounds, bounds[i])
		}
		if !reflect.DeepEqual(f.Data.Shape, []int{2, 2}) {
			t.Errorf("record %d shape %v", i, f.Data.Shape)
		}
		if f.Data.Sum() != 4*float64(i+1) {
			t.Errorf("record %d sum %g", i, f.Data.Sum())
		}
		if f.Coord(GridLatitude) == nil || f.Coord(GridLongitude) == nil {
			t.Errorf("record %d missing horizontal coordinates", i)
		}
	}
}

func TestNCFDecodeMissing(t *testing.T) {
	if _, err := NewNCFDecoder(afero.NewMemMapFs()).Decode("nothing.nc"); err == nil {
		t.Error("no error for missing file")
	}
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "bad.nc", []byte("not a netcdf file"), 0644)
	if _, err := NewNCFDecoder(fs).Decode("bad.nc"); err == nil {
		t.Error("no error for corrupt file")
	}
}

func TestParseTimeUnits(t *testing.T) {
	conv, err := parseTimeUnits("hours since 1970-01-01 00:00:00")
	if err != nil {
		t.Fatal(err)
	}
	if have := conv(hoursSinceEpoch(testStart)); !have.Equal(testStart) {
		t.Errorf("%v != %v", have, testStart)
	}
	conv, err = parseTimeUnits("seconds since 2020-02-01")
	if err != nil {
		t.Fatal(err)
	}
	if have := conv(3600); !have.Equal(testStart.Add(time.Hour)) {
		t.Errorf("%v", have)
	}
	if _, err := parseTimeUnits("fortnights since 2020-02-01"); err == nil {
		t.Error("no error for bad units")
	}
}

// flakyFs fails the first fails opens of any file that exists.
type flakyFs struct {
	afero.Fs
	fails, opens int
}

func (fs *flakyFs) Open(name string) (afero.File, error) {
	fs.opens++
	if ok, _ := afero.Exists(fs.Fs, name); ok && fs.opens <= fs.fails {
		return nil, &os.PathError{Op: "open", Path: name, Err: errors.New("stale file handle")}
	}
	return fs.Fs.Open(name)
}

func TestNCFDecoderRetry(t *testing.T) {
	mem := afero.NewMemMapFs()
	writeSnapshot(t, mem, "/data/s.nc", massGridSnapshot(testStart))

	fs := &flakyFs{Fs: mem, fails: 2}
	d := NewNCFDecoder(fs)
	if _, err := d.Decode("/data/s.nc"); err == nil {
		t.Fatal("no error without retries")
	}

	fs.opens = 0
	d.Retry = backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
	d.Log = testLogger()
	fields, err := d.Decode("/data/s.nc")
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 3 || fs.opens != 3 {
		t.Errorf("%d fields after %d opens", len(fields), fs.opens)
	}

	fs.opens = 0
	if _, err := d.Decode("/data/missing.nc"); !os.IsNotExist(err) {
		t.Errorf("have %v, want not exist", err)
	}
	if fs.opens != 1 {
		t.Errorf("missing file opened %d times", fs.opens)
	}
}
