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
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func newTestForecast(t *testing.T, fs afero.Fs, c MappingConfig) *Forecast {
	t.Helper()
	f, err := NewForecast(ForecastConfig{MappingConfig: c, Fs: fs, Log: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestForecastIterate(t *testing.T) {
	fs, c := regriddedRun(t, 3, 1, 2)
	f := newTestForecast(t, fs, c)
	if !f.CurrentTime().IsZero() || f.Snapshot() != nil {
		t.Error("cursor set before first seek")
	}
	for pass := 0; pass < 2; pass++ {
		next := f.Iterate()
		var visited []time.Time
		for {
			s, err := next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatal(err)
			}
			if !f.CurrentTime().Equal(s.Time) {
				t.Errorf("current time %v, snapshot time %v", f.CurrentTime(), s.Time)
			}
			visited = append(visited, s.Time)
		}
		if len(visited) != 3 {
			t.Fatalf("pass %d visited %d times", pass, len(visited))
		}
		for i, tt := range visited {
			if want := testStart.Add(time.Duration(i+1) * time.Hour); !tt.Equal(want) {
				t.Errorf("pass %d step %d: %v, want %v", pass, i, tt, want)
			}
		}
		if _, err := next(); err != io.EOF {
			t.Errorf("iteration did not stay finished: %v", err)
		}
	}
}

func TestForecastSeek(t *testing.T) {
	fs, c := regriddedRun(t, 1, 2)
	f := newTestForecast(t, fs, c)
	s, err := f.SetLeadTime(2)
	if err != nil {
		t.Fatal(err)
	}
	if f.LeadTime() != 2*time.Hour || !f.CurrentTime().Equal(testStart.Add(2*time.Hour)) {
		t.Errorf("lead time %v current time %v", f.LeadTime(), f.CurrentTime())
	}
	s2, err := f.SetTime(testStart.Add(2 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if s != s2 {
		t.Error("SetTime and SetLeadTime loaded different snapshots")
	}
	if !f.StartTime().Equal(testStart) {
		t.Errorf("start time %v", f.StartTime())
	}

	if _, err := f.SetLeadTime(7); !errors.Is(err, ErrUnknownTime) {
		t.Errorf("want ErrUnknownTime, have %v", err)
	}
	if f.LeadTime() != 2*time.Hour || f.Snapshot() != s {
		t.Error("failed seek moved the cursor")
	}
}

func TestForecastEachSkipMissing(t *testing.T) {
	fs, c := regriddedRun(t, 1, 3)
	c.LeadTimes = []int{1, 2, 3}
	f := newTestForecast(t, fs, c)

	n := 0
	err := f.Each(context.Background(), false, func(*Snapshot) error { n++; return nil })
	if !IsDataUnavailable(err) {
		t.Fatalf("want DataUnavailableError, have %v", err)
	}

	n = 0
	if err := f.Each(context.Background(), true, func(*Snapshot) error { n++; return nil }); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("visited %d snapshots, want 2", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.Each(ctx, true, func(*Snapshot) error { return nil }); err != context.Canceled {
		t.Errorf("want context.Canceled, have %v", err)
	}
}
