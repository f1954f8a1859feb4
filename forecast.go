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
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ForecastConfig holds everything needed to open one simulation.
type ForecastConfig struct {
	MappingConfig

	// Matcher overrides the time matching rule of the naming convention.
	Matcher TimeMatcher

	// Capacity is the number of snapshots kept in memory.
	Capacity int

	// DisableCorrection turns off coordinate renaming and regridding.
	DisableCorrection bool

	// Decoder defaults to an NCFDecoder reading from Fs.
	Decoder Decoder

	// Fs defaults to the operating system's file system.
	Fs afero.Fs

	Log logrus.FieldLogger
}

// Forecast is a cursor over the snapshots of one simulation. Moving the
// cursor loads the snapshot for the new time.
type Forecast struct {
	loader   *Loader
	log      logrus.FieldLogger
	current  time.Time
	snapshot *Snapshot
}

// NewForecast builds the file mapping for c and returns a cursor over
// it. No data is read until the cursor is moved.
func NewForecast(c ForecastConfig) (*Forecast, error) {
	m, err := NewMapping(c.MappingConfig)
	if err != nil {
		return nil, err
	}
	log := c.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	lc := LoaderConfig{
		Mapping:  m,
		Decoder:  c.Decoder,
		Matcher:  c.Matcher,
		Capacity: c.Capacity,
		Fs:       c.Fs,
		Log:      log,
	}
	if !c.DisableCorrection {
		lc.Corrector = NewCorrector(log)
	}
	l, err := NewLoader(lc)
	if err != nil {
		return nil, err
	}
	return &Forecast{loader: l, log: log}, nil
}

// NewForecastFromLoader returns a cursor over the times of l.
func NewForecastFromLoader(l *Loader, log logrus.FieldLogger) *Forecast {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Forecast{loader: l, log: log}
}

// Loader returns the loader behind f.
func (f *Forecast) Loader() *Loader { return f.loader }

// Mapping returns the file mapping of f.
func (f *Forecast) Mapping() *Mapping { return f.loader.Mapping() }

// StartTime returns the start time of the simulation.
func (f *Forecast) StartTime() time.Time { return f.loader.Mapping().StartTime() }

// Times returns the times of the simulation in ascending order.
func (f *Forecast) Times() []time.Time { return f.loader.Mapping().Times() }

// CurrentTime returns the time at the cursor, or the zero time if the
// cursor has not been moved.
func (f *Forecast) CurrentTime() time.Time { return f.current }

// LeadTime returns the time at the cursor relative to the start time.
func (f *Forecast) LeadTime() time.Duration {
	if f.current.IsZero() {
		return 0
	}
	return f.current.Sub(f.StartTime())
}

// Snapshot returns the snapshot at the cursor, or nil if the cursor
// has not been moved.
func (f *Forecast) Snapshot() *Snapshot { return f.snapshot }

// SetTime moves the cursor to t and returns the snapshot there. If the
// snapshot cannot be loaded the cursor does not move.
func (f *Forecast) SetTime(t time.Time) (*Snapshot, error) {
	s, err := f.loader.Load(t)
	if err != nil {
		return nil, err
	}
	f.current = t.UTC()
	f.snapshot = s
	return s, nil
}

// SetLeadTime moves the cursor to the given number of hours after the
// start time.
func (f *Forecast) SetLeadTime(hours int) (*Snapshot, error) {
	return f.SetTime(f.StartTime().Add(time.Duration(hours) * time.Hour))
}

// NextSnapshot moves a cursor to its next time and returns the
// snapshot there. It returns io.EOF once every time has been visited.
type NextSnapshot func() (*Snapshot, error)

// Iterate returns a function that visits every time of f in ascending
// order. An error loading one time does not stop the iteration: the
// next call moves on to the following time. Each call to Iterate
// starts again from the first time.
func (f *Forecast) Iterate() NextSnapshot {
	times := f.Times()
	i := 0
	return func() (*Snapshot, error) {
		if i >= len(times) {
			return nil, io.EOF
		}
		t := times[i]
		i++
		return f.SetTime(t)
	}
}

// Each calls fn with every snapshot of f in time order. It stops at
// the first error unless skipMissing is set, in which case snapshots
// whose data are unavailable are logged and skipped. Cancelling ctx
// stops the iteration between snapshots.
func (f *Forecast) Each(ctx context.Context, skipMissing bool, fn func(*Snapshot) error) error {
	next := f.Iterate()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s, err := next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if skipMissing && IsDataUnavailable(err) {
				f.log.WithError(err).Warn("skipping time")
				continue
			}
			return err
		}
		if err := fn(s); err != nil {
			return fmt.Errorf("greyzone: processing %s: %w", s.Time.Format(time.RFC3339), err)
		}
	}
}
