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
	"path"
	"sort"
	"strings"
	"time"
)

// StartTimeFormat is the layout of a simulation start time in file names.
const StartTimeFormat = "20060102T1504"

// Output types select which family of file naming conventions applies.
const (
	OutputDefault = "default"
	OutputRMED    = "rmed"
)

// Grids onto which simulation output may have been regridded.
const (
	CoarseGrid     = "coarse_grid"
	LagrangianGrid = "lagrangian_grid"
)

// Convention identifies a file naming convention.
type Convention int

// The supported naming conventions.
const (
	// RawOutput is per-lead-time model output, split over several
	// files whose names differ only in a prefix.
	RawOutput Convention = iota
	// Regridded is per-lead-time output already regridded onto a
	// common or Lagrangian grid.
	Regridded
	// PostProcessed is externally post-processed output where one file
	// holds 12 hourly lead times.
	PostProcessed
)

func (c Convention) String() string {
	switch c {
	case RawOutput:
		return "raw"
	case Regridded:
		return "regridded"
	case PostProcessed:
		return "post-processed"
	default:
		return fmt.Sprintf("Convention(%d)", int(c))
	}
}

// postProcessedStep is the number of lead-time hours held in one
// post-processed file.
const postProcessedStep = 12

// MappingConfig holds the information needed to construct the file
// mapping for one simulation.
type MappingConfig struct {
	// Path is prepended verbatim to every file name, so directories
	// need a trailing separator.
	Path string

	StartTime  time.Time
	Resolution string

	// Grid is empty for data on the native model grid.
	Grid string

	// LeadTimes are the requested lead times in hours.
	LeadTimes []int

	// OutputType is OutputDefault or OutputRMED; empty means OutputDefault.
	OutputType string

	// ModelSetup is the model configuration tag that appears in
	// post-processed file names.
	ModelSetup string
}

// DefaultLeadTimes returns every hour from 1 to 48.
func DefaultLeadTimes() []int {
	lt := make([]int, 48)
	for i := range lt {
		lt[i] = i + 1
	}
	return lt
}

// Convention returns the naming convention c selects.
func (c MappingConfig) Convention() (Convention, error) {
	switch strings.ToLower(c.OutputType) {
	case "", OutputDefault:
		switch c.Grid {
		case "":
			return RawOutput, nil
		case CoarseGrid, LagrangianGrid:
			return Regridded, nil
		default:
			return 0, &ConfigurationError{Option: "Grid",
				Reason: fmt.Sprintf("unknown grid %q; it should be empty, %s or %s", c.Grid, CoarseGrid, LagrangianGrid)}
		}
	case OutputRMED:
		if c.Grid != "" {
			return 0, &ConfigurationError{Option: "Grid",
				Reason: fmt.Sprintf("there is no %s file template for grid %q", OutputRMED, c.Grid)}
		}
		return PostProcessed, nil
	default:
		return 0, &ConfigurationError{Option: "OutputType",
			Reason: fmt.Sprintf("unknown output type %q; it should be %s or %s", c.OutputType, OutputDefault, OutputRMED)}
	}
}

// Mapping associates each valid time of a simulation with the files
// needed to construct the snapshot at that time. It is immutable once
// constructed.
type Mapping struct {
	start      time.Time
	convention Convention
	times      []time.Time
	files      map[int64][]string
}

// NewMapping computes the file mapping for the given configuration.
func NewMapping(c MappingConfig) (*Mapping, error) {
	conv, err := c.Convention()
	if err != nil {
		return nil, err
	}
	if len(c.LeadTimes) == 0 {
		return nil, &ConfigurationError{Option: "LeadTimes", Reason: "no lead times requested"}
	}
	if c.StartTime.IsZero() {
		return nil, &ConfigurationError{Option: "StartTime", Reason: "not specified"}
	}
	if conv != RawOutput && c.Resolution == "" {
		return nil, &ConfigurationError{Option: "Resolution",
			Reason: fmt.Sprintf("the %s file template needs a resolution", conv)}
	}
	if conv == PostProcessed && c.ModelSetup == "" {
		return nil, &ConfigurationError{Option: "ModelSetup",
			Reason: fmt.Sprintf("the %s file template needs a model setup", conv)}
	}

	m := &Mapping{
		start:      c.StartTime.UTC(),
		convention: conv,
		files:      make(map[int64][]string),
	}
	start := m.start.Format(StartTimeFormat)
	for _, dt := range c.LeadTimes {
		if dt < 0 {
			return nil, &ConfigurationError{Option: "LeadTimes",
				Reason: fmt.Sprintf("negative lead time %d", dt)}
		}
		t := m.start.Add(time.Duration(dt) * time.Hour)
		if _, ok := m.files[t.Unix()]; ok {
			continue
		}
		var files []string
		switch conv {
		case RawOutput:
			files = []string{c.Path + rawFileName(start, dt)}
		case Regridded:
			files = []string{c.Path + regriddedFileName(start, c.Resolution, c.Grid, dt)}
		case PostProcessed:
			dir := c.Path + c.Resolution + "/"
			g := postProcessedStep * (dt / postProcessedStep)
			files = []string{dir + postProcessedFileName(start, c.Resolution, c.ModelSetup, g)}
			if dt%postProcessedStep == 0 && dt-postProcessedStep >= 0 {
				files = append(files, dir+postProcessedFileName(start, c.Resolution, c.ModelSetup, dt-postProcessedStep))
			}
		}
		m.files[t.Unix()] = files
		m.times = append(m.times, t)
	}
	sort.Slice(m.times, func(i, j int) bool { return m.times[i].Before(m.times[j]) })
	return m, nil
}

// rawFileName matches model-variables_<start>_T+HH.nc,
// moisture-tracers_<start>_T+HH.nc and so on. Each file holds the hour
// ending at the lead time, so it is labelled with the previous hour.
func rawFileName(start string, dt int) string {
	lt := dt - 1
	if lt < 0 {
		lt = 0
	}
	return fmt.Sprintf("*_%s_T+%02d.nc", start, lt)
}

func regriddedFileName(start, resolution, grid string, dt int) string {
	return fmt.Sprintf("%s_%s_T+%02d_%s.nc", start, resolution, dt, grid)
}

func postProcessedFileName(start, resolution, setup string, g int) string {
	return fmt.Sprintf("%sZ_EUREC4A_ICfinal1km_%s_%s_pver*%03d.nc", start, resolution, setup, g)
}

// StartTime returns the simulation start time.
func (m *Mapping) StartTime() time.Time { return m.start }

// Convention returns the naming convention the mapping was built with.
func (m *Mapping) Convention() Convention { return m.convention }

// Times returns the mapped times in ascending order.
func (m *Mapping) Times() []time.Time { return append([]time.Time(nil), m.times...) }

// Len returns the number of mapped times.
func (m *Mapping) Len() int { return len(m.times) }

// Files returns the candidate files for time t. The returned names may
// be glob patterns.
func (m *Mapping) Files(t time.Time) ([]string, bool) {
	f, ok := m.files[t.Unix()]
	if !ok {
		return nil, false
	}
	return append([]string(nil), f...), true
}

// Contains reports whether t is one of the mapped times.
func (m *Mapping) Contains(t time.Time) bool {
	_, ok := m.files[t.Unix()]
	return ok
}

// LeadTimeLabel formats the lead time of t as used in output file names.
func (m *Mapping) LeadTimeLabel(t time.Time) string {
	return fmt.Sprintf("T+%02d", int(t.Sub(m.start)/time.Hour))
}

// OutputName builds an output file name in dir from a prefix and the
// run's identifying parts, for example
// domain_averages_20200201_km1p1_coarse_grid.nc.
func OutputName(dir, prefix string, start time.Time, resolution, grid string) string {
	parts := []string{prefix, start.UTC().Format("20060102"), resolution}
	if grid != "" {
		parts = append(parts, grid)
	}
	return path.Join(dir, strings.Join(parts, "_")+".nc")
}
