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

package greyzoneutil

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/lsaffin/greyzone"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// leadHours returns the whole number of hours from start to t.
func leadHours(start, t time.Time) int { return int(t.Sub(start) / time.Hour) }

// Files writes the time, lead time and candidate files of every entry
// in the file mapping of c to w.
func Files(w io.Writer, c *Config) error {
	m, err := greyzone.NewMapping(c.MappingConfig)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# %s convention, start %s\n", m.Convention(), m.StartTime().Format(time.RFC3339))
	for _, t := range m.Times() {
		files, _ := m.Files(t)
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", t.Format(time.RFC3339), m.LeadTimeLabel(t),
			strings.Join(files, " ")); err != nil {
			return err
		}
	}
	return nil
}

// withDerived returns s with the derived fields of c added. s itself is
// cloned first so that cached snapshots are left as they were loaded.
func withDerived(s *greyzone.Snapshot, ds []*greyzone.Derivation) (*greyzone.Snapshot, error) {
	if len(ds) == 0 {
		return s, nil
	}
	s = s.Clone()
	if err := greyzone.AddDerived(s, ds); err != nil {
		return nil, err
	}
	return s, nil
}

// Averages computes the domain averages, or the averages over the
// EUREC4A circle if c.Circle is set, of every field at every lead time
// and writes them to a single file, whose name it returns. If
// c.Spreadsheet is set the averages of two-dimensional fields are also
// written next to it as a spreadsheet.
func Averages(ctx context.Context, c *Config, fs afero.Fs, log logrus.FieldLogger) (string, error) {
	f, err := c.Forecast(fs, log)
	if err != nil {
		return "", err
	}
	ds, err := greyzone.NewDerivations(c.DerivedFields)
	if err != nil {
		return "", err
	}
	a := new(greyzone.DomainAverager)
	prefix := "domain_averages"
	if c.Circle {
		a.Circle = &greyzone.EUREC4ACircle
		prefix = "circle_averages"
	}
	var n int
	err = f.Each(ctx, c.SkipMissing, func(s *greyzone.Snapshot) error {
		log.WithFields(logrus.Fields{"time": s.Time, "fields": s.Len()}).Info("averaging")
		s, err := withDerived(s, ds)
		if err != nil {
			return err
		}
		n++
		return a.Add(s)
	})
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", fmt.Errorf("greyzone: no data to average")
	}
	out := greyzone.OutputName(c.OutputDir, prefix, c.StartTime, c.Resolution, c.Grid)
	attrs := map[string]string{"history": c.History(prefix)}
	if err := greyzone.WriteNCFFile(fs, out, attrs, a.Fields()...); err != nil {
		return "", err
	}
	log.WithField("path", out).Info("saved averages")
	if c.Spreadsheet {
		name := strings.TrimSuffix(out, ".nc") + ".xlsx"
		w, err := fs.Create(name)
		if err != nil {
			return "", err
		}
		if err := a.WriteXLSX(w); err != nil {
			w.Close()
			return "", err
		}
		if err := w.Close(); err != nil {
			return "", err
		}
		log.WithField("path", name).Info("saved averages table")
	}
	return out, nil
}

// DecomposeOutputName returns the file that the scale decomposition at
// the given lead time is saved to.
func DecomposeOutputName(dir string, start time.Time, resolution string, leadTime int) string {
	return path.Join(dir, fmt.Sprintf("%s_%s_T+%02d_scale_decomposition.nc",
		start.UTC().Format(greyzone.StartTimeFormat), resolution, leadTime))
}

// Decompose splits the fields named in c.Fields into large, meso and
// small scales at every lead time. Total column water is computed from
// the snapshot when it is asked for and not present.
func Decompose(ctx context.Context, c *Config, fs afero.Fs, log logrus.FieldLogger) ([]string, error) {
	f, err := c.Forecast(fs, log)
	if err != nil {
		return nil, err
	}
	ds, err := greyzone.NewDerivations(c.DerivedFields)
	if err != nil {
		return nil, err
	}
	names := c.Fields
	if len(names) == 0 {
		names = []string{greyzone.TotalColumnWater}
	}
	var files []string
	err = f.Each(ctx, c.SkipMissing, func(s *greyzone.Snapshot) error {
		s, err := withDerived(s, ds)
		if err != nil {
			return err
		}
		var out []*greyzone.Field
		for _, name := range names {
			field, ok := s.Field(name)
			if !ok && name == greyzone.TotalColumnWater {
				field, err = greyzone.TotalColumn(s)
				if err != nil {
					return err
				}
				ok = true
			}
			if !ok {
				return fmt.Errorf("greyzone: no field %s at %v", name, s.Time)
			}
			scales, err := greyzone.DecomposeScales(field, c.CoarseFactor, c.LargeScaleFactor)
			if err != nil {
				return err
			}
			out = append(out, scales.LargeScale, scales.Mesoscale, scales.SmallScale)
		}
		name := DecomposeOutputName(c.OutputDir, c.StartTime, c.Resolution, leadHours(c.StartTime, s.Time))
		if err := greyzone.WriteNCFFile(fs, name, map[string]string{"history": c.History("decompose")}, out...); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"time": s.Time, "path": name}).Info("saved scale decomposition")
		files = append(files, name)
		return nil
	})
	return files, err
}

// Lagrangian extracts the grid that follows the trajectory in
// c.Trajectory at each of its times and saves one file per time.
func Lagrangian(ctx context.Context, c *Config, fs afero.Fs, log logrus.FieldLogger) ([]string, error) {
	if c.Trajectory == "" {
		return nil, &greyzone.ConfigurationError{Option: "Trajectory", Reason: "no trajectory file given"}
	}
	r, err := fs.Open(c.Trajectory)
	if err != nil {
		return nil, err
	}
	tr, err := greyzone.LoadTrajectory(r)
	r.Close()
	if err != nil {
		return nil, err
	}
	f, err := c.Forecast(fs, log)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, t := range tr.Times() {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		if !f.Mapping().Contains(t) {
			log.WithField("time", t).Info("skipping trajectory time that is not a requested lead time")
			continue
		}
		s, err := f.SetTime(t)
		if err != nil {
			if c.SkipMissing && greyzone.IsDataUnavailable(err) {
				log.WithError(err).WithField("time", t).Warn("skipping missing data")
				continue
			}
			return files, err
		}
		ls, err := tr.Lagrangian(s)
		if err != nil {
			return files, err
		}
		name := greyzone.LagrangianOutputName(c.OutputDir, c.StartTime, c.Resolution, leadHours(c.StartTime, t))
		if err := greyzone.WriteNCFFile(fs, name, map[string]string{"history": c.History("lagrangian")}, ls.Fields()...); err != nil {
			return files, err
		}
		log.WithFields(logrus.Fields{"time": t, "path": name}).Info("saved Lagrangian grid")
		files = append(files, name)
	}
	return files, nil
}

// Quicklook draws heat maps of every field at every lead time.
func Quicklook(ctx context.Context, c *Config, fs afero.Fs, log logrus.FieldLogger) ([]string, error) {
	f, err := c.Forecast(fs, log)
	if err != nil {
		return nil, err
	}
	ds, err := greyzone.NewDerivations(c.DerivedFields)
	if err != nil {
		return nil, err
	}
	q := greyzone.NewQuicklook(fs, c.OutputDir)
	if len(c.QuicklookLevels) > 0 {
		q.Levels = c.QuicklookLevels
	}
	var files []string
	err = f.Each(ctx, c.SkipMissing, func(s *greyzone.Snapshot) error {
		s, err := withDerived(s, ds)
		if err != nil {
			return err
		}
		written, err := q.Plot(s, leadHours(c.StartTime, s.Time))
		files = append(files, written...)
		log.WithFields(logrus.Fields{"time": s.Time, "images": len(written)}).Info("plotted")
		return err
	})
	return files, err
}
