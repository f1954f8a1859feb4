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
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/lnashier/viper"
	"github.com/lsaffin/greyzone"
	"github.com/lsaffin/greyzone/internal/hash"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cast"
)

// Config holds the checked settings of one run.
type Config struct {
	greyzone.MappingConfig

	TimeMatch    string
	CacheSize    int
	ReadRetries  int
	NoCorrection bool
	SkipMissing  bool
	LogLevel     logrus.Level

	OutputDir     string
	DerivedFields map[string]string

	// Settings of individual commands.
	Circle           bool
	Spreadsheet      bool
	Fields           []string
	CoarseFactor     int
	LargeScaleFactor int
	Trajectory       string
	QuicklookLevels  []float64
}

// startTimeLayouts are the accepted forms of the StartTime option.
var startTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	greyzone.StartTimeFormat,
	"2006-01-02",
}

func parseStartTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range startTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &greyzone.ConfigurationError{Option: "StartTime",
		Reason: fmt.Sprintf("cannot parse %q as a date and time", s)}
}

// LoadConfig reads and checks the options in cfg. Environment
// variables in paths are expanded.
func LoadConfig(cfg *viper.Viper) (*Config, error) {
	c := &Config{
		MappingConfig: greyzone.MappingConfig{
			Path:       os.ExpandEnv(cfg.GetString("Path")),
			Resolution: cfg.GetString("Resolution"),
			Grid:       cfg.GetString("Grid"),
			OutputType: cfg.GetString("OutputType"),
			ModelSetup: cfg.GetString("ModelSetup"),
		},
		TimeMatch:        cfg.GetString("TimeMatch"),
		CacheSize:        cfg.GetInt("CacheSize"),
		ReadRetries:      cfg.GetInt("ReadRetries"),
		NoCorrection:     cfg.GetBool("NoCorrection"),
		SkipMissing:      cfg.GetBool("skip-missing"),
		OutputDir:        os.ExpandEnv(cfg.GetString("OutputDir")),
		Circle:           cfg.GetBool("circle"),
		Spreadsheet:      cfg.GetBool("xlsx"),
		CoarseFactor:     cfg.GetInt("CoarseFactor"),
		LargeScaleFactor: cfg.GetInt("LargeScaleFactor"),
		Trajectory:       os.ExpandEnv(cfg.GetString("Trajectory")),
	}
	if c.Path == "" {
		return nil, &greyzone.ConfigurationError{Option: "Path", Reason: "no data directory given"}
	}
	var err error
	if c.StartTime, err = parseStartTime(cfg.GetString("StartTime")); err != nil {
		return nil, err
	}
	if c.LeadTimes, err = toIntSliceE(cfg.Get("LeadTimes")); err != nil {
		return nil, &greyzone.ConfigurationError{Option: "LeadTimes", Reason: err.Error()}
	}
	levels, err := toIntSliceE(cfg.Get("QuicklookLevels"))
	if err != nil {
		return nil, &greyzone.ConfigurationError{Option: "QuicklookLevels", Reason: err.Error()}
	}
	for _, l := range levels {
		c.QuicklookLevels = append(c.QuicklookLevels, float64(l))
	}
	level := cfg.GetString("LogLevel")
	if level == "" {
		level = "info"
	}
	if c.LogLevel, err = logrus.ParseLevel(level); err != nil {
		return nil, &greyzone.ConfigurationError{Option: "LogLevel", Reason: err.Error()}
	}
	if c.DerivedFields, err = GetStringMapString("DerivedFields", cfg); err != nil {
		return nil, &greyzone.ConfigurationError{Option: "DerivedFields", Reason: err.Error()}
	}
	if fields := cfg.Get("Fields"); fields != nil {
		if c.Fields, err = cast.ToStringSliceE(fields); err != nil {
			return nil, &greyzone.ConfigurationError{Option: "Fields", Reason: err.Error()}
		}
	}
	if c.CacheSize < 1 {
		return nil, &greyzone.ConfigurationError{Option: "CacheSize", Reason: "must be at least 1"}
	}
	if c.ReadRetries < 0 {
		return nil, &greyzone.ConfigurationError{Option: "ReadRetries", Reason: "must not be negative"}
	}
	if c.CoarseFactor < 1 {
		return nil, &greyzone.ConfigurationError{Option: "CoarseFactor", Reason: "must be at least 1"}
	}
	if c.LargeScaleFactor < 0 {
		return nil, &greyzone.ConfigurationError{Option: "LargeScaleFactor", Reason: "must not be negative"}
	}
	m, err := greyzone.NewMapping(c.MappingConfig)
	if err != nil {
		return nil, err
	}
	if _, err := greyzone.ParseMatcher(c.TimeMatch, m.Convention()); err != nil {
		return nil, err
	}
	return c, nil
}

// Forecast opens the simulation described by c.
func (c *Config) Forecast(fs afero.Fs, log logrus.FieldLogger) (*greyzone.Forecast, error) {
	conv, err := c.MappingConfig.Convention()
	if err != nil {
		return nil, err
	}
	m, err := greyzone.ParseMatcher(c.TimeMatch, conv)
	if err != nil {
		return nil, err
	}
	fc := greyzone.ForecastConfig{
		MappingConfig:     c.MappingConfig,
		Matcher:           m,
		Capacity:          c.CacheSize,
		DisableCorrection: c.NoCorrection,
		Fs:                fs,
		Log:               log,
	}
	if c.ReadRetries > 0 {
		fc.Decoder = &greyzone.NCFDecoder{
			Fs:    fs,
			Retry: backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.ReadRetries)),
			Log:   log,
		}
	}
	return greyzone.NewForecast(fc)
}

// History returns a description of the run for the history attribute
// of output files.
func (c *Config) History(command string) string {
	return fmt.Sprintf("greyzone v%s %s: config %s", greyzone.Version, command, hash.Short(c, 12))
}

// NewLogger returns a logger writing text with full timestamps at the
// given level.
func NewLogger(level logrus.Level) *logrus.Logger {
	log := logrus.New()
	log.SetLevel(level)
	log.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
		DisableSorting:  true,
	}
	return log
}

func toIntSliceE(s interface{}) ([]int, error) {
	switch v := s.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		o := make([]int, len(v))
		for i, val := range v {
			n, err := cast.ToIntE(val)
			if err != nil {
				return nil, err
			}
			o[i] = n
		}
		return o, nil
	case string:
		var o []int
		if err := json.Unmarshal([]byte(v), &o); err != nil {
			return nil, err
		}
		return o, nil
	}
	return cast.ToIntSliceE(s)
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if strings.TrimSpace(v) == "" {
			return o, nil
		}
		if err := json.NewDecoder(bytes.NewBufferString(v)).Decode(&o); err != nil {
			return nil, err
		}
		return o, nil
	default:
		return nil, fmt.Errorf("invalid type for variable %s: %#v", varName, i)
	}
}
