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
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kr/pretty"
	"github.com/lnashier/viper"
	"github.com/lsaffin/greyzone"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func TestLoadConfig(t *testing.T) {
	os.Setenv("GREYZONE_TEST_DATA", "/scratch/eurec4a")
	defer os.Unsetenv("GREYZONE_TEST_DATA")

	cfg := viper.New()
	cfg.Set("Path", "$GREYZONE_TEST_DATA/")
	cfg.Set("StartTime", "2020-02-01T12:00")
	cfg.Set("Resolution", "km2p2")
	cfg.Set("OutputType", "rmed")
	cfg.Set("ModelSetup", "CoMorph")
	cfg.Set("LeadTimes", "[1, 2, 3]")
	cfg.Set("CacheSize", 2)
	cfg.Set("LogLevel", "debug")
	cfg.Set("OutputDir", "out")
	cfg.Set("DerivedFields", `{"speed": "sqrt(x_wind**2 + y_wind**2)"}`)
	cfg.Set("Fields", []string{"speed"})
	cfg.Set("CoarseFactor", 4)
	cfg.Set("QuicklookLevels", []interface{}{50, "300"})

	c, err := LoadConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		MappingConfig: greyzone.MappingConfig{
			Path:       "/scratch/eurec4a/",
			StartTime:  time.Date(2020, 2, 1, 12, 0, 0, 0, time.UTC),
			Resolution: "km2p2",
			LeadTimes:  []int{1, 2, 3},
			OutputType: "rmed",
			ModelSetup: "CoMorph",
		},
		CacheSize:       2,
		LogLevel:        logrus.DebugLevel,
		OutputDir:       "out",
		DerivedFields:   map[string]string{"speed": "sqrt(x_wind**2 + y_wind**2)"},
		Fields:          []string{"speed"},
		CoarseFactor:    4,
		QuicklookLevels: []float64{50, 300},
	}
	if !reflect.DeepEqual(c, want) {
		t.Errorf("config differs: %v", pretty.Diff(c, want))
	}
}

func TestLoadConfigErrors(t *testing.T) {
	base := map[string]interface{}{
		"Path":         "/data/",
		"StartTime":    "2020-02-01",
		"LeadTimes":    []int{1},
		"CacheSize":    1,
		"CoarseFactor": 4,
	}
	for _, test := range []struct {
		option string
		value  interface{}
	}{
		{option: "Path", value: ""},
		{option: "StartTime", value: "February"},
		{option: "LeadTimes", value: "[1, two]"},
		{option: "LeadTimes", value: []int{-1}},
		{option: "LogLevel", value: "loud"},
		{option: "DerivedFields", value: "{speed"},
		{option: "CacheSize", value: 0},
		{option: "ReadRetries", value: -2},
		{option: "CoarseFactor", value: 0},
		{option: "LargeScaleFactor", value: -1},
		{option: "Grid", value: "fine_grid"},
		{option: "OutputType", value: "pp"},
		{option: "TimeMatch", value: "nearest"},
	} {
		t.Run(test.option, func(t *testing.T) {
			cfg := viper.New()
			for k, v := range base {
				cfg.Set(k, v)
			}
			cfg.Set(test.option, test.value)
			_, err := LoadConfig(cfg)
			if err == nil {
				t.Fatalf("no error for %s = %v", test.option, test.value)
			}
			if ce, ok := err.(*greyzone.ConfigurationError); !ok || ce.Option != test.option {
				t.Errorf("have %#v, want a configuration error for %s", err, test.option)
			}
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := viper.New()
	cfg.Set("Path", "/data/")
	cfg.Set("StartTime", "20200201T0000")
	cfg.Set("CacheSize", 1)
	cfg.Set("CoarseFactor", 4)

	// Lead times default through the command-line flag only.
	_, err := LoadConfig(cfg)
	if ce, ok := err.(*greyzone.ConfigurationError); !ok || ce.Option != "LeadTimes" {
		t.Fatalf("have %v, want a configuration error for LeadTimes", err)
	}
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.IntSlice("LeadTimes", greyzone.DefaultLeadTimes(), "")
	if err := cfg.BindPFlag("LeadTimes", flags.Lookup("LeadTimes")); err != nil {
		t.Fatal(err)
	}

	c, err := LoadConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.LeadTimes) != 48 || c.LeadTimes[47] != 48 {
		t.Errorf("lead times %v", c.LeadTimes)
	}
	if c.LogLevel != logrus.InfoLevel {
		t.Errorf("log level %v", c.LogLevel)
	}
	if len(c.DerivedFields) != 0 || c.Fields != nil {
		t.Errorf("derived %v, fields %v", c.DerivedFields, c.Fields)
	}
}

func TestHistory(t *testing.T) {
	c := testConfig(t, nil)
	h1 := c.History("averages")
	c.Circle = true
	h2 := c.History("averages")
	if h1 == h2 {
		t.Errorf("history %q does not depend on the settings", h1)
	}
	if want := "greyzone v" + greyzone.Version + " averages: config "; h1[:len(want)] != want {
		t.Errorf("history %q", h1)
	}
}

func TestGetStringMapString(t *testing.T) {
	cfg := viper.New()
	for _, test := range []struct {
		value interface{}
		want  map[string]string
	}{
		{value: nil, want: map[string]string{}},
		{value: "", want: map[string]string{}},
		{value: `{"a": "b"}`, want: map[string]string{"a": "b"}},
		{value: map[string]interface{}{"a": "b"}, want: map[string]string{"a": "b"}},
		{value: map[string]string{"a": "b"}, want: map[string]string{"a": "b"}},
	} {
		cfg.Set("DerivedFields", test.value)
		have, err := GetStringMapString("DerivedFields", cfg)
		if err != nil {
			t.Errorf("%#v: %v", test.value, err)
			continue
		}
		if !reflect.DeepEqual(have, test.want) {
			t.Errorf("%#v: have %v, want %v", test.value, have, test.want)
		}
	}
	cfg.Set("DerivedFields", 3)
	if _, err := GetStringMapString("DerivedFields", cfg); err == nil {
		t.Error("no error for a number")
	}
}

func TestVersionCommand(t *testing.T) {
	b := new(bytes.Buffer)
	Root.SetOutput(b)
	defer Root.SetOutput(nil)
	Root.SetArgs([]string{"version"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if want := "greyzone v" + greyzone.Version + "\n"; b.String() != want {
		t.Errorf("have %q, want %q", b.String(), want)
	}
}

func TestPositionalArgs(t *testing.T) {
	b := new(bytes.Buffer)
	Root.SetOutput(b)
	defer Root.SetOutput(nil)
	Root.SetArgs([]string{"files", "/data/", "2020-02-01", "km1p1", greyzone.CoarseGrid, "--LeadTimes=1,2"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("output:\n%s", b.String())
	}
	if want := "/data/20200201T0000_km1p1_T+01_coarse_grid.nc"; !strings.HasSuffix(lines[1], want) {
		t.Errorf("have %q, want a line ending in %q", lines[1], want)
	}

	Root.SetArgs([]string{"files", "/data/", "2020-02-01", "km1p1", greyzone.CoarseGrid, "/out"})
	if err := Root.Execute(); err == nil {
		t.Error("no error for too many arguments")
	}
}
