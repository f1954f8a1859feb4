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

// Package greyzoneutil contains the command-line interface to the
// greyzone package.
package greyzoneutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/lnashier/viper"
	"github.com/lsaffin/greyzone"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

// Fs is the file system that commands read from and write to.
var Fs afero.Fs = afero.NewOsFs()

type option struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

var options []option

func init() {
	// Flag sets of all the commands that open a forecast.
	forecastFlags := []*pflag.FlagSet{filesCmd.Flags(), averagesCmd.Flags(), decomposeCmd.Flags(),
		lagrangianCmd.Flags(), quicklookCmd.Flags()}
	outputFlags := forecastFlags[1:]

	options = []option{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of log messages to print:
              debug, info, warning or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "skip-missing",
			usage: `
              skip-missing specifies whether lead times whose data files are
              missing or unreadable are skipped with a warning instead of
              stopping the command.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Path",
			usage: `
              Path is the directory holding the simulation output. It may
              contain environment variables.`,
			defaultVal: "",
			flagsets:   forecastFlags,
		},
		{
			name: "StartTime",
			usage: `
              StartTime is the initialisation time of the forecast, for
              example 2020-02-01 or 2020-02-01T12:00.`,
			defaultVal: "",
			flagsets:   forecastFlags,
		},
		{
			name: "Resolution",
			usage: `
              Resolution is the label of the model resolution in the file
              names, for example km1p1. Leave it empty for raw model output.`,
			defaultVal: "",
			flagsets:   forecastFlags,
		},
		{
			name: "Grid",
			usage: `
              Grid is the target grid of regridded output: coarse_grid or
              lagrangian_grid.`,
			defaultVal: "",
			flagsets:   forecastFlags,
		},
		{
			name: "LeadTimes",
			usage: `
              LeadTimes is the list of forecast lead times in hours.`,
			defaultVal: greyzone.DefaultLeadTimes(),
			flagsets:   forecastFlags,
		},
		{
			name: "OutputType",
			usage: `
              OutputType selects the post-processed naming convention when
              set to rmed.`,
			defaultVal: "",
			flagsets:   forecastFlags,
		},
		{
			name: "ModelSetup",
			usage: `
              ModelSetup is the model configuration label in post-processed
              file names, for example CoMorph.`,
			defaultVal: "",
			flagsets:   forecastFlags,
		},
		{
			name: "TimeMatch",
			usage: `
              TimeMatch overrides how records in a file are matched to the
              requested time: exact or hour. By default post-processed output
              matches on the hour and everything else exactly.`,
			defaultVal: "",
			flagsets:   forecastFlags,
		},
		{
			name: "CacheSize",
			usage: `
              CacheSize is the number of lead times kept in memory.`,
			defaultVal: 1,
			flagsets:   forecastFlags,
		},
		{
			name: "ReadRetries",
			usage: `
              ReadRetries is the number of times to retry opening a data file
              that exists but cannot be opened, waiting longer each time.`,
			defaultVal: 0,
			flagsets:   forecastFlags,
		},
		{
			name: "NoCorrection",
			usage: `
              NoCorrection turns off renaming of height coordinates and
              regridding of staggered fields onto the vertical velocity grid.`,
			defaultVal: false,
			flagsets:   forecastFlags,
		},
		{
			name: "OutputDir",
			usage: `
              OutputDir is the directory output files are written to.`,
			defaultVal: ".",
			flagsets:   outputFlags,
		},
		{
			name: "DerivedFields",
			usage: `
              DerivedFields maps names of new fields to expressions of
              existing ones, for example {"speed": "sqrt(x_wind**2 + y_wind**2)"}.
              The functions exp, sqrt, abs and log are available.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{averagesCmd.Flags(), decomposeCmd.Flags(), quicklookCmd.Flags()},
		},
		{
			name: "circle",
			usage: `
              circle restricts the averages to the EUREC4A circle.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{averagesCmd.Flags()},
		},
		{
			name: "xlsx",
			usage: `
              xlsx also saves the averages of two-dimensional fields as a
              spreadsheet with the same name as the NetCDF output.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{averagesCmd.Flags()},
		},
		{
			name: "Fields",
			usage: `
              Fields are the names of the fields to decompose.`,
			defaultVal: []string{greyzone.TotalColumnWater},
			flagsets:   []*pflag.FlagSet{decomposeCmd.Flags()},
		},
		{
			name: "CoarseFactor",
			usage: `
              CoarseFactor is the number of grid cells along each side of
              the blocks averaged to give the mesoscale field.`,
			defaultVal: 4,
			flagsets:   []*pflag.FlagSet{decomposeCmd.Flags()},
		},
		{
			name: "LargeScaleFactor",
			usage: `
              LargeScaleFactor is the size of the median filter applied to
              the mesoscale field to give the large scale. Zero uses the
              domain mean instead.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{decomposeCmd.Flags()},
		},
		{
			name: "Trajectory",
			usage: `
              Trajectory is the TOML file holding the trajectory and the
              initial grid to extract along it.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{lagrangianCmd.Flags()},
		},
		{
			name: "QuicklookLevels",
			usage: `
              QuicklookLevels are the altitudes in metres that
              three-dimensional fields are plotted at.`,
			defaultVal: []int{50, 300, 500, 1000, 1500, 2000, 3000, 4000},
			flagsets:   []*pflag.FlagSet{quicklookCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("GREYZONE")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // The flag is created once and shared.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case []int:
				set.IntSliceP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			case map[string]string:
				b := bytes.NewBuffer(nil)
				json.NewEncoder(b).Encode(v)
				set.StringP(option.name, option.shorthand, b.String(), option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}

	Root.AddCommand(versionCmd)
	Root.AddCommand(filesCmd)
	Root.AddCommand(averagesCmd)
	Root.AddCommand(decomposeCmd)
	Root.AddCommand(lagrangianCmd)
	Root.AddCommand(quicklookCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("greyzone: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// positional lists, in order, the options that the forecast commands
// also accept as positional arguments.
var positional = []string{"Path", "StartTime", "Resolution", "Grid", "OutputDir"}

// setup sets the options given as positional arguments, then loads the
// configuration and returns it with a logger at the configured level.
func setup(args []string) (*Config, *logrus.Logger, error) {
	for i, arg := range args {
		Cfg.Set(positional[i], arg)
	}
	c, err := LoadConfig(Cfg)
	if err != nil {
		return nil, nil, err
	}
	return c, NewLogger(c.LogLevel), nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "greyzone",
	Short: "Tools for the EUREC4A grey-zone simulations.",
	Long: `greyzone reads the output of the EUREC4A grey-zone simulations lead time by
lead time and computes diagnostics from it. Use the subcommands specified below
to access the functionality.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'GREYZONE_var' where 'var' is
the name of the variable to be set. Paths may contain environment variables.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of greyzone.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("greyzone v%s\n", greyzone.Version)
	},
	DisableAutoGenTag: true,
}

var filesCmd = &cobra.Command{
	Use:   "files [path [start-time [resolution [grid]]]]",
	Short: "List the files read at each lead time",
	Long: `files prints, for each lead time of the configured forecast, the valid time
and the files or file patterns that data for it is read from.`,
	Args: cobra.RangeArgs(0, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := setup(args)
		if err != nil {
			return err
		}
		return Files(cmd.OutOrStdout(), c)
	},
	DisableAutoGenTag: true,
}

var averagesCmd = &cobra.Command{
	Use:   "averages [path [start-time [resolution [grid [output-dir]]]]]",
	Short: "Compute domain or circle averages",
	Long: `averages computes the area-weighted horizontal mean and standard deviation
of every field at every lead time and saves them as time series to
OutputDir/domain_averages_YYYYMMDD_resolution_grid.nc, or to
circle_averages_... when --circle is set.`,
	Args: cobra.RangeArgs(0, 5),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, log, err := setup(args)
		if err != nil {
			return err
		}
		_, err = Averages(context.Background(), c, Fs, log)
		return err
	},
	DisableAutoGenTag: true,
}

var decomposeCmd = &cobra.Command{
	Use:   "decompose [path [start-time [resolution [grid [output-dir]]]]]",
	Short: "Split fields into horizontal scales",
	Long: `decompose splits each of the configured fields into a large scale, a
mesoscale and a small scale at every lead time and saves them to one file per
lead time.`,
	Args: cobra.RangeArgs(0, 5),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, log, err := setup(args)
		if err != nil {
			return err
		}
		_, err = Decompose(context.Background(), c, Fs, log)
		return err
	},
	DisableAutoGenTag: true,
}

var lagrangianCmd = &cobra.Command{
	Use:   "lagrangian [path [start-time [resolution [grid [output-dir]]]]]",
	Short: "Extract a grid that follows a trajectory",
	Long: `lagrangian interpolates every field onto a small grid that is translated
along the configured trajectory and saves one file per trajectory time.`,
	Args: cobra.RangeArgs(0, 5),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, log, err := setup(args)
		if err != nil {
			return err
		}
		_, err = Lagrangian(context.Background(), c, Fs, log)
		return err
	},
	DisableAutoGenTag: true,
}

var quicklookCmd = &cobra.Command{
	Use:   "quicklook [path [start-time [resolution [grid [output-dir]]]]]",
	Short: "Plot every field at every lead time",
	Long: `quicklook saves a heat map of every two-dimensional field, and of every
three-dimensional field at each of QuicklookLevels, for every lead time.`,
	Args: cobra.RangeArgs(0, 5),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, log, err := setup(args)
		if err != nil {
			return err
		}
		_, err = Quicklook(context.Background(), c, Fs, log)
		return err
	},
	DisableAutoGenTag: true,
}
