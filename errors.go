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
	"fmt"
	"time"
)

// ErrUnknownTime is returned when a time is requested that is not
// part of a forecast's file mapping.
var ErrUnknownTime = errors.New("greyzone: time not in file mapping")

// ConfigurationError reports a run configuration that has no defined
// file naming template or is otherwise unusable. It is detected when
// the file mapping is constructed and is fatal.
type ConfigurationError struct {
	// Option is the name of the offending configuration option.
	Option string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Option == "" {
		return "greyzone: configuration: " + e.Reason
	}
	return fmt.Sprintf("greyzone: configuration option %s: %s", e.Option, e.Reason)
}

// DataUnavailableError reports that the data required for a snapshot
// could not be decoded: a file is missing or corrupt, or it does not
// contain a record for the requested time.
type DataUnavailableError struct {
	Time time.Time
	Path string
	Err  error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("greyzone: data for %s unavailable from %s: %v",
		e.Time.UTC().Format(time.RFC3339), e.Path, e.Err)
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }

// IsDataUnavailable reports whether err is or wraps a *DataUnavailableError.
func IsDataUnavailable(err error) bool {
	var d *DataUnavailableError
	return errors.As(err, &d)
}
