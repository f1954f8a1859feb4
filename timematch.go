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
	"strings"
	"time"
)

// A TimeMatcher decides whether a decoded record holds the data for a
// requested time.
type TimeMatcher interface {
	Match(requested time.Time, f *Field) bool
}

// TimeMatcherFunc adapts a function to the TimeMatcher interface.
type TimeMatcherFunc func(requested time.Time, f *Field) bool

// Match implements TimeMatcher.
func (m TimeMatcherFunc) Match(requested time.Time, f *Field) bool { return m(requested, f) }

// MatchExact accepts records valid at exactly the requested instant.
// Time-accumulated records are matched by the upper bound of their
// accumulation interval. Records without a time always match.
var MatchExact TimeMatcher = exactMatcher{}

type exactMatcher struct{}

func (exactMatcher) Match(requested time.Time, f *Field) bool {
	switch {
	case f.Time.IsZero():
		return true
	case f.Accumulated():
		return f.TimeBounds[1].Equal(requested)
	default:
		return f.Time.Equal(requested)
	}
}

// MatchHour accepts records by hour of day alone. Instantaneous records
// match when the hour of their stored instant equals the requested
// hour; time-accumulated records, whose stored instant is the midpoint
// of the accumulation interval, match on the hour of the interval's
// upper bound. Records without a time always match.
//
// The candidate files passed to the loader must hold at most one
// record per hour of day for any field, and each stored instant must
// trail its nominal hour by less than an hour. Post-processed output
// with hourly or n-hourly records stored one model time step after the
// hour satisfies this.
var MatchHour TimeMatcher = TimeMatcherFunc(func(requested time.Time, f *Field) bool {
	requested = requested.UTC()
	switch {
	case f.Time.IsZero():
		return true
	case f.Accumulated():
		return f.TimeBounds[1].UTC().Hour() == requested.Hour()
	default:
		return f.Time.UTC().Hour() == requested.Hour()
	}
})

// MatcherFor returns the matcher appropriate to a naming convention.
func MatcherFor(c Convention) TimeMatcher {
	if c == PostProcessed {
		return MatchHour
	}
	return MatchExact
}

// ParseMatcher returns the matcher with the given name: "exact",
// "hour", or "" for the convention's default.
func ParseMatcher(name string, c Convention) (TimeMatcher, error) {
	switch strings.ToLower(name) {
	case "":
		return MatcherFor(c), nil
	case "exact":
		return MatchExact, nil
	case "hour":
		return MatchHour, nil
	default:
		return nil, &ConfigurationError{Option: "TimeMatch",
			Reason: fmt.Sprintf("unknown time matching rule %q; it should be exact or hour", name)}
	}
}

// selectRecords picks, for each field name, the first record among
// records that m accepts for time t. Under exact matching a field that
// occurs only once is taken whatever its time, since a raw output file
// holds a single lead time. Other matchers must accept every record,
// lone or not. Field order follows first appearance.
func selectRecords(t time.Time, m TimeMatcher, records []*Field) []*Field {
	count := make(map[string]int)
	var order []string
	for _, r := range records {
		if count[r.Name] == 0 {
			order = append(order, r.Name)
		}
		count[r.Name]++
	}
	_, exact := m.(exactMatcher)
	chosen := make(map[string]*Field)
	for _, r := range records {
		if _, ok := chosen[r.Name]; ok {
			continue
		}
		if (exact && count[r.Name] == 1) || m.Match(t, r) {
			chosen[r.Name] = r
		}
	}
	var out []*Field
	for _, name := range order {
		if f, ok := chosen[name]; ok {
			out = append(out, f)
		}
	}
	return out
}
