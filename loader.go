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
	"os"
	"strings"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// errNoRecord is wrapped in a DataUnavailableError when the candidate
// files decode but none holds a record for the requested time.
var errNoRecord = errors.New("no record matches the requested time")

// LoaderConfig holds the collaborators of a Loader.
type LoaderConfig struct {
	Mapping *Mapping

	// Decoder defaults to an NCFDecoder reading from Fs.
	Decoder Decoder

	// Matcher defaults to the matcher for the mapping's convention.
	Matcher TimeMatcher

	// Corrector is applied to every newly decoded snapshot. A nil
	// Corrector leaves snapshots as decoded.
	Corrector *Corrector

	// Capacity is the number of snapshots kept in memory. It defaults
	// to 1; use 2 when callers need two adjacent times at once.
	Capacity int

	// Fs is used to expand file name patterns. It defaults to the
	// operating system's file system.
	Fs afero.Fs

	Log logrus.FieldLogger
}

// Loader decodes the snapshot for a mapped time on demand and keeps a
// bounded window of recently used snapshots. It is not safe for
// concurrent use.
type Loader struct {
	mapping   *Mapping
	decoder   Decoder
	matcher   TimeMatcher
	corrector *Corrector
	fs        afero.Fs
	log       logrus.FieldLogger
	cache     *lru.Cache
}

// NewLoader returns a loader for the given configuration.
func NewLoader(c LoaderConfig) (*Loader, error) {
	if c.Mapping == nil {
		return nil, &ConfigurationError{Option: "Mapping", Reason: "no file mapping given to loader"}
	}
	l := &Loader{
		mapping:   c.Mapping,
		decoder:   c.Decoder,
		matcher:   c.Matcher,
		corrector: c.Corrector,
		fs:        c.Fs,
		log:       c.Log,
	}
	if l.fs == nil {
		l.fs = afero.NewOsFs()
	}
	if l.decoder == nil {
		l.decoder = NewNCFDecoder(l.fs)
	}
	if l.matcher == nil {
		l.matcher = MatcherFor(c.Mapping.Convention())
	}
	if l.log == nil {
		l.log = logrus.StandardLogger()
	}
	capacity := c.Capacity
	if capacity <= 0 {
		capacity = 1
	}
	l.cache = lru.New(capacity)
	l.cache.OnEvicted = func(key lru.Key, _ interface{}) {
		l.log.WithField("time", time.Unix(key.(int64), 0).UTC()).Debug("evicted snapshot")
	}
	return l, nil
}

// Mapping returns the loader's file mapping.
func (l *Loader) Mapping() *Mapping { return l.mapping }

// Len returns the number of cached snapshots.
func (l *Loader) Len() int { return l.cache.Len() }

// Cached reports whether the snapshot for t is in memory.
func (l *Loader) Cached(t time.Time) bool {
	_, ok := l.cache.Get(t.Unix())
	return ok
}

// Evict drops the snapshot for t from memory, if present.
func (l *Loader) Evict(t time.Time) { l.cache.Remove(t.Unix()) }

// Load returns the snapshot for time t, decoding and correcting it if
// it is not in memory. The least recently used snapshot is evicted
// only once the new one has been built, so a failed load leaves the
// cache as it was.
func (l *Loader) Load(t time.Time) (*Snapshot, error) {
	key := t.Unix()
	if s, ok := l.cache.Get(key); ok {
		return s.(*Snapshot), nil
	}
	patterns, ok := l.mapping.Files(t)
	if !ok {
		return nil, fmt.Errorf("greyzone: loading %s: %w", t.UTC().Format(time.RFC3339), ErrUnknownTime)
	}

	var records []*Field
	for _, pattern := range patterns {
		paths, err := l.expand(pattern)
		if err != nil {
			return nil, &DataUnavailableError{Time: t, Path: pattern, Err: err}
		}
		for _, p := range paths {
			l.log.WithFields(logrus.Fields{"time": t.UTC(), "path": p}).Debug("decoding")
			fields, err := l.decoder.Decode(p)
			if err != nil {
				return nil, &DataUnavailableError{Time: t, Path: p, Err: err}
			}
			records = append(records, fields...)
		}
	}

	fields := selectRecords(t, l.matcher, records)
	if len(fields) == 0 {
		return nil, &DataUnavailableError{Time: t, Path: strings.Join(patterns, ","), Err: errNoRecord}
	}
	s := NewSnapshot(t.UTC(), fields...)
	if l.corrector != nil {
		if err := l.corrector.Correct(s); err != nil {
			return nil, fmt.Errorf("greyzone: correcting snapshot for %s: %w", t.UTC().Format(time.RFC3339), err)
		}
	}
	l.cache.Add(key, s)
	return s, nil
}

// expand returns the files matching pattern, which may be a plain file
// name or a glob.
func (l *Loader) expand(pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "*?[") {
		if _, err := l.fs.Stat(pattern); err != nil {
			return nil, err
		}
		return []string{pattern}, nil
	}
	paths, err := afero.Glob(l.fs, pattern)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files match: %w", os.ErrNotExist)
	}
	return paths, nil
}
