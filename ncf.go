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
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/cdf"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// TimeUnits are the units of the time coordinates written by WriteNCF.
const TimeUnits = "hours since 1970-01-01 00:00:00"

// Decoder decodes the fields held in one file. A field with several
// time records is returned once per record, each copy carrying its own
// Time. Fields with no time dimension have a zero Time.
type Decoder interface {
	Decode(path string) ([]*Field, error)
}

// NCFDecoder decodes NetCDF-3 files.
type NCFDecoder struct {
	Fs afero.Fs

	// Retry, if set, is the policy for reopening a file that exists but
	// could not be opened, as happens on busy network filesystems.
	Retry backoff.BackOff
	Log   logrus.FieldLogger
}

// NewNCFDecoder returns a decoder that reads files from fs.
func NewNCFDecoder(fs afero.Fs) *NCFDecoder { return &NCFDecoder{Fs: fs} }

// open opens path, retrying according to d.Retry. A missing file is
// never retried.
func (d *NCFDecoder) open(path string) (afero.File, error) {
	if d.Retry == nil {
		return d.Fs.Open(path)
	}
	var fid afero.File
	err := backoff.RetryNotify(
		func() error {
			var err error
			fid, err = d.Fs.Open(path)
			if os.IsNotExist(err) {
				return backoff.Permanent(err)
			}
			return err
		},
		d.Retry,
		func(err error, wait time.Duration) {
			if d.Log != nil {
				d.Log.WithError(err).WithField("path", path).Warnf("retrying in %v", wait)
			}
		},
	)
	return fid, err
}

// Decode implements Decoder.
func (d *NCFDecoder) Decode(path string) ([]*Field, error) {
	fid, err := d.open(path)
	if err != nil {
		return nil, err
	}
	defer fid.Close()
	info, err := fid.Stat()
	if err != nil {
		return nil, err
	}
	f, err := cdf.Open(fid)
	if err != nil {
		return nil, fmt.Errorf("greyzone: reading netcdf header of %s: %w", path, err)
	}
	r := &ncfReader{f: f, size: info.Size()}
	fields, err := r.fields()
	if err != nil {
		return nil, fmt.Errorf("greyzone: decoding %s: %w", path, err)
	}
	return fields, nil
}

type ncfReader struct {
	f    *cdf.File
	size int64
}

func (r *ncfReader) stringAttr(v, a string) string {
	s, _ := r.f.Header.GetAttribute(v, a).(string)
	return strings.TrimRight(s, "\x00")
}

func (r *ncfReader) hasVar(v string) bool { return r.f.Header.Lengths(v) != nil }

// isCoordVar reports whether v is a coordinate variable: one-dimensional
// and named after its dimension.
func (r *ncfReader) isCoordVar(v string) bool {
	dims := r.f.Header.Dimensions(v)
	return len(dims) == 1 && dims[0] == v
}

// isTimeDim reports whether dim is described by a time coordinate.
func (r *ncfReader) isTimeDim(dim string) bool {
	if !r.isCoordVar(dim) {
		return false
	}
	if r.stringAttr(dim, "standard_name") == "time" {
		return true
	}
	return strings.Contains(r.stringAttr(dim, "units"), " since ")
}

// numRecs returns the length of dimension dim.
func (r *ncfReader) numRecs(dim string) int {
	h := r.f.Header
	for i, d := range h.Dimensions("") {
		if d != dim {
			continue
		}
		n := h.Lengths("")[i]
		if n == 0 {
			return int(h.NumRecs(r.size))
		}
		return n
	}
	return 0
}

// readRecord reads record rec of v, where v's first dimension is of
// length nrec, or all of v if nrec is 0.
func (r *ncfReader) readRecord(v string, rec, nrec int) ([]float64, error) {
	lengths := r.f.Header.Lengths(v)
	if lengths == nil {
		return nil, fmt.Errorf("variable %s not in file", v)
	}
	if nrec == 0 && r.f.Header.IsRecordVariable(v) {
		nr := r.numRecs(r.f.Header.Dimensions(v)[0])
		var all []float64
		for rec := 0; rec < nr; rec++ {
			vals, err := r.readRecord(v, rec, nr)
			if err != nil {
				return nil, err
			}
			all = append(all, vals...)
		}
		return all, nil
	}
	var rd cdf.Reader
	n := 1
	if nrec > 0 {
		for _, l := range lengths[1:] {
			n *= l
		}
		start, end := make([]int, len(lengths)), make([]int, len(lengths))
		start[0], end[0] = rec, rec+1
		rd = r.f.Reader(v, start, end)
	} else {
		for _, l := range lengths {
			n *= l
		}
		rd = r.f.Reader(v, nil, nil)
	}
	buf := rd.Zero(n)
	if _, err := rd.Read(buf); err != nil {
		return nil, fmt.Errorf("reading variable %s: %w", v, err)
	}
	return toFloat64(buf)
}

func toFloat64(buf interface{}) ([]float64, error) {
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []int32:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []int16:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []uint8:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("unsupported data type %T", buf)
	}
}

// bounds reads the [n, 2] cell bounds of coordinate variable v, if any.
func (r *ncfReader) bounds(v string) ([][2]float64, error) {
	name := r.stringAttr(v, "bounds")
	if name == "" && r.hasVar(v+"_bnds") {
		name = v + "_bnds"
	}
	if name == "" {
		return nil, nil
	}
	l := r.f.Header.Lengths(name)
	if len(l) != 2 || l[1] != 2 {
		return nil, fmt.Errorf("bounds variable %s of %s is not [n, 2]", name, v)
	}
	vals, err := r.readRecord(name, 0, 0)
	if err != nil {
		return nil, err
	}
	b := make([][2]float64, l[0])
	for i := range b {
		b[i] = [2]float64{vals[2*i], vals[2*i+1]}
	}
	return b, nil
}

// boundsVar returns the name of the bounds variable of v, or "".
func (r *ncfReader) boundsVar(v string) string {
	if name := r.stringAttr(v, "bounds"); name != "" {
		return name
	}
	if r.hasVar(v + "_bnds") {
		return v + "_bnds"
	}
	return ""
}

// coord reads the one-dimensional variable v as a coordinate.
func (r *ncfReader) coord(v string) (*Coord, error) {
	pts, err := r.readRecord(v, 0, 0)
	if err != nil {
		return nil, err
	}
	c := &Coord{Name: r.stringAttr(v, "standard_name"), Units: r.stringAttr(v, "units"), Points: pts}
	if c.Name == "" {
		c.Name = v
	}
	if c.Bounds, err = r.bounds(v); err != nil {
		return nil, err
	}
	return c, nil
}

// times reads the instants and, where present, the bounds of time
// coordinate dim.
func (r *ncfReader) times(dim string) ([]time.Time, [][2]time.Time, error) {
	c, err := r.coord(dim)
	if err != nil {
		return nil, nil, err
	}
	conv, err := parseTimeUnits(c.Units)
	if err != nil {
		return nil, nil, fmt.Errorf("time coordinate %s: %w", dim, err)
	}
	t := make([]time.Time, len(c.Points))
	for i, p := range c.Points {
		t[i] = conv(p)
	}
	var b [][2]time.Time
	if c.Bounds != nil {
		b = make([][2]time.Time, len(c.Bounds))
		for i, bb := range c.Bounds {
			b[i] = [2]time.Time{conv(bb[0]), conv(bb[1])}
		}
	}
	return t, b, nil
}

// fields decodes every data variable in the file.
func (r *ncfReader) fields() ([]*Field, error) {
	h := r.f.Header
	vars := h.Variables()

	// Variables that describe other variables rather than holding data.
	meta := make(map[string]bool)
	for _, v := range vars {
		if r.isCoordVar(v) {
			meta[v] = true
			if b := r.boundsVar(v); b != "" {
				meta[b] = true
			}
		}
		for _, a := range strings.Fields(r.stringAttr(v, "coordinates")) {
			meta[a] = true
			if b := r.boundsVar(a); b != "" {
				meta[b] = true
			}
		}
	}

	coords := make(map[string]*Coord)
	getCoord := func(v string) (*Coord, error) {
		if c, ok := coords[v]; ok {
			return c, nil
		}
		c, err := r.coord(v)
		if err != nil {
			return nil, err
		}
		coords[v] = c
		return c, nil
	}

	var out []*Field
	for _, v := range vars {
		if meta[v] {
			continue
		}
		if _, ok := h.ZeroValue(v, 0).(string); ok {
			// Character data.
			continue
		}
		dims := h.Dimensions(v)
		lengths := h.Lengths(v)
		var timeDim string
		if len(dims) > 0 && r.isTimeDim(dims[0]) {
			timeDim = dims[0]
			dims, lengths = dims[1:], lengths[1:]
		}
		if len(dims) == 0 {
			continue
		}

		proto := &Field{
			Name:   r.stringAttr(v, "standard_name"),
			Units:  r.stringAttr(v, "units"),
			Dims:   append([]string(nil), dims...),
			Coords: make([]*Coord, len(dims)),
		}
		if proto.Name == "" {
			proto.Name = v
		}
		for i, d := range dims {
			if !r.isCoordVar(d) {
				continue
			}
			c, err := getCoord(d)
			if err != nil {
				return nil, err
			}
			if c.Len() != lengths[i] {
				return nil, fmt.Errorf("coordinate %s has %d points but dimension has %d", d, c.Len(), lengths[i])
			}
			proto.Coords[i] = c
		}
		for _, a := range strings.Fields(r.stringAttr(v, "coordinates")) {
			ad := h.Dimensions(a)
			if len(ad) != 1 {
				// Scalar and multi-dimensional auxiliary coordinates are not kept.
				continue
			}
			axis := -1
			for i, d := range dims {
				if d == ad[0] {
					axis = i
				}
			}
			if axis < 0 {
				continue
			}
			c, err := getCoord(a)
			if err != nil {
				return nil, err
			}
			proto.Aux = append(proto.Aux, AuxCoord{Coord: c, Axis: axis})
		}

		if timeDim == "" {
			vals, err := r.readRecord(v, 0, 0)
			if err != nil {
				return nil, err
			}
			proto.Data = denseFrom(lengths, vals)
			out = append(out, proto)
			continue
		}

		times, bounds, err := r.times(timeDim)
		if err != nil {
			return nil, err
		}
		nrec := r.numRecs(timeDim)
		if nrec > len(times) {
			nrec = len(times)
		}
		for rec := 0; rec < nrec; rec++ {
			vals, err := r.readRecord(v, rec, nrec)
			if err != nil {
				return nil, err
			}
			f := proto
			if rec > 0 {
				f = &Field{Name: proto.Name, Units: proto.Units, Dims: proto.Dims,
					Coords: proto.Coords, Aux: proto.Aux}
			}
			f.Data = denseFrom(lengths, vals)
			f.Time = times[rec]
			if bounds != nil {
				f.TimeBounds = bounds[rec]
			}
			out = append(out, f)
		}
	}
	return out, nil
}

var timeReferenceLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTimeUnits interprets CF time units such as
// "hours since 1970-01-01 00:00:00".
func parseTimeUnits(u string) (func(float64) time.Time, error) {
	parts := strings.SplitN(u, " since ", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid time units %q", u)
	}
	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "seconds", "second", "s":
		step = time.Second
	case "minutes", "minute", "min":
		step = time.Minute
	case "hours", "hour", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return nil, fmt.Errorf("invalid time step in units %q", u)
	}
	ref := strings.TrimSpace(parts[1])
	var t0 time.Time
	var err error
	for _, layout := range timeReferenceLayouts {
		if t0, err = time.Parse(layout, ref); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("invalid reference time in units %q", u)
	}
	return func(v float64) time.Time {
		// Round to the second to remove floating point noise.
		d := time.Duration(math.Round(v*float64(step)/float64(time.Second))) * time.Second
		return t0.Add(d).UTC()
	}, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// hoursSinceEpoch converts t to the units of TimeUnits.
func hoursSinceEpoch(t time.Time) float64 {
	return float64(t.Unix()) / 3600
}

// WriteNCF writes fields as a NetCDF-3 file to w, together with the
// given global attributes. Fields with a non-zero Time are written with
// a leading time dimension of length one; fields sharing a dimension
// name must share its coordinate.
func WriteNCF(w cdf.ReaderWriterAt, attrs map[string]string, fields ...*Field) error {
	l := newNCFLayout()
	for _, f := range fields {
		if err := l.add(f); err != nil {
			return fmt.Errorf("greyzone: writing field %s: %w", f.Name, err)
		}
	}

	h := cdf.NewHeader(l.dims, l.lengths)
	for _, k := range sortedKeys(attrs) {
		h.AddAttribute("", k, attrs[k])
	}
	for _, v := range l.vars {
		if v.double {
			h.AddVariable(v.name, v.dims, []float64{0})
		} else {
			h.AddVariable(v.name, v.dims, []float32{0})
		}
		for _, a := range v.attrs {
			h.AddAttribute(v.name, a[0], a[1])
		}
	}
	h.Define()

	f, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("greyzone: writing netcdf header: %w", err)
	}
	for _, v := range l.vars {
		var data interface{}
		if v.double {
			data = v.data
		} else {
			d32 := make([]float32, len(v.data))
			for i, e := range v.data {
				d32[i] = float32(e)
			}
			data = d32
		}
		if _, err := f.Writer(v.name, nil, nil).Write(data); err != nil {
			return fmt.Errorf("greyzone: writing netcdf variable %s: %w", v.name, err)
		}
	}
	return nil
}

// WriteNCFFile creates the file at path in fs, along with any missing
// parent directories, and writes fields to it.
func WriteNCFFile(fs afero.Fs, path string, attrs map[string]string, fields ...*Field) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	w, err := fs.Create(path)
	if err != nil {
		return err
	}
	if err := WriteNCF(w, attrs, fields...); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

type ncfVar struct {
	name   string
	dims   []string
	attrs  [][2]string
	data   []float64
	double bool
}

// ncfLayout accumulates the dimensions and variables of a file.
type ncfLayout struct {
	dims    []string
	lengths []int
	vars    []ncfVar
	coords  map[string]*Coord
	aux     map[string]AuxCoord
	times   map[[3]int64]string
}

func newNCFLayout() *ncfLayout {
	return &ncfLayout{
		coords: make(map[string]*Coord),
		aux:    make(map[string]AuxCoord),
		times:  make(map[[3]int64]string),
	}
}

func (l *ncfLayout) hasVar(name string) bool {
	for _, v := range l.vars {
		if v.name == name {
			return true
		}
	}
	return false
}

func (l *ncfLayout) dim(name string, n int) error {
	for i, d := range l.dims {
		if d == name {
			if l.lengths[i] != n {
				return fmt.Errorf("dimension %s has length %d and %d", name, l.lengths[i], n)
			}
			return nil
		}
	}
	l.dims = append(l.dims, name)
	l.lengths = append(l.lengths, n)
	return nil
}

// coordVar adds c as the coordinate variable of dim.
func (l *ncfLayout) coordVar(dim string, c *Coord) error {
	if old, ok := l.coords[dim]; ok {
		if !old.Equal(c) {
			return fmt.Errorf("dimension %s has two different coordinates", dim)
		}
		return nil
	}
	l.coords[dim] = c
	v := ncfVar{name: dim, dims: []string{dim}, data: c.Points, double: true}
	v.attrs = append(v.attrs, [2]string{"standard_name", c.Name})
	if c.Units != "" {
		v.attrs = append(v.attrs, [2]string{"units", c.Units})
	}
	if c.Bounds != nil {
		if err := l.dim("bnds", 2); err != nil {
			return err
		}
		b := ncfVar{name: dim + "_bnds", dims: []string{dim, "bnds"}, double: true}
		for _, bb := range c.Bounds {
			b.data = append(b.data, bb[0], bb[1])
		}
		v.attrs = append(v.attrs, [2]string{"bounds", b.name})
		l.vars = append(l.vars, v, b)
		return nil
	}
	l.vars = append(l.vars, v)
	return nil
}

// auxVar returns the name of the variable holding auxiliary coordinate
// c along dim, adding it if needed. Different coordinates with the same
// name get numbered variable names.
func (l *ncfLayout) auxVar(dim string, c *Coord) string {
	name := c.Name
	for n := 0; ; n++ {
		old, ok := l.aux[name]
		if ok && l.dims[old.Axis] == dim && old.Equal(c) {
			return name
		}
		if !ok && !l.hasVar(name) {
			break
		}
		name = fmt.Sprintf("%s_%d", c.Name, n)
	}
	for i, d := range l.dims {
		if d == dim {
			l.aux[name] = AuxCoord{Coord: c, Axis: i}
		}
	}
	v := ncfVar{name: name, dims: []string{dim}, data: c.Points, double: true}
	v.attrs = append(v.attrs, [2]string{"standard_name", c.Name})
	if c.Units != "" {
		v.attrs = append(v.attrs, [2]string{"units", c.Units})
	}
	l.vars = append(l.vars, v)
	return name
}

// timeDim returns the name of the length-one time dimension for the
// given instant and bounds, adding it if needed.
func (l *ncfLayout) timeDim(t time.Time, b [2]time.Time) (string, error) {
	key := [3]int64{t.Unix(), 0, 0}
	if !b[1].IsZero() {
		key[1], key[2] = b[0].Unix(), b[1].Unix()
	}
	if name, ok := l.times[key]; ok {
		return name, nil
	}
	name := "time"
	if n := len(l.times); n > 0 {
		name = "time_" + strconv.Itoa(n-1)
	}
	l.times[key] = name
	if err := l.dim(name, 1); err != nil {
		return "", err
	}
	c := &Coord{Name: "time", Units: TimeUnits, Points: []float64{hoursSinceEpoch(t)}}
	if !b[1].IsZero() {
		c.Bounds = [][2]float64{{hoursSinceEpoch(b[0]), hoursSinceEpoch(b[1])}}
	}
	return name, l.coordVar(name, c)
}

func (l *ncfLayout) add(f *Field) error {
	if l.hasVar(f.Name) {
		return fmt.Errorf("duplicate variable name")
	}
	if len(f.Dims) != f.NDim() {
		return fmt.Errorf("%d dimension names for %d axes", len(f.Dims), f.NDim())
	}
	var dims []string
	if !f.Time.IsZero() {
		td, err := l.timeDim(f.Time, f.TimeBounds)
		if err != nil {
			return err
		}
		dims = append(dims, td)
	}
	for i, d := range f.Dims {
		if err := l.dim(d, f.Data.Shape[i]); err != nil {
			return err
		}
		if i < len(f.Coords) && f.Coords[i] != nil {
			if err := l.coordVar(d, f.Coords[i]); err != nil {
				return err
			}
		}
		dims = append(dims, d)
	}
	v := ncfVar{name: f.Name, dims: dims, data: f.Data.Elements}
	v.attrs = append(v.attrs, [2]string{"standard_name", f.Name})
	if f.Units != "" {
		v.attrs = append(v.attrs, [2]string{"units", f.Units})
	}
	var aux []string
	for _, a := range f.Aux {
		aux = append(aux, l.auxVar(f.Dims[a.Axis], a.Coord))
	}
	if len(aux) > 0 {
		v.attrs = append(v.attrs, [2]string{"coordinates", strings.Join(aux, " ")})
	}
	l.vars = append(l.vars, v)
	return nil
}
