/*
Copyright © 2019 the InMAP authors.
This file is part of ncio.

ncio is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ncio is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ncio.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package netcdf implements the ncio storage engine over classic-format
// NetCDF files, using github.com/ctessum/cdf for the on-disk encoding.
//
// The classic format has no per-variable compression, so SetCompression
// rejects any level greater than zero. Dimensions that no variable
// references are not recoverable from the cdf header and are therefore
// invisible when a file is re-opened.
package netcdf

import (
	"fmt"
	"os"

	"github.com/ctessum/cdf"

	"github.com/spatialmodel/ncio/engine"
)

// Engine opens and creates classic-format NetCDF files on disk.
type Engine struct{}

// New returns a NetCDF storage engine.
func New() Engine { return Engine{} }

// Open opens an existing NetCDF file read-only.
func (Engine) Open(path string) (engine.File, error) {
	osf, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("netcdf: %v", err)
	}
	cf, err := cdf.Open(osf)
	if err != nil {
		osf.Close()
		return nil, fmt.Errorf("netcdf: opening %s: %v", path, err)
	}
	f := &file{path: path, osf: osf, cf: cf, unlimited: -1, recs: -1}
	if err := f.loadCatalog(); err != nil {
		osf.Close()
		return nil, err
	}
	return f, nil
}

// Create creates a new NetCDF file in define mode. Only the classic
// format variants are supported; requesting format version 4 fails.
func (Engine) Create(path string, opts engine.CreateOptions) (engine.File, error) {
	switch opts.FormatVersion {
	case 0, 1, 2:
	default:
		return nil, fmt.Errorf("netcdf: create %s: classic format cannot encode format version %d",
			path, opts.FormatVersion)
	}
	osf, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("netcdf: %v", err)
	}
	return &file{
		path:      path,
		osf:       osf,
		writable:  true,
		defining:  true,
		unlimited: -1,
	}, nil
}

type attr struct {
	name  string
	value interface{}
}

type varEntry struct {
	info  engine.VarInfo
	attrs []attr // pending attributes while in define mode
}

type file struct {
	path     string
	osf      *os.File
	cf       *cdf.File
	writable bool
	defining bool
	closed   bool

	dims      []engine.DimInfo
	unlimited int // dimension id, or -1
	vars      []varEntry
	gattrs    []attr // pending global attributes while in define mode

	// recs caches the current record count, or -1 if it has not been
	// determined yet. The classic header reports the record dimension
	// with length zero, so the count must be derived from a record
	// variable's data extent.
	recs int
}

func (f *file) Path() string { return f.path }

// loadCatalog mirrors an opened file's header into dimension and
// variable tables. Dimension ids are assigned in order of first
// appearance across the variables in header order; the record
// dimension is recognized by its zero header length.
func (f *file) loadCatalog() error {
	dimID := make(map[string]int)
	for _, name := range f.cf.Header.Variables() {
		dimNames := f.cf.Header.Dimensions(name)
		lengths := f.cf.Header.Lengths(name)
		if len(dimNames) != len(lengths) {
			return fmt.Errorf("netcdf: %s: variable %q: %d dimensions with %d lengths",
				f.path, name, len(dimNames), len(lengths))
		}
		ids := make([]int, len(dimNames))
		for i, dn := range dimNames {
			id, ok := dimID[dn]
			if !ok {
				id = len(f.dims)
				dimID[dn] = id
				unlimited := lengths[i] == 0
				f.dims = append(f.dims, engine.DimInfo{
					Name:      dn,
					Length:    lengths[i],
					Unlimited: unlimited,
				})
				if unlimited {
					if f.unlimited >= 0 {
						return fmt.Errorf("netcdf: %s: two unlimited dimensions (%s, %s)",
							f.path, f.dims[f.unlimited].Name, dn)
					}
					f.unlimited = id
				}
			}
			ids[i] = id
		}
		kind, err := kindOf(f.cf.Header.ZeroValue(name, 1))
		if err != nil {
			return fmt.Errorf("netcdf: %s: variable %q: %v", f.path, name, err)
		}
		f.vars = append(f.vars, varEntry{info: engine.VarInfo{
			Name:      name,
			Type:      kind,
			DimIDs:    ids,
			AttrCount: len(f.cf.Header.Attributes(name)),
		}})
	}
	return nil
}

func (f *file) Counts() (engine.Counts, error) {
	if f.closed {
		return engine.Counts{}, f.errClosed("counts")
	}
	c := engine.Counts{
		Dims:      len(f.dims),
		Vars:      len(f.vars),
		Unlimited: f.unlimited,
	}
	if f.defining {
		c.GlobalAttrs = len(f.gattrs)
	} else {
		c.GlobalAttrs = len(f.cf.Header.Attributes(""))
	}
	return c, nil
}

func (f *file) Dimension(id int) (engine.DimInfo, error) {
	if f.closed {
		return engine.DimInfo{}, f.errClosed("dimension")
	}
	if id < 0 || id >= len(f.dims) {
		return engine.DimInfo{}, fmt.Errorf("netcdf: %s: no dimension with id %d", f.path, id)
	}
	d := f.dims[id]
	if d.Unlimited && !f.defining {
		n, err := f.numRecs()
		if err != nil {
			return engine.DimInfo{}, err
		}
		d.Length = n
	}
	return d, nil
}

func (f *file) Variable(id int) (engine.VarInfo, error) {
	if f.closed {
		return engine.VarInfo{}, f.errClosed("variable")
	}
	if id < 0 || id >= len(f.vars) {
		return engine.VarInfo{}, fmt.Errorf("netcdf: %s: no variable with id %d", f.path, id)
	}
	v := f.vars[id].info
	v.DimIDs = append([]int(nil), v.DimIDs...)
	if !f.defining {
		v.AttrCount = len(f.cf.Header.Attributes(v.Name))
	} else {
		v.AttrCount = len(f.vars[id].attrs)
	}
	return v, nil
}

func (f *file) DefineDimension(name string, length int, unlimited bool) (int, error) {
	if err := f.checkDefine("define dimension"); err != nil {
		return 0, err
	}
	for _, d := range f.dims {
		if d.Name == name {
			return 0, fmt.Errorf("netcdf: %s: dimension %q already defined", f.path, name)
		}
	}
	if unlimited {
		if f.unlimited >= 0 {
			return 0, fmt.Errorf("netcdf: %s: file already has an unlimited dimension (%s)",
				f.path, f.dims[f.unlimited].Name)
		}
		length = 0
	} else if length <= 0 {
		// A zero header length marks the record dimension in the
		// classic format, so fixed dimensions must be positive.
		return 0, fmt.Errorf("netcdf: %s: dimension %q: fixed length must be positive, got %d",
			f.path, name, length)
	}
	id := len(f.dims)
	f.dims = append(f.dims, engine.DimInfo{Name: name, Length: length, Unlimited: unlimited})
	if unlimited {
		f.unlimited = id
		f.recs = 0
	}
	return id, nil
}

func (f *file) DefineVariable(name string, kind engine.Kind, dimIDs []int) (int, error) {
	if err := f.checkDefine("define variable"); err != nil {
		return 0, err
	}
	if _, err := zeroValue(kind); err != nil {
		return 0, fmt.Errorf("netcdf: %s: variable %q: %v", f.path, name, err)
	}
	for _, v := range f.vars {
		if v.info.Name == name {
			return 0, fmt.Errorf("netcdf: %s: variable %q already defined", f.path, name)
		}
	}
	for i, id := range dimIDs {
		if id < 0 || id >= len(f.dims) {
			return 0, fmt.Errorf("netcdf: %s: variable %q: no dimension with id %d", f.path, name, id)
		}
		if f.dims[id].Unlimited && i != 0 {
			return 0, fmt.Errorf("netcdf: %s: variable %q: unlimited dimension %s must come first",
				f.path, name, f.dims[id].Name)
		}
	}
	id := len(f.vars)
	f.vars = append(f.vars, varEntry{info: engine.VarInfo{
		Name:   name,
		Type:   kind,
		DimIDs: append([]int(nil), dimIDs...),
	}})
	return id, nil
}

func (f *file) SetCompression(varID int, c engine.Compression) error {
	if err := f.checkDefine("set compression"); err != nil {
		return err
	}
	if varID < 0 || varID >= len(f.vars) {
		return fmt.Errorf("netcdf: %s: no variable with id %d", f.path, varID)
	}
	if c.Level != 0 {
		return fmt.Errorf("netcdf: %s: variable %q: classic format does not support compression",
			f.path, f.vars[varID].info.Name)
	}
	return nil
}

func (f *file) AttributeNames(target int) ([]string, error) {
	if f.closed {
		return nil, f.errClosed("attribute names")
	}
	if f.defining {
		attrs, err := f.pendingAttrs(target)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(attrs))
		for i, a := range attrs {
			names[i] = a.name
		}
		return names, nil
	}
	name, err := f.targetName(target)
	if err != nil {
		return nil, err
	}
	return f.cf.Header.Attributes(name), nil
}

func (f *file) Attribute(target int, name string) (interface{}, error) {
	if f.closed {
		return nil, f.errClosed("attribute")
	}
	if f.defining {
		attrs, err := f.pendingAttrs(target)
		if err != nil {
			return nil, err
		}
		for _, a := range attrs {
			if a.name == name {
				return a.value, nil
			}
		}
		return nil, fmt.Errorf("netcdf: %s: no attribute %q", f.path, name)
	}
	tn, err := f.targetName(target)
	if err != nil {
		return nil, err
	}
	v := f.cf.Header.GetAttribute(tn, name)
	if v == nil {
		return nil, fmt.Errorf("netcdf: %s: no attribute %q", f.path, name)
	}
	return fromCDFValue(v), nil
}

func (f *file) PutAttribute(target int, name string, value interface{}) error {
	if err := f.checkDefine("put attribute"); err != nil {
		return err
	}
	switch value.(type) {
	case string, []int8, []int16, []int32, []float32, []float64:
	default:
		return fmt.Errorf("netcdf: %s: attribute %q: unsupported value type %T", f.path, name, value)
	}
	if target == engine.Global {
		f.gattrs = putAttr(f.gattrs, name, value)
		return nil
	}
	if target < 0 || target >= len(f.vars) {
		return fmt.Errorf("netcdf: %s: no variable with id %d", f.path, target)
	}
	f.vars[target].attrs = putAttr(f.vars[target].attrs, name, value)
	return nil
}

func putAttr(attrs []attr, name string, value interface{}) []attr {
	for i, a := range attrs {
		if a.name == name {
			attrs[i].value = value
			return attrs
		}
	}
	return append(attrs, attr{name: name, value: value})
}

// EndDefinition builds the cdf header from the accumulated definitions
// and writes it to the file, sealing the structure.
func (f *file) EndDefinition() error {
	if err := f.checkDefine("end definition"); err != nil {
		return err
	}
	names := make([]string, len(f.dims))
	lengths := make([]int, len(f.dims))
	for i, d := range f.dims {
		names[i] = d.Name
		if d.Unlimited {
			lengths[i] = 0
		} else {
			lengths[i] = d.Length
		}
	}
	h := cdf.NewHeader(names, lengths)
	for _, a := range f.gattrs {
		h.AddAttribute("", a.name, toCDFValue(a.value))
	}
	for _, v := range f.vars {
		dimNames := make([]string, len(v.info.DimIDs))
		for i, id := range v.info.DimIDs {
			dimNames[i] = f.dims[id].Name
		}
		zv, err := zeroValue(v.info.Type)
		if err != nil {
			return fmt.Errorf("netcdf: %s: variable %q: %v", f.path, v.info.Name, err)
		}
		h.AddVariable(v.info.Name, dimNames, zv)
		for _, a := range v.attrs {
			h.AddAttribute(v.info.Name, a.name, toCDFValue(a.value))
		}
	}
	h.Define()
	for _, err := range h.Check() {
		if err != nil {
			return fmt.Errorf("netcdf: %s: header check: %v", f.path, err)
		}
	}
	cf, err := cdf.Create(f.osf, h)
	if err != nil {
		return fmt.Errorf("netcdf: creating %s: %v", f.path, err)
	}
	f.cf = cf
	f.defining = false
	return nil
}

func (f *file) ReadArray(varID int, shape []int) (interface{}, error) {
	if f.closed {
		return nil, f.errClosed("read")
	}
	if f.defining {
		return nil, fmt.Errorf("netcdf: %s: read before end of definition", f.path)
	}
	if varID < 0 || varID >= len(f.vars) {
		return nil, fmt.Errorf("netcdf: %s: no variable with id %d", f.path, varID)
	}
	v := f.vars[varID].info
	if v.Type == engine.Char {
		return nil, fmt.Errorf("netcdf: %s: variable %q: bulk read of char data is not supported",
			f.path, v.Name)
	}
	if len(shape) != len(v.DimIDs) {
		return nil, fmt.Errorf("netcdf: %s: variable %q: shape %v has rank %d, want %d",
			f.path, v.Name, shape, len(shape), len(v.DimIDs))
	}
	n := 1
	for _, s := range shape {
		n *= s
	}
	// The strider needs explicit bounds to cover more than one record.
	begin := make([]int, len(shape))
	end := append([]int(nil), shape...)
	r := f.cf.Reader(v.Name, begin, end)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("netcdf: %s: reading variable %q: %v", f.path, v.Name, err)
	}
	return fromCDFValue(buf), nil
}

func (f *file) WriteArray(varID int, data interface{}, shape []int) error {
	if f.closed {
		return f.errClosed("write")
	}
	if !f.writable {
		return fmt.Errorf("netcdf: %s: file is read-only", f.path)
	}
	if f.defining {
		return fmt.Errorf("netcdf: %s: write before end of definition", f.path)
	}
	if varID < 0 || varID >= len(f.vars) {
		return fmt.Errorf("netcdf: %s: no variable with id %d", f.path, varID)
	}
	v := f.vars[varID].info
	if len(shape) != len(v.DimIDs) {
		return fmt.Errorf("netcdf: %s: variable %q: shape %v has rank %d, want %d",
			f.path, v.Name, shape, len(shape), len(v.DimIDs))
	}
	begin := make([]int, len(shape))
	end := append([]int(nil), shape...)
	w := f.cf.Writer(v.Name, begin, end)
	if _, err := w.Write(toCDFValue(data)); err != nil {
		return fmt.Errorf("netcdf: %s: writing variable %q: %v", f.path, v.Name, err)
	}
	if len(v.DimIDs) > 0 && f.dims[v.DimIDs[0]].Unlimited && shape[0] > f.recs {
		f.recs = shape[0]
	}
	return nil
}

// numRecs derives the current record count from the file size, since
// the classic header stores the record dimension with length zero. The
// result is cached.
func (f *file) numRecs() (int, error) {
	if f.recs >= 0 {
		return f.recs, nil
	}
	fi, err := f.osf.Stat()
	if err != nil {
		return 0, fmt.Errorf("netcdf: %s: %v", f.path, err)
	}
	n := f.cf.Header.NumRecs(fi.Size())
	if n < 0 {
		return 0, fmt.Errorf("netcdf: %s: cannot determine record count", f.path)
	}
	f.recs = int(n)
	return f.recs, nil
}

func (f *file) Close() error {
	if f.closed {
		return fmt.Errorf("netcdf: close %s: already closed", f.path)
	}
	f.closed = true
	if f.writable && f.cf != nil && f.unlimited >= 0 {
		if err := cdf.UpdateNumRecs(f.osf); err != nil {
			f.osf.Close()
			return fmt.Errorf("netcdf: finalizing %s: %v", f.path, err)
		}
	}
	if err := f.osf.Close(); err != nil {
		return fmt.Errorf("netcdf: closing %s: %v", f.path, err)
	}
	return nil
}

func (f *file) pendingAttrs(target int) ([]attr, error) {
	if target == engine.Global {
		return f.gattrs, nil
	}
	if target < 0 || target >= len(f.vars) {
		return nil, fmt.Errorf("netcdf: %s: no variable with id %d", f.path, target)
	}
	return f.vars[target].attrs, nil
}

// targetName translates an attribute target id to the cdf header name,
// where the empty string addresses global attributes.
func (f *file) targetName(target int) (string, error) {
	if target == engine.Global {
		return "", nil
	}
	if target < 0 || target >= len(f.vars) {
		return "", fmt.Errorf("netcdf: %s: no variable with id %d", f.path, target)
	}
	return f.vars[target].info.Name, nil
}

func (f *file) checkDefine(op string) error {
	if f.closed {
		return f.errClosed(op)
	}
	if !f.writable {
		return fmt.Errorf("netcdf: %s: %s: file is read-only", f.path, op)
	}
	if !f.defining {
		return fmt.Errorf("netcdf: %s: %s: definition already ended", f.path, op)
	}
	return nil
}

func (f *file) errClosed(op string) error {
	return fmt.Errorf("netcdf: %s: %s: file is closed", f.path, op)
}

// toCDFValue converts a value from the engine representation to the
// one cdf stores: byte data is []int8 at the engine interface but
// []uint8 in cdf. Other types pass through unchanged.
func toCDFValue(v interface{}) interface{} {
	s, ok := v.([]int8)
	if !ok {
		return v
	}
	out := make([]uint8, len(s))
	for i, b := range s {
		out[i] = uint8(b)
	}
	return out
}

// fromCDFValue reverses toCDFValue.
func fromCDFValue(v interface{}) interface{} {
	s, ok := v.([]uint8)
	if !ok {
		return v
	}
	out := make([]int8, len(s))
	for i, b := range s {
		out[i] = int8(b)
	}
	return out
}

// kindOf maps a cdf zero value to the engine element kind. cdf
// represents byte data as []uint8.
func kindOf(zero interface{}) (engine.Kind, error) {
	switch zero.(type) {
	case []uint8:
		return engine.Byte, nil
	case string:
		return engine.Char, nil
	case []int16:
		return engine.Short, nil
	case []int32:
		return engine.Int, nil
	case []float32:
		return engine.Float, nil
	case []float64:
		return engine.Double, nil
	default:
		return engine.None, fmt.Errorf("unsupported element type %T", zero)
	}
}

// zeroValue returns the prototype value cdf uses to declare a
// variable's element type.
func zeroValue(kind engine.Kind) (interface{}, error) {
	switch kind {
	case engine.Byte:
		return []uint8{0}, nil
	case engine.Char:
		return "", nil
	case engine.Short:
		return []int16{0}, nil
	case engine.Int:
		return []int32{0}, nil
	case engine.Float:
		return []float32{0}, nil
	case engine.Double:
		return []float64{0}, nil
	default:
		return nil, fmt.Errorf("unsupported element kind %v", kind)
	}
}
