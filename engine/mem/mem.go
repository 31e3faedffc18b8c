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

// Package mem implements an in-memory storage engine. It supports the
// full engine surface, including the unlimited dimension, deflate
// compression and the byte-shuffle filter, and is the reference
// backend for tests and scratch datasets.
package mem

import (
	"fmt"
	"sync"

	"github.com/spatialmodel/ncio/engine"
)

// Engine is an in-memory storage engine. Files created through it
// persist in the engine until the engine itself is garbage collected,
// so a file can be closed and re-opened within one process.
//
// The zero value is not usable; create an Engine with New.
type Engine struct {
	mu    sync.Mutex
	files map[string]*fileState
	open  int
}

// New returns an empty in-memory engine.
func New() *Engine {
	return &Engine{files: make(map[string]*fileState)}
}

// OpenHandles returns the number of sessions that have been opened or
// created and not yet closed. It is used by tests to check for handle
// leaks.
func (e *Engine) OpenHandles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// Open opens an existing in-memory file read-only.
func (e *Engine) Open(path string) (engine.File, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.files[path]
	if !ok {
		return nil, fmt.Errorf("mem: open %s: no such file", path)
	}
	e.open++
	return &file{eng: e, st: st, path: path}, nil
}

// Create creates a new in-memory file in define mode. It fails if a
// file already exists at the path.
func (e *Engine) Create(path string, opts engine.CreateOptions) (engine.File, error) {
	format := opts.FormatVersion
	if format == 0 {
		format = 4
	}
	switch format {
	case 1, 2, 4:
	default:
		return nil, fmt.Errorf("mem: create %s: unsupported format version %d", path, opts.FormatVersion)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.files[path]; ok {
		return nil, fmt.Errorf("mem: create %s: file exists", path)
	}
	st := &fileState{
		format:    format,
		unlimited: -1,
		gattrs:    newAttrMap(),
	}
	e.files[path] = st
	e.open++
	return &file{eng: e, st: st, path: path, writable: true, defining: true}, nil
}

type fileState struct {
	mu        sync.Mutex
	format    int
	dims      []engine.DimInfo
	unlimited int // dimension id, or -1
	vars      []*varState
	gattrs    *attrMap
}

type varState struct {
	name        string
	kind        engine.Kind
	dimIDs      []int
	compression engine.Compression
	attrs       *attrMap

	// data holds the stored payload, shuffled and deflated according
	// to the compression settings. For a record variable it covers
	// the records written so far; reads zero-fill any records beyond
	// it that exist because another variable grew the file.
	data []byte
}

type attrMap struct {
	names  []string
	values map[string]interface{}
}

func newAttrMap() *attrMap {
	return &attrMap{values: make(map[string]interface{})}
}

func (m *attrMap) put(name string, value interface{}) {
	if _, ok := m.values[name]; !ok {
		m.names = append(m.names, name)
	}
	m.values[name] = value
}

type file struct {
	eng      *Engine
	st       *fileState
	path     string
	writable bool
	defining bool
	closed   bool
}

func (f *file) Path() string { return f.path }

func (f *file) Close() error {
	if f.closed {
		return fmt.Errorf("mem: close %s: already closed", f.path)
	}
	f.closed = true
	f.eng.mu.Lock()
	f.eng.open--
	f.eng.mu.Unlock()
	return nil
}

func (f *file) Counts() (engine.Counts, error) {
	if f.closed {
		return engine.Counts{}, f.errClosed("counts")
	}
	st := f.st
	st.mu.Lock()
	defer st.mu.Unlock()
	return engine.Counts{
		Dims:        len(st.dims),
		Vars:        len(st.vars),
		GlobalAttrs: len(st.gattrs.names),
		Unlimited:   st.unlimited,
	}, nil
}

func (f *file) Dimension(id int) (engine.DimInfo, error) {
	if f.closed {
		return engine.DimInfo{}, f.errClosed("dimension")
	}
	st := f.st
	st.mu.Lock()
	defer st.mu.Unlock()
	if id < 0 || id >= len(st.dims) {
		return engine.DimInfo{}, fmt.Errorf("mem: %s: no dimension with id %d", f.path, id)
	}
	return st.dims[id], nil
}

func (f *file) Variable(id int) (engine.VarInfo, error) {
	if f.closed {
		return engine.VarInfo{}, f.errClosed("variable")
	}
	st := f.st
	st.mu.Lock()
	defer st.mu.Unlock()
	v, err := f.varByID(id)
	if err != nil {
		return engine.VarInfo{}, err
	}
	return engine.VarInfo{
		Name:        v.name,
		Type:        v.kind,
		DimIDs:      append([]int(nil), v.dimIDs...),
		AttrCount:   len(v.attrs.names),
		Compression: v.compression,
	}, nil
}

// varByID must be called with st.mu held.
func (f *file) varByID(id int) (*varState, error) {
	if id < 0 || id >= len(f.st.vars) {
		return nil, fmt.Errorf("mem: %s: no variable with id %d", f.path, id)
	}
	return f.st.vars[id], nil
}

func (f *file) DefineDimension(name string, length int, unlimited bool) (int, error) {
	if err := f.checkDefine("define dimension"); err != nil {
		return 0, err
	}
	st := f.st
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, d := range st.dims {
		if d.Name == name {
			return 0, fmt.Errorf("mem: %s: dimension %q already defined", f.path, name)
		}
	}
	if unlimited {
		if st.unlimited >= 0 {
			return 0, fmt.Errorf("mem: %s: file already has an unlimited dimension (%s)",
				f.path, st.dims[st.unlimited].Name)
		}
		length = 0
	} else if length < 0 {
		return 0, fmt.Errorf("mem: %s: dimension %q: negative length %d", f.path, name, length)
	}
	id := len(st.dims)
	st.dims = append(st.dims, engine.DimInfo{Name: name, Length: length, Unlimited: unlimited})
	if unlimited {
		st.unlimited = id
	}
	return id, nil
}

func (f *file) DefineVariable(name string, kind engine.Kind, dimIDs []int) (int, error) {
	if err := f.checkDefine("define variable"); err != nil {
		return 0, err
	}
	if kind.Size() == 0 {
		return 0, fmt.Errorf("mem: %s: variable %q: invalid kind %v", f.path, name, kind)
	}
	st := f.st
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, v := range st.vars {
		if v.name == name {
			return 0, fmt.Errorf("mem: %s: variable %q already defined", f.path, name)
		}
	}
	for i, id := range dimIDs {
		if id < 0 || id >= len(st.dims) {
			return 0, fmt.Errorf("mem: %s: variable %q: no dimension with id %d", f.path, name, id)
		}
		if st.dims[id].Unlimited && i != 0 {
			return 0, fmt.Errorf("mem: %s: variable %q: unlimited dimension %s must come first",
				f.path, name, st.dims[id].Name)
		}
	}
	id := len(st.vars)
	st.vars = append(st.vars, &varState{
		name:   name,
		kind:   kind,
		dimIDs: append([]int(nil), dimIDs...),
		attrs:  newAttrMap(),
	})
	return id, nil
}

func (f *file) SetCompression(varID int, c engine.Compression) error {
	if err := f.checkDefine("set compression"); err != nil {
		return err
	}
	if c.Level < 0 || c.Level > 9 {
		return fmt.Errorf("mem: %s: compression level %d out of range", f.path, c.Level)
	}
	st := f.st
	st.mu.Lock()
	defer st.mu.Unlock()
	if c.Level > 0 && st.format < 4 {
		return fmt.Errorf("mem: %s: format version %d does not support compression", f.path, st.format)
	}
	v, err := f.varByID(varID)
	if err != nil {
		return err
	}
	v.compression = c
	return nil
}

func (f *file) AttributeNames(target int) ([]string, error) {
	if f.closed {
		return nil, f.errClosed("attribute names")
	}
	st := f.st
	st.mu.Lock()
	defer st.mu.Unlock()
	m, err := f.attrsFor(target)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), m.names...), nil
}

func (f *file) Attribute(target int, name string) (interface{}, error) {
	if f.closed {
		return nil, f.errClosed("attribute")
	}
	st := f.st
	st.mu.Lock()
	defer st.mu.Unlock()
	m, err := f.attrsFor(target)
	if err != nil {
		return nil, err
	}
	v, ok := m.values[name]
	if !ok {
		return nil, fmt.Errorf("mem: %s: no attribute %q", f.path, name)
	}
	return v, nil
}

func (f *file) PutAttribute(target int, name string, value interface{}) error {
	if err := f.checkDefine("put attribute"); err != nil {
		return err
	}
	switch value.(type) {
	case string, []int8, []int16, []int32, []float32, []float64:
	default:
		return fmt.Errorf("mem: %s: attribute %q: unsupported value type %T", f.path, name, value)
	}
	st := f.st
	st.mu.Lock()
	defer st.mu.Unlock()
	m, err := f.attrsFor(target)
	if err != nil {
		return err
	}
	m.put(name, value)
	return nil
}

// attrsFor must be called with st.mu held.
func (f *file) attrsFor(target int) (*attrMap, error) {
	if target == engine.Global {
		return f.st.gattrs, nil
	}
	v, err := f.varByID(target)
	if err != nil {
		return nil, err
	}
	return v.attrs, nil
}

func (f *file) EndDefinition() error {
	if err := f.checkDefine("end definition"); err != nil {
		return err
	}
	f.defining = false
	return nil
}

func (f *file) ReadArray(varID int, shape []int) (interface{}, error) {
	if f.closed {
		return nil, f.errClosed("read")
	}
	if f.defining {
		return nil, fmt.Errorf("mem: %s: read before end of definition", f.path)
	}
	st := f.st
	st.mu.Lock()
	defer st.mu.Unlock()
	v, err := f.varByID(varID)
	if err != nil {
		return nil, err
	}
	want, err := f.checkShape(v, shape, true)
	if err != nil {
		return nil, err
	}
	raw, err := unpack(v.data, v.compression, v.kind.Size())
	if err != nil {
		return nil, fmt.Errorf("mem: %s: variable %q: %v", f.path, v.name, err)
	}
	n := want * v.kind.Size()
	if len(raw) < n {
		// Records grown by another variable but never written here
		// read back as zeros.
		raw = append(raw, make([]byte, n-len(raw))...)
	}
	return decode(v.kind, raw[:n])
}

func (f *file) WriteArray(varID int, data interface{}, shape []int) error {
	if f.closed {
		return f.errClosed("write")
	}
	if !f.writable {
		return fmt.Errorf("mem: %s: file is read-only", f.path)
	}
	if f.defining {
		return fmt.Errorf("mem: %s: write before end of definition", f.path)
	}
	st := f.st
	st.mu.Lock()
	defer st.mu.Unlock()
	v, err := f.varByID(varID)
	if err != nil {
		return err
	}
	if _, err := f.checkShape(v, shape, false); err != nil {
		return err
	}
	raw, err := encode(v.kind, data)
	if err != nil {
		return fmt.Errorf("mem: %s: variable %q: %v", f.path, v.name, err)
	}
	if want := prod(shape) * v.kind.Size(); len(raw) != want {
		return fmt.Errorf("mem: %s: variable %q: %d bytes of data for shape %v (want %d)",
			f.path, v.name, len(raw), shape, want)
	}
	if f.isRecordVar(v) {
		// Writes start at record zero; records beyond the written
		// extent survive from earlier writes.
		old, err := unpack(v.data, v.compression, v.kind.Size())
		if err != nil {
			return fmt.Errorf("mem: %s: variable %q: %v", f.path, v.name, err)
		}
		if len(old) > len(raw) {
			raw = append(raw, old[len(raw):]...)
		}
		if d := &st.dims[v.dimIDs[0]]; shape[0] > d.Length {
			d.Length = shape[0]
		}
	}
	packed, err := pack(raw, v.compression, v.kind.Size())
	if err != nil {
		return fmt.Errorf("mem: %s: variable %q: %v", f.path, v.name, err)
	}
	v.data = packed
	return nil
}

// checkShape validates a full-slab shape against the variable's
// dimensions and returns the element count the shape covers. For reads
// the leading record extent must equal the current record count; for
// writes it may differ, since writing resizes the record dimension.
// Must be called with st.mu held.
func (f *file) checkShape(v *varState, shape []int, read bool) (int, error) {
	if len(shape) != len(v.dimIDs) {
		return 0, fmt.Errorf("mem: %s: variable %q: shape %v has rank %d, want %d",
			f.path, v.name, shape, len(shape), len(v.dimIDs))
	}
	for i, id := range v.dimIDs {
		d := f.st.dims[id]
		if shape[i] < 0 {
			return 0, fmt.Errorf("mem: %s: variable %q: negative extent %d", f.path, v.name, shape[i])
		}
		if d.Unlimited && !read {
			continue
		}
		if shape[i] != d.Length {
			return 0, fmt.Errorf("mem: %s: variable %q: extent %d along %s, want %d",
				f.path, v.name, shape[i], d.Name, d.Length)
		}
	}
	return prod(shape), nil
}

// isRecordVar must be called with st.mu held.
func (f *file) isRecordVar(v *varState) bool {
	return len(v.dimIDs) > 0 && f.st.dims[v.dimIDs[0]].Unlimited
}

func (f *file) checkDefine(op string) error {
	if f.closed {
		return f.errClosed(op)
	}
	if !f.writable {
		return fmt.Errorf("mem: %s: %s: file is read-only", f.path, op)
	}
	if !f.defining {
		return fmt.Errorf("mem: %s: %s: definition already ended", f.path, op)
	}
	return nil
}

func (f *file) errClosed(op string) error {
	return fmt.Errorf("mem: %s: %s: file is closed", f.path, op)
}

func prod(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
