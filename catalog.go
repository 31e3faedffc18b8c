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

// Package ncio mirrors the metadata of self-describing array files
// (dimensions, variables, attributes, as in NetCDF-style gridded-data
// files) into an in-memory catalog, and moves typed array payloads
// between memory and files through one dispatch point. It can open an
// existing file, describe its structure, clone that structure into a
// new file (optionally copying all data), and read or write full
// variables of rank 1 through 4 and element type float32, float64,
// int32 or int16.
//
// The on-disk encoding is delegated to a storage engine (see the
// engine package and its backends). A Dataset is not safe for
// concurrent use; concurrent work requires separate Datasets.
package ncio

import (
	"fmt"

	"github.com/spatialmodel/ncio/engine"
)

// Dimension describes one dimension of a dataset. Dimension identity
// is by name; the storage engine's numeric id is an implementation
// detail.
type Dimension struct {
	// Name is unique within a Dataset.
	Name string

	// Length is the dimension's extent at the time the catalog was
	// built. For the unlimited dimension the live length is re-read
	// from the engine when sizing I/O, since it may have grown.
	Length int

	// Unlimited reports whether this is the dataset's unlimited
	// (record) dimension. At most one dimension per dataset is
	// unlimited.
	Unlimited bool

	id int
}

// Variable describes one variable of a dataset. Attribute values are
// not cached here; they are read from the storage engine on demand.
type Variable struct {
	// Name is unique within a Dataset.
	Name string

	// Type is the element type.
	Type engine.Kind

	// Dims holds the names of the variable's dimensions in
	// declaration order, outermost axis first. The order determines
	// the axis order of the variable's arrays.
	Dims []string

	// Compression holds the variable's deflate settings.
	Compression engine.Compression

	// AttrCount is the number of attributes attached to the variable.
	AttrCount int

	id int
}

// Rank returns the variable's number of dimensions.
func (v *Variable) Rank() int { return len(v.Dims) }

// Dataset is the in-memory catalog of one open file. It reflects the
// file's structure at the time it was built; only the unlimited
// dimension's length changes afterward, and that is re-queried from
// the engine as needed.
type Dataset struct {
	// Path is the file path the dataset was opened or created with.
	Path string

	// Dims holds the dataset's dimensions in storage order.
	Dims []Dimension

	// Vars holds the dataset's variables in storage order.
	Vars []Variable

	// GlobalAttrCount is the number of global attributes.
	GlobalAttrCount int

	file      engine.File
	unlimited int // index into Dims, or -1
}

// FindVariable returns the variable with the given name. The lookup is
// an exact, case-sensitive linear scan; datasets in this domain hold
// at most a few hundred variables.
func (d *Dataset) FindVariable(name string) (*Variable, error) {
	for i := range d.Vars {
		if d.Vars[i].Name == name {
			return &d.Vars[i], nil
		}
	}
	return nil, fmt.Errorf("ncio: variable %q: %w", name, ErrNotFound)
}

// FindDimension returns the dimension with the given name, by exact,
// case-sensitive match.
func (d *Dataset) FindDimension(name string) (*Dimension, error) {
	for i := range d.Dims {
		if d.Dims[i].Name == name {
			return &d.Dims[i], nil
		}
	}
	return nil, fmt.Errorf("ncio: dimension %q: %w", name, ErrNotFound)
}

// Unlimited returns the dataset's unlimited dimension, if it has one.
func (d *Dataset) Unlimited() (*Dimension, bool) {
	if d.unlimited < 0 {
		return nil, false
	}
	return &d.Dims[d.unlimited], true
}

// AttributeNames returns the attribute names of the named variable in
// storage order. The empty string addresses global attributes.
func (d *Dataset) AttributeNames(varName string) ([]string, error) {
	target, err := d.attrTarget(varName)
	if err != nil {
		return nil, err
	}
	names, err := d.file.AttributeNames(target)
	if err != nil {
		return nil, storagef("attributes of %s: %v", d.Path, err)
	}
	return names, nil
}

// Attribute returns the value of the named attribute as one of string,
// []int8, []int16, []int32, []float32 or []float64. The empty variable
// name addresses global attributes.
func (d *Dataset) Attribute(varName, attrName string) (interface{}, error) {
	target, err := d.attrTarget(varName)
	if err != nil {
		return nil, err
	}
	v, err := d.file.Attribute(target, attrName)
	if err != nil {
		return nil, storagef("attribute %s of %s: %v", attrName, d.Path, err)
	}
	return v, nil
}

func (d *Dataset) attrTarget(varName string) (int, error) {
	if varName == "" {
		return engine.Global, nil
	}
	v, err := d.FindVariable(varName)
	if err != nil {
		return 0, err
	}
	return v.id, nil
}

// Close releases the dataset's storage-engine handle. The catalog is
// unusable afterward. Every opened or cloned Dataset must be closed
// exactly once.
func (d *Dataset) Close() error {
	if err := d.file.Close(); err != nil {
		return storagef("closing %s: %v", d.Path, err)
	}
	return nil
}

// dim returns the dimension record for a name held by one of the
// dataset's own variables.
func (d *Dataset) dim(name string) (*Dimension, error) {
	dim, err := d.FindDimension(name)
	if err != nil {
		return nil, fmt.Errorf("ncio: %s: dangling dimension reference %q: %w", d.Path, name, ErrNotFound)
	}
	return dim, nil
}

// currentShape returns a variable's per-dimension extents, re-querying
// the engine for the unlimited dimension's live length.
func (d *Dataset) currentShape(v *Variable) ([]int, error) {
	shape := make([]int, len(v.Dims))
	for i, name := range v.Dims {
		dim, err := d.dim(name)
		if err != nil {
			return nil, err
		}
		if dim.Unlimited {
			info, err := d.file.Dimension(dim.id)
			if err != nil {
				return nil, storagef("querying dimension %s of %s: %v", dim.Name, d.Path, err)
			}
			shape[i] = info.Length
		} else {
			shape[i] = dim.Length
		}
	}
	return shape, nil
}
