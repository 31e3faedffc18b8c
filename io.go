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

package ncio

import (
	"fmt"

	"github.com/spatialmodel/ncio/engine"
)

// maxRank is the largest variable rank the typed dispatcher transfers.
const maxRank = 4

// Element constrains the element types the typed dispatcher supports.
type Element interface {
	float32 | float64 | int32 | int16
}

// Array is a rectangular array of rank len(Shape) with elements stored
// in row-major order, outermost axis first. The axis order matches the
// variable's dimension declaration order.
type Array[T Element] struct {
	Shape []int
	Data  []T
}

// NewArray returns a zero-filled array with the given shape.
func NewArray[T Element](shape ...int) *Array[T] {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return &Array[T]{Shape: append([]int(nil), shape...), Data: make([]T, n)}
}

// Rank returns the array's number of axes.
func (a *Array[T]) Rank() int { return len(a.Shape) }

// Len returns the array's total element count.
func (a *Array[T]) Len() int {
	n := 1
	for _, s := range a.Shape {
		n *= s
	}
	return n
}

// At returns the element at the given per-axis indices.
func (a *Array[T]) At(index ...int) T {
	return a.Data[a.offset(index)]
}

// Set stores v at the given per-axis indices.
func (a *Array[T]) Set(v T, index ...int) {
	a.Data[a.offset(index)] = v
}

func (a *Array[T]) offset(index []int) int {
	if len(index) != len(a.Shape) {
		panic(fmt.Sprintf("ncio: %d indices for rank-%d array", len(index), len(a.Shape)))
	}
	off := 0
	for i, x := range index {
		if x < 0 || x >= a.Shape[i] {
			panic(fmt.Sprintf("ncio: index %d out of range for axis %d (extent %d)", x, i, a.Shape[i]))
		}
		off = off*a.Shape[i] + x
	}
	return off
}

// Read reads the full payload of the named variable into a freshly
// allocated array. The type parameter and rank declare the shape of
// array the caller expects; they are checked against the catalog
// before any transfer, and a mismatch means the caller's array layout
// is wrong, not a recoverable condition. The array is sized to the
// variable's current extents, re-querying the unlimited dimension's
// live length. Partial reads are not supported.
func Read[T Element](d *Dataset, name string, rank int) (*Array[T], error) {
	v, err := d.FindVariable(name)
	if err != nil {
		return nil, err
	}
	if err := checkVar(v, kindFor[T](), rank); err != nil {
		return nil, err
	}
	shape, err := d.currentShape(v)
	if err != nil {
		return nil, err
	}
	data, err := readRaw(d, v, shape)
	if err != nil {
		return nil, err
	}
	typed, ok := data.([]T)
	if !ok {
		return nil, storagef("variable %s: engine returned %T", name, data)
	}
	return &Array[T]{Shape: shape, Data: typed}, nil
}

// Write writes an array as the full payload of the named variable,
// starting at offset zero along every axis. The array's rank and
// extents must match the variable's current extents exactly, except
// along the unlimited dimension, where a larger extent grows the
// variable: a write always overwrites from record zero, so the new
// extent fully determines the variable's contents up to it.
func Write[T Element](d *Dataset, name string, a *Array[T]) error {
	v, err := d.FindVariable(name)
	if err != nil {
		return err
	}
	if err := checkVar(v, kindFor[T](), a.Rank()); err != nil {
		return err
	}
	if len(a.Data) != a.Len() {
		return fmt.Errorf("ncio: variable %s: %d elements for shape %v: %w",
			name, len(a.Data), a.Shape, ErrShapeMismatch)
	}
	for i, dimName := range v.Dims {
		dim, err := d.dim(dimName)
		if err != nil {
			return err
		}
		if dim.Unlimited {
			continue
		}
		if a.Shape[i] != dim.Length {
			return fmt.Errorf("ncio: variable %s: extent %d along %s, want %d: %w",
				name, a.Shape[i], dimName, dim.Length, ErrShapeMismatch)
		}
	}
	if err := d.file.WriteArray(v.id, a.Data, a.Shape); err != nil {
		return storagef("writing variable %s: %v", name, err)
	}
	return nil
}

// checkVar validates the caller-declared element kind and rank against
// the catalog record.
func checkVar(v *Variable, kind engine.Kind, rank int) error {
	if v.Type != kind {
		return fmt.Errorf("ncio: variable %s holds %v, not %v: %w",
			v.Name, v.Type, kind, ErrTypeMismatch)
	}
	if rank != v.Rank() {
		return fmt.Errorf("ncio: variable %s has rank %d, not %d: %w",
			v.Name, v.Rank(), rank, ErrShapeMismatch)
	}
	if rank < 1 || rank > maxRank {
		return fmt.Errorf("ncio: variable %s: rank %d outside supported range 1-%d: %w",
			v.Name, rank, maxRank, ErrShapeMismatch)
	}
	return nil
}

// readRaw performs the untyped full-variable transfer shared by the
// typed readers and the cloner's data-copy step.
func readRaw(d *Dataset, v *Variable, shape []int) (interface{}, error) {
	data, err := d.file.ReadArray(v.id, shape)
	if err != nil {
		return nil, storagef("reading variable %s: %v", v.Name, err)
	}
	return data, nil
}

// transferable reports whether the typed dispatcher can move the
// variable's payload: one of the four supported element types with
// rank 1 through 4.
func transferable(v *Variable) bool {
	switch v.Type {
	case engine.Short, engine.Int, engine.Float, engine.Double:
	default:
		return false
	}
	return v.Rank() >= 1 && v.Rank() <= maxRank
}

// kindFor maps a dispatcher element type to the engine kind.
func kindFor[T Element]() engine.Kind {
	var z T
	switch interface{}(z).(type) {
	case float32:
		return engine.Float
	case float64:
		return engine.Double
	case int32:
		return engine.Int
	case int16:
		return engine.Short
	default:
		return engine.None
	}
}
