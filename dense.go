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

	"github.com/ctessum/sparse"

	"github.com/spatialmodel/ncio/engine"
)

// ReadDense reads the full payload of the named variable into a
// sparse.DenseArray, widening the elements to float64 whatever the
// variable's stored type. It is a convenience for analysis code that
// works in float64 space regardless of how a file encodes its data.
func ReadDense(d *Dataset, name string) (*sparse.DenseArray, error) {
	v, err := d.FindVariable(name)
	if err != nil {
		return nil, err
	}
	if !transferable(v) {
		return nil, fmt.Errorf("ncio: variable %s: cannot read type %v, rank %d as dense data: %w",
			name, v.Type, v.Rank(), ErrTypeMismatch)
	}
	shape, err := d.currentShape(v)
	if err != nil {
		return nil, err
	}
	data, err := readRaw(d, v, shape)
	if err != nil {
		return nil, err
	}
	out := sparse.ZerosDense(shape...)
	switch s := data.(type) {
	case []float64:
		copy(out.Elements, s)
	case []float32:
		for i, val := range s {
			out.Elements[i] = float64(val)
		}
	case []int32:
		for i, val := range s {
			out.Elements[i] = float64(val)
		}
	case []int16:
		for i, val := range s {
			out.Elements[i] = float64(val)
		}
	default:
		return nil, storagef("variable %s: engine returned %T", name, data)
	}
	return out, nil
}

// WriteDense writes a sparse.DenseArray as the full payload of the
// named variable, narrowing the elements to the variable's stored
// type. The array's shape must satisfy the same rules as Write.
func WriteDense(d *Dataset, name string, a *sparse.DenseArray) error {
	v, err := d.FindVariable(name)
	if err != nil {
		return err
	}
	switch v.Type {
	case engine.Double:
		arr := &Array[float64]{Shape: a.Shape, Data: make([]float64, len(a.Elements))}
		copy(arr.Data, a.Elements)
		return Write(d, name, arr)
	case engine.Float:
		arr := &Array[float32]{Shape: a.Shape, Data: make([]float32, len(a.Elements))}
		for i, val := range a.Elements {
			arr.Data[i] = float32(val)
		}
		return Write(d, name, arr)
	case engine.Int:
		arr := &Array[int32]{Shape: a.Shape, Data: make([]int32, len(a.Elements))}
		for i, val := range a.Elements {
			arr.Data[i] = int32(val)
		}
		return Write(d, name, arr)
	case engine.Short:
		arr := &Array[int16]{Shape: a.Shape, Data: make([]int16, len(a.Elements))}
		for i, val := range a.Elements {
			arr.Data[i] = int16(val)
		}
		return Write(d, name, arr)
	default:
		return fmt.Errorf("ncio: variable %s: cannot write dense data as type %v: %w",
			name, v.Type, ErrTypeMismatch)
	}
}
