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

// Open opens the file at path read-only through the given storage
// engine and mirrors its structure into a Dataset. Any engine failure
// aborts catalog construction; there is no partial recovery. The
// returned Dataset must be closed.
func Open(e engine.Engine, path string) (*Dataset, error) {
	f, err := e.Open(path)
	if err != nil {
		return nil, storagef("opening %s: %v", path, err)
	}
	d, err := introspect(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

// introspect builds a Dataset by querying an open engine file for its
// dimensions and variables in storage order. Variable dimension
// references are resolved by the engine's dimension ids, which were
// assigned in the same pass as the dimension records.
func introspect(f engine.File, path string) (*Dataset, error) {
	counts, err := f.Counts()
	if err != nil {
		return nil, storagef("inquiring %s: %v", path, err)
	}
	d := &Dataset{
		Path:            path,
		GlobalAttrCount: counts.GlobalAttrs,
		file:            f,
		unlimited:       -1,
	}
	for id := 0; id < counts.Dims; id++ {
		info, err := f.Dimension(id)
		if err != nil {
			return nil, storagef("inquiring dimension %d of %s: %v", id, path, err)
		}
		d.Dims = append(d.Dims, Dimension{
			Name:      info.Name,
			Length:    info.Length,
			Unlimited: info.Unlimited,
			id:        id,
		})
	}
	if counts.Unlimited >= 0 {
		if counts.Unlimited >= len(d.Dims) {
			return nil, storagef("inquiring %s: unlimited dimension id %d out of range", path, counts.Unlimited)
		}
		d.unlimited = counts.Unlimited
	}
	for id := 0; id < counts.Vars; id++ {
		info, err := f.Variable(id)
		if err != nil {
			return nil, storagef("inquiring variable %d of %s: %v", id, path, err)
		}
		dims := make([]string, len(info.DimIDs))
		for i, dimID := range info.DimIDs {
			if dimID < 0 || dimID >= len(d.Dims) {
				return nil, storagef("inquiring variable %s of %s: no dimension with id %d",
					info.Name, path, dimID)
			}
			dims[i] = d.Dims[dimID].Name
		}
		d.Vars = append(d.Vars, Variable{
			Name:        info.Name,
			Type:        info.Type,
			Dims:        dims,
			Compression: info.Compression,
			AttrCount:   info.AttrCount,
			id:          id,
		})
	}
	return d, nil
}

// Shape returns the named variable's current per-dimension extents in
// declaration order, re-querying the unlimited dimension's live
// length.
func (d *Dataset) Shape(name string) ([]int, error) {
	v, err := d.FindVariable(name)
	if err != nil {
		return nil, err
	}
	return d.currentShape(v)
}

// String summarizes the dataset structure for diagnostics.
func (d *Dataset) String() string {
	return fmt.Sprintf("ncio.Dataset(%s: %d dimensions, %d variables, %d global attributes)",
		d.Path, len(d.Dims), len(d.Vars), d.GlobalAttrCount)
}
