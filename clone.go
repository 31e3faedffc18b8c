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

	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/ncio/engine"
)

// Option configures Clone.
type Option func(*cloneConfig)

type cloneConfig struct {
	log    logrus.FieldLogger
	format int
}

// WithLogger sets the logger that receives clone progress and the
// warnings about skipped variables. The default is the logrus standard
// logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *cloneConfig) { c.log = l }
}

// WithFormatVersion sets the file format version the destination is
// created with. Zero means the destination engine's default.
func WithFormatVersion(v int) Option {
	return func(c *cloneConfig) { c.format = v }
}

// Clone creates a new file at path through the given engine and
// defines in it the same structure as src: every global attribute,
// every dimension and every variable with its element type, dimension
// sequence, compression settings and attributes, all in source order.
// The unlimited dimension, if any, is created empty regardless of its
// current length in the source; growing data must be written to give
// it length.
//
// Dimension references are resolved by name against the destination's
// newly created dimensions, never by the source's positional ids,
// since ids are not stable across a create.
//
// If copyData is true, the full payload of every variable the typed
// dispatcher supports (element type float32, float64, int32 or int16,
// rank 1 through 4) is copied from src into the destination after the
// structure is sealed. Variables of other types or ranks are skipped
// with a warning naming the variable; any other failure aborts the
// whole clone.
//
// The source and destination may use different storage engines. The
// returned Dataset must be closed.
func Clone(src *Dataset, e engine.Engine, path string, copyData bool, opts ...Option) (*Dataset, error) {
	cfg := cloneConfig{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}

	dst, err := e.Create(path, engine.CreateOptions{FormatVersion: cfg.format})
	if err != nil {
		return nil, fmt.Errorf("ncio: creating %s: %v: %w", path, err, ErrCreate)
	}
	d, err := define(src, dst, path, &cfg)
	if err != nil {
		dst.Close()
		return nil, err
	}
	if copyData {
		if err := copyPayloads(src, d, &cfg); err != nil {
			dst.Close()
			return nil, err
		}
	}
	return d, nil
}

// define replicates src's structure into the destination file and
// returns the destination's catalog. The definition phase is closed
// before returning, so the caller may begin bulk data transfer.
func define(src *Dataset, dst engine.File, path string, cfg *cloneConfig) (*Dataset, error) {
	if err := copyAttributes(src, dst, "", engine.Global, engine.Global); err != nil {
		return nil, err
	}

	d := &Dataset{
		Path:            path,
		GlobalAttrCount: src.GlobalAttrCount,
		file:            dst,
		unlimited:       -1,
	}
	dimIDs := make(map[string]int, len(src.Dims))
	for _, dim := range src.Dims {
		length := dim.Length
		if dim.Unlimited {
			// The destination's record dimension starts empty.
			length = 0
		}
		id, err := dst.DefineDimension(dim.Name, length, dim.Unlimited)
		if err != nil {
			return nil, storagef("defining dimension %s in %s: %v", dim.Name, path, err)
		}
		dimIDs[dim.Name] = id
		d.Dims = append(d.Dims, Dimension{
			Name:      dim.Name,
			Length:    length,
			Unlimited: dim.Unlimited,
			id:        id,
		})
		if dim.Unlimited {
			d.unlimited = len(d.Dims) - 1
		}
	}

	for i := range src.Vars {
		v := &src.Vars[i]
		ids := make([]int, len(v.Dims))
		for j, name := range v.Dims {
			id, ok := dimIDs[name]
			if !ok {
				return nil, fmt.Errorf("ncio: variable %s references dimension %q: %w",
					v.Name, name, ErrNotFound)
			}
			ids[j] = id
		}
		id, err := dst.DefineVariable(v.Name, v.Type, ids)
		if err != nil {
			return nil, storagef("defining variable %s in %s: %v", v.Name, path, err)
		}
		if v.Compression.Level > 0 {
			// Compression must be fixed before the first write.
			if err := dst.SetCompression(id, v.Compression); err != nil {
				return nil, storagef("setting compression of %s in %s: %v", v.Name, path, err)
			}
		}
		if err := copyAttributes(src, dst, v.Name, v.id, id); err != nil {
			return nil, err
		}
		d.Vars = append(d.Vars, Variable{
			Name:        v.Name,
			Type:        v.Type,
			Dims:        append([]string(nil), v.Dims...),
			Compression: v.Compression,
			AttrCount:   v.AttrCount,
			id:          id,
		})
	}

	if err := dst.EndDefinition(); err != nil {
		return nil, storagef("closing definition of %s: %v", path, err)
	}
	cfg.log.WithFields(logrus.Fields{
		"file":       path,
		"dimensions": len(d.Dims),
		"variables":  len(d.Vars),
	}).Debug("ncio: cloned structure")
	return d, nil
}

// copyAttributes copies every attribute of one source target to the
// destination verbatim, preserving order. The variable name is only
// used in error messages; the empty string denotes the global set.
func copyAttributes(src *Dataset, dst engine.File, varName string, srcTarget, dstTarget int) error {
	names, err := src.file.AttributeNames(srcTarget)
	if err != nil {
		return attrCopyErr(varName, src.Path, err)
	}
	for _, name := range names {
		value, err := src.file.Attribute(srcTarget, name)
		if err != nil {
			return attrCopyErr(varName, src.Path, err)
		}
		if err := dst.PutAttribute(dstTarget, name, value); err != nil {
			return attrCopyErr(varName, dst.Path(), err)
		}
	}
	return nil
}

func attrCopyErr(varName, path string, err error) error {
	target := "global attributes"
	if varName != "" {
		target = fmt.Sprintf("attributes of %s", varName)
	}
	return fmt.Errorf("ncio: copying %s (%s): %v: %w", target, path, err, ErrAttributeCopy)
}

// copyPayloads moves every transferable variable's full payload from
// src to the already-defined destination dataset. Skips are non-fatal
// and reported through the configured logger; transfer errors abort
// the clone.
func copyPayloads(src, dst *Dataset, cfg *cloneConfig) error {
	for i := range src.Vars {
		v := &src.Vars[i]
		if !transferable(v) {
			cfg.log.WithField("variable", v.Name).Warnf(
				"ncio: not copying data of type %v, rank %d", v.Type, v.Rank())
			continue
		}
		shape, err := src.currentShape(v)
		if err != nil {
			return err
		}
		data, err := readRaw(src, v, shape)
		if err != nil {
			return err
		}
		dv, err := dst.FindVariable(v.Name)
		if err != nil {
			return err
		}
		if err := dst.file.WriteArray(dv.id, data, shape); err != nil {
			return storagef("writing variable %s to %s: %v", v.Name, dst.Path, err)
		}
	}
	return nil
}
