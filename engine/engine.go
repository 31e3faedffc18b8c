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

// Package engine defines the storage-engine interface that the ncio
// catalog layer is built on. A storage engine owns the on-disk (or
// in-memory) representation of a self-describing array file: its
// dimensions, variables, attributes, and typed array payloads. The
// interface mirrors the classic NetCDF data model: a file is created in
// define mode, its structure is sealed with EndDefinition, and bulk
// array I/O happens afterward.
//
// All operations return explicit errors; engines must not keep error
// state in package-level variables.
package engine

import "fmt"

// Kind identifies the element type of a variable or attribute,
// following the classic NetCDF type set.
type Kind int

const (
	// None is the zero Kind and is never stored in a file.
	None Kind = iota
	// Byte is an 8-bit signed integer ([]int8 in Go).
	Byte
	// Char is character data (string in Go).
	Char
	// Short is a 16-bit signed integer ([]int16 in Go).
	Short
	// Int is a 32-bit signed integer ([]int32 in Go).
	Int
	// Float is a 32-bit floating point number ([]float32 in Go).
	Float
	// Double is a 64-bit floating point number ([]float64 in Go).
	Double
)

func (k Kind) String() string {
	switch k {
	case Byte:
		return "byte"
	case Char:
		return "char"
	case Short:
		return "short"
	case Int:
		return "int"
	case Float:
		return "float"
	case Double:
		return "double"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Size returns the number of bytes used to store one element of this
// kind.
func (k Kind) Size() int {
	switch k {
	case Byte, Char:
		return 1
	case Short:
		return 2
	case Int, Float:
		return 4
	case Double:
		return 8
	default:
		return 0
	}
}

// Global is the attribute target id addressing a file's global
// attributes rather than a variable's.
const Global = -1

// Counts holds the overall structure counts of an open file.
type Counts struct {
	Dims        int // number of dimensions
	Vars        int // number of variables
	GlobalAttrs int // number of global attributes

	// Unlimited is the dimension id of the unlimited (record)
	// dimension, or -1 if the file has none.
	Unlimited int
}

// DimInfo describes one dimension of an open file.
type DimInfo struct {
	Name      string
	Length    int
	Unlimited bool
}

// VarInfo describes one variable of an open file. DimIDs holds the
// engine's dimension ids in declaration order, outermost first.
type VarInfo struct {
	Name        string
	Type        Kind
	DimIDs      []int
	AttrCount   int
	Compression Compression
}

// Compression holds a variable's deflate settings. Level 0 means no
// compression. Shuffle reports whether the byte-shuffle filter is
// applied before compression.
type Compression struct {
	Level   int
	Shuffle bool
}

func (c Compression) String() string {
	if c.Level == 0 {
		return "none"
	}
	if c.Shuffle {
		return fmt.Sprintf("deflate-%d+shuffle", c.Level)
	}
	return fmt.Sprintf("deflate-%d", c.Level)
}

// CreateOptions configures file creation.
type CreateOptions struct {
	// FormatVersion selects the file format variant to create. Zero
	// means the engine's default. Engines that cannot honor the
	// requested version return an error from Create.
	FormatVersion int
}

// An Engine opens and creates files of one concrete storage format.
// Engines are safe for use from multiple goroutines; the Files they
// return are not.
type Engine interface {
	// Open opens an existing file read-only.
	Open(path string) (File, error)

	// Create creates a new file in define mode. It fails if the path
	// cannot be written or a file already exists there.
	Create(path string, opts CreateOptions) (File, error)
}

// A File is one open storage-engine session. A file obtained from
// Engine.Open answers inquiry and read calls only. A file obtained
// from Engine.Create starts in define mode, in which the Define*,
// SetCompression and PutAttribute calls build the file's structure;
// EndDefinition seals the structure, after which WriteArray and the
// inquiry and read calls become available.
//
// A File must be closed exactly once; Close releases the underlying
// resources.
type File interface {
	// Path returns the path the file was opened or created with.
	Path() string

	// Counts returns the file's structure counts.
	Counts() (Counts, error)

	// Dimension describes the dimension with the given id. For the
	// unlimited dimension the returned length is the current number
	// of records, re-read from the file.
	Dimension(id int) (DimInfo, error)

	// Variable describes the variable with the given id.
	Variable(id int) (VarInfo, error)

	// DefineDimension adds a dimension in define mode and returns its
	// id. An unlimited dimension is created with length zero; the
	// length argument is ignored in that case.
	DefineDimension(name string, length int, unlimited bool) (int, error)

	// DefineVariable adds a variable in define mode and returns its
	// id. The dimension ids are given in declaration order, outermost
	// first; the unlimited dimension, if referenced, must come first.
	DefineVariable(name string, kind Kind, dimIDs []int) (int, error)

	// SetCompression sets a variable's deflate settings in define
	// mode, before any data is written.
	SetCompression(varID int, c Compression) error

	// AttributeNames returns the attribute names of the given target
	// (a variable id or Global) in storage order.
	AttributeNames(target int) ([]string, error)

	// Attribute returns the value of the named attribute as one of
	// string, []int8, []int16, []int32, []float32 or []float64.
	Attribute(target int, name string) (interface{}, error)

	// PutAttribute stores an attribute value in define mode. Values
	// use the same representation as Attribute returns, so attributes
	// read from one engine can be put to another verbatim.
	PutAttribute(target int, name string, value interface{}) error

	// EndDefinition seals the file's structure. No structural changes
	// are possible afterward.
	EndDefinition() error

	// ReadArray reads a variable's full payload. The shape must be
	// the variable's current per-dimension extents, outermost first;
	// the returned value is a typed slice (or string for Char
	// variables) holding the elements in row-major order.
	ReadArray(varID int, shape []int) (interface{}, error)

	// WriteArray writes a variable's full payload starting at offset
	// zero along every axis. If the leading axis is the unlimited
	// dimension, an extent beyond the current record count grows the
	// file.
	WriteArray(varID int, data interface{}, shape []int) error

	// Close releases the session. Engines finalize any pending
	// bookkeeping (such as the record count) before closing.
	Close() error
}
