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

package mem

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/flate"

	"github.com/spatialmodel/ncio/engine"
)

// encode converts a typed slice (or string for Char) to little-endian
// bytes in row-major element order.
func encode(kind engine.Kind, data interface{}) ([]byte, error) {
	switch d := data.(type) {
	case []int8:
		if kind != engine.Byte {
			break
		}
		out := make([]byte, len(d))
		for i, v := range d {
			out[i] = byte(v)
		}
		return out, nil
	case string:
		if kind != engine.Char {
			break
		}
		return []byte(d), nil
	case []int16:
		if kind != engine.Short {
			break
		}
		out := make([]byte, 2*len(d))
		for i, v := range d {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
		}
		return out, nil
	case []int32:
		if kind != engine.Int {
			break
		}
		out := make([]byte, 4*len(d))
		for i, v := range d {
			binary.LittleEndian.PutUint32(out[4*i:], uint32(v))
		}
		return out, nil
	case []float32:
		if kind != engine.Float {
			break
		}
		out := make([]byte, 4*len(d))
		for i, v := range d {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
		}
		return out, nil
	case []float64:
		if kind != engine.Double {
			break
		}
		out := make([]byte, 8*len(d))
		for i, v := range d {
			binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(v))
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot store %T as %v", data, kind)
}

// decode converts little-endian bytes back to the typed slice (or
// string) representation for the given kind.
func decode(kind engine.Kind, raw []byte) (interface{}, error) {
	size := kind.Size()
	if size == 0 {
		return nil, fmt.Errorf("invalid kind %v", kind)
	}
	if len(raw)%size != 0 {
		return nil, fmt.Errorf("%d stored bytes is not a multiple of element size %d", len(raw), size)
	}
	n := len(raw) / size
	switch kind {
	case engine.Byte:
		out := make([]int8, n)
		for i := range out {
			out[i] = int8(raw[i])
		}
		return out, nil
	case engine.Char:
		return string(raw), nil
	case engine.Short:
		out := make([]int16, n)
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
		}
		return out, nil
	case engine.Int:
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(raw[4*i:]))
		}
		return out, nil
	case engine.Float:
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
		return out, nil
	case engine.Double:
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
		}
		return out, nil
	}
	return nil, fmt.Errorf("invalid kind %v", kind)
}

// pack applies the variable's shuffle and deflate settings to a raw
// slab before storage.
func pack(raw []byte, c engine.Compression, elemSize int) ([]byte, error) {
	if c.Level == 0 {
		return raw, nil
	}
	if c.Shuffle {
		raw = shuffle(raw, elemSize)
	}
	var buf bytes.Buffer
	zw, err := flate.NewWriter(&buf, c.Level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// unpack reverses pack. A nil slab (variable never written) unpacks to
// nil.
func unpack(stored []byte, c engine.Compression, elemSize int) ([]byte, error) {
	if stored == nil {
		return nil, nil
	}
	if c.Level == 0 {
		return append([]byte(nil), stored...), nil
	}
	zr := flate.NewReader(bytes.NewReader(stored))
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	if err := zr.Close(); err != nil {
		return nil, err
	}
	if c.Shuffle {
		raw = unshuffle(raw, elemSize)
	}
	return raw, nil
}

// shuffle reorders a slab so that the first bytes of all elements come
// first, then all second bytes, and so on, which groups similar bytes
// for the deflate stage.
func shuffle(raw []byte, elemSize int) []byte {
	if elemSize <= 1 || len(raw)%elemSize != 0 {
		return raw
	}
	n := len(raw) / elemSize
	out := make([]byte, len(raw))
	for i := 0; i < n; i++ {
		for j := 0; j < elemSize; j++ {
			out[j*n+i] = raw[i*elemSize+j]
		}
	}
	return out
}

func unshuffle(raw []byte, elemSize int) []byte {
	if elemSize <= 1 || len(raw)%elemSize != 0 {
		return raw
	}
	n := len(raw) / elemSize
	out := make([]byte, len(raw))
	for i := 0; i < n; i++ {
		for j := 0; j < elemSize; j++ {
			out[i*elemSize+j] = raw[j*n+i]
		}
	}
	return out
}
