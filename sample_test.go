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
	"testing"

	"github.com/spatialmodel/ncio/engine"
	"github.com/spatialmodel/ncio/engine/mem"
)

// buildSample creates a small dataset exercising every structural
// feature: an unlimited dimension, all four transferable element
// types, a byte variable the dispatcher does not transfer, per-file
// and per-variable attributes, and one compressed variable.
func buildSample(t *testing.T, e *mem.Engine, path string) {
	t.Helper()
	f, err := e.Create(path, engine.CreateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.PutAttribute(engine.Global, "title", "sample dataset"); err != nil {
		t.Fatal(err)
	}
	if err := f.PutAttribute(engine.Global, "version", []int32{3}); err != nil {
		t.Fatal(err)
	}

	timeID, err := f.DefineDimension("time", 0, true)
	if err != nil {
		t.Fatal(err)
	}
	latID, err := f.DefineDimension("lat", 3, false)
	if err != nil {
		t.Fatal(err)
	}
	lonID, err := f.DefineDimension("lon", 4, false)
	if err != nil {
		t.Fatal(err)
	}

	tempID, err := f.DefineVariable("T2", engine.Float, []int{timeID, latID, lonID})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.PutAttribute(tempID, "units", "K"); err != nil {
		t.Fatal(err)
	}
	if err := f.PutAttribute(tempID, "description", "2-m temperature"); err != nil {
		t.Fatal(err)
	}
	elevID, err := f.DefineVariable("elevation", engine.Double, []int{latID, lonID})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.SetCompression(elevID, engine.Compression{Level: 5, Shuffle: true}); err != nil {
		t.Fatal(err)
	}
	maskID, err := f.DefineVariable("mask", engine.Byte, []int{latID, lonID})
	if err != nil {
		t.Fatal(err)
	}
	countID, err := f.DefineVariable("count", engine.Short, []int{lonID})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.EndDefinition(); err != nil {
		t.Fatal(err)
	}

	if err := f.WriteArray(tempID, sampleT2(2), []int{2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if err := f.WriteArray(elevID, sampleElevation(), []int{3, 4}); err != nil {
		t.Fatal(err)
	}
	if err := f.WriteArray(maskID, []int8{1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0}, []int{3, 4}); err != nil {
		t.Fatal(err)
	}
	if err := f.WriteArray(countID, []int16{10, 20, 30, 40}, []int{4}); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

// sampleT2 returns n records of 2-m temperature test data.
func sampleT2(n int) []float32 {
	out := make([]float32, n*3*4)
	for i := range out {
		out[i] = 270 + 0.5*float32(i)
	}
	return out
}

func sampleElevation() []float64 {
	out := make([]float64, 12)
	for i := range out {
		out[i] = 100 * float64(i)
	}
	return out
}

// openSample builds the sample dataset in a fresh in-memory engine and
// opens it.
func openSample(t *testing.T) (*mem.Engine, *Dataset) {
	t.Helper()
	e := mem.New()
	buildSample(t, e, "sample.nc")
	d, err := Open(e, "sample.nc")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return e, d
}
