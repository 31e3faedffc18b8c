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
	"reflect"
	"strings"
	"testing"

	"github.com/spatialmodel/ncio/engine"
)

func TestCreateExclusive(t *testing.T) {
	e := New()
	f, err := e.Create("a.nc", engine.CreateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := e.Create("a.nc", engine.CreateOptions{}); err == nil {
		t.Error("second create of the same path succeeded")
	}
}

func TestDefinePhase(t *testing.T) {
	e := New()
	f, err := e.Create("a.nc", engine.CreateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	x, err := f.DefineDimension("x", 2, false)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := f.DefineDimension("t", 0, true)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("duplicate dimension", func(t *testing.T) {
		if _, err := f.DefineDimension("x", 5, false); err == nil {
			t.Error("duplicate dimension defined")
		}
	})
	t.Run("second unlimited", func(t *testing.T) {
		if _, err := f.DefineDimension("t2", 0, true); err == nil {
			t.Error("second unlimited dimension defined")
		}
	})
	t.Run("unlimited not first", func(t *testing.T) {
		if _, err := f.DefineVariable("bad", engine.Float, []int{x, rec}); err == nil {
			t.Error("variable with trailing unlimited dimension defined")
		}
	})

	v, err := f.DefineVariable("v", engine.Float, []int{rec, x})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.EndDefinition(); err != nil {
		t.Fatal(err)
	}

	t.Run("define after end", func(t *testing.T) {
		if _, err := f.DefineDimension("y", 2, false); err == nil {
			t.Error("dimension defined after end of definition")
		}
		if err := f.SetCompression(v, engine.Compression{Level: 1}); err == nil {
			t.Error("compression set after end of definition")
		}
	})
}

func TestCompressedRoundTrip(t *testing.T) {
	for _, c := range []engine.Compression{
		{Level: 0},
		{Level: 1},
		{Level: 9, Shuffle: true},
	} {
		f := func(t *testing.T) {
			e := New()
			fl, err := e.Create("a.nc", engine.CreateOptions{})
			if err != nil {
				t.Fatal(err)
			}
			x, err := fl.DefineDimension("x", 6, false)
			if err != nil {
				t.Fatal(err)
			}
			v, err := fl.DefineVariable("v", engine.Double, []int{x})
			if err != nil {
				t.Fatal(err)
			}
			if err := fl.SetCompression(v, c); err != nil {
				t.Fatal(err)
			}
			if err := fl.EndDefinition(); err != nil {
				t.Fatal(err)
			}
			want := []float64{0, 1, 1, 2, 3, 5}
			if err := fl.WriteArray(v, want, []int{6}); err != nil {
				t.Fatal(err)
			}
			got, err := fl.ReadArray(v, []int{6})
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("got %v, want %v", got, want)
			}
			info, err := fl.Variable(v)
			if err != nil {
				t.Fatal(err)
			}
			if info.Compression != c {
				t.Errorf("compression: got %+v, want %+v", info.Compression, c)
			}
			if err := fl.Close(); err != nil {
				t.Fatal(err)
			}
		}
		t.Run(c.String(), f)
	}
}

func TestClassicFormatRejectsCompression(t *testing.T) {
	e := New()
	f, err := e.Create("a.nc", engine.CreateOptions{FormatVersion: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	x, err := f.DefineDimension("x", 2, false)
	if err != nil {
		t.Fatal(err)
	}
	v, err := f.DefineVariable("v", engine.Float, []int{x})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.SetCompression(v, engine.Compression{Level: 3}); err == nil {
		t.Error("classic format accepted compression")
	}
}

// TestRecordOverwrite checks that record writes start at record zero
// and that records beyond a shorter re-write survive from the earlier
// write.
func TestRecordOverwrite(t *testing.T) {
	e := New()
	f, err := e.Create("a.nc", engine.CreateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rec, err := f.DefineDimension("t", 0, true)
	if err != nil {
		t.Fatal(err)
	}
	x, err := f.DefineDimension("x", 2, false)
	if err != nil {
		t.Fatal(err)
	}
	v, err := f.DefineVariable("v", engine.Int, []int{rec, x})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.EndDefinition(); err != nil {
		t.Fatal(err)
	}

	if err := f.WriteArray(v, []int32{1, 2, 3, 4, 5, 6}, []int{3, 2}); err != nil {
		t.Fatal(err)
	}
	if err := f.WriteArray(v, []int32{10, 20, 30, 40}, []int{2, 2}); err != nil {
		t.Fatal(err)
	}
	d, err := f.Dimension(rec)
	if err != nil {
		t.Fatal(err)
	}
	if d.Length != 3 {
		t.Fatalf("record count: got %d, want 3", d.Length)
	}
	got, err := f.ReadArray(v, []int{3, 2})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int32{10, 20, 30, 40, 5, 6}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestReadUnwrittenRecords(t *testing.T) {
	e := New()
	f, err := e.Create("a.nc", engine.CreateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rec, err := f.DefineDimension("t", 0, true)
	if err != nil {
		t.Fatal(err)
	}
	a, err := f.DefineVariable("a", engine.Short, []int{rec})
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.DefineVariable("b", engine.Short, []int{rec})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.EndDefinition(); err != nil {
		t.Fatal(err)
	}
	// Growing the file through one variable makes the other's new
	// records read back as zeros.
	if err := f.WriteArray(a, []int16{1, 2, 3}, []int{3}); err != nil {
		t.Fatal(err)
	}
	got, err := f.ReadArray(b, []int{3})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int16{0, 0, 0}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestReadOnly(t *testing.T) {
	e := New()
	f, err := e.Create("a.nc", engine.CreateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	x, err := f.DefineDimension("x", 1, false)
	if err != nil {
		t.Fatal(err)
	}
	v, err := f.DefineVariable("v", engine.Float, []int{x})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.EndDefinition(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := e.Open("a.nc")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	err = r.WriteArray(v, []float32{1}, []int{1})
	if err == nil {
		t.Fatal("write to read-only file succeeded")
	}
	if !strings.Contains(err.Error(), "read-only") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestShuffle(t *testing.T) {
	raw := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	shuffled := shuffle(raw, 4)
	if want := []byte{1, 5, 9, 2, 6, 10, 3, 7, 11, 4, 8, 12}; !reflect.DeepEqual(shuffled, want) {
		t.Fatalf("shuffle: got %v, want %v", shuffled, want)
	}
	if got := unshuffle(shuffled, 4); !reflect.DeepEqual(got, raw) {
		t.Errorf("unshuffle: got %v, want %v", got, raw)
	}
}

func TestCodec(t *testing.T) {
	for _, tc := range []struct {
		kind engine.Kind
		data interface{}
	}{
		{engine.Byte, []int8{-1, 0, 1}},
		{engine.Char, "abc"},
		{engine.Short, []int16{-300, 0, 300}},
		{engine.Int, []int32{-70000, 0, 70000}},
		{engine.Float, []float32{-1.5, 0, 1.5}},
		{engine.Double, []float64{-1.5e300, 0, 1.5e300}},
	} {
		t.Run(tc.kind.String(), func(t *testing.T) {
			raw, err := encode(tc.kind, tc.data)
			if err != nil {
				t.Fatal(err)
			}
			got, err := decode(tc.kind, raw)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tc.data) {
				t.Errorf("got %v, want %v", got, tc.data)
			}
		})
	}

	t.Run("kind mismatch", func(t *testing.T) {
		if _, err := encode(engine.Float, []float64{1}); err == nil {
			t.Error("encoded float64 data as float kind")
		}
	})
}
