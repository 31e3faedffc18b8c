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
	"errors"
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// TestCloneStructure checks that cloning without data reproduces the
// source structure exactly, with the unlimited dimension reset to
// empty.
func TestCloneStructure(t *testing.T) {
	e, src := openSample(t)
	d, err := Clone(src, e, "copy.nc", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	// Re-open the destination so the comparison sees what the file
	// says, not what Clone reported.
	dst, err := Open(e, "copy.nc")
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Close()

	t.Run("dimensions", func(t *testing.T) {
		if len(dst.Dims) != len(src.Dims) {
			t.Fatalf("number of dimensions: %d != %d", len(dst.Dims), len(src.Dims))
		}
		for i, sd := range src.Dims {
			dd := dst.Dims[i]
			if dd.Name != sd.Name || dd.Unlimited != sd.Unlimited {
				t.Errorf("dimension %d: got %+v, want %+v", i, dd, sd)
			}
			switch {
			case sd.Unlimited:
				if dd.Length != 0 {
					t.Errorf("unlimited dimension %s: length %d, want 0", dd.Name, dd.Length)
				}
			case dd.Length != sd.Length:
				t.Errorf("dimension %s: length %d, want %d", dd.Name, dd.Length, sd.Length)
			}
		}
	})

	t.Run("variables", func(t *testing.T) {
		if len(dst.Vars) != len(src.Vars) {
			t.Fatalf("number of variables: %d != %d", len(dst.Vars), len(src.Vars))
		}
		for i, sv := range src.Vars {
			dv := dst.Vars[i]
			if dv.Name != sv.Name || dv.Type != sv.Type {
				t.Errorf("variable %d: got %s (%v), want %s (%v)", i, dv.Name, dv.Type, sv.Name, sv.Type)
			}
			if !reflect.DeepEqual(dv.Dims, sv.Dims) {
				t.Errorf("variable %s: dimensions %v, want %v", dv.Name, dv.Dims, sv.Dims)
			}
			if dv.Compression != sv.Compression {
				t.Errorf("variable %s: compression %+v, want %+v", dv.Name, dv.Compression, sv.Compression)
			}
		}
	})

	t.Run("attributes", func(t *testing.T) {
		for _, varName := range []string{"", "T2", "elevation", "mask", "count"} {
			srcNames, err := src.AttributeNames(varName)
			if err != nil {
				t.Fatal(err)
			}
			dstNames, err := dst.AttributeNames(varName)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(dstNames, srcNames) {
				t.Errorf("%q attribute names: got %v, want %v", varName, dstNames, srcNames)
			}
			for _, attrName := range srcNames {
				sv, err := src.Attribute(varName, attrName)
				if err != nil {
					t.Fatal(err)
				}
				dv, err := dst.Attribute(varName, attrName)
				if err != nil {
					t.Fatal(err)
				}
				if !reflect.DeepEqual(dv, sv) {
					t.Errorf("%q attribute %s: got %v, want %v", varName, attrName, dv, sv)
				}
			}
		}
	})
}

// TestCloneData checks data fidelity for every transferable variable
// and the warning for the one untransferable variable.
func TestCloneData(t *testing.T) {
	e, src := openSample(t)
	logger, hook := logtest.NewNullLogger()
	d, err := Clone(src, e, "copy.nc", true, WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	t.Run("data", func(t *testing.T) {
		temp, err := Read[float32](d, "T2", 3)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(temp.Data, sampleT2(2)) {
			t.Errorf("T2: got %v", temp.Data)
		}
		elev, err := Read[float64](d, "elevation", 2)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(elev.Data, sampleElevation()) {
			t.Errorf("elevation: got %v", elev.Data)
		}
		count, err := Read[int16](d, "count", 1)
		if err != nil {
			t.Fatal(err)
		}
		if want := []int16{10, 20, 30, 40}; !reflect.DeepEqual(count.Data, want) {
			t.Errorf("count: got %v, want %v", count.Data, want)
		}
	})

	t.Run("record dimension grew", func(t *testing.T) {
		if _, ok := d.Unlimited(); !ok {
			t.Fatal("clone lost the unlimited dimension")
		}
		shape, err := d.Shape("T2")
		if err != nil {
			t.Fatal(err)
		}
		if shape[0] != 2 {
			t.Errorf("record count after data copy: got %d, want 2", shape[0])
		}
	})

	t.Run("skip warning", func(t *testing.T) {
		var warnings []*logrus.Entry
		for _, entry := range hook.AllEntries() {
			if entry.Level == logrus.WarnLevel {
				warnings = append(warnings, entry)
			}
		}
		if len(warnings) != 1 {
			t.Fatalf("got %d warnings, want 1", len(warnings))
		}
		if got := warnings[0].Data["variable"]; got != "mask" {
			t.Errorf("skipped variable: got %v, want mask", got)
		}
	})
}

func TestCloneExistingPath(t *testing.T) {
	e, src := openSample(t)
	if _, err := Clone(src, e, "sample.nc", false); !errors.Is(err, ErrCreate) {
		t.Errorf("got %v, want create failure", err)
	}
}

func TestCloneFormatVersion(t *testing.T) {
	e, src := openSample(t)
	if _, err := Clone(src, e, "bad.nc", false, WithFormatVersion(9)); !errors.Is(err, ErrCreate) {
		t.Errorf("got %v, want create failure", err)
	}
	// A classic destination cannot hold the sample's compressed
	// variable, so the clone must fail rather than quietly drop the
	// compression settings.
	if _, err := Clone(src, e, "classic.nc", false, WithFormatVersion(1)); !errors.Is(err, ErrStorage) {
		t.Errorf("got %v, want storage failure", err)
	}
}
