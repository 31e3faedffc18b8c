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
	"fmt"
)

// Error kinds returned by this package. Errors are wrapped with
// context, so callers test for them with errors.Is.
var (
	// ErrNotFound reports a failed name lookup for a variable or
	// dimension.
	ErrNotFound = errors.New("not found")

	// ErrShapeMismatch reports an array whose rank or extents are
	// inconsistent with the catalog.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrTypeMismatch reports a requested element type inconsistent
	// with the catalog.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrStorage reports a failed storage-engine operation.
	ErrStorage = errors.New("storage failure")

	// ErrCreate reports that a destination file could not be created.
	ErrCreate = errors.New("create failure")

	// ErrAttributeCopy reports a failed attribute duplication during
	// cloning.
	ErrAttributeCopy = errors.New("attribute copy failure")
)

// storagef wraps an engine error as an ErrStorage, keeping the engine's
// message for diagnosis.
func storagef(format string, args ...interface{}) error {
	return fmt.Errorf("ncio: "+format+": %w", append(args, ErrStorage)...)
}
