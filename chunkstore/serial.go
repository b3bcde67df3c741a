// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package chunkstore

import "sync"

var serialGuard sync.Mutex

// WithSerialCompression runs fn while holding a process-wide mutex, so
// at most one fn passed to WithSerialCompression runs at a time. Store
// methods do not take this mutex and a Store has no thread-count
// setting to save or restore, so compress/decompress calls made outside
// such an fn are not serialized by it. The guard is released
// unconditionally, even if fn panics or returns an error.
func WithSerialCompression(fn func() error) error {
	serialGuard.Lock()
	defer serialGuard.Unlock()
	return fn()
}
