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

// Package chunkstore is a reference implementation of
// container.Container and container.Factory: an in-memory, compressed,
// chunked N-dimensional array store, resolvable by a stable Locator
// token the way a filesystem path or URL would resolve a real one.
package chunkstore

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// NewLocator mints a fresh, globally unique container locator, the Go
// rendering of the stable container-identity tokens the teacher mints
// with github.com/google/uuid elsewhere (e.g. query IDs in
// cmd/snellerd), generalized here to array containers.
func NewLocator() string {
	return uuid.New().String()
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*Store{}
)

func register(locator string, s *Store) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[locator] = s
}

// Open resolves a locator previously produced by Create/CreateZeros/
// CreateFull (in this process) back to its Store. It is the
// ContainerResolver a caller hands to lazyarray.Open.
func Open(locator string) (*Store, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[locator]
	if !ok {
		return nil, fmt.Errorf("chunkstore: no container registered under locator %q", locator)
	}
	return s, nil
}
