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

package lazyarray

import "sync/atomic"

// identityToken distinguishes "the same operand instance" from
// "an equal-valued operand" for fusion deduplication (spec.md §9).
// It is minted once, at leaf construction (NewScalar/NewDense/
// NewChunked), and is carried forward unchanged whenever an Operand
// value is copied -- so reusing the same LazyNode/Operand in two
// places in an expression tree is what makes two placeholders
// resolve to "the same operand" during fuse, exactly as reusing the
// same Python object reference does in the original implementation.
// This sidesteps the original's need to bypass the array type's
// overloaded equality operator during fusion (see DESIGN.md).
type identityToken uint64

var identitySeq atomic.Uint64

func newIdentityToken() identityToken {
	return identityToken(identitySeq.Add(1))
}
