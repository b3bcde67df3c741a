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

import "strconv"

// placeholderName renders the n-th operand table slot's placeholder,
// "o0", "o1", and so on -- the textual name the Kernel binds operands
// to inside an expression string.
func placeholderName(n int) string {
	return "o" + strconv.Itoa(n)
}

// fuseOperandTables merges t2's operands into t1 in order, recognizing
// an operand already present in t1 by identity (SameIdentity) rather
// than adding a second placeholder for it. It returns the fused table
// and a rename map from every one of t2's placeholder names to its
// name in the fused table -- covering both operands that turned out to
// be duplicates of something already in t1, and operands that were
// freshly appended.
//
// This is the Go rendering of fuse_operands from the original
// implementation's lazy-expression module: there, identity is checked
// with the host array type's "is" comparison (with its overloaded
// equality operator disabled for the duration); here it is checked
// directly via Operand.SameIdentity, so no such workaround is needed
// (see DESIGN.md's Open Question resolution).
func fuseOperandTables(t1, t2 operandTable) (operandTable, map[string]string) {
	fused := t1.clone()
	rename := make(map[string]string, t2.Len())
	for _, e := range t2.entries {
		if name, ok := fused.indexOfIdentity(e.op); ok {
			rename[e.name] = name
			continue
		}
		var name string
		fused, name = fused.append(e.op)
		rename[e.name] = name
	}
	return fused, rename
}

// rebasePlaceholders rewrites every oN placeholder reference in expr
// according to rename, leaving any placeholder absent from rename (and
// any non-placeholder "o" that merely starts an identifier or appears
// mid-token) untouched.
//
// This is the Go rendering of fuse_expressions: the original scans the
// expression character by character, recognizing a placeholder only
// when it is at the start of the string or immediately preceded by a
// space or an open paren (the same rule ExpressionString's own
// builders obey when emitting placeholders), and otherwise renumbers
// on the fly by tracking first-appearance order. Since rename already
// carries the target name for every placeholder t2 can contain, this
// version substitutes directly instead of recomputing numbering from
// scratch, which is equivalent for the well-formed, machine-generated
// expressions this engine ever builds.
func rebasePlaceholders(expr string, rename map[string]string) string {
	var out []byte
	i := 0
	for i < len(expr) {
		c := expr[i]
		if c == 'o' && (i == 0 || expr[i-1] == ' ' || expr[i-1] == '(') {
			j := i + 1
			for j < len(expr) && expr[j] >= '0' && expr[j] <= '9' {
				j++
			}
			if j > i+1 {
				oldOp := expr[i:j]
				newOp, ok := rename[oldOp]
				if !ok {
					newOp = oldOp
				}
				out = append(out, newOp...)
				i = j
				continue
			}
		}
		out = append(out, c)
		i++
	}
	return string(out)
}

// fuse combines two expressions built over independent operand tables
// (expr1/table1, expr2/table2) into a single expression/table pair
// joined by the binary operator op, deduplicating any operand the two
// sides share by identity.
func fuse(expr1 string, table1 operandTable, op, expr2 string, table2 operandTable) (string, operandTable) {
	fused, rename := fuseOperandTables(table1, table2)
	rebased := rebasePlaceholders(expr2, rename)
	return "(" + expr1 + " " + op + " " + rebased + ")", fused
}
