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

import (
	"github.com/lazynd/lazynd/container"
	"github.com/lazynd/lazynd/ion"
)

// metadataKey is the vlmeta key a saved expression is stored under.
const metadataKey = "LazyArray"

// Save encodes node's expression and the locator of each of its
// chunked operands as an Ion struct and writes it into out's
// metadata. Every array operand must be a chunked Container with a
// resolvable Locator -- a dense in-memory operand, or a scalar
// standing in for what should have been an array, cannot be
// round-tripped through Open and is rejected up front.
func Save(kernel container.Kernel, node *LazyNode, out container.Container) error {
	if err := kernel.Validate(node.expr, node.operands.names()); err != nil {
		return err
	}

	var st ion.Symtab
	opDatums := make([]ion.Datum, 0, node.operands.Len())
	for _, e := range node.operands.entries {
		if e.op.IsScalar() {
			return persistErrorf("operand %s is a scalar; only chunked containers can be saved", e.name)
		}
		c, ok := e.op.Chunked()
		if !ok {
			return persistErrorf("operand %s is a dense in-memory array; only chunked containers can be saved", e.name)
		}
		if c.Locator() == "" {
			return persistErrorf("operand %s has no resolvable locator", e.name)
		}
		opStruct := ion.NewStruct(&st, []ion.Field{
			{Label: "name", Value: ion.String(e.name)},
			{Label: "locator", Value: ion.String(c.Locator())},
		})
		opDatums = append(opDatums, opStruct.Datum())
	}

	root := ion.NewStruct(&st, []ion.Field{
		{Label: "kind", Value: ion.String("expr")},
		{Label: "expression", Value: ion.String(node.expr)},
		{Label: "operands", Value: ion.NewList(&st, opDatums).Datum()},
	})

	var buf ion.Buffer
	st.Marshal(&buf, true)
	root.Encode(&buf, &st)

	return out.WriteMetadata(metadataKey, buf.Bytes())
}

// ContainerResolver opens a Container given the locator string it was
// saved under; lazyarray has no notion of how a locator resolves to
// storage, so Open always takes one as a parameter.
type ContainerResolver func(locator string) (container.Container, error)

// Open reads back a LazyNode previously written by Save from c's
// metadata, resolving each referenced operand container via resolve,
// and re-validates the recovered expression against kernel's allow-
// list before returning it -- so a hand-edited or foreign metadata
// blob is rejected rather than silently trusted.
func Open(kernel container.Kernel, c container.Container, resolve ContainerResolver) (*LazyNode, error) {
	raw, ok, err := c.ReadMetadata(metadataKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, persistErrorf("container %q has no saved expression", c.Locator())
	}

	var st ion.Symtab
	body, err := st.Unmarshal(raw)
	if err != nil {
		return nil, persistErrorf("corrupt expression metadata: %s", err)
	}
	datum, _, err := ion.ReadDatum(&st, body)
	if err != nil {
		return nil, persistErrorf("corrupt expression metadata: %s", err)
	}
	root, ok := datum.Struct()
	if !ok {
		return nil, persistErrorf("expression metadata is not a struct")
	}

	kindField, ok := root.FieldByName("kind")
	if !ok {
		return nil, persistErrorf("expression metadata is missing kind")
	}
	kind, _ := kindField.Value.String()
	if kind != "expr" {
		return nil, persistErrorf("expression metadata has unsupported kind %q (user-defined functions are not persisted)", kind)
	}

	exprField, ok := root.FieldByName("expression")
	if !ok {
		return nil, persistErrorf("expression metadata is missing expression")
	}
	expr, _ := exprField.Value.String()

	operandsField, ok := root.FieldByName("operands")
	if !ok {
		return nil, persistErrorf("expression metadata is missing operands")
	}
	list, ok := operandsField.Value.List()
	if !ok {
		return nil, persistErrorf("expression metadata's operands field is not a list")
	}

	table := newOperandTable()
	var listErr error
	_ = list.Each(func(d ion.Datum) bool {
		opStruct, ok := d.Struct()
		if !ok {
			listErr = persistErrorf("expression metadata operand entry is not a struct")
			return false
		}
		nameField, ok := opStruct.FieldByName("name")
		if !ok {
			listErr = persistErrorf("expression metadata operand entry is missing name")
			return false
		}
		name, _ := nameField.Value.String()
		locField, ok := opStruct.FieldByName("locator")
		if !ok {
			listErr = persistErrorf("expression metadata operand entry is missing locator")
			return false
		}
		locator, _ := locField.Value.String()

		c, err := resolve(locator)
		if err != nil {
			listErr = persistErrorf("resolving operand %s locator %q: %s", name, locator, err)
			return false
		}
		table, _ = table.append(NewChunked(c))
		return true
	})
	if listErr != nil {
		return nil, listErr
	}

	if err := kernel.Validate(expr, table.names()); err != nil {
		return nil, err
	}
	return &LazyNode{expr: expr, operands: table}, nil
}
