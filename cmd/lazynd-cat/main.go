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

// lazynd-cat prints the contents of a chunked array container: either
// its raw elements, or, if the container has a saved expression
// (written by lazyarray.Save), the result of re-evaluating that
// expression over its operands.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/lazynd/lazynd/chunkstore"
	"github.com/lazynd/lazynd/container"
	"github.com/lazynd/lazynd/lazyarray"
	"github.com/lazynd/lazynd/numexpr"
)

var (
	dashv     bool
	dashSlice string
)

func init() {
	flag.BoolVar(&dashv, "v", false, "verbose diagnostics")
	flag.StringVar(&dashSlice, "slice", "", "comma-separated start:stop ranges, one per axis (default: the whole array)")
}

func logf(f string, args ...any) {
	if !dashv {
		return
	}
	log.Printf(f, args...)
}

func exitf(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(1)
}

func parseSlices(spec string, shape []int64) ([]lazyarray.Slice, error) {
	if spec == "" {
		out := make([]lazyarray.Slice, len(shape))
		for i, d := range shape {
			out[i] = lazyarray.FullSlice(d)
		}
		return out, nil
	}
	parts := strings.Split(spec, ",")
	if len(parts) != len(shape) {
		return nil, fmt.Errorf("-slice has %d axis ranges, array has %d axes", len(parts), len(shape))
	}
	out := make([]lazyarray.Slice, len(parts))
	for i, p := range parts {
		lohi := strings.SplitN(p, ":", 2)
		if len(lohi) != 2 {
			return nil, fmt.Errorf("invalid range %q: want start:stop", p)
		}
		lo, err := strconv.ParseInt(lohi[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid start in %q: %w", p, err)
		}
		hi, err := strconv.ParseInt(lohi[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid stop in %q: %w", p, err)
		}
		s, err := lazyarray.ParseSlice(lo, hi, 1, shape[i])
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func printBuffer(buf container.Buffer) {
	n := buf.Len()
	for i := 0; i < n; i++ {
		if i > 0 {
			fmt.Print(" ")
		}
		fmt.Print(buf.Elem(i))
	}
	fmt.Println()
}

func catPlain(c container.Container, sel []lazyarray.Slice) error {
	kernel := numexpr.New()
	d := lazyarray.NewEvalDriver(kernel, chunkstore.Factory{})
	buf, err := d.GetItem(context.Background(), lazyarray.Leaf(lazyarray.NewChunked(c)), sel)
	if err != nil {
		return err
	}
	printBuffer(buf)
	return nil
}

func catExpression(c container.Container, sel []lazyarray.Slice) error {
	kernel := numexpr.New()
	node, err := lazyarray.Open(kernel, c, func(locator string) (container.Container, error) {
		logf("resolving operand locator %q", locator)
		return chunkstore.Open(locator)
	})
	if err != nil {
		return err
	}
	logf("re-evaluating saved expression %q", node.Expression())
	d := lazyarray.NewEvalDriver(kernel, chunkstore.Factory{})
	buf, err := d.GetItem(context.Background(), node, sel)
	if err != nil {
		return err
	}
	printBuffer(buf)
	return nil
}

func run(locator string) error {
	c, err := chunkstore.Open(locator)
	if err != nil {
		return fmt.Errorf("opening %q: %w", locator, err)
	}
	sel, err := parseSlices(dashSlice, c.Shape())
	if err != nil {
		return err
	}

	if _, ok, err := c.ReadMetadata("LazyArray"); err != nil {
		return err
	} else if ok {
		return catExpression(c, sel)
	}
	return catPlain(c, sel)
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-v] [-slice start:stop,...] <locator>\n", os.Args[0])
		flag.Usage()
		os.Exit(1)
	}
	if err := run(args[0]); err != nil {
		exitf("%s", err)
	}
}
