// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

package workbook

import (
	"maps"
	"slices"
)

// Row is a sparse column index → Cell mapping. Absent columns are Empty.
type Row struct {
	cells map[int]Cell
}

// Cell returns the cell at col, Empty when unset.
func (r *Row) Cell(col int) Cell {
	if r == nil {
		return Empty
	}
	return r.cells[col]
}

func (r *Row) set(col int, c Cell) {
	if c.IsEmpty() {
		delete(r.cells, col)
		return
	}
	if r.cells == nil {
		r.cells = make(map[int]Cell)
	}
	r.cells[col] = c
}

// Len returns the number of non-Empty cells.
func (r *Row) Len() int {
	if r == nil {
		return 0
	}
	return len(r.cells)
}

// Columns returns the indexes of the non-Empty cells in ascending order.
func (r *Row) Columns() []int {
	if r == nil || len(r.cells) == 0 {
		return nil
	}
	return slices.Sorted(maps.Keys(r.cells))
}

// MaxColumn returns the highest non-Empty column index, or -1.
func (r *Row) MaxColumn() int {
	m := -1
	if r == nil {
		return m
	}
	for c := range r.cells {
		if c > m {
			m = c
		}
	}
	return m
}
