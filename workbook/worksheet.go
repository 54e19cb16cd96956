// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

package workbook

import "time"

// Grid limits of a worksheet (the XLSX grid).
const (
	MaxRowCount    = 1_048_576
	MaxColumnCount = 16_384
)

// Worksheet is an ordered sequence of rows.
//
// Rows are allocated densely up to the highest row ever touched;
// untouched rows in between are nil.
type Worksheet struct {
	Name string
	rows []*Row
}

// NewWorksheet returns an empty, unattached worksheet.
func NewWorksheet(name string) *Worksheet { return &Worksheet{Name: name} }

// RowCount returns the number of allocated rows: one past the highest row
// that ever had a cell set (or cleared).
func (ws *Worksheet) RowCount() int { return len(ws.rows) }

// MaxUsedColumns returns one past the highest column holding a non-Empty
// cell in any row, or 0. It scans all rows on each call.
func (ws *Worksheet) MaxUsedColumns() int {
	m := -1
	for _, r := range ws.rows {
		if c := r.MaxColumn(); c > m {
			m = c
		}
	}
	return m + 1
}

// Row returns the i-th row, nil when it was never allocated.
func (ws *Worksheet) Row(i int) *Row {
	if i < 0 || i >= len(ws.rows) {
		return nil
	}
	return ws.rows[i]
}

// Rows calls yield for every allocated, non-nil row in order.
func (ws *Worksheet) Rows(yield func(int, *Row) bool) {
	for i, r := range ws.rows {
		if r == nil {
			continue
		}
		if !yield(i, r) {
			return
		}
	}
}

// Cell returns the cell at (row, col). It never fails: anything outside the
// allocated area is Empty.
func (ws *Worksheet) Cell(row, col int) Cell {
	return ws.Row(row).Cell(col)
}

func checkIndex(row, col int) error {
	if row < 0 || row >= MaxRowCount {
		return &IndexError{What: "row", Index: row, Len: MaxRowCount}
	}
	if col < 0 || col >= MaxColumnCount {
		return &IndexError{What: "column", Index: col, Len: MaxColumnCount}
	}
	return nil
}

// SetCell stores c at (row, col), allocating the row if needed.
// Setting Empty clears the cell but keeps the row allocated.
func (ws *Worksheet) SetCell(row, col int, c Cell) error {
	if err := checkIndex(row, col); err != nil {
		return err
	}
	if row >= len(ws.rows) {
		ws.rows = append(ws.rows, make([]*Row, row+1-len(ws.rows))...)
	}
	r := ws.rows[row]
	if r == nil {
		r = &Row{}
		ws.rows[row] = r
	}
	r.set(col, c)
	return nil
}

// SetValue converts v with FromValue and stores it.
func (ws *Worksheet) SetValue(row, col int, v any) error {
	c, err := FromValue(v)
	if err != nil {
		return err
	}
	return ws.SetCell(row, col, c)
}

// Clear empties the cell at (row, col).
func (ws *Worksheet) Clear(row, col int) error { return ws.SetCell(row, col, Empty) }

func (ws *Worksheet) typed(row, col int, want Kind) (Cell, error) {
	c := ws.Cell(row, col)
	if c.kind != want {
		return c, &TypeMismatchError{Row: row, Col: col, Want: want, Got: c.kind}
	}
	return c, nil
}

func (ws *Worksheet) BoolValue(row, col int) (bool, error) {
	c, err := ws.typed(row, col, KindBool)
	return c.b, err
}

// DoubleValue returns a Number cell's value. Integer cells are a type mismatch.
func (ws *Worksheet) DoubleValue(row, col int) (float64, error) {
	c, err := ws.typed(row, col, KindNumber)
	return c.num, err
}

func (ws *Worksheet) IntValue(row, col int) (int64, error) {
	c, err := ws.typed(row, col, KindInteger)
	return c.i, err
}

func (ws *Worksheet) StringValue(row, col int) (string, error) {
	c, err := ws.typed(row, col, KindText)
	return c.s, err
}

func (ws *Worksheet) TimeValue(row, col int) (time.Time, error) {
	c, err := ws.typed(row, col, KindDateTime)
	return c.t, err
}

// UsedRange returns the bounding box of the non-Empty cells as
// half-open [firstRow, lastRow) x [firstCol, lastCol). ok is false if there is none.
func (ws *Worksheet) UsedRange() (firstRow, firstCol, lastRow, lastCol int, ok bool) {
	firstRow, firstCol = -1, -1
	for i, r := range ws.rows {
		if r.Len() == 0 {
			continue
		}
		if firstRow < 0 {
			firstRow = i
		}
		lastRow = i + 1
		for c := range r.cells {
			if firstCol < 0 || c < firstCol {
				firstCol = c
			}
			if c+1 > lastCol {
				lastCol = c + 1
			}
		}
	}
	if firstRow < 0 {
		return 0, 0, 0, 0, false
	}
	return firstRow, firstCol, lastRow, lastCol, true
}
