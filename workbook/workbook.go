// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

package workbook

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Workbook is an ordered collection of worksheets with an active selector.
type Workbook struct {
	sheets []*Worksheet
	active int
	// Date1904 selects the 1904 date system for serial date values in
	// XLS and XLSX files.
	Date1904 bool
}

// New returns a workbook without worksheets.
func New() *Workbook { return &Workbook{} }

// Len returns the number of worksheets.
func (wb *Workbook) Len() int { return len(wb.sheets) }

// Worksheets returns the worksheets in order. The slice must not be modified.
func (wb *Workbook) Worksheets() []*Worksheet { return wb.sheets }

// AddWorksheet appends a new worksheet. An empty name gets "SheetN".
func (wb *Workbook) AddWorksheet(name string) (*Worksheet, error) {
	if name == "" {
		for i := len(wb.sheets) + 1; ; i++ {
			name = "Sheet" + strconv.Itoa(i)
			if wb.index(name) < 0 {
				break
			}
		}
	}
	if err := ValidateSheetName(name); err != nil {
		return nil, err
	}
	if wb.index(name) >= 0 {
		return nil, fmt.Errorf("%w: duplicate sheet name %q", ErrInvalidArgument, name)
	}
	ws := NewWorksheet(name)
	wb.sheets = append(wb.sheets, ws)
	return ws, nil
}

func (wb *Workbook) index(name string) int {
	for i, ws := range wb.sheets {
		if strings.EqualFold(ws.Name, name) {
			return i
		}
	}
	return -1
}

// Worksheet returns the i-th worksheet.
func (wb *Workbook) Worksheet(i int) (*Worksheet, error) {
	if i < 0 || i >= len(wb.sheets) {
		return nil, &IndexError{What: "worksheet", Index: i, Len: len(wb.sheets)}
	}
	return wb.sheets[i], nil
}

// WorksheetByName returns the worksheet with the given name (case-insensitive).
func (wb *Workbook) WorksheetByName(name string) (*Worksheet, error) {
	if i := wb.index(name); i >= 0 {
		return wb.sheets[i], nil
	}
	return nil, fmt.Errorf("%w: no worksheet named %q", ErrInvalidArgument, name)
}

// ActiveIndex returns the index of the active worksheet.
func (wb *Workbook) ActiveIndex() int { return wb.active }

// Active returns the active worksheet, nil if there is none.
func (wb *Workbook) Active() *Worksheet {
	if wb.active < len(wb.sheets) {
		return wb.sheets[wb.active]
	}
	return nil
}

// SetActive selects the active worksheet. On error the selection is unchanged.
func (wb *Workbook) SetActive(i int) error {
	if i < 0 || i >= len(wb.sheets) {
		return &IndexError{What: "worksheet", Index: i, Len: len(wb.sheets)}
	}
	wb.active = i
	return nil
}

// ValidateSheetName checks the Excel naming rules: 1-31 characters, not
// starting or ending with a single quote, none of : \ / ? * [ ].
func ValidateSheetName(s string) error {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return fmt.Errorf("%w: empty sheet name", ErrInvalidArgument)
	} else if n > 31 {
		return fmt.Errorf("%w: sheet name %q is longer than 31 characters", ErrInvalidArgument, s)
	}
	if strings.HasPrefix(s, "'") || strings.HasSuffix(s, "'") {
		return fmt.Errorf("%w: sheet name %q starts or ends with a single quote", ErrInvalidArgument, s)
	}
	if strings.ContainsAny(s, ":\\/?*[]") {
		return fmt.Errorf("%w: sheet name %q contains one of :\\/?*[]", ErrInvalidArgument, s)
	}
	return nil
}
