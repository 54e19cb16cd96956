// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

package dsv

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"

	"github.com/UNO-SOFT/excel/workbook"
)

// Encode writes the active worksheet of wb.
func Encode(w io.Writer, wb *workbook.Workbook, opts Options) error {
	ws := wb.Active()
	if ws == nil {
		return fmt.Errorf("%w: workbook has no worksheets", workbook.ErrInvalidArgument)
	}
	return WriteWorksheet(w, ws, opts)
}

// WriteWorksheet writes rows 0..RowCount-1 of ws, each with MaxUsedColumns fields.
func WriteWorksheet(w io.Writer, ws *workbook.Worksheet, opts Options) error {
	sep := opts.Comma
	if sep == 0 {
		sep = ','
	} else if !validDelim(sep) {
		return fmt.Errorf("%w: delimiter %q", workbook.ErrInvalidArgument, sep)
	}
	ew, err := encoder(w, opts.Charset)
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(ew, 1<<16)
	cw := csv.NewWriter(bw)
	cw.Comma = sep

	// A row of a single empty field would be a blank line, which readers skip.
	ncols := max(ws.MaxUsedColumns(), 1)
	rec := make([]string, ncols)
	for i := range ws.RowCount() {
		r := ws.Row(i)
		for j := range rec {
			rec[j] = r.Cell(j).String()
		}
		if ncols == 1 && rec[0] == "" {
			cw.Flush()
			if _, err := bw.WriteString("\"\"\n"); err != nil {
				return err
			}
			continue
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("%s: row %d: %w", ws.Name, i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	slog.Debug("dsv write", "sheet", ws.Name, "rows", ws.RowCount(), "columns", ncols)
	return ew.Close()
}
