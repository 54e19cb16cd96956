// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

package xlsx

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/klauspost/compress/zip"
	"github.com/xuri/excelize/v2"

	"github.com/UNO-SOFT/excel/internal/xldate"
	"github.com/UNO-SOFT/excel/workbook"
)

// MaxTextLen is the maximum number of UTF-16 code units in a cell.
const MaxTextLen = 32_767

// Options for Decode and Encode.
type Options struct {
	// Password of an encrypted package. On Encode, a non-empty Password
	// encrypts the package.
	Password string
}

type sharedStrings struct {
	index map[string]int
	list  []string
	count int
}

func (ss *sharedStrings) add(s string) int {
	ss.count++
	if i, ok := ss.index[s]; ok {
		return i
	}
	if ss.index == nil {
		ss.index = make(map[string]int)
	}
	i := len(ss.list)
	ss.index[s] = i
	ss.list = append(ss.list, s)
	return i
}

// Encode writes wb as an XLSX package.
func Encode(w io.Writer, wb *workbook.Workbook, opts Options) error {
	if wb.Len() == 0 {
		return fmt.Errorf("%w: workbook has no worksheets", workbook.ErrInvalidArgument)
	}
	if opts.Password == "" {
		return writePackage(w, wb)
	}
	var buf bytes.Buffer
	if err := writePackage(&buf, wb); err != nil {
		return err
	}
	b, err := encrypt(buf.Bytes(), opts.Password)
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}
	_, err = w.Write(b)
	return err
}

func writePackage(w io.Writer, wb *workbook.Workbook) error {
	zw := zip.NewWriter(w)
	writePart := func(name string, data []byte) error {
		pw, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		_, err = pw.Write(data)
		return err
	}
	writeXML := func(name string, v any) error {
		b, err := xml.Marshal(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return writePart(name, append([]byte(xml.Header), b...))
	}

	n := wb.Len()
	types := xlsxTypes{
		Defaults: []xlsxDefault{
			{Extension: "rels", ContentType: ctRels},
			{Extension: "xml", ContentType: "application/xml"},
		},
		Overrides: []xlsxOverride{
			{PartName: "/xl/workbook.xml", ContentType: ctWorkbook},
			{PartName: "/xl/styles.xml", ContentType: ctStyles},
			{PartName: "/xl/sharedStrings.xml", ContentType: ctSST},
			{PartName: "/docProps/core.xml", ContentType: ctCore},
			{PartName: "/docProps/app.xml", ContentType: ctApp},
		},
	}
	book := xlsxWorkbook{
		XMLNSR:     nsRelationships,
		WorkbookPr: xlsxWorkbookPr{Date1904: wb.Date1904},
		BookViews:  []xlsxWorkbookView{{ActiveTab: wb.ActiveIndex()}},
	}
	bookRels := xlsxRelationships{}
	for i, ws := range wb.Worksheets() {
		if err := workbook.ValidateSheetName(ws.Name); err != nil {
			return err
		}
		rid := "rId" + strconv.Itoa(i+1)
		target := "worksheets/sheet" + strconv.Itoa(i+1) + ".xml"
		types.Overrides = append(types.Overrides, xlsxOverride{PartName: "/xl/" + target, ContentType: ctWorksheet})
		book.Sheets = append(book.Sheets, xlsxSheet{Name: ws.Name, SheetID: i + 1, RID: rid})
		bookRels.Relationship = append(bookRels.Relationship, xlsxRelationship{ID: rid, Type: relWorksheet, Target: target})
	}
	bookRels.Relationship = append(bookRels.Relationship,
		xlsxRelationship{ID: "rId" + strconv.Itoa(n+1), Type: relStyles, Target: "styles.xml"},
		xlsxRelationship{ID: "rId" + strconv.Itoa(n+2), Type: relSharedStrings, Target: "sharedStrings.xml"},
	)
	rootRels := xlsxRelationships{Relationship: []xlsxRelationship{
		{ID: "rId1", Type: relOfficeDocument, Target: "xl/workbook.xml"},
		{ID: "rId2", Type: relCoreProps, Target: "docProps/core.xml"},
		{ID: "rId3", Type: relExtendedProps, Target: "docProps/app.xml"},
	}}

	if err := writeXML("[Content_Types].xml", types); err != nil {
		return err
	}
	if err := writeXML("_rels/.rels", rootRels); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if err := writePart("docProps/core.xml", fmt.Appendf(nil, coreXML, now)); err != nil {
		return err
	}
	if err := writePart("docProps/app.xml", []byte(appXML)); err != nil {
		return err
	}
	if err := writeXML("xl/workbook.xml", book); err != nil {
		return err
	}
	if err := writeXML("xl/_rels/workbook.xml.rels", bookRels); err != nil {
		return err
	}
	if err := writePart("xl/styles.xml", []byte(stylesXML)); err != nil {
		return err
	}

	var ss sharedStrings
	for i, ws := range wb.Worksheets() {
		pw, err := zw.Create("xl/worksheets/sheet" + strconv.Itoa(i+1) + ".xml")
		if err != nil {
			return err
		}
		if err := writeSheet(pw, ws, i == wb.ActiveIndex(), wb.Date1904, &ss); err != nil {
			return fmt.Errorf("%s: %w", ws.Name, err)
		}
	}

	sst := xlsxSST{Count: ss.count, UniqueCount: len(ss.list), SI: make([]xlsxSI, len(ss.list))}
	for i, s := range ss.list {
		t := xlsxT{Text: escapeXString(s)}
		if strings.TrimSpace(s) != s {
			t.Space = "preserve"
		}
		sst.SI[i].T = &t
	}
	if err := writeXML("xl/sharedStrings.xml", sst); err != nil {
		return err
	}
	slog.Debug("xlsx encode", "sheets", n, "strings", len(ss.list))
	return zw.Close()
}

func cellName(row, col int) string {
	s, _ := excelize.CoordinatesToCellName(col+1, row+1)
	return s
}

func writeSheet(w io.Writer, ws *workbook.Worksheet, active, date1904 bool, ss *sharedStrings) error {
	bw := bufio.NewWriterSize(w, 1<<16)
	bw.WriteString(xml.Header)
	bw.WriteString(`<worksheet xmlns="` + nsMain + `" xmlns:r="` + nsRelationships + `">`)
	ref := "A1"
	if fr, fc, lr, lc, ok := ws.UsedRange(); ok {
		ref = cellName(fr, fc)
		if lr-1 != fr || lc-1 != fc {
			ref += ":" + cellName(lr-1, lc-1)
		}
	}
	bw.WriteString(`<dimension ref="` + ref + `"/>`)
	if active {
		bw.WriteString(`<sheetViews><sheetView tabSelected="1" workbookViewId="0"/></sheetViews>`)
	} else {
		bw.WriteString(`<sheetViews><sheetView workbookViewId="0"/></sheetViews>`)
	}
	bw.WriteString(`<sheetData>`)
	var num []byte
	for i, r := range ws.Rows {
		cols := r.Columns()
		if len(cols) == 0 {
			continue
		}
		bw.WriteString(`<row r="` + strconv.Itoa(i+1) + `">`)
		for _, col := range cols {
			c := r.Cell(col)
			bw.WriteString(`<c r="` + cellName(i, col) + `"`)
			switch c.Kind() {
			case workbook.KindBool:
				v, _ := c.Bool()
				if v {
					bw.WriteString(` t="b"><v>1</v></c>`)
				} else {
					bw.WriteString(` t="b"><v>0</v></c>`)
				}
			case workbook.KindNumber:
				v, _ := c.Number()
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return fmt.Errorf("%w: [%d,%d]: %v cannot be stored", workbook.ErrInvalidArgument, i, col, v)
				}
				num = strconv.AppendFloat(num[:0], v, 'g', -1, 64)
				bw.WriteString(`><v>`)
				bw.Write(num)
				bw.WriteString(`</v></c>`)
			case workbook.KindInteger:
				v, _ := c.Integer()
				bw.WriteString(` s="` + strconv.Itoa(styleInteger) + `"><v>` + strconv.FormatInt(v, 10) + `</v></c>`)
			case workbook.KindDateTime:
				v, _ := c.DateTime()
				num = strconv.AppendFloat(num[:0], xldate.FromTime(v, date1904), 'g', -1, 64)
				bw.WriteString(` s="` + strconv.Itoa(styleDateTime) + `"><v>`)
				bw.Write(num)
				bw.WriteString(`</v></c>`)
			case workbook.KindText:
				v, _ := c.Text()
				if len(v) > MaxTextLen {
					if n := len(utf16.Encode([]rune(v))); n > MaxTextLen {
						return fmt.Errorf("%w: [%d,%d]: text of %d characters, XLSX allows %d",
							workbook.ErrInvalidArgument, i, col, n, MaxTextLen)
					}
				}
				bw.WriteString(` t="s"><v>` + strconv.Itoa(ss.add(v)) + `</v></c>`)
			}
		}
		bw.WriteString(`</row>`)
	}
	bw.WriteString(`</sheetData></worksheet>`)
	return bw.Flush()
}
