// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

// Package xlsx reads and writes Office Open XML workbooks (.xlsx).
//
// Only cell values and the workbook structure (sheet names, order, active
// sheet, date system) are kept; styles are reduced to what tells the cell
// kinds apart.
package xlsx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/xuri/excelize/v2"

	"github.com/UNO-SOFT/excel/internal/cfb"
	"github.com/UNO-SOFT/excel/internal/xldate"
	"github.com/UNO-SOFT/excel/workbook"
)

type pkg struct {
	files map[string]*zip.File
}

func (p pkg) open(name string) (io.ReadCloser, error) {
	name = strings.TrimPrefix(name, "/")
	f, ok := p.files[name]
	if !ok {
		// part names are case-insensitive
		for k, v := range p.files {
			if strings.EqualFold(k, name) {
				f, ok = v, true
				break
			}
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: missing part %q", workbook.ErrFormat, name)
	}
	return f.Open()
}

func (p pkg) unmarshal(name string, v any) error {
	rc, err := p.open(name)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := xml.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %w", workbook.ErrFormat, name, err)
	}
	return nil
}

// rels reads the relationships of part, resolving targets to part names.
func (p pkg) rels(part string) (map[string]xlsxRelationship, error) {
	dir, base := path.Split(part)
	var rels readRels
	if err := p.unmarshal(dir+"_rels/"+base+".rels", &rels); err != nil {
		return nil, err
	}
	m := make(map[string]xlsxRelationship, len(rels.Relationship))
	for _, r := range rels.Relationship {
		if r.TargetMode == "External" {
			continue
		}
		if strings.HasPrefix(r.Target, "/") {
			r.Target = strings.TrimPrefix(r.Target, "/")
		} else {
			r.Target = path.Join(dir, r.Target)
		}
		m[r.ID] = r
	}
	return m, nil
}

type readRels struct {
	Relationship []xlsxRelationship `xml:"Relationship"`
}

type styles struct {
	formats map[int]string
	xfs     []int
}

const (
	kindGeneral = iota
	kindInteger
	kindDate
)

func (st styles) kind(s int) int {
	if s < 0 || s >= len(st.xfs) {
		return kindGeneral
	}
	id := st.xfs[s]
	if code, ok := st.formats[id]; ok {
		if xldate.IsDateFormat(code) {
			return kindDate
		}
		return kindGeneral
	}
	if xldate.IsBuiltinDateFormat(id) {
		return kindDate
	}
	if id == 1 {
		return kindInteger
	}
	return kindGeneral
}

// Decode parses an XLSX package, decrypting it first if it is encrypted.
func Decode(data []byte, opts Options) (*workbook.Workbook, error) {
	if cfb.IsCFB(data) {
		if !IsEncrypted(data) {
			return nil, fmt.Errorf("%w: OLE2 file without an encrypted package", workbook.ErrFormat)
		}
		b, err := decrypt(data, opts.Password)
		if err != nil {
			return nil, err
		}
		wb, err := decodePackage(b)
		if err != nil && errors.Is(err, workbook.ErrFormat) {
			// a wrong password decrypts to garbage
			return nil, fmt.Errorf("%w: %w", workbook.ErrAuthentication, err)
		}
		return wb, err
	}
	return decodePackage(data)
}

func decodePackage(data []byte) (*workbook.Workbook, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", workbook.ErrFormat, err)
	}
	p := pkg{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		p.files[f.Name] = f
	}
	if _, ok := p.files["[Content_Types].xml"]; !ok {
		return nil, fmt.Errorf("%w: missing [Content_Types].xml", workbook.ErrFormat)
	}

	bookPart := "xl/workbook.xml"
	if rootRels, err := p.rels(""); err == nil {
		for _, r := range rootRels {
			if r.Type == relOfficeDocument {
				bookPart = r.Target
				break
			}
		}
	}
	var book readWorkbook
	if err := p.unmarshal(bookPart, &book); err != nil {
		return nil, err
	}
	rels, err := p.rels(bookPart)
	if err != nil {
		return nil, err
	}

	var sst []string
	st := styles{formats: make(map[int]string)}
	for _, r := range rels {
		switch r.Type {
		case relSharedStrings:
			var s readSST
			if err := p.unmarshal(r.Target, &s); err != nil {
				return nil, err
			}
			sst = make([]string, len(s.SI))
			for i, si := range s.SI {
				sst[i] = si.text()
			}
		case relStyles:
			var s readStyles
			if err := p.unmarshal(r.Target, &s); err != nil {
				return nil, err
			}
			for _, f := range s.NumFmts {
				st.formats[f.ID] = f.Code
			}
			for _, x := range s.CellXfs {
				st.xfs = append(st.xfs, x.NumFmtID)
			}
		}
	}

	wb := workbook.New()
	wb.Date1904 = book.WorkbookPr.Date1904
	activeTab := 0
	if len(book.BookViews) != 0 {
		activeTab = book.BookViews[0].ActiveTab
	}
	active := 0
	for i, sh := range book.Sheets {
		r, ok := rels[sh.RID]
		if !ok || r.Type != relWorksheet {
			slog.Debug("xlsx skip sheet", "name", sh.Name, "rel", r.Type)
			continue
		}
		if i == activeTab {
			active = wb.Len()
		}
		ws, err := wb.AddWorksheet(sh.Name)
		if err != nil {
			return nil, err
		}
		if err := p.readSheet(ws, r.Target, sst, st, wb.Date1904); err != nil {
			return nil, fmt.Errorf("%s: %w", sh.Name, err)
		}
	}
	if wb.Len() != 0 {
		if err := wb.SetActive(active); err != nil {
			return nil, err
		}
	}
	return wb, nil
}

func (p pkg) readSheet(ws *workbook.Worksheet, part string, sst []string, st styles, date1904 bool) error {
	rc, err := p.open(part)
	if err != nil {
		return err
	}
	defer rc.Close()
	dec := xml.NewDecoder(rc)
	rowIdx := -1
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: %s: %w", workbook.ErrFormat, part, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "row" {
			continue
		}
		var row xlsxRow
		if err := dec.DecodeElement(&row, &se); err != nil {
			return fmt.Errorf("%w: %s: %w", workbook.ErrFormat, part, err)
		}
		if row.R > 0 {
			rowIdx = row.R - 1
		} else {
			rowIdx++
		}
		colIdx := -1
		for _, c := range row.C {
			if c.R != "" {
				col, r, err := excelize.CellNameToCoordinates(c.R)
				if err != nil {
					return fmt.Errorf("%w: cell %q: %w", workbook.ErrFormat, c.R, err)
				}
				colIdx, rowIdx = col-1, r-1
			} else {
				colIdx++
			}
			cell, err := cellValue(c, sst, st, date1904)
			if err != nil {
				return fmt.Errorf("%w: %s[%s]: %w", workbook.ErrFormat, part, cellName(rowIdx, colIdx), err)
			}
			if cell.IsEmpty() {
				continue
			}
			if err := ws.SetCell(rowIdx, colIdx, cell); err != nil {
				return err
			}
		}
	}
}

var dateLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
	"15:04:05.999999999",
}

func cellValue(c xlsxC, sst []string, st styles, date1904 bool) (workbook.Cell, error) {
	if c.T == "inlineStr" {
		if c.IS == nil {
			return workbook.Empty, nil
		}
		return workbook.Text(c.IS.text()), nil
	}
	if c.V == nil {
		return workbook.Empty, nil
	}
	v := *c.V
	switch c.T {
	case "s":
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || i < 0 || i >= len(sst) {
			return workbook.Empty, fmt.Errorf("shared string index %q out of %d", v, len(sst))
		}
		return workbook.Text(sst[i]), nil
	case "str":
		return workbook.Text(unescapeXString(v)), nil
	case "e":
		return workbook.Text(v), nil
	case "b":
		return workbook.Bool(strings.TrimSpace(v) == "1" || strings.EqualFold(strings.TrimSpace(v), "true")), nil
	case "d":
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return workbook.DateTime(t), nil
			}
		}
		return workbook.Empty, fmt.Errorf("unparseable date %q", v)
	case "", "n":
	default:
		return workbook.Empty, fmt.Errorf("unknown cell type %q", c.T)
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return workbook.Empty, nil
	}
	switch st.kind(c.S) {
	case kindInteger:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return workbook.Integer(i), nil
		}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return workbook.Empty, err
	}
	switch st.kind(c.S) {
	case kindDate:
		return workbook.DateTime(xldate.ToTime(f, date1904)), nil
	case kindInteger:
		if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
			return workbook.Integer(int64(f)), nil
		}
	}
	return workbook.Number(f), nil
}
