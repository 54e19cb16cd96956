// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

package excel

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/UNO-SOFT/excel/dsv"
	"github.com/UNO-SOFT/excel/workbook"
)

// Format names a container format.
type Format string

const (
	Unknown = Format("")
	Xlsx    = Format("xlsx")
	Xls     = Format("xls")
	Csv     = Format("csv")
)

// LoadOptions parameterize Open. The concrete type selects the codec.
type LoadOptions interface {
	Format() Format
}

// SaveOptions parameterize SaveAs and Write. The concrete type selects the codec.
type SaveOptions interface {
	Format() Format
}

// CsvType is the field delimiter of CSV files.
type CsvType int

const (
	CommaDelimited CsvType = iota
	SemicolonDelimited
	TabDelimited
)

// Comma returns the delimiter rune, ErrInvalidArgument for unknown types.
func (t CsvType) Comma() (rune, error) {
	switch t {
	case CommaDelimited:
		return ',', nil
	case SemicolonDelimited:
		return ';', nil
	case TabDelimited:
		return '\t', nil
	default:
		return 0, fmt.Errorf("%w: CsvType %d", workbook.ErrInvalidArgument, int(t))
	}
}

func (t CsvType) String() string {
	switch t {
	case CommaDelimited:
		return "comma"
	case SemicolonDelimited:
		return "semicolon"
	case TabDelimited:
		return "tab"
	default:
		return fmt.Sprintf("CsvType(%d)", int(t))
	}
}

// ParseCsvType accepts the names returned by String and the delimiters themselves.
func ParseCsvType(s string) (CsvType, error) {
	switch strings.ToLower(s) {
	case "comma", ",", "":
		return CommaDelimited, nil
	case "semicolon", ";":
		return SemicolonDelimited, nil
	case "tab", "\t", `\t`:
		return TabDelimited, nil
	default:
		return 0, fmt.Errorf("%w: delimiter %q", workbook.ErrInvalidArgument, s)
	}
}

type XlsxLoadOptions struct {
	Password string
}

func (XlsxLoadOptions) Format() Format { return Xlsx }

type XlsLoadOptions struct {
	Password string
}

func (XlsLoadOptions) Format() Format { return Xls }

type CsvLoadOptions struct {
	CsvType CsvType
	// ParseNumbers stores decimal numbers as Number cells instead of Text.
	ParseNumbers bool
	// ParseDates stores recognized dates as DateTime cells instead of Text.
	ParseDates bool
	// Charset of the file, UTF-8 if empty.
	Charset string
}

func (CsvLoadOptions) Format() Format { return Csv }

func (o CsvLoadOptions) dsv() (dsv.Options, error) {
	comma, err := o.CsvType.Comma()
	return dsv.Options{Comma: comma, Charset: o.Charset, ParseNumbers: o.ParseNumbers, ParseDates: o.ParseDates}, err
}

type XlsxSaveOptions struct {
	// Password encrypts the package if not empty.
	Password string
}

func (XlsxSaveOptions) Format() Format { return Xlsx }

type XlsSaveOptions struct {
	// Password encrypts the workbook with RC4 if not empty.
	Password string
}

func (XlsSaveOptions) Format() Format { return Xls }

// CsvSaveOptions writes the active worksheet only.
type CsvSaveOptions struct {
	CsvType CsvType
	Charset string
}

func (CsvSaveOptions) Format() Format { return Csv }

func (o CsvSaveOptions) dsv() (dsv.Options, error) {
	comma, err := o.CsvType.Comma()
	return dsv.Options{Comma: comma, Charset: o.Charset}, err
}

// SaveOptionsFor returns the default save options for the file name's extension:
// .xlsx, .xls, .csv (comma delimited) or .txt (tab delimited).
func SaveOptionsFor(path string) (SaveOptions, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx":
		return XlsxSaveOptions{}, nil
	case ".xls":
		return XlsSaveOptions{}, nil
	case ".csv":
		return CsvSaveOptions{CsvType: CommaDelimited}, nil
	case ".txt":
		return CsvSaveOptions{CsvType: TabDelimited}, nil
	default:
		return nil, fmt.Errorf("%w: extension %q", workbook.ErrUnsupportedFormat, ext)
	}
}
