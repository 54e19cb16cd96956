// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

package excel

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/UNO-SOFT/excel/dsv"
	"github.com/UNO-SOFT/excel/internal/cfb"
	"github.com/UNO-SOFT/excel/workbook"
	"github.com/UNO-SOFT/excel/xls"
	"github.com/UNO-SOFT/excel/xlsx"
)

// Codec translates between a Workbook and the bytes of one format.
//
// The options passed are those whose Format the codec is registered for;
// nil means the defaults.
type Codec interface {
	Decode(data []byte, opts LoadOptions) (*workbook.Workbook, error)
	Encode(w io.Writer, wb *workbook.Workbook, opts SaveOptions) error
}

var (
	codecsMu sync.RWMutex
	codecs   = map[Format]Codec{
		Xlsx: xlsxCodec{},
		Xls:  xlsCodec{},
		Csv:  csvCodec{},
	}
)

// RegisterCodec registers (or replaces) the codec of format f.
func RegisterCodec(f Format, c Codec) {
	codecsMu.Lock()
	defer codecsMu.Unlock()
	if c == nil {
		delete(codecs, f)
		return
	}
	codecs[f] = c
}

func lookupCodec(f Format) (Codec, error) {
	codecsMu.RLock()
	c, ok := codecs[f]
	codecsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", workbook.ErrUnsupportedFormat, f)
	}
	return c, nil
}

var zipMagic = []byte("PK\x03\x04")

// DetectFormat tells the format of data by its magic bytes, falling back
// to the extension of name. An OLE2 file holding an encrypted package is Xlsx.
func DetectFormat(data []byte, name string) Format {
	switch {
	case cfb.IsCFB(data):
		if xlsx.IsEncrypted(data) {
			return Xlsx
		}
		return Xls
	case bytes.HasPrefix(data, zipMagic):
		return Xlsx
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return Xlsx
	case ".xls":
		return Xls
	case ".csv", ".txt":
		return Csv
	}
	if len(data) != 0 {
		return Csv
	}
	return Unknown
}

// optionsOf returns opts as a T. Both T and *T are accepted, nil gives the zero T.
func optionsOf[T any](opts any) (T, error) {
	var zero T
	switch o := opts.(type) {
	case nil:
		return zero, nil
	case T:
		return o, nil
	case *T:
		if o != nil {
			return *o, nil
		}
		return zero, nil
	}
	return zero, fmt.Errorf("%w: %T options, wanted %T", workbook.ErrInvalidArgument, opts, zero)
}

type xlsxCodec struct{}

func (xlsxCodec) Decode(data []byte, opts LoadOptions) (*workbook.Workbook, error) {
	o, err := optionsOf[XlsxLoadOptions](opts)
	if err != nil {
		return nil, err
	}
	return xlsx.Decode(data, xlsx.Options{Password: o.Password})
}
func (xlsxCodec) Encode(w io.Writer, wb *workbook.Workbook, opts SaveOptions) error {
	o, err := optionsOf[XlsxSaveOptions](opts)
	if err != nil {
		return err
	}
	return xlsx.Encode(w, wb, xlsx.Options{Password: o.Password})
}

type xlsCodec struct{}

func (xlsCodec) Decode(data []byte, opts LoadOptions) (*workbook.Workbook, error) {
	o, err := optionsOf[XlsLoadOptions](opts)
	if err != nil {
		return nil, err
	}
	return xls.Decode(data, xls.Options{Password: o.Password})
}
func (xlsCodec) Encode(w io.Writer, wb *workbook.Workbook, opts SaveOptions) error {
	o, err := optionsOf[XlsSaveOptions](opts)
	if err != nil {
		return err
	}
	return xls.Encode(w, wb, xls.Options{Password: o.Password})
}

type csvCodec struct{}

func (csvCodec) Decode(data []byte, opts LoadOptions) (*workbook.Workbook, error) {
	if opts == nil {
		// detected: sniff the delimiter
		return dsv.Decode(data, dsv.Options{})
	}
	lo, err := optionsOf[CsvLoadOptions](opts)
	if err != nil {
		return nil, err
	}
	o, err := lo.dsv()
	if err != nil {
		return nil, err
	}
	return dsv.Decode(data, o)
}
func (csvCodec) Encode(w io.Writer, wb *workbook.Workbook, opts SaveOptions) error {
	so, err := optionsOf[CsvSaveOptions](opts)
	if err != nil {
		return err
	}
	o, err := so.dsv()
	if err != nil {
		return err
	}
	return dsv.Encode(w, wb, o)
}
