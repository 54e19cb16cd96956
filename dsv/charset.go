// Copyright 2020, 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

package dsv

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/UNO-SOFT/excel/workbook"
)

// EncName is the charset of the environment ($LANG), utf-8 if unset.
// The command line tools use it as their default.
var EncName = "utf-8"

func init() {
	EncName = os.Getenv("LANG")
	if i := strings.IndexByte(EncName, '.'); i >= 0 {
		EncName = strings.ToLower(EncName[i+1:])
	} else {
		EncName = ""
	}
	if EncName == "" {
		EncName = "utf-8"
	}
}

// GetEncoding returns the named encoding, nil for UTF-8.
func GetEncoding(encName string) (encoding.Encoding, error) {
	encName = strings.ToLower(encName)
	if encName == "" || encName == "utf-8" || encName == "utf8" {
		return nil, nil
	}
	enc, err := htmlindex.Get(encName)
	if err != nil {
		err = fmt.Errorf("%w: charset %q: %w", workbook.ErrInvalidArgument, encName, err)
	}
	return enc, err
}

// decoder returns r converted to UTF-8. A byte order mark overrides the charset.
func decoder(r io.Reader, charset string) (io.Reader, error) {
	enc, err := GetEncoding(charset)
	if err != nil {
		return nil, err
	}
	var fallback transform.Transformer = encoding.Nop.NewDecoder()
	if enc != nil {
		fallback = enc.NewDecoder()
	}
	return transform.NewReader(r, unicode.BOMOverride(fallback)), nil
}

// encoder returns w converting UTF-8 into charset.
// Close flushes the pending bytes, but does not close w.
func encoder(w io.Writer, charset string) (io.WriteCloser, error) {
	enc, err := GetEncoding(charset)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nopCloser{w}, nil
	}
	return transform.NewWriter(w, enc.NewEncoder()), nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
