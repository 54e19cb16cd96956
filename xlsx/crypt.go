// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

package xlsx

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/xuri/excelize/v2"

	"github.com/UNO-SOFT/excel/internal/cfb"
	"github.com/UNO-SOFT/excel/workbook"
)

// IsEncrypted reports whether data is an OLE2 file holding an encrypted
// OOXML package (EncryptionInfo and EncryptedPackage streams).
func IsEncrypted(data []byte) bool {
	if !cfb.IsCFB(data) {
		return false
	}
	names, err := cfb.StreamNames(bytes.NewReader(data))
	return err == nil && slices.Contains(names, "EncryptionInfo")
}

// decrypt returns the zip package inside an encrypted OLE2 file.
func decrypt(data []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: package is encrypted", workbook.ErrAuthentication)
	}
	b, err := excelize.Decrypt(data, &excelize.Options{Password: password})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", workbook.ErrAuthentication, err)
	}
	return b, nil
}

// encrypt wraps the zip package into an OLE2 file with ECMA-376 agile encryption.
func encrypt(pkg []byte, password string) ([]byte, error) {
	return excelize.Encrypt(pkg, &excelize.Options{Password: password})
}
