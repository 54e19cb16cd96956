// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

// Package cfb reads and writes OLE2 compound files (MS-CFB), the container
// of XLS workbooks and of encrypted OOXML packages.
//
// Reading is delegated to github.com/richardlehane/mscfb.
package cfb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/richardlehane/mscfb"
)

// Signature is the first eight bytes of every compound file.
var Signature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// ErrNotFound is returned when none of the requested streams exist.
var ErrNotFound = errors.New("stream not found")

// IsCFB reports whether b starts with the compound file signature.
func IsCFB(b []byte) bool { return bytes.HasPrefix(b, Signature) }

// StreamNames returns the names of the streams stored directly under the root storage.
func StreamNames(r io.ReaderAt) ([]string, error) {
	doc, err := mscfb.New(r)
	if err != nil {
		return nil, err
	}
	var names []string
	for {
		entry, err := doc.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return names, nil
			}
			return names, err
		}
		if len(entry.Path) == 0 && !entry.FileInfo().IsDir() {
			names = append(names, entry.Name)
		}
	}
}

// ReadStream returns the contents of the first root stream matching any of
// names (case-insensitively, as the format defines), trying names in order.
func ReadStream(r io.ReaderAt, names ...string) ([]byte, error) {
	doc, err := mscfb.New(r)
	if err != nil {
		return nil, err
	}
	found := make(map[string][]byte, len(names))
	for {
		entry, err := doc.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if len(entry.Path) != 0 || entry.FileInfo().IsDir() {
			continue
		}
		for _, nm := range names {
			if !strings.EqualFold(nm, entry.Name) {
				continue
			}
			b, err := io.ReadAll(entry)
			if err != nil {
				return nil, fmt.Errorf("read %q: %w", entry.Name, err)
			}
			found[strings.ToLower(nm)] = b
			break
		}
	}
	for _, nm := range names {
		if b, ok := found[strings.ToLower(nm)]; ok {
			slog.Debug("cfb stream", "name", nm, "size", len(b))
			return b, nil
		}
	}
	return nil, fmt.Errorf("%v: %w", names, ErrNotFound)
}
