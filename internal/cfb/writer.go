// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

package cfb

import (
	"bufio"
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"slices"
	"strings"
	"unicode/utf16"
)

const (
	sectorSize   = 512
	dirEntrySize = 128
	fatPerSector = sectorSize / 4
	headerDIFAT  = 109
	// MiniStreamCutoff is the stream size below which the format would use
	// the mini stream. Written streams are padded up to this size instead.
	MiniStreamCutoff = 4096

	endOfChain = 0xFFFFFFFE
	freeSect   = 0xFFFFFFFF
	fatSect    = 0xFFFFFFFD
	difSect    = 0xFFFFFFFC
	noStream   = 0xFFFFFFFF

	typeStream = 2
	typeRoot   = 5
	colorBlack = 1
)

// Stream is a named stream to be stored under the root storage.
type Stream struct {
	Name string
	Data []byte
}

// Write writes a version 3 compound file (512-byte sectors) holding the
// given streams under the root storage.
//
// Streams shorter than MiniStreamCutoff are zero-padded to that size,
// so no mini stream or mini FAT is ever written.
func Write(w io.Writer, streams ...Stream) error {
	seen := make(map[string]struct{}, len(streams))
	for _, s := range streams {
		if n := len(utf16.Encode([]rune(s.Name))); n == 0 || n > 31 {
			return fmt.Errorf("stream name %q: length must be 1..31", s.Name)
		}
		k := strings.ToUpper(s.Name)
		if _, ok := seen[k]; ok {
			return fmt.Errorf("duplicate stream name %q", s.Name)
		}
		seen[k] = struct{}{}
	}

	sizes := make([]int, len(streams))
	starts := make([]uint32, len(streams))
	var dataSectors int
	for i, s := range streams {
		sizes[i] = max(len(s.Data), MiniStreamCutoff)
		starts[i] = uint32(dataSectors)
		dataSectors += (sizes[i] + sectorSize - 1) / sectorSize
	}
	dirSectors := ((1+len(streams))*dirEntrySize + sectorSize - 1) / sectorSize

	// FAT sectors must map themselves and the DIFAT sectors, too.
	var fatSectors, difatSectors int
	for {
		total := dataSectors + dirSectors + fatSectors + difatSectors
		needFAT := (total + fatPerSector - 1) / fatPerSector
		needDIFAT := 0
		if needFAT > headerDIFAT {
			needDIFAT = (needFAT - headerDIFAT + fatPerSector - 2) / (fatPerSector - 1)
		}
		if needFAT == fatSectors && needDIFAT == difatSectors {
			break
		}
		fatSectors, difatSectors = needFAT, needDIFAT
	}
	dirStart := dataSectors
	fatStart := dirStart + dirSectors
	difatStart := fatStart + fatSectors

	fat := make([]uint32, fatSectors*fatPerSector)
	for i := range fat {
		fat[i] = freeSect
	}
	chain := func(start, n int) {
		for i := start; i < start+n-1; i++ {
			fat[i] = uint32(i + 1)
		}
		fat[start+n-1] = endOfChain
	}
	for i := range streams {
		chain(int(starts[i]), (sizes[i]+sectorSize-1)/sectorSize)
	}
	chain(dirStart, dirSectors)
	for i := range fatSectors {
		fat[fatStart+i] = fatSect
	}
	for i := range difatSectors {
		fat[difatStart+i] = difSect
	}

	bw := bufio.NewWriterSize(w, 1<<16)
	le := binary.LittleEndian

	// header
	var hdr [sectorSize]byte
	copy(hdr[0:], Signature)
	le.PutUint16(hdr[24:], 0x003E)
	le.PutUint16(hdr[26:], 3)
	le.PutUint16(hdr[28:], 0xFFFE)
	le.PutUint16(hdr[30:], 9)
	le.PutUint16(hdr[32:], 6)
	le.PutUint32(hdr[44:], uint32(fatSectors))
	le.PutUint32(hdr[48:], uint32(dirStart))
	le.PutUint32(hdr[56:], MiniStreamCutoff)
	le.PutUint32(hdr[60:], endOfChain)
	if difatSectors == 0 {
		le.PutUint32(hdr[68:], endOfChain)
	} else {
		le.PutUint32(hdr[68:], uint32(difatStart))
	}
	le.PutUint32(hdr[72:], uint32(difatSectors))
	for i := range headerDIFAT {
		v := uint32(freeSect)
		if i < fatSectors {
			v = uint32(fatStart + i)
		}
		le.PutUint32(hdr[76+4*i:], v)
	}
	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}

	// stream data
	var zeros [sectorSize]byte
	for i, s := range streams {
		if _, err := bw.Write(s.Data); err != nil {
			return err
		}
		pad := (sizes[i]+sectorSize-1)/sectorSize*sectorSize - len(s.Data)
		for pad > 0 {
			n := min(pad, len(zeros))
			if _, err := bw.Write(zeros[:n]); err != nil {
				return err
			}
			pad -= n
		}
	}

	// directory
	dir := make([]byte, dirSectors*sectorSize)
	for i := 0; i < len(dir); i += dirEntrySize {
		le.PutUint32(dir[i+68:], noStream)
		le.PutUint32(dir[i+72:], noStream)
		le.PutUint32(dir[i+76:], noStream)
	}
	order := make([]int, len(streams))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int { return compareNames(streams[a].Name, streams[b].Name) })
	left := make([]uint32, len(streams))
	right := make([]uint32, len(streams))
	var build func(lo, hi int) uint32
	build = func(lo, hi int) uint32 {
		if lo >= hi {
			return noStream
		}
		mid := (lo + hi) / 2
		i := order[mid]
		left[i], right[i] = build(lo, mid), build(mid+1, hi)
		return uint32(i + 1)
	}
	rootChild := build(0, len(order))

	putEntry(dir[0:dirEntrySize], "Root Entry", typeRoot, noStream, noStream, rootChild, endOfChain, 0)
	for i, s := range streams {
		off := (i + 1) * dirEntrySize
		putEntry(dir[off:off+dirEntrySize], s.Name, typeStream, left[i], right[i], noStream, starts[i], uint32(sizes[i]))
	}
	if _, err := bw.Write(dir); err != nil {
		return err
	}

	// FAT
	var buf [4]byte
	for _, v := range fat {
		le.PutUint32(buf[:], v)
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}

	// DIFAT: 127 FAT sector numbers, then the next DIFAT sector
	next := headerDIFAT
	for d := range difatSectors {
		for range fatPerSector - 1 {
			v := uint32(freeSect)
			if next < fatSectors {
				v = uint32(fatStart + next)
			}
			next++
			le.PutUint32(buf[:], v)
			if _, err := bw.Write(buf[:]); err != nil {
				return err
			}
		}
		v := uint32(endOfChain)
		if d+1 < difatSectors {
			v = uint32(difatStart + d + 1)
		}
		le.PutUint32(buf[:], v)
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func putEntry(b []byte, name string, typ byte, left, right, child, start, size uint32) {
	le := binary.LittleEndian
	u := utf16.Encode([]rune(name))
	for i, c := range u {
		le.PutUint16(b[2*i:], c)
	}
	le.PutUint16(b[64:], uint16(2*(len(u)+1)))
	b[66] = typ
	b[67] = colorBlack
	le.PutUint32(b[68:], left)
	le.PutUint32(b[72:], right)
	le.PutUint32(b[76:], child)
	le.PutUint32(b[116:], start)
	le.PutUint32(b[120:], size)
}

// compareNames orders directory entries: shorter names first, then by
// the upper-cased UTF-16 code units.
func compareNames(a, b string) int {
	ua, ub := utf16.Encode([]rune(strings.ToUpper(a))), utf16.Encode([]rune(strings.ToUpper(b)))
	if c := cmp.Compare(len(ua), len(ub)); c != 0 {
		return c
	}
	return slices.Compare(ua, ub)
}
