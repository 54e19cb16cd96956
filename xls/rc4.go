// Copyright 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

package xls

import (
	"bytes"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"crypto/sha1"
	"fmt"
	"unicode/utf16"

	"github.com/UNO-SOFT/excel/workbook"
)

// Excel encrypts "read-only recommended" workbooks with this password.
const defaultPassword = "VelvetSweatshop"

// The RC4 keystream restarts with a fresh key every rc4BlockSize bytes of the stream.
const rc4BlockSize = 1024

func utf16le(s string) []byte {
	u := utf16.Encode([]rune(s))
	return appendChars(nil, u, 2)
}

// rc4Stream en/decrypts at absolute stream offsets.
type rc4Stream struct {
	key   func(block uint32) []byte
	c     *rc4.Cipher
	block uint32
	pos   int
}

func (s *rc4Stream) xorAt(off int, b []byte) {
	var scratch [rc4BlockSize]byte
	for len(b) != 0 {
		block := uint32(off / rc4BlockSize)
		if s.c == nil || block != s.block || off < s.pos {
			s.c, _ = rc4.NewCipher(s.key(block))
			s.block, s.pos = block, int(block)*rc4BlockSize
		}
		if skip := off - s.pos; skip > 0 {
			s.c.XORKeyStream(scratch[:skip], scratch[:skip])
		}
		n := min(len(b), int(block+1)*rc4BlockSize-off)
		s.c.XORKeyStream(b[:n], b[:n])
		off += n
		s.pos = off
		b = b[n:]
	}
}

// standardKey derives the RC4 (MD5) block keys.
func standardKey(password string, salt []byte) func(uint32) []byte {
	h0 := md5.Sum(utf16le(password))
	buf := make([]byte, 0, 16*(5+len(salt)))
	for range 16 {
		buf = append(append(buf, h0[:5]...), salt...)
	}
	h1 := md5.Sum(buf)
	return func(block uint32) []byte {
		h := md5.Sum(le.AppendUint32(append([]byte(nil), h1[:5]...), block))
		return h[:]
	}
}

// cryptoAPIKey derives the RC4 CryptoAPI (SHA-1) block keys.
func cryptoAPIKey(password string, salt []byte, keyBits int) func(uint32) []byte {
	h0 := sha1.Sum(append(append([]byte(nil), salt...), utf16le(password)...))
	return func(block uint32) []byte {
		h := sha1.Sum(le.AppendUint32(append([]byte(nil), h0[:]...), block))
		if keyBits == 40 {
			k := make([]byte, 16)
			copy(k, h[:5])
			return k
		}
		return h[:keyBits/8]
	}
}

// filePass holds the parsed FILEPASS record.
type filePass struct {
	salt, verifier, verifierHash []byte
	cryptoAPI                    bool
	keyBits                      int
}

func parseFilePass(b []byte) (filePass, error) {
	var fp filePass
	if len(b) < 2 {
		return fp, fmt.Errorf("%w: short FILEPASS", workbook.ErrFormat)
	}
	if le.Uint16(b) == 0 {
		return fp, fmt.Errorf("%w: XOR obfuscation is not supported", workbook.ErrFormat)
	}
	if len(b) < 6 {
		return fp, fmt.Errorf("%w: short FILEPASS", workbook.ErrFormat)
	}
	major, minor := le.Uint16(b[2:]), le.Uint16(b[4:])
	b = b[6:]
	switch {
	case major == 1 && minor == 1:
		if len(b) < 48 {
			return fp, fmt.Errorf("%w: short RC4 FILEPASS", workbook.ErrFormat)
		}
		fp.salt, fp.verifier, fp.verifierHash = b[:16], b[16:32], b[32:48]
		return fp, nil
	case major >= 2 && major <= 4 && minor == 2:
		// flags(4) headerSize(4) header verifier
		if len(b) < 8 {
			return fp, fmt.Errorf("%w: short CryptoAPI FILEPASS", workbook.ErrFormat)
		}
		hdrSize := int(le.Uint32(b[4:]))
		b = b[8:]
		if hdrSize < 20 || len(b) < hdrSize {
			return fp, fmt.Errorf("%w: bad CryptoAPI header size %d", workbook.ErrFormat, hdrSize)
		}
		fp.cryptoAPI = true
		fp.keyBits = int(le.Uint32(b[16:]))
		if fp.keyBits == 0 {
			fp.keyBits = 40
		}
		if fp.keyBits < 40 || fp.keyBits > 128 || fp.keyBits%8 != 0 {
			return fp, fmt.Errorf("%w: unsupported RC4 key size %d", workbook.ErrFormat, fp.keyBits)
		}
		b = b[hdrSize:]
		if len(b) < 4 {
			return fp, fmt.Errorf("%w: short CryptoAPI verifier", workbook.ErrFormat)
		}
		saltSize := int(le.Uint32(b))
		b = b[4:]
		if len(b) < saltSize+16+4 {
			return fp, fmt.Errorf("%w: short CryptoAPI verifier", workbook.ErrFormat)
		}
		fp.salt, fp.verifier = b[:saltSize], b[saltSize:saltSize+16]
		b = b[saltSize+16:]
		hashSize := int(le.Uint32(b))
		if len(b) < 4+hashSize {
			return fp, fmt.Errorf("%w: short CryptoAPI verifier hash", workbook.ErrFormat)
		}
		fp.verifierHash = b[4 : 4+hashSize]
		return fp, nil
	}
	return fp, fmt.Errorf("%w: unsupported encryption version %d.%d", workbook.ErrFormat, major, minor)
}

// cipher returns the stream cipher for password, or ErrAuthentication if
// the password does not match the verifier.
func (fp filePass) cipher(password string) (*rc4Stream, error) {
	var key func(uint32) []byte
	if fp.cryptoAPI {
		key = cryptoAPIKey(password, fp.salt, fp.keyBits)
	} else {
		key = standardKey(password, fp.salt)
	}
	c, err := rc4.NewCipher(key(0))
	if err != nil {
		return nil, err
	}
	verifier := make([]byte, len(fp.verifier))
	c.XORKeyStream(verifier, fp.verifier)
	hash := make([]byte, len(fp.verifierHash))
	c.XORKeyStream(hash, fp.verifierHash)
	var want []byte
	if fp.cryptoAPI {
		h := sha1.Sum(verifier)
		want = h[:]
	} else {
		h := md5.Sum(verifier)
		want = h[:]
	}
	if !bytes.Equal(want, hash) {
		return nil, workbook.ErrAuthentication
	}
	return &rc4Stream{key: key}, nil
}

// newFilePass returns a standard RC4 FILEPASS record body for password,
// and the matching stream cipher.
func newFilePass(password string) ([]byte, *rc4Stream, error) {
	var rnd [32]byte
	if _, err := rand.Read(rnd[:]); err != nil {
		return nil, nil, err
	}
	salt, verifier := rnd[:16], rnd[16:]
	key := standardKey(password, salt)
	c, err := rc4.NewCipher(key(0))
	if err != nil {
		return nil, nil, err
	}
	hash := md5.Sum(verifier)
	enc := make([]byte, 32)
	c.XORKeyStream(enc[:16], verifier)
	c.XORKeyStream(enc[16:], hash[:])
	b := make([]byte, 0, 54)
	b = le.AppendUint16(b, 1)
	b = le.AppendUint16(b, 1)
	b = le.AppendUint16(b, 1)
	b = append(b, salt...)
	b = append(b, enc...)
	return b, &rc4Stream{key: key}, nil
}

// plainPrefix returns the number of leading body bytes left in clear text,
// and whether the record is encrypted at all. The first four bytes of
// BOUNDSHEET8 (the substream position) never are.
func plainPrefix(typ uint16) (int, bool) {
	switch typ {
	case recBOF, recFilePass, recUsrExcl, recFileLock, recInterface, recRRDInfo, recRRDHead:
		return 0, false
	case recBoundSheet:
		return 4, true
	}
	return 0, true
}

// cryptRecords en/decrypts, in place, the bodies of every record from off on.
func cryptRecords(stream []byte, off int, s *rc4Stream) error {
	rs := records{stream: stream, off: off}
	for {
		rec, ok := rs.next()
		if !ok {
			return rs.err
		}
		skip, enc := plainPrefix(rec.Type)
		if !enc || len(rec.Data) <= skip {
			continue
		}
		s.xorAt(rec.Offset+skip, rec.Data[skip:])
	}
}
