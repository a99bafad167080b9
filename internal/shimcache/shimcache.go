// Package shimcache decodes the application compatibility cache
// (AppCompatCache) registry blob. The cache records executables the shim
// engine has inspected, which makes it execution evidence even for
// programs deleted since. Three on-disk layouts are supported; the
// variant is probed from the header signature.
package shimcache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/4n6ix/triagehost/internal/engine"
	"github.com/4n6ix/triagehost/internal/wintime"
)

const (
	win7Signature = 0xBADC0FEE
	win8Header    = 0x80
	maxEntries    = 16384
)

var (
	magicWin10 = []byte("10ts")
	magicWin8  = []byte("00ts")
)

// Parse decodes an AppCompatCache value. The layout is detected from the
// header: Windows 10/11 stores the entry-array offset in the first dword,
// Windows 8/8.1 uses a fixed 0x80 header, and Windows 7 leads with a
// magic constant.
func Parse(data []byte) ([]engine.ShimcacheRecord, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("shimcache blob too small (%d bytes): %w", len(data), engine.ErrParse)
	}

	head := binary.LittleEndian.Uint32(data)
	switch {
	case head == win7Signature:
		return parseWin7(data)
	case head == 0x30 || head == 0x34:
		return parseWin10(data, int(head))
	case len(data) > win8Header+4 && isWin8Magic(data[win8Header:win8Header+4]):
		return parseWin8(data)
	default:
		return nil, fmt.Errorf("unrecognized shimcache header %#x: %w", head, engine.ErrParse)
	}
}

func isWin8Magic(b []byte) bool {
	return bytes.Equal(b, magicWin10) || bytes.Equal(b, magicWin8)
}

// parseWin10 walks the Windows 10/11 entry array. Entries are variable
// length: a "10ts" tag, an unused checksum, the payload size, then the
// payload itself. This layout carries no execution flag.
func parseWin10(data []byte, start int) ([]engine.ShimcacheRecord, error) {
	var records []engine.ShimcacheRecord
	off := start
	for off+12 <= len(data) && len(records) < maxEntries {
		if !bytes.Equal(data[off:off+4], magicWin10) {
			break
		}
		size := int(binary.LittleEndian.Uint32(data[off+8:]))
		payload := off + 12
		if size < 0 || payload+size > len(data) {
			return records, fmt.Errorf("truncated entry at offset %#x: %w", off, engine.ErrParse)
		}

		rec, err := decodeWin10Payload(data[payload : payload+size])
		if err != nil {
			return records, fmt.Errorf("entry at offset %#x: %w", off, err)
		}
		records = append(records, rec)
		off = payload + size
	}
	return records, nil
}

func decodeWin10Payload(p []byte) (engine.ShimcacheRecord, error) {
	var rec engine.ShimcacheRecord
	if len(p) < 2 {
		return rec, fmt.Errorf("payload too small: %w", engine.ErrParse)
	}
	pathSize := int(binary.LittleEndian.Uint16(p))
	if 2+pathSize+8 > len(p) {
		return rec, fmt.Errorf("path overruns payload: %w", engine.ErrParse)
	}
	rec.Path = decodeUTF16(p[2 : 2+pathSize])
	rec.LastModified = wintime.ToTime(binary.LittleEndian.Uint64(p[2+pathSize:]))
	rec.Executed = engine.ExecutedUnknown
	return rec, nil
}

// parseWin8 walks the Windows 8/8.1 entry array. Unlike 10, the payload
// carries insertion flags; bit 1 marks that the executable actually ran.
func parseWin8(data []byte) ([]engine.ShimcacheRecord, error) {
	var records []engine.ShimcacheRecord
	off := win8Header
	for off+12 <= len(data) && len(records) < maxEntries {
		if !isWin8Magic(data[off : off+4]) {
			break
		}
		size := int(binary.LittleEndian.Uint32(data[off+8:]))
		payload := off + 12
		if size < 0 || payload+size > len(data) {
			return records, fmt.Errorf("truncated entry at offset %#x: %w", off, engine.ErrParse)
		}

		rec, err := decodeWin8Payload(data[payload : payload+size])
		if err != nil {
			return records, fmt.Errorf("entry at offset %#x: %w", off, err)
		}
		records = append(records, rec)
		off = payload + size
	}
	return records, nil
}

func decodeWin8Payload(p []byte) (engine.ShimcacheRecord, error) {
	var rec engine.ShimcacheRecord
	if len(p) < 2 {
		return rec, fmt.Errorf("payload too small: %w", engine.ErrParse)
	}
	pathSize := int(binary.LittleEndian.Uint16(p))
	if 2+pathSize+16 > len(p) {
		return rec, fmt.Errorf("path overruns payload: %w", engine.ErrParse)
	}
	rec.Path = decodeUTF16(p[2 : 2+pathSize])
	insertion := binary.LittleEndian.Uint32(p[2+pathSize:])
	rec.LastModified = wintime.ToTime(binary.LittleEndian.Uint64(p[2+pathSize+8:]))
	rec.Executed = executedFromFlags(insertion)
	return rec, nil
}

// parseWin7 decodes the 64-bit Windows 7 cache: a fixed header with the
// entry count, then 48-byte entries whose path data lives elsewhere in
// the blob.
func parseWin7(data []byte) ([]engine.ShimcacheRecord, error) {
	const (
		headerSize = 0x80
		entrySize  = 48
	)
	count := int(binary.LittleEndian.Uint32(data[4:]))
	if count < 0 || count > maxEntries {
		return nil, fmt.Errorf("implausible entry count %d: %w", count, engine.ErrParse)
	}

	records := make([]engine.ShimcacheRecord, 0, count)
	for i := 0; i < count; i++ {
		base := headerSize + i*entrySize
		if base+entrySize > len(data) {
			return records, fmt.Errorf("truncated entry %d: %w", i, engine.ErrParse)
		}
		e := data[base : base+entrySize]

		pathLen := int(binary.LittleEndian.Uint16(e))
		pathOff := int(binary.LittleEndian.Uint64(e[8:]))
		modified := binary.LittleEndian.Uint64(e[16:])
		insertion := binary.LittleEndian.Uint32(e[24:])

		var path string
		if pathOff >= 0 && pathLen >= 0 && pathOff+pathLen <= len(data) {
			path = decodeUTF16(data[pathOff : pathOff+pathLen])
		}

		records = append(records, engine.ShimcacheRecord{
			Path:         path,
			LastModified: wintime.ToTime(modified),
			Executed:     executedFromFlags(insertion),
		})
	}
	return records, nil
}

func executedFromFlags(insertion uint32) engine.Executed {
	if insertion&0x2 != 0 {
		return engine.ExecutedYes
	}
	return engine.ExecutedNo
}

func decodeUTF16(b []byte) string {
	u := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		c := binary.LittleEndian.Uint16(b[i:])
		if c == 0 {
			break
		}
		u = append(u, c)
	}
	return string(utf16.Decode(u))
}
