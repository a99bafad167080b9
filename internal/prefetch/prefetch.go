// Package prefetch decodes Windows prefetch (.pf) files, one of the two
// execution evidence sources of the engine. The on-disk layout varies by
// format version; newer versions additionally wrap the whole file in a
// compressed container. A structurally invalid file is reported as a
// parse error scoped to that file only.
package prefetch

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
	"unicode/utf16"

	"github.com/4n6ix/triagehost/internal/engine"
	"github.com/4n6ix/triagehost/internal/wintime"
)

// Format signatures.
var (
	sccaMagic = []byte{'S', 'C', 'C', 'A'} // uncompressed, at offset 4
	mamMagic  = []byte{'M', 'A', 'M', 4}   // compressed container, at offset 0
)

// layout describes the version-dependent field positions. Offsets are from
// the start of the decompressed file.
type layout struct {
	lastRunOffset int
	lastRunCount  int
	// runCountOffsets lists candidate run-count positions; version 30
	// exists with two file-information sizes, so the second candidate is
	// probed when the first reads zero.
	runCountOffsets []int
	volumeStride    int
}

var layouts = map[uint32]layout{
	17: {lastRunOffset: 0x78, lastRunCount: 1, runCountOffsets: []int{0x90}, volumeStride: 40},
	23: {lastRunOffset: 0x80, lastRunCount: 1, runCountOffsets: []int{0x98}, volumeStride: 104},
	26: {lastRunOffset: 0x80, lastRunCount: 8, runCountOffsets: []int{0xD0}, volumeStride: 104},
	30: {lastRunOffset: 0x80, lastRunCount: 8, runCountOffsets: []int{0xD0, 0xC8}, volumeStride: 96},
	31: {lastRunOffset: 0x80, lastRunCount: 8, runCountOffsets: []int{0xD0, 0xC8}, volumeStride: 96},
}

// File-information header field offsets shared by all versions.
const (
	offVersion         = 0x00
	offSignature       = 0x04
	offExecName        = 0x10
	execNameBytes      = 60 // 29 UTF-16 characters plus terminator
	offFilenameStrings = 0x64
	offFilenameStrSize = 0x68
	offVolumesInfo     = 0x6C
	offVolumesCount    = 0x70
	offVolumesInfoSize = 0x74
	minHeaderSize      = 0x54
	maxVolumes         = 32
	maxReferencedFiles = 4096
)

// Parse decodes one prefetch file. sourceName is the on-disk filename and
// is recorded verbatim in the result.
func Parse(data []byte, sourceName string) (engine.PrefetchRecord, error) {
	var rec engine.PrefetchRecord

	if len(data) >= 8 && bytes.Equal(data[:4], mamMagic) {
		size := int(binary.LittleEndian.Uint32(data[4:8]))
		if size <= 0 || size > 64<<20 {
			return rec, fmt.Errorf("prefetch %s: implausible uncompressed size %d: %w", sourceName, size, engine.ErrParse)
		}
		plain, err := lzxpressHuffmanDecompress(data[8:], size)
		if err != nil {
			return rec, fmt.Errorf("prefetch %s: decompress: %w", sourceName, err)
		}
		data = plain
	}

	if len(data) < minHeaderSize+0x60 {
		return rec, fmt.Errorf("prefetch %s: file too small (%d bytes): %w", sourceName, len(data), engine.ErrParse)
	}
	if !bytes.Equal(data[offSignature:offSignature+4], sccaMagic) {
		return rec, fmt.Errorf("prefetch %s: bad signature %q: %w", sourceName, data[offSignature:offSignature+4], engine.ErrParse)
	}

	version := binary.LittleEndian.Uint32(data[offVersion:])
	lay, ok := layouts[version]
	if !ok {
		return rec, fmt.Errorf("prefetch %s: unsupported format version %d: %w", sourceName, version, engine.ErrParse)
	}

	rec.SourceFile = sourceName
	rec.FormatVersion = version
	rec.ExecutableName = decodeUTF16(data[offExecName : offExecName+execNameBytes])
	rec.RunCount = readRunCount(data, lay)
	rec.LastRunTimes = readLastRunTimes(data, lay)

	files, err := readFilenameStrings(data)
	if err != nil {
		return rec, fmt.Errorf("prefetch %s: %w", sourceName, err)
	}
	rec.ReferencedFiles = files

	vols, err := readVolumes(data, lay)
	if err != nil {
		return rec, fmt.Errorf("prefetch %s: %w", sourceName, err)
	}
	rec.Volumes = vols

	return rec, nil
}

func readRunCount(data []byte, lay layout) uint32 {
	for _, off := range lay.runCountOffsets {
		if off+4 > len(data) {
			continue
		}
		if v := binary.LittleEndian.Uint32(data[off:]); v != 0 {
			return v
		}
	}
	return 0
}

func readLastRunTimes(data []byte, lay layout) []time.Time {
	var times []time.Time
	for i := 0; i < lay.lastRunCount; i++ {
		off := lay.lastRunOffset + i*8
		if off+8 > len(data) {
			break
		}
		ft := binary.LittleEndian.Uint64(data[off:])
		if t := wintime.ToTime(ft); !t.IsZero() {
			times = append(times, t)
		}
	}
	return times
}

// readFilenameStrings decodes the null-separated UTF-16 block of file paths
// referenced during the traced launches.
func readFilenameStrings(data []byte) ([]string, error) {
	off := int(binary.LittleEndian.Uint32(data[offFilenameStrings:]))
	size := int(binary.LittleEndian.Uint32(data[offFilenameStrSize:]))
	if size == 0 {
		return nil, nil
	}
	if off < minHeaderSize || size < 0 || off+size > len(data) {
		return nil, fmt.Errorf("filename strings section [%#x,+%#x] out of bounds: %w", off, size, engine.ErrParse)
	}

	var files []string
	block := data[off : off+size]
	start := 0
	for i := 0; i+1 < len(block); i += 2 {
		if block[i] == 0 && block[i+1] == 0 {
			if i > start {
				files = append(files, decodeUTF16(block[start:i]))
			}
			start = i + 2
		}
		if len(files) >= maxReferencedFiles {
			break
		}
	}
	return files, nil
}

func readVolumes(data []byte, lay layout) ([]engine.VolumeInfo, error) {
	volOff := int(binary.LittleEndian.Uint32(data[offVolumesInfo:]))
	count := int(binary.LittleEndian.Uint32(data[offVolumesCount:]))
	volSize := int(binary.LittleEndian.Uint32(data[offVolumesInfoSize:]))
	if count == 0 {
		return nil, nil
	}
	if count < 0 || count > maxVolumes {
		return nil, fmt.Errorf("implausible volume count %d: %w", count, engine.ErrParse)
	}
	if volOff < minHeaderSize || volSize < 0 || volOff+volSize > len(data) {
		return nil, fmt.Errorf("volume section [%#x,+%#x] out of bounds: %w", volOff, volSize, engine.ErrParse)
	}

	section := data[volOff : volOff+volSize]
	var vols []engine.VolumeInfo
	for i := 0; i < count; i++ {
		base := i * lay.volumeStride
		if base+20 > len(section) {
			return vols, fmt.Errorf("truncated volume entry %d: %w", i, engine.ErrParse)
		}
		pathOff := int(binary.LittleEndian.Uint32(section[base:]))
		pathLen := int(binary.LittleEndian.Uint32(section[base+4:])) * 2
		creation := binary.LittleEndian.Uint64(section[base+8:])
		serial := binary.LittleEndian.Uint32(section[base+16:])

		var devicePath string
		if pathOff >= 0 && pathLen >= 0 && pathOff+pathLen <= len(section) {
			devicePath = decodeUTF16(section[pathOff : pathOff+pathLen])
		}

		vols = append(vols, engine.VolumeInfo{
			DevicePath:   devicePath,
			SerialNumber: fmt.Sprintf("%08X", serial),
			CreationTime: wintime.ToTime(creation),
		})
	}
	return vols, nil
}

// decodeUTF16 converts little-endian UTF-16 bytes to a string, stopping at
// the first null terminator.
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
