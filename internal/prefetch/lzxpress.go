package prefetch

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/4n6ix/triagehost/internal/engine"
)

// LZXPRESS Huffman decompression (MS-XCA). Compressed prefetch containers
// hold one Huffman-coded block per 64 KiB of uncompressed data; every block
// starts with a 256-byte table of 4-bit code lengths for 512 symbols.
// Symbols 0-255 are literals, 256-511 encode match length and offset width.

const (
	lzxBlockSize  = 65536
	lzxNumSymbols = 512
	lzxTableBits  = 15
)

// lzxDecodeEntry packs symbol<<4 | codeLength for the prefix lookup table.
type lzxDecodeEntry = uint16

// lzxpressHuffmanDecompress decompresses src into exactly size bytes.
func lzxpressHuffmanDecompress(src []byte, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative uncompressed size: %w", engine.ErrParse)
	}
	out := make([]byte, 0, size)
	srcPos := 0

	for len(out) < size {
		if srcPos+256 > len(src) {
			return nil, fmt.Errorf("truncated huffman table at offset %d: %w", srcPos, engine.ErrParse)
		}
		table, err := buildLzxDecodeTable(src[srcPos : srcPos+256])
		if err != nil {
			return nil, err
		}
		srcPos += 256

		r := newLzxBitReader(src, srcPos)
		blockEnd := len(out) + lzxBlockSize
		if blockEnd > size {
			blockEnd = size
		}

		for len(out) < blockEnd {
			entry := table[r.peek(lzxTableBits)]
			sym := int(entry >> 4)
			codeLen := uint(entry & 0xF)
			if codeLen == 0 {
				return nil, fmt.Errorf("invalid huffman code at output %d: %w", len(out), engine.ErrParse)
			}
			r.consume(codeLen)

			if sym < 256 {
				out = append(out, byte(sym))
				continue
			}

			sym -= 256
			length := sym & 0xF
			offsetBits := uint(sym >> 4)

			offset := int(r.peek16(offsetBits)) | (1 << offsetBits)

			if length == 15 {
				b, err := r.readByte()
				if err != nil {
					return nil, err
				}
				length = int(b) + 15
				if length == 270 {
					w, err := r.readUint16()
					if err != nil {
						return nil, err
					}
					length = int(w)
				}
			}
			r.consume(offsetBits)
			length += 3

			if offset > len(out) {
				return nil, fmt.Errorf("match offset %d beyond output %d: %w", offset, len(out), engine.ErrParse)
			}
			// Overlapping copy is legal; copy byte by byte.
			for i := 0; i < length && len(out) < size; i++ {
				out = append(out, out[len(out)-offset])
			}
		}
		srcPos = r.pos
	}
	return out, nil
}

// buildLzxDecodeTable expands the 256-byte length table into a 2^15-entry
// prefix lookup. Each input byte holds the lengths of two symbols: the even
// symbol in the low nibble, the odd one in the high nibble.
func buildLzxDecodeTable(raw []byte) ([]lzxDecodeEntry, error) {
	type coded struct {
		sym    int
		length uint
	}
	var syms []coded
	for i, b := range raw {
		if l := uint(b & 0xF); l > 0 {
			syms = append(syms, coded{sym: 2 * i, length: l})
		}
		if l := uint(b >> 4); l > 0 {
			syms = append(syms, coded{sym: 2*i + 1, length: l})
		}
	}
	if len(syms) == 0 {
		return nil, fmt.Errorf("empty huffman table: %w", engine.ErrParse)
	}

	// Canonical ordering: by code length, then symbol value.
	sort.Slice(syms, func(i, j int) bool {
		if syms[i].length != syms[j].length {
			return syms[i].length < syms[j].length
		}
		return syms[i].sym < syms[j].sym
	})

	table := make([]lzxDecodeEntry, 1<<lzxTableBits)
	code := 0
	lastLen := uint(0)
	for _, s := range syms {
		code <<= s.length - lastLen
		lastLen = s.length
		span := 1 << (lzxTableBits - s.length)
		start := code << (lzxTableBits - s.length)
		if start+span > len(table) {
			return nil, fmt.Errorf("oversubscribed huffman table: %w", engine.ErrParse)
		}
		entry := lzxDecodeEntry(s.sym)<<4 | lzxDecodeEntry(s.length)
		for i := start; i < start+span; i++ {
			table[i] = entry
		}
		code++
	}
	return table, nil
}

// lzxBitReader reads the MS-XCA bitstream: 16-bit little-endian chunks
// consumed most significant bit first, with extended match lengths pulled
// from the byte stream in between chunk refills.
type lzxBitReader struct {
	src   []byte
	pos   int
	bits  uint32
	avail uint
}

func newLzxBitReader(src []byte, pos int) *lzxBitReader {
	r := &lzxBitReader{src: src, pos: pos}
	r.bits = uint32(r.fetch16())<<16 | uint32(r.fetch16())
	r.avail = 32
	return r
}

// fetch16 reads the next little-endian 16-bit chunk, zero-padding past the
// end of the stream.
func (r *lzxBitReader) fetch16() uint16 {
	switch {
	case r.pos+2 <= len(r.src):
		v := binary.LittleEndian.Uint16(r.src[r.pos:])
		r.pos += 2
		return v
	case r.pos < len(r.src):
		v := uint16(r.src[r.pos])
		r.pos = len(r.src)
		return v
	default:
		return 0
	}
}

// peek returns the next n bits without consuming them. n must be 1..16.
func (r *lzxBitReader) peek(n uint) uint32 {
	return r.bits >> (32 - n)
}

// peek16 is peek that tolerates n == 0.
func (r *lzxBitReader) peek16(n uint) uint32 {
	if n == 0 {
		return 0
	}
	return r.peek(n)
}

// consume discards n bits and refills the window when fewer than 16 remain.
func (r *lzxBitReader) consume(n uint) {
	r.bits <<= n
	r.avail -= n
	if r.avail < 16 {
		r.bits |= uint32(r.fetch16()) << (16 - r.avail)
		r.avail += 16
	}
}

func (r *lzxBitReader) readByte() (byte, error) {
	if r.pos >= len(r.src) {
		return 0, fmt.Errorf("truncated match length: %w", engine.ErrParse)
	}
	b := r.src[r.pos]
	r.pos++
	return b, nil
}

func (r *lzxBitReader) readUint16() (uint16, error) {
	if r.pos+2 > len(r.src) {
		return 0, fmt.Errorf("truncated match length: %w", engine.ErrParse)
	}
	v := binary.LittleEndian.Uint16(r.src[r.pos:])
	r.pos += 2
	return v, nil
}
