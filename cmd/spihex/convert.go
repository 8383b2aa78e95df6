package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/marcinbor85/gohex"
)

// BinToHex writes data as Intel HEX records placed at base, 16 data
// bytes per record, the layout the flash image loader expects.
func BinToHex(w io.Writer, data []byte, base uint32) error {
	mem := gohex.NewMemory()
	if len(data) > 0 {
		if err := mem.AddBinary(base, data); err != nil {
			return fmt.Errorf("stage binary at 0x%06X: %w", base, err)
		}
	}
	return mem.DumpIntelHex(w, 16)
}

// HexToBin flattens Intel HEX input into a contiguous image starting at
// base. Gaps between records fill with the fill byte (0xFF for erased
// flash). A size of zero sizes the image to the last data byte; records
// below base are an error rather than silently dropped.
func HexToBin(r io.Reader, base uint32, size int, fill byte) ([]byte, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("parse intel hex: %w", err)
	}

	segments := mem.GetDataSegments()
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Address < segments[j].Address
	})

	end := base
	for _, seg := range segments {
		if seg.Address < base {
			return nil, fmt.Errorf("record at 0x%06X lies below base 0x%06X", seg.Address, base)
		}
		segEnd := seg.Address + uint32(len(seg.Data))
		if segEnd > end {
			end = segEnd
		}
	}

	if size == 0 {
		size = int(end - base)
	}
	out := make([]byte, size)
	for i := range out {
		out[i] = fill
	}

	for _, seg := range segments {
		offset := int(seg.Address - base)
		if offset >= len(out) {
			continue
		}
		copy(out[offset:], seg.Data)
	}
	return out, nil
}
