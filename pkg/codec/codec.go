// Package codec provides fixed-width (de)serialization for the key and
// value types stored in a hash index's pages. It plays the role the
// teacher's pkg/entry package played for int64 pairs, generalized so
// that a BucketPage can be built over any key/value type with a known
// wire width.
package codec

import "encoding/binary"

// Codec describes how to pack a value of type T into a fixed number of
// bytes and back. Size must equal the number of bytes Encode writes and
// Decode reads; a BucketPage uses it to compute entry offsets.
type Codec[T any] struct {
	Size   int
	Encode func(v T, dst []byte)
	Decode func(src []byte) T
}

// Int64Codec packs an int64 into 8 bytes, little-endian. This is the
// same idea as a varint-free fixed-width entry encoding, specialized
// to a single little-endian int64 field.
var Int64Codec = Codec[int64]{
	Size: 8,
	Encode: func(v int64, dst []byte) {
		binary.LittleEndian.PutUint64(dst, uint64(v))
	},
	Decode: func(src []byte) int64 {
		return int64(binary.LittleEndian.Uint64(src))
	},
}

// FixedStringCodec returns a Codec for strings truncated/padded to a
// fixed width. A handful of fixed-width instantiations share one
// implementation instead of a family of generated types, one per
// width.
func FixedStringCodec(width int) Codec[string] {
	return Codec[string]{
		Size: width,
		Encode: func(v string, dst []byte) {
			n := copy(dst, v)
			for i := n; i < width; i++ {
				dst[i] = 0
			}
		},
		Decode: func(src []byte) string {
			n := 0
			for n < len(src) && src[n] != 0 {
				n++
			}
			return string(src[:n])
		},
	}
}
