package midi

import "errors"

// MaxVarLen is the largest value a four-byte variable-length quantity holds.
const MaxVarLen = 0x0FFFFFFF

// EncodeVarLen encodes v as a MIDI variable-length quantity: big-endian
// 7-bit groups with the high bit set on every byte but the last.
func EncodeVarLen(v uint32) []byte {
	if v == 0 {
		return []byte{0}
	}
	var groups [5]byte
	n := 0
	for v > 0 {
		groups[n] = byte(v & 0x7F)
		v >>= 7
		n++
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b := groups[n-1-i]
		if i < n-1 {
			b |= 0x80
		}
		out[i] = b
	}
	return out
}

// DecodeVarLen reads one variable-length quantity from the start of data and
// returns it with the number of bytes consumed.
func DecodeVarLen(data []byte) (uint32, int, error) {
	var v uint32
	for i, b := range data {
		if i == 4 {
			return 0, 0, errors.New("variable-length quantity longer than 4 bytes")
		}
		v = v<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, errors.New("truncated variable-length quantity")
}
