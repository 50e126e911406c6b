// Package wire implements the binary protocol's length-prefixed framing
// primitives: the variable-length unsigned integer codec and
// length-prefixed strings (spec.md §4.F, §6), used by both the remote
// protocol (package remote) and the replication protocol (package
// replication). Grounded on the original implementation's length.cc/length.h
// (original_source/length.cc, src/length.h) for exact byte layout.
package wire

import "github.com/Kronuz/Xapiand-sub007/cmn/cos"

// MaxVarUintLen is the maximum number of bytes EncodeVarUint can produce for
// any uint64: the 0xFF marker, up to ceil(64/7)=10 data groups, and the
// standalone terminator byte.
const MaxVarUintLen = 1 + 10 + 1

// EncodeVarUint appends the var-uint encoding of n to dst and returns the
// extended slice.
//
// Encoding (spec.md §6):
//   - n < 255:  one byte, the value itself.
//   - n >= 255: byte 0xFF, then (n-255) as a stream of plain 7-bit
//     little-endian groups (low-order first, high bit always clear),
//     followed by a standalone terminator byte 0x80. The terminator never
//     carries value; it is purely a stop marker (spec.md §8 scenario 1:
//     encode(256) is [0xFF, 0x01, 0x80], not [0xFF, 0x81]).
func EncodeVarUint(dst []byte, n uint64) []byte {
	if n < 0xff {
		return append(dst, byte(n))
	}
	dst = append(dst, 0xff)
	rest := n - 0xff
	for rest > 0 {
		dst = append(dst, byte(rest&0x7f))
		rest >>= 7
	}
	return append(dst, 0x80)
}

// DecodeVarUint decodes a var-uint starting at buf[pos], returning the value
// and the position just past it. On malformed input (truncated continuation,
// pos out of range) it returns a *cos.ErrSerialisation and leaves pos
// unchanged, per spec.md §4.F decoder contract ("on failure they advance
// nothing").
func DecodeVarUint(buf []byte, pos int) (value uint64, newPos int, err error) {
	if pos < 0 || pos >= len(buf) {
		return 0, pos, cos.NewErrSerialisation("var-uint: pos %d out of range (len %d)", pos, len(buf))
	}
	first := buf[pos]
	if first != 0xff {
		return uint64(first), pos + 1, nil
	}
	p := pos + 1
	var result uint64 = 0xff
	var shift uint
	for {
		if p >= len(buf) {
			return 0, pos, cos.NewErrSerialisation("var-uint: truncated continuation at %d", pos)
		}
		b := buf[p]
		p++
		if b&0x80 != 0 {
			// Standalone terminator: carries no value of its own.
			return result, p, nil
		}
		if shift > 63 {
			return 0, pos, cos.NewErrSerialisation("var-uint: overflow at %d", pos)
		}
		result += uint64(b) << shift
		shift += 7
	}
}

// EncodeString appends the length-prefixed encoding of s (var-uint length +
// raw bytes) to dst.
func EncodeString(dst []byte, s []byte) []byte {
	dst = EncodeVarUint(dst, uint64(len(s)))
	return append(dst, s...)
}

// DecodeString decodes a length-prefixed byte string starting at buf[pos].
// checkRemaining, when true, additionally verifies the decoded length does
// not exceed the bytes actually available in buf, matching the decoder
// contract's "&pos, end, check_remaining" signature (spec.md §4.F).
func DecodeString(buf []byte, pos int, checkRemaining bool) (s []byte, newPos int, err error) {
	n, p, err := DecodeVarUint(buf, pos)
	if err != nil {
		return nil, pos, err
	}
	end := p + int(n)
	if checkRemaining && (n > uint64(len(buf)-p) || end < p) {
		return nil, pos, cos.NewErrSerialisation("string: need %d bytes, have %d", n, len(buf)-p)
	}
	if end > len(buf) {
		return nil, pos, cos.NewErrSerialisation("string: truncated payload at %d", pos)
	}
	return buf[p:end], end, nil
}
