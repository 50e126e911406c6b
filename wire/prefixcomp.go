package wire

import "github.com/Kronuz/Xapiand-sub007/cmn/cos"

// PrefixEncoder produces the prefix-compressed term-stream entries used by
// MSG_ALLTERMS/MSG_TERMLIST/MSG_POSITIONLIST/MSG_POSTLIST/MSG_METADATAKEYLIST
// replies (spec.md §4.H, §6, §8 P8). Each entry stores only the suffix that
// differs from the previous full term; the common-prefix length is capped at
// 255 even when the previous term is longer (spec.md §9 open question:
// "source clamps to 255; preserve that behavior for wire compatibility").
type PrefixEncoder struct {
	prev    []byte
	Batched bool // true selects the v42 "reuse | suffix-len | suffix" framing
}

// Next returns the wire bytes for the next term in sorted order, updating
// the encoder's notion of "previous term".
func (e *PrefixEncoder) Next(term []byte) []byte {
	reuse := commonPrefixLen(e.prev, term)
	if reuse > 255 {
		reuse = 255
	}
	suffix := term[reuse:]
	out := make([]byte, 0, 2+len(suffix))
	out = append(out, byte(reuse))
	if e.Batched {
		out = EncodeVarUint(out, uint64(len(suffix)))
	}
	out = append(out, suffix...)
	e.prev = append(e.prev[:0], term...)
	return out
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// PrefixDecoder is the receiving half of PrefixEncoder.
type PrefixDecoder struct {
	prev    []byte
	Batched bool
}

// Next decodes one entry from frame (the entry's full payload, v<=41: suffix
// runs to end of frame; v42: length-prefixed within the frame) and returns
// the reconstructed term.
func (d *PrefixDecoder) Next(frame []byte) (term []byte, err error) {
	if len(frame) == 0 {
		return nil, cos.NewErrSerialisation("prefix entry: empty frame")
	}
	reuse := int(frame[0])
	if reuse > len(d.prev) {
		return nil, cos.NewErrSerialisation("prefix entry: reuse %d exceeds previous term length %d", reuse, len(d.prev))
	}
	var suffix []byte
	if d.Batched {
		n, pos, err := DecodeVarUint(frame, 1)
		if err != nil {
			return nil, err
		}
		end := pos + int(n)
		if end > len(frame) {
			return nil, cos.NewErrSerialisation("prefix entry: truncated suffix")
		}
		suffix = frame[pos:end]
	} else {
		suffix = frame[1:]
	}
	term = make([]byte, 0, reuse+len(suffix))
	term = append(term, d.prev[:reuse]...)
	term = append(term, suffix...)
	d.prev = append(d.prev[:0], term...)
	return term, nil
}
