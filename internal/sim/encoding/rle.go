// Package encoding packs submap cell columns for the wire.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// EncodeRLE encodes a sequence of palette indexes into base64(varint pairs).
// The pairs are (index, run_len) repeated.
func EncodeRLE(ids []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(ids) {
		b := ids[i]
		run := 1
		for j := i + 1; j < len(ids) && ids[j] == b && run < 1<<31; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(b))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE reverses EncodeRLE. The decoded length must equal want.
func DecodeRLE(b64 string, want int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, 0, want)
	for i := 0; i < len(raw); {
		b, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if b > 0xFFFF {
			return nil, fmt.Errorf("palette index too large: %d", b)
		}
		if run == 0 || run > uint64(want-len(out)) {
			return nil, fmt.Errorf("run %d overflows %d cells", run, want)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(b))
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("decoded %d cells, want %d", len(out), want)
	}
	return out, nil
}

// EncodeBits run-length encodes a bool column as 0/1 values.
func EncodeBits(bits []bool) string {
	ids := make([]uint16, len(bits))
	for i, b := range bits {
		if b {
			ids[i] = 1
		}
	}
	return EncodeRLE(ids)
}

func DecodeBits(b64 string, want int) ([]bool, error) {
	ids, err := DecodeRLE(b64, want)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(ids))
	for i, v := range ids {
		if v > 1 {
			return nil, fmt.Errorf("bit %d has value %d", i, v)
		}
		out[i] = v == 1
	}
	return out, nil
}
