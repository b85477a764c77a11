package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// EncodeRLE encodes a sequence of packed values into base64(varint pairs).
// The pairs are (value, run_len) repeated.
func EncodeRLE(vals []uint32) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(vals) {
		v := vals[i]
		run := 1
		for j := i + 1; j < len(vals) && vals[j] == v && run < 1<<31; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(v))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE reverses EncodeRLE. max bounds the decoded length; runs that would
// exceed it are rejected.
func DecodeRLE(b64 string, max int) ([]uint32, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []uint32
	for i := 0; i < len(raw); {
		v, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if v > 0xFFFFFFFF {
			return nil, fmt.Errorf("value too large: %d", v)
		}
		if run > uint64(max-len(out)) {
			return nil, fmt.Errorf("run of %d exceeds limit %d", run, max)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint32(v))
		}
	}
	return out, nil
}
