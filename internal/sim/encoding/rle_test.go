package encoding

import "testing"

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]uint32, 0, 200)
	in = append(in, 0xFF00FF, 0xFF00FF, 0xFF00FF, 0x00FF00, 0x00FF00, 3)
	for i := 0; i < 50; i++ {
		in = append(in, 0x123456)
	}
	in = append(in, 9, 0xFFFFFF, 0xFFFFFF, 0xFFFFFF)

	enc := EncodeRLE(in)
	out, err := DecodeRLE(enc, len(in))
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRLE_RejectsOversizedRun(t *testing.T) {
	in := make([]uint32, 100)
	enc := EncodeRLE(in)
	if _, err := DecodeRLE(enc, 99); err == nil {
		t.Fatalf("expected limit error")
	}
}

func TestRLE_Empty(t *testing.T) {
	out, err := DecodeRLE(EncodeRLE(nil), 0)
	if err != nil || len(out) != 0 {
		t.Fatalf("empty round trip: %v %v", out, err)
	}
}
