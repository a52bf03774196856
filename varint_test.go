package meta2bseek

import (
	"reflect"
	"testing"
)

func TestPositionDeltaRoundTrip(t *testing.T) {
	cases := [][]uint32{
		{},
		{5},
		{5, 120, 121, 999999},
		{0, 1, 2, 3, 4, 5, 6, 7},
	}
	for _, positions := range cases {
		encoded := encodePositionDeltas(positions)
		decoded := decodePositionDeltas(encoded, len(positions))
		if len(positions) == 0 {
			if len(decoded) != 0 {
				t.Errorf("expected empty, got %v", decoded)
			}
			continue
		}
		if !reflect.DeepEqual(decoded, positions) {
			t.Errorf("got %v want %v", decoded, positions)
		}
	}
}

func TestVarintPairByteLengths(t *testing.T) {
	buf := make([]byte, 16)
	ctrl, n := putVarintPair(buf, 1, 1<<40)
	vals, n2 := varintPair(ctrl, buf[:n])
	if n != n2 {
		t.Fatalf("length mismatch: %d vs %d", n, n2)
	}
	if vals[0] != 1 || vals[1] != 1<<40 {
		t.Errorf("got %v", vals)
	}
}
