package store

import (
	"testing"

	"osmreplica/model"
)

func TestInt40RoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 255316725, 2619283354, model.MaxPackedID}
	for _, id := range cases {
		got := bytesToInt40(int40ToBytes(id))
		if got != id {
			t.Errorf("round trip failed for %d: got %d", id, got)
		}
	}
}

func TestInt40PanicsOnOverflow(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for id >= 2^40")
		}
	}()
	int40ToBytes(model.MaxPackedID + 1)
}

func TestCoordRoundTrip(t *testing.T) {
	cases := []int32{0, 1, -1, 179031745, -628363074, 1_800_000_000 - 1, -1_800_000_000}
	for _, c := range cases {
		got := bytesToCoord(coordToBytes(c))
		if got != c {
			t.Errorf("round trip failed for %d: got %d", c, got)
		}
	}
}

func TestTo9DigitsConcatenation(t *testing.T) {
	cases := map[uint64]string{
		0:         "000000000",
		529891:    "000529891",
		255316725: "255316725",
	}
	for id, want := range cases {
		digits := to9Digits(id)
		got := digitsToString(digits[:])
		if got != want {
			t.Errorf("to9Digits(%d) = %s, want %s", id, got, want)
		}
	}
}

func TestRelationPathParts(t *testing.T) {
	a, b, c := relationPathParts(529891)
	if a != "000" || b != "529" || c != "891" {
		t.Errorf("got %s/%s/%s", a, b, c)
	}
}
