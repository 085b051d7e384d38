package utils

import (
	"math"
	"testing"
)

func TestHashStringToUint64Stable(t *testing.T) {
	a := HashStringToUint64("req_1:p1")
	b := HashStringToUint64("req_1:p1")
	if a != b {
		t.Fatalf("hash not stable: %d != %d", a, b)
	}
	if a == HashStringToUint64("req_1:p2") {
		t.Fatalf("distinct inputs collided")
	}
}

func TestHaversineKm(t *testing.T) {
	// Recife to Olinda, roughly 6-7 km.
	d := HaversineKm(-8.0476, -34.877, -7.9933, -34.8417)
	if d < 5 || d > 9 {
		t.Fatalf("unexpected distance %f", d)
	}
	if z := HaversineKm(-8.05, -34.9, -8.05, -34.9); math.Abs(z) > 1e-9 {
		t.Fatalf("zero distance expected, got %f", z)
	}
}
