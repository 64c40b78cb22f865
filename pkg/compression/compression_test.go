package compression

import (
	"bytes"
	"testing"
)

func TestRoundTripAllAlgorithms(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 50)

	for _, algo := range []Algorithm{AlgorithmNone, AlgorithmSnappy, AlgorithmZstd} {
		t.Run(algo.String(), func(t *testing.T) {
			codec, err := NewCodec(algo)
			if err != nil {
				t.Fatalf("NewCodec: %v", err)
			}
			compressed, err := codec.Compress(payload)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			out, err := codec.Decompress(compressed)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(out, payload) {
				t.Fatalf("round-trip mismatch for %s", algo)
			}
		})
	}
}

func TestForAlgorithmRejectsUnknownID(t *testing.T) {
	if _, err := ForAlgorithm(200); err == nil {
		t.Fatal("expected an error for an unrecognized codec id")
	}
}

func TestEmptyValueRoundTrips(t *testing.T) {
	for _, algo := range []Algorithm{AlgorithmNone, AlgorithmSnappy, AlgorithmZstd} {
		codec, _ := NewCodec(algo)
		compressed, err := codec.Compress(nil)
		if err != nil {
			t.Fatalf("Compress(nil): %v", err)
		}
		out, err := codec.Decompress(compressed)
		if err != nil {
			t.Fatalf("Decompress: %v", err)
		}
		if len(out) != 0 {
			t.Fatalf("%s: expected empty round-trip, got %q", algo, out)
		}
	}
}
