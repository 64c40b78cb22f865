package encryption

import (
	"bytes"
	"testing"
)

func TestRoundTripPreservesLength(t *testing.T) {
	cfg, err := NewConfigFromPassphrase("correct horse battery staple", []byte("salt"))
	if err != nil {
		t.Fatalf("NewConfigFromPassphrase: %v", err)
	}

	plaintext := bytes.Repeat([]byte("put-record-payload"), 100)

	stream, iv, err := NewStream(cfg)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	ciphertext := make([]byte, len(plaintext))
	stream.XORKeyStream(ciphertext, plaintext)

	if len(ciphertext) != len(plaintext) {
		t.Fatalf("CTR must be format-preserving: got %d bytes for %d", len(ciphertext), len(plaintext))
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Fatal("ciphertext should not equal plaintext")
	}

	readStream, err := OpenStream(cfg, iv, 0)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	decoded := make([]byte, len(ciphertext))
	readStream.XORKeyStream(decoded, ciphertext)

	if !bytes.Equal(decoded, plaintext) {
		t.Fatal("round-trip through OpenStream did not recover the plaintext")
	}
}

func TestOpenStreamResumesAtOffset(t *testing.T) {
	cfg, _ := NewConfigFromPassphrase("pw", []byte("salt"))
	plaintext := bytes.Repeat([]byte("x"), 9000)

	stream, iv, _ := NewStream(cfg)
	ciphertext := make([]byte, len(plaintext))
	stream.XORKeyStream(ciphertext, plaintext)

	const split = 4096
	resumed, err := OpenStream(cfg, iv, split)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	decoded := make([]byte, len(plaintext)-split)
	resumed.XORKeyStream(decoded, ciphertext[split:])

	if !bytes.Equal(decoded, plaintext[split:]) {
		t.Fatal("resuming the keystream at an offset must decode the tail correctly")
	}
}

func TestNilStreamIsPassthrough(t *testing.T) {
	var s *Stream
	plaintext := []byte("hello")
	out := make([]byte, len(plaintext))
	s.XORKeyStream(out, plaintext)
	if !bytes.Equal(out, plaintext) {
		t.Fatal("a nil stream (encryption disabled) must pass bytes through unchanged")
	}
}

func TestDefaultConfigDisablesEncryption(t *testing.T) {
	cfg := DefaultConfig()
	stream, iv, err := NewStream(cfg)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if stream != nil || iv != nil {
		t.Fatal("default config must not produce a stream or iv header")
	}
}
