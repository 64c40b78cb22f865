// Package encryption provides an optional whole-file keystream cipher for
// the WAL and SSTable files. It is deliberately format-preserving: AES in
// CTR mode never changes the length of the plaintext, so the on-disk
// record framing those packages rely on survives unchanged underneath it.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/pbkdf2"
)

// Algorithm identifies a file-encryption scheme.
type Algorithm uint8

const (
	// AlgorithmNone disables encryption; bytes pass through unchanged.
	AlgorithmNone Algorithm = iota
	// AlgorithmAES256CTR keystream-XORs the file with AES-256 in CTR mode.
	AlgorithmAES256CTR
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmAES256CTR:
		return "AES-256-CTR"
	default:
		return "None"
	}
}

// IVSize is the fixed cleartext header every encrypted file carries before
// its first byte of keystream-XORed content.
const IVSize = aes.BlockSize

// Config selects an algorithm and a 32-byte key for AES-256.
type Config struct {
	Algorithm Algorithm
	Key       []byte
}

// DefaultConfig disables encryption.
func DefaultConfig() *Config {
	return &Config{Algorithm: AlgorithmNone}
}

// NewConfigFromPassphrase derives a 32-byte AES key from a passphrase and
// salt via PBKDF2-HMAC-SHA256 (100,000 iterations).
func NewConfigFromPassphrase(passphrase string, salt []byte) (*Config, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("encryption: passphrase must not be empty")
	}
	key := pbkdf2.Key([]byte(passphrase), salt, 100_000, 32, sha256.New)
	return &Config{Algorithm: AlgorithmAES256CTR, Key: key}, nil
}

// Stream wraps a file handle's reads and writes with the CTR keystream
// implied by Config.
type Stream struct {
	stream cipher.Stream
}

// NewStream builds the keystream for a freshly created, empty file and
// returns the IV header that must be written before any ciphertext. It
// returns a nil *Stream (and nil header) when cfg disables encryption, so
// callers can treat XORKeyStream as a safe no-op.
func NewStream(cfg *Config) (s *Stream, ivHeader []byte, err error) {
	if cfg == nil || cfg.Algorithm == AlgorithmNone {
		return nil, nil, nil
	}
	block, err := aes.NewCipher(cfg.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("encryption: %w", err)
	}
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, fmt.Errorf("encryption: generating iv: %w", err)
	}
	return &Stream{stream: cipher.NewCTR(block, iv)}, iv, nil
}

// OpenStream rebuilds the keystream for an existing file from its IV
// header, seeked so the next XORKeyStream call continues at plaintext byte
// offset byteOffset (the number of record bytes already consumed since the
// IV header). CTR mode makes this a counter-block computation rather than a
// discard loop, so it's O(1) in byteOffset — the only cost is discarding up
// to aes.BlockSize-1 bytes of sub-block remainder.
func OpenStream(cfg *Config, iv []byte, byteOffset int64) (*Stream, error) {
	if cfg == nil || cfg.Algorithm == AlgorithmNone {
		return nil, nil
	}
	block, err := aes.NewCipher(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("encryption: %w", err)
	}

	blockIndex := byteOffset / aes.BlockSize
	remainder := int(byteOffset % aes.BlockSize)

	stream := cipher.NewCTR(block, advanceCounter(iv, blockIndex))
	if remainder > 0 {
		discard := make([]byte, remainder)
		stream.XORKeyStream(discard, discard)
	}
	return &Stream{stream: stream}, nil
}

// advanceCounter treats iv as a big-endian counter and returns iv+blocks,
// wrapping modulo 2^(len(iv)*8) the way the CTR block counter itself wraps.
func advanceCounter(iv []byte, blocks int64) []byte {
	n := new(big.Int).SetBytes(iv)
	n.Add(n, big.NewInt(blocks))

	modulus := new(big.Int).Lsh(big.NewInt(1), uint(len(iv)*8))
	n.Mod(n, modulus)

	out := make([]byte, len(iv))
	n.FillBytes(out)
	return out
}

// XORKeyStream advances the keystream in place over dst/src, exactly like
// cipher.Stream.XORKeyStream. A nil Stream (encryption disabled) copies
// src to dst unchanged, so callers don't need to branch on whether
// encryption is configured.
func (s *Stream) XORKeyStream(dst, src []byte) {
	if s == nil {
		copy(dst, src)
		return
	}
	s.stream.XORKeyStream(dst, src)
}
