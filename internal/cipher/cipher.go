// Package cipher implements the Blowfish-ECB payload encryption the
// remote service's JSON-RPC wire format requires: every authenticated
// request body is hex-encoded Blowfish ciphertext, encrypted with one
// key for the outbound direction and decrypted with a second key for
// responses.
package cipher

import (
	"encoding/hex"
	"log/slog"

	"golang.org/x/crypto/blowfish"

	"github.com/kaelwave/wavetuner/internal/errs"
)

const blockSize = 8

// Handle wraps a single keyed Blowfish-ECB cipher, used for exactly one
// direction (client→server or server→client).
type Handle struct {
	block *blowfish.Cipher
}

// New builds a Handle from an ASCII key string. The raw key bytes are not
// retained beyond the blowfish.NewCipher call.
func New(key string) (*Handle, error) {
	keyBytes := []byte(key)
	block, err := blowfish.NewCipher(keyBytes)
	zero(keyBytes)
	if err != nil {
		return nil, errs.Wrap(errs.KindLocal, "blowfish key setup failed", err)
	}
	return &Handle{block: block}, nil
}

// Pair bundles the two independent directions Session needs: outKey
// encrypts client→server traffic, inKey decrypts server→client traffic.
type Pair struct {
	Out *Handle
	In  *Handle
}

// NewPair constructs both handles at once, as Session does exactly once
// at init time.
func NewPair(inKey, outKey string) (*Pair, error) {
	in, err := New(inKey)
	if err != nil {
		return nil, err
	}
	out, err := New(outKey)
	if err != nil {
		return nil, err
	}
	return &Pair{Out: out, In: in}, nil
}

// EncryptToHex zero-pads plaintext to the next multiple of 8 bytes,
// encrypts it block-by-block in ECB mode, and returns the ciphertext as
// lowercase hex.
func (h *Handle) EncryptToHex(plaintext []byte) string {
	padded := padTo8(plaintext)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += blockSize {
		h.block.Encrypt(out[i:i+blockSize], padded[i:i+blockSize])
	}
	return hex.EncodeToString(out)
}

// DecryptFromHex parses hexStr, decrypts it block-by-block, and returns
// the raw decrypted bytes (the caller is responsible for stripping
// trailing NULs introduced by encryption-side zero padding).
func (h *Handle) DecryptFromHex(hexStr string) ([]byte, error) {
	if len(hexStr)%16 != 0 {
		return nil, errs.New(errs.KindProtocol, "ciphertext hex length must be a multiple of 16")
	}
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		slog.Debug("cipher: malformed hex", "channel", "net", "error", err)
		return nil, errs.Wrap(errs.KindProtocol, "invalid hex ciphertext", err)
	}
	out := make([]byte, len(raw))
	for i := 0; i < len(raw); i += blockSize {
		h.block.Decrypt(out[i:i+blockSize], raw[i:i+blockSize])
	}
	return out, nil
}

// padTo8 returns plaintext zero-padded up to the next multiple of 8
// bytes. If plaintext is already block-aligned (including the empty
// slice, which pads to one full zero block) a fresh slice is still
// returned so callers never alias the input.
func padTo8(plaintext []byte) []byte {
	rem := len(plaintext) % blockSize
	padLen := len(plaintext)
	if rem != 0 {
		padLen += blockSize - rem
	} else if len(plaintext) == 0 {
		padLen = blockSize
	}
	out := make([]byte, padLen)
	copy(out, plaintext)
	return out
}

// zero overwrites b with zero bytes in place.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
