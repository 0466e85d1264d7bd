// Package envelope implements NoVault's on-disk ciphertext format: a single
// XChaCha20-Poly1305 AEAD call wrapped in a small fixed header. Every sealed
// vault archive and every wrapped key on disk uses this envelope.
package envelope

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"novault/internal/errs"
	"novault/internal/util"
)

// Magic is the 4-byte marker at the start of every envelope.
var Magic = [4]byte{'N', 'O', 'V', 'O'}

// reservedSize is the length of the fixed block of zero bytes following the
// magic, left for a future format revision (e.g. a version byte or flags).
const reservedSize = 4

const nonceSize = chacha20poly1305.NonceSizeX

// HeaderSize is the number of bytes preceding the AEAD ciphertext.
const HeaderSize = len(Magic) + reservedSize + nonceSize

// Seal encrypts plaintext under key (must be 32 bytes) and returns the
// complete envelope: magic, reserved bytes, nonce, and AEAD ciphertext with
// its embedded 16-byte authentication tag.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("envelope: init aead: %w", err)
	}

	nonce, err := util.RandomBytes(nonceSize)
	if err != nil {
		return nil, fmt.Errorf("envelope: generate nonce: %w", err)
	}

	out := make([]byte, 0, HeaderSize+len(plaintext)+aead.Overhead())
	out = append(out, Magic[:]...)
	out = append(out, make([]byte, reservedSize)...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// Open verifies and decrypts an envelope produced by Seal, returning the
// original plaintext. It returns an *errs.IntegrityError if the envelope is
// too short, the magic does not match, or authentication fails (tampering
// or wrong key).
func Open(key, envelope []byte) ([]byte, error) {
	if len(envelope) < HeaderSize+chacha20poly1305.Overhead {
		return nil, errs.NewIntegrityError("envelope", fmt.Errorf("too short: %d bytes", len(envelope)))
	}

	var gotMagic [4]byte
	copy(gotMagic[:], envelope[:4])
	if gotMagic != Magic {
		return nil, errs.NewIntegrityError("envelope", fmt.Errorf("bad magic %q", gotMagic[:]))
	}

	nonce := envelope[len(Magic)+reservedSize : HeaderSize]
	ciphertext := envelope[HeaderSize:]

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("envelope: init aead: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errs.NewIntegrityError("envelope", fmt.Errorf("authentication failed: %w", err))
	}
	return plaintext, nil
}

// reservedBytes returns the envelope's reserved header bytes, exposed so
// tests can assert the on-disk layout directly.
func reservedBytes(envelope []byte) []byte {
	return envelope[len(Magic) : len(Magic)+reservedSize]
}
