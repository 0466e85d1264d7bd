// Package key implements NoVault's key hierarchy: a password-derived
// UserVaultKey wraps a random MasterVaultKey, which in turn is the key
// actually used to seal the vault archive. The wrap is refreshed (fresh
// salt and nonce) every time it is unwrapped with rewrapping, so a stolen
// state file never lets an attacker replay an old password guess against
// the same ciphertext twice — but the MasterVaultKey itself, and therefore
// the sealed vault archive, does not need to be re-encrypted on every seal.
package key

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"novault/internal/envelope"
	"novault/internal/errs"
	"novault/internal/util"
)

// Argon2id parameters for deriving a UserVaultKey from a password. These
// values are fixed: changing them would make existing wrapped keys
// unrecoverable.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeySize = 32

	saltSize = 16
)

// UserVaultKey is the Argon2id-derived key used only to wrap/unwrap the
// MasterVaultKey. It never touches the vault archive directly.
type UserVaultKey struct {
	bytes []byte
}

// deriveUserVaultKey runs Argon2id over password and salt.
func deriveUserVaultKey(password, salt []byte) *UserVaultKey {
	k := argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeySize)
	return &UserVaultKey{bytes: k}
}

// Close securely zeros the derived key.
func (u *UserVaultKey) Close() {
	if u == nil {
		return
	}
	util.SecureZero(u.bytes)
}

// MasterVaultKey is the random key that actually seals the vault archive.
type MasterVaultKey struct {
	bytes []byte
}

// NewMasterVaultKey generates a fresh random MasterVaultKey.
func NewMasterVaultKey() (*MasterVaultKey, error) {
	b, err := util.RandomBytes(argonKeySize)
	if err != nil {
		return nil, fmt.Errorf("key: generate master key: %w", err)
	}
	return &MasterVaultKey{bytes: b}, nil
}

// Bytes returns the raw key material. Callers must not retain the slice
// beyond the MasterVaultKey's lifetime.
func (m *MasterVaultKey) Bytes() []byte { return m.bytes }

// Close securely zeros the key.
func (m *MasterVaultKey) Close() {
	if m == nil {
		return
	}
	util.SecureZero(m.bytes)
}

// CachedPassword holds a password in memory for the lifetime of a single
// pipeline run (e.g. across the seal-then-sync-then-unseal bracket), so the
// user is not prompted twice for one logical operation.
type CachedPassword struct {
	bytes []byte
}

// NewCachedPassword copies password into a CachedPassword.
func NewCachedPassword(password []byte) *CachedPassword {
	cp := make([]byte, len(password))
	copy(cp, password)
	return &CachedPassword{bytes: cp}
}

// CachedPasswordFromString wraps a password supplied as a string, e.g. from
// the novpwd environment variable.
func CachedPasswordFromString(s string) *CachedPassword {
	return NewCachedPassword([]byte(s))
}

// Bytes returns the raw password bytes.
func (c *CachedPassword) Bytes() []byte { return c.bytes }

// Close securely zeros the cached password.
func (c *CachedPassword) Close() {
	if c == nil {
		return
	}
	util.SecureZero(c.bytes)
}

// WrappedKey is the persisted, password-protected wrapping of a
// MasterVaultKey: a salt for Argon2id plus an envelope-sealed copy of the
// master key bytes.
type WrappedKey struct {
	Salt     []byte
	Envelope []byte
}

// InitWrappedKey derives a UserVaultKey from password and seals master under
// it, producing the WrappedKey persisted in the state file.
func InitWrappedKey(password *CachedPassword, master *MasterVaultKey) (*WrappedKey, error) {
	salt, err := util.RandomBytes(saltSize)
	if err != nil {
		return nil, fmt.Errorf("key: generate salt: %w", err)
	}

	uvk := deriveUserVaultKey(password.Bytes(), salt)
	defer uvk.Close()

	sealed, err := envelope.Seal(uvk.bytes, master.Bytes())
	if err != nil {
		return nil, fmt.Errorf("key: seal master key: %w", err)
	}

	return &WrappedKey{Salt: salt, Envelope: sealed}, nil
}

// UnwrapNoRewrap derives the UserVaultKey for password and opens the
// MasterVaultKey without refreshing the wrap. Used when unsealing, since the
// vault is about to be worked on and will be re-wrapped on the next seal.
func (w *WrappedKey) UnwrapNoRewrap(password *CachedPassword) (*MasterVaultKey, error) {
	uvk := deriveUserVaultKey(password.Bytes(), w.Salt)
	defer uvk.Close()

	plain, err := envelope.Open(uvk.bytes, w.Envelope)
	if err != nil {
		return nil, errs.NewAuthError("unwrap master key", err)
	}
	return &MasterVaultKey{bytes: plain}, nil
}

// Unwrap derives the MasterVaultKey for password and returns both it and a
// freshly re-wrapped WrappedKey (new salt and nonce, same master key bytes).
// Used when sealing, so the on-disk wrap never outlives more than one seal
// cycle under the same salt.
func (w *WrappedKey) Unwrap(password *CachedPassword) (*WrappedKey, *MasterVaultKey, error) {
	master, err := w.UnwrapNoRewrap(password)
	if err != nil {
		return nil, nil, err
	}

	rewrapped, err := InitWrappedKey(password, master)
	if err != nil {
		master.Close()
		return nil, nil, err
	}
	return rewrapped, master, nil
}

// Verify reports whether password successfully unwraps w, without
// retaining the derived master key. Used to validate a password supplied
// via novpwd before trusting it.
func (w *WrappedKey) Verify(password *CachedPassword) bool {
	master, err := w.UnwrapNoRewrap(password)
	if err != nil {
		return false
	}
	master.Close()
	return true
}

// ToHex encodes w as "saltHex:envelopeHex" for storage in the state file.
func (w *WrappedKey) ToHex() string {
	return hex.EncodeToString(w.Salt) + ":" + hex.EncodeToString(w.Envelope)
}

// WrappedKeyFromHex decodes a WrappedKey previously produced by ToHex.
func WrappedKeyFromHex(s string) (*WrappedKey, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return nil, errs.NewStateCorruptionError("wrapped_key", fmt.Errorf("expected salt:envelope, got %q", s))
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, errs.NewStateCorruptionError("wrapped_key.salt", err)
	}
	env, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, errs.NewStateCorruptionError("wrapped_key.envelope", err)
	}

	return &WrappedKey{Salt: salt, Envelope: env}, nil
}
