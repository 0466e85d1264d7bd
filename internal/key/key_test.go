package key

import (
	"bytes"
	"testing"
)

func TestInitAndUnwrapNoRewrap(t *testing.T) {
	password := NewCachedPassword([]byte("correct horse battery staple"))
	master, err := NewMasterVaultKey()
	if err != nil {
		t.Fatalf("NewMasterVaultKey: %v", err)
	}

	wrapped, err := InitWrappedKey(password, master)
	if err != nil {
		t.Fatalf("InitWrappedKey: %v", err)
	}

	recovered, err := wrapped.UnwrapNoRewrap(password)
	if err != nil {
		t.Fatalf("UnwrapNoRewrap: %v", err)
	}
	if !bytes.Equal(recovered.Bytes(), master.Bytes()) {
		t.Fatal("recovered master key does not match original")
	}
}

func TestUnwrapWithRewrap(t *testing.T) {
	password := NewCachedPassword([]byte("correct horse battery staple"))
	master, err := NewMasterVaultKey()
	if err != nil {
		t.Fatalf("NewMasterVaultKey: %v", err)
	}

	wrapped, err := InitWrappedKey(password, master)
	if err != nil {
		t.Fatalf("InitWrappedKey: %v", err)
	}

	rewrapped, recoveredMaster, err := wrapped.Unwrap(password)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if !bytes.Equal(recoveredMaster.Bytes(), master.Bytes()) {
		t.Fatal("rewrap changed the master key bytes")
	}
	if bytes.Equal(rewrapped.Salt, wrapped.Salt) {
		t.Fatal("expected a fresh salt after rewrap")
	}
	if bytes.Equal(rewrapped.Envelope, wrapped.Envelope) {
		t.Fatal("expected a fresh envelope after rewrap")
	}

	// The rewrapped key must still recover the same master key.
	again, err := rewrapped.UnwrapNoRewrap(password)
	if err != nil {
		t.Fatalf("UnwrapNoRewrap on rewrapped key: %v", err)
	}
	if !bytes.Equal(again.Bytes(), master.Bytes()) {
		t.Fatal("rewrapped key does not recover original master key")
	}
}

func TestUnwrapWrongPassword(t *testing.T) {
	password := NewCachedPassword([]byte("right password"))
	wrong := NewCachedPassword([]byte("wrong password"))
	master, err := NewMasterVaultKey()
	if err != nil {
		t.Fatalf("NewMasterVaultKey: %v", err)
	}

	wrapped, err := InitWrappedKey(password, master)
	if err != nil {
		t.Fatalf("InitWrappedKey: %v", err)
	}

	if _, err := wrapped.UnwrapNoRewrap(wrong); err == nil {
		t.Fatal("expected error unwrapping with wrong password")
	}
	if wrapped.Verify(wrong) {
		t.Fatal("Verify should reject the wrong password")
	}
	if !wrapped.Verify(password) {
		t.Fatal("Verify should accept the right password")
	}
}

func TestWrappedKeyHexRoundTrip(t *testing.T) {
	password := NewCachedPassword([]byte("hunter2"))
	master, err := NewMasterVaultKey()
	if err != nil {
		t.Fatalf("NewMasterVaultKey: %v", err)
	}
	wrapped, err := InitWrappedKey(password, master)
	if err != nil {
		t.Fatalf("InitWrappedKey: %v", err)
	}

	encoded := wrapped.ToHex()
	decoded, err := WrappedKeyFromHex(encoded)
	if err != nil {
		t.Fatalf("WrappedKeyFromHex: %v", err)
	}

	recovered, err := decoded.UnwrapNoRewrap(password)
	if err != nil {
		t.Fatalf("UnwrapNoRewrap on decoded key: %v", err)
	}
	if !bytes.Equal(recovered.Bytes(), master.Bytes()) {
		t.Fatal("hex round trip lost key material")
	}
}

func TestWrappedKeyFromHexMalformed(t *testing.T) {
	if _, err := WrappedKeyFromHex("not-a-valid-record"); err == nil {
		t.Fatal("expected error for malformed hex record")
	}
	if _, err := WrappedKeyFromHex("zz:zz"); err == nil {
		t.Fatal("expected error for non-hex fields")
	}
}
