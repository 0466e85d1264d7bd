package envelope

import (
	"bytes"
	"errors"
	"testing"

	"novault/internal/errs"
	"novault/internal/util"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := util.RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	sealed, err := Seal(key, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	opened, err := Open(key, sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", opened, plaintext)
	}
}

func TestSealEmptyPlaintext(t *testing.T) {
	key := testKey(t)
	sealed, err := Seal(key, nil)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	opened, err := Open(key, sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(opened) != 0 {
		t.Fatalf("expected empty plaintext, got %d bytes", len(opened))
	}
}

func TestHeaderLayout(t *testing.T) {
	key := testKey(t)
	sealed, err := Seal(key, []byte("data"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if !bytes.Equal(sealed[:4], Magic[:]) {
		t.Fatalf("expected magic %q, got %q", Magic, sealed[:4])
	}
	for _, b := range reservedBytes(sealed) {
		if b != 0 {
			t.Fatalf("expected reserved bytes to be zero, got %v", reservedBytes(sealed))
		}
	}
	if len(sealed) < HeaderSize {
		t.Fatalf("envelope shorter than header: %d", len(sealed))
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	key := testKey(t)
	sealed, err := Seal(key, []byte("data"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed[0] ^= 0xFF

	_, err = Open(key, sealed)
	if err == nil {
		t.Fatal("expected error for bad magic, got nil")
	}
	if !errors.Is(err, errs.ErrIntegrity) {
		t.Fatalf("expected an IntegrityError, got %v", err)
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key := testKey(t)
	sealed, err := Seal(key, []byte("data"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF

	if _, err := Open(key, sealed); err == nil {
		t.Fatal("expected authentication error for tampered ciphertext, got nil")
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	key := testKey(t)
	wrongKey := testKey(t)
	sealed, err := Seal(key, []byte("data"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if _, err := Open(wrongKey, sealed); err == nil {
		t.Fatal("expected error when opening with the wrong key, got nil")
	}
}

func TestOpenRejectsTooShort(t *testing.T) {
	key := testKey(t)
	if _, err := Open(key, []byte("too short")); err == nil {
		t.Fatal("expected error for too-short envelope, got nil")
	}
}

func TestSealProducesUniqueNonces(t *testing.T) {
	key := testKey(t)
	a, err := Seal(key, []byte("data"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	b, err := Seal(key, []byte("data"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	nonceA := a[len(Magic)+reservedSize : HeaderSize]
	nonceB := b[len(Magic)+reservedSize : HeaderSize]
	if bytes.Equal(nonceA, nonceB) {
		t.Fatal("expected distinct nonces across Seal calls")
	}
}
