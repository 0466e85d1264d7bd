package errs

import (
	"errors"
	"testing"
)

func TestAuthErrorIsSentinel(t *testing.T) {
	err := NewAuthError("unwrap", errors.New("bad tag"))
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected AuthError to satisfy ErrAuth")
	}
}

func TestWrongStateErrorMessage(t *testing.T) {
	err := NewWrongStateError("sealed", "unsealed")
	if err.Error() != `expected vault state "sealed", found "unsealed"` {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected WrongStateError to satisfy ErrWrongState")
	}
}

func TestRemoteErrorUnwrapsUnderlying(t *testing.T) {
	base := errors.New("connection refused")
	err := NewRemoteError("git", "push", base)
	if !errors.Is(err, base) {
		t.Fatalf("expected RemoteError to unwrap to the underlying error")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Fatalf("Wrap(nil, ...) should return nil")
	}
	base := errors.New("boom")
	wrapped := Wrap(base, "during init")
	if !errors.Is(wrapped, base) {
		t.Fatalf("Wrap should preserve the chain")
	}
}
