package util

import "testing"

func TestSecureZero(t *testing.T) {
	b := []byte{1, 2, 3, 4, 5}
	SecureZero(b)
	for i, v := range b {
		if v != 0 {
			t.Errorf("byte %d not zeroed: %d", i, v)
		}
	}
}

func TestSecureZeroEmpty(t *testing.T) {
	SecureZero(nil)
	SecureZero([]byte{})
}
