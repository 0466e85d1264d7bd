package util

import "crypto/subtle"

// SecureZero overwrites b with zeros in a way the compiler cannot optimize
// away, reducing the window during which key material is recoverable from
// process memory.
func SecureZero(b []byte) {
	if len(b) == 0 {
		return
	}
	zeros := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zeros)
}
