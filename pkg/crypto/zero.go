package crypto

import "runtime"

// ClearSecretData zeroes the provided buffer.
//
//go:noinline
func ClearSecretData(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}

// IsZero reports whether every byte of b is zero.
func IsZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return acc == 0
}
