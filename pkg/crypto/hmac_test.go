package crypto

import (
	"encoding/hex"
	"testing"
)

func TestSHA1(t *testing.T) {
	got := SHA1([]byte("abc"))
	want := "a9993e364706816aba3e25717850c26c9cd0d89d"
	if hex.EncodeToString(got[:]) != want {
		t.Errorf("SHA1(abc) = %x, want %s", got, want)
	}
}

func TestSHA256(t *testing.T) {
	got := SHA256([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if hex.EncodeToString(got[:]) != want {
		t.Errorf("SHA256(abc) = %x, want %s", got, want)
	}
}

func TestHMACSHA1(t *testing.T) {
	// RFC 2202 Test Case 1
	key := mustHex(t, "0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b")
	got := HMACSHA1(key, []byte("Hi There"))
	want := "b617318655057264e28bc0b6fb378c8ef146be00"
	if hex.EncodeToString(got[:]) != want {
		t.Errorf("HMACSHA1 = %x, want %s", got, want)
	}
}

func TestHMACSHA256(t *testing.T) {
	// RFC 4231 Test Case 1
	key := mustHex(t, "0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b")
	got := HMACSHA256(key, []byte("Hi There"))
	want := "b0344c61d8db38535ca8afceaf0bf12b881dc200c9833da726e9376c2e32cff7"
	if hex.EncodeToString(got[:]) != want {
		t.Errorf("HMACSHA256 = %x, want %s", got, want)
	}
}

func TestConstantTimeEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b []byte
		want bool
	}{
		{"equal", []byte{1, 2, 3}, []byte{1, 2, 3}, true},
		{"differ", []byte{1, 2, 3}, []byte{1, 2, 4}, false},
		{"length", []byte{1, 2, 3}, []byte{1, 2}, false},
		{"empty", nil, []byte{}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ConstantTimeEqual(tc.a, tc.b); got != tc.want {
				t.Errorf("ConstantTimeEqual = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestClearSecretData(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	ClearSecretData(b)
	if !IsZero(b) {
		t.Errorf("buffer not cleared: %x", b)
	}
	ClearSecretData(nil)
}
