package internal

import (
	"strings"
	"testing"
)

func TestRefreshTokenRoundTrip(t *testing.T) {
	id, secret, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}

	token := EncodeRefreshToken(id, secret)
	if strings.ContainsAny(token, "+/=") {
		t.Fatalf("token is not unpadded base64url: %q", token)
	}

	gotID, gotSecret, err := DecodeRefreshToken(token)
	if err != nil {
		t.Fatalf("DecodeRefreshToken: %v", err)
	}
	if gotID != id || gotSecret != secret {
		t.Fatal("round trip mismatch")
	}
	if !gotSecret.Matches(secret.Hash()) {
		t.Fatal("expected secret to match its own hash")
	}

	_, other, _ := NewRefreshToken()
	if other.Matches(secret.Hash()) {
		t.Fatal("different secret matched")
	}
}

func TestDecodeRefreshTokenRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "abc", "!!!not-base64!!!", strings.Repeat("A", 64)} {
		if _, _, err := DecodeRefreshToken(in); err != ErrMalformedRefreshToken {
			t.Fatalf("DecodeRefreshToken(%q) = %v, want ErrMalformedRefreshToken", in, err)
		}
	}
}

// FuzzDecodeRefreshToken must never panic, and anything it accepts must
// re-encode to the same string.
func FuzzDecodeRefreshToken(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add(strings.Repeat("A", 64))
	f.Add("!!!not-base64!!!")
	f.Add("aGVsbG8")

	if id, secret, err := NewRefreshToken(); err == nil {
		f.Add(EncodeRefreshToken(id, secret))
	}

	f.Fuzz(func(t *testing.T, input string) {
		id, secret, err := DecodeRefreshToken(input)
		if err != nil {
			return
		}
		if got := EncodeRefreshToken(id, secret); got != input {
			t.Fatalf("re-encode mismatch: %q vs %q", got, input)
		}
	})
}
