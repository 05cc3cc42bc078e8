package service

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestIsValidEmail(t *testing.T) {
	valid := []string{"a@b.com", "user.name+tag@example.co", "x@sub.domain.org"}
	invalid := []string{"", "a@b", "@b.com", "a@.com", "a b@c.com", "a@@b.com", "plain",
		// Pasan el patron local@dominio.tld pero no son direcciones RFC validas.
		"a..b@c.com", "a@b.com."}

	for _, e := range valid {
		if !isValidEmail(e) {
			t.Fatalf("expected %q to be valid", e)
		}
	}
	for _, e := range invalid {
		if isValidEmail(e) {
			t.Fatalf("expected %q to be invalid", e)
		}
	}
}

func TestIsStrongPassword(t *testing.T) {
	cases := map[string]bool{
		"Abcd1234":              true,
		"Abcdefgh1234567890Xy":  true,
		"Abcdefgh1234567890Xyz": false,
		"Abc123":                false,
		"abcd1234":              false,
		"ABCD1234":              false,
		"Abcdefgh":              false,
	}
	for pw, want := range cases {
		if got := isStrongPassword(pw); got != want {
			t.Fatalf("isStrongPassword(%q)=%v, want %v", pw, got, want)
		}
	}
}

func TestIsValidOTPCode(t *testing.T) {
	if !isValidOTPCode("000000") || !isValidOTPCode("987654") {
		t.Fatalf("expected 6 digit codes valid")
	}
	for _, c := range []string{"", "12345", "1234567", "12345a", " 12345"} {
		if isValidOTPCode(c) {
			t.Fatalf("expected %q invalid", c)
		}
	}
}

func TestMissingFieldsKeepsOrder(t *testing.T) {
	err := missingFields(field{"email", ""}, field{"code", "1"}, field{"name", ""})
	mf, ok := err.(*MissingFieldsError)
	if !ok {
		t.Fatalf("expected MissingFieldsError, got %v", err)
	}
	if len(mf.Fields) != 2 || mf.Fields[0] != "email" || mf.Fields[1] != "name" {
		t.Fatalf("unexpected fields %v", mf.Fields)
	}
	if missingFields(field{"email", "a"}) != nil {
		t.Fatalf("expected nil when nothing is missing")
	}
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !isValidOTPCode(code) {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 150 {
		t.Fatalf("expected mostly distinct codes, got %d distinct", len(seen))
	}
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	digest, err := h.Hash("Abcd1234")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !h.Compare("Abcd1234", digest) {
		t.Fatalf("expected match")
	}
	if h.Compare("Abcd12345", digest) || h.Compare("Abcd1234", "") {
		t.Fatalf("expected mismatch")
	}
	if _, err := h.Hash(""); err == nil {
		t.Fatalf("expected error for empty password")
	}
}
