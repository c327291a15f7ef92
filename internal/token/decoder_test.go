package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"github.com/tbourn/go-order-gateway/internal/domain"
)

// makeToken builds an unsigned-but-well-formed JWT carrying the given raw
// payload JSON. The signature part is garbage on purpose: DecodeRole never
// verifies it.
func makeToken(t *testing.T, payload string) string {
	t.Helper()
	enc := base64.RawURLEncoding
	header := enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body := enc.EncodeToString([]byte(payload))
	return fmt.Sprintf("%s.%s.%s", header, body, enc.EncodeToString([]byte("sig")))
}

func TestDecodeRole_Guest(t *testing.T) {
	tok := makeToken(t, `{"role":"Guest","exp":4102444800}`)
	role, err := DecodeRole(tok)
	if err != nil {
		t.Fatalf("DecodeRole: %v", err)
	}
	if role != domain.RoleGuest {
		t.Fatalf("role = %q, want %q", role, domain.RoleGuest)
	}
}

func TestDecodeRole_AllKnownRoles(t *testing.T) {
	for _, want := range []domain.RoleClaim{domain.RoleGuest, domain.RoleEmployee, domain.RoleOwner} {
		tok := makeToken(t, fmt.Sprintf(`{"role":%q}`, want))
		role, err := DecodeRole(tok)
		if err != nil {
			t.Fatalf("DecodeRole(%s): %v", want, err)
		}
		if role != want {
			t.Fatalf("role = %q, want %q", role, want)
		}
	}
}

func TestDecodeRole_Malformed(t *testing.T) {
	cases := map[string]string{
		"not a jwt":    "garbage",
		"empty":        "",
		"two parts":    "a.b",
		"bad base64":   "!!!.!!!.!!!",
		"unknown role": makeToken(t, `{"role":"Superuser"}`),
		"missing role": makeToken(t, `{"sub":"g-1"}`),
	}
	for name, tok := range cases {
		if _, err := DecodeRole(tok); !errors.Is(err, ErrMalformedToken) {
			t.Errorf("%s: expected ErrMalformedToken, got %v", name, err)
		}
	}
}
