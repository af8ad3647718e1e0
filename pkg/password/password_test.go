package password

import (
	"errors"
	"strings"
	"testing"
)

func TestAESRoundTrip(t *testing.T) {
	e, err := NewEncryptor([]byte("secret"))
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	encoded, err := e.Encode("p4ssw0rd!", CipherAES)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if encoded == "p4ssw0rd!" {
		t.Fatal("AES encoding returned the clear text")
	}

	decoded, err := e.Decode(encoded, CipherAES)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != "p4ssw0rd!" {
		t.Errorf("decoded = %q", decoded)
	}
}

func TestAESEncodingIsRandomized(t *testing.T) {
	e, err := NewEncryptor([]byte("secret"))
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	a, _ := e.Encode("same", CipherAES)
	b, _ := e.Encode("same", CipherAES)
	if a == b {
		t.Error("two AES encodings of the same value are identical")
	}
}

func TestOneWayCiphersAreNotReversible(t *testing.T) {
	e, err := NewEncryptor([]byte("secret"))
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	for _, alg := range []CipherAlgorithm{CipherBCrypt, CipherSHA256} {
		encoded, err := e.Encode("p4ssw0rd!", alg)
		if err != nil {
			t.Fatalf("Encode(%s): %v", alg, err)
		}
		if encoded == "p4ssw0rd!" {
			t.Errorf("%s encoding returned the clear text", alg)
		}
		if _, err := e.Decode(encoded, alg); !errors.Is(err, ErrNotReversible) {
			t.Errorf("Decode(%s) err = %v, want ErrNotReversible", alg, err)
		}
	}
}

func TestNewEncryptorRejectsEmptySecret(t *testing.T) {
	if _, err := NewEncryptor(nil); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestGeneratePolicyCompliance(t *testing.T) {
	g := NewGenerator(Policy{MinLength: 16, Digits: true, Uppercase: true, Special: true})

	for i := 0; i < 20; i++ {
		pw, err := g.Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if len(pw) != 16 {
			t.Fatalf("len = %d, want 16", len(pw))
		}
		if !strings.ContainsAny(pw, "0123456789") {
			t.Errorf("%q has no digit", pw)
		}
		if !strings.ContainsAny(pw, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
			t.Errorf("%q has no upper-case letter", pw)
		}
		if !strings.ContainsAny(pw, "!#$%&*+-=?@_") {
			t.Errorf("%q has no special character", pw)
		}
	}
}

func TestGenerateIsRandom(t *testing.T) {
	g := NewGenerator(DefaultPolicy())
	a, err := g.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := g.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if a == b {
		t.Error("two generated passwords are identical")
	}
}
