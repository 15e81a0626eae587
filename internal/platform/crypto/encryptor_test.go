package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestNewAEADEncryptor_KeyLength(t *testing.T) {
	if _, err := NewAEADEncryptor([]byte("short"), "v1"); err == nil {
		t.Error("expected error for short key")
	}
	if _, err := NewAEADEncryptor(testKey(), "v1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAEADEncryptor_RoundTrip(t *testing.T) {
	e, err := NewAEADEncryptor(testKey(), "v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	plain := []byte(`{"reports":[{"diagnosis":"J06.9"}]}`)
	sealed, err := e.Encrypt(plain)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(sealed, plain) {
		t.Error("ciphertext contains plaintext")
	}

	opened, err := e.Decrypt(sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(opened, plain) {
		t.Errorf("round trip mismatch: got %q", opened)
	}
}

func TestAEADEncryptor_NonceVaries(t *testing.T) {
	e, _ := NewAEADEncryptor(testKey(), "v1")
	a, _ := e.Encrypt([]byte("payload"))
	b, _ := e.Encrypt([]byte("payload"))
	if bytes.Equal(a, b) {
		t.Error("expected distinct ciphertexts for repeated encryption")
	}
}

func TestAEADEncryptor_TamperDetected(t *testing.T) {
	e, _ := NewAEADEncryptor(testKey(), "v1")
	sealed, _ := e.Encrypt([]byte("payload"))
	sealed[len(sealed)-1] ^= 0xFF
	if _, err := e.Decrypt(sealed); err == nil {
		t.Error("expected error for tampered ciphertext")
	}
}

func TestAEADEncryptor_ShortCiphertext(t *testing.T) {
	e, _ := NewAEADEncryptor(testKey(), "v1")
	if _, err := e.Decrypt([]byte{0x01}); err == nil || !strings.Contains(err.Error(), "too short") {
		t.Errorf("expected too-short error, got %v", err)
	}
}

func TestAEADEncryptor_Metadata(t *testing.T) {
	e, _ := NewAEADEncryptor(testKey(), "v3")
	if e.Algorithm() != "AES-256-GCM" {
		t.Errorf("unexpected algorithm %q", e.Algorithm())
	}
	if e.KeyVersion() != "v3" {
		t.Errorf("unexpected key version %q", e.KeyVersion())
	}
}

func TestBase64Encryptor(t *testing.T) {
	e := Base64Encryptor{}
	out, err := e.Encrypt([]byte("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "aGVsbG8=" {
		t.Errorf("unexpected encoding %q", out)
	}
	if e.Algorithm() != "base64" {
		t.Errorf("unexpected algorithm %q", e.Algorithm())
	}
}
