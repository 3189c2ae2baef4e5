package ageutil

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"
)

func encrypt(t *testing.T, plaintext string, r age.Recipient) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, r)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte(plaintext))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestSourcePath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"wg0.conf", "wg0.conf.age"},
		{"wg0.conf.age", "wg0.conf.age"},
		{"files/token", "files/token.age"},
	}
	for _, tt := range tests {
		if got := SourcePath(tt.input); got != tt.want {
			t.Errorf("SourcePath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDecryptPassphrase(t *testing.T) {
	r, err := age.NewScryptRecipient("test-password-123")
	if err != nil {
		t.Fatal(err)
	}
	r.SetWorkFactor(10)
	ct := encrypt(t, "PrivateKey = abc", r)

	got, err := (&Key{Passphrase: "test-password-123"}).Decrypt(ct)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "PrivateKey = abc" {
		t.Errorf("Decrypt() = %q", got)
	}

	if _, err := (&Key{Passphrase: "wrong"}).Decrypt(ct); err == nil {
		t.Error("wrong passphrase should fail")
	}
}

func TestDecryptFileIdentity(t *testing.T) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key.txt")
	os.WriteFile(keyPath, []byte(id.String()+"\n"), 0o600)
	secret := filepath.Join(dir, "token.age")
	os.WriteFile(secret, encrypt(t, "s3cret", id.Recipient()), 0o600)

	got, err := (&Key{IdentityFile: keyPath}).DecryptFile(secret)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "s3cret" {
		t.Errorf("DecryptFile() = %q", got)
	}
}

func TestDecryptWithoutKey(t *testing.T) {
	var k *Key
	if _, err := k.Decrypt([]byte("x")); !errors.Is(err, ErrNoKey) {
		t.Errorf("nil key: %v", err)
	}
	if _, err := (&Key{}).Decrypt([]byte("x")); !errors.Is(err, ErrNoKey) {
		t.Errorf("empty key: %v", err)
	}
}

func TestMissingIdentityFile(t *testing.T) {
	k := &Key{IdentityFile: filepath.Join(t.TempDir(), "missing.txt")}
	if _, err := k.Decrypt([]byte("x")); err == nil {
		t.Error("expected error for missing identity file")
	}
}
