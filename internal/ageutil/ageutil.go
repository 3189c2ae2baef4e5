// Package ageutil decrypts age-encrypted file templates (secrets such as
// WireGuard keys or API tokens) so they can be rendered onto the host.
package ageutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
)

// ErrNoKey is returned when an encrypted source is used without a key.
var ErrNoKey = errors.New("no age key configured; set age.identity or age.passphrase in the profile, or HOSTPREP_AGE_IDENTITY / HOSTPREP_AGE_PASSPHRASE")

// Key holds the credential needed to decrypt age files.
// Passphrase wins when both are set.
type Key struct {
	IdentityFile string // path to an age identity file (secret key)
	Passphrase   string // scrypt passphrase
}

// Empty reports whether neither credential is set.
func (k *Key) Empty() bool {
	return k == nil || (k.IdentityFile == "" && k.Passphrase == "")
}

// Decrypt returns the plaintext of an age-encrypted blob.
func (k *Key) Decrypt(ciphertext []byte) ([]byte, error) {
	if k.Empty() {
		return nil, ErrNoKey
	}
	identities, err := k.identities()
	if err != nil {
		return nil, err
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return nil, fmt.Errorf("age decrypt: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read plaintext: %w", err)
	}
	return plaintext, nil
}

// DecryptFile reads and decrypts the file at path.
func (k *Key) DecryptFile(path string) ([]byte, error) {
	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ciphertext: %w", err)
	}
	plaintext, err := k.Decrypt(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return plaintext, nil
}

func (k *Key) identities() ([]age.Identity, error) {
	if k.Passphrase != "" {
		id, err := age.NewScryptIdentity(k.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("create scrypt identity: %w", err)
		}
		return []age.Identity{id}, nil
	}
	f, err := os.Open(k.IdentityFile)
	if err != nil {
		return nil, fmt.Errorf("open identity file: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse identities: %w", err)
	}
	return identities, nil
}

// SourcePath returns the on-disk path of an encrypted template, appending
// ".age" when src does not already end in it.
func SourcePath(src string) string {
	if strings.HasSuffix(src, ".age") {
		return src
	}
	return src + ".age"
}
