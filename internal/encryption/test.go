package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"addrstore/internal/addresses"
)

// sealedPrefix starts every address payload sealed by TestEncryptor.
var sealedPrefix = []byte("ADDRENC\x00")

var errWrongPassphrase = errors.New("wrong passphrase")

// TestEncryptor seals address payloads by prefixing them, so a record on a
// test remote is recognisably not plaintext JSON. Until Setup or Rekey sets
// a passphrase any passphrase unlocks it; afterwards only that one does.
type TestEncryptor struct {
	passphrase string
	locked     bool
}

var _ addresses.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	if passphrase == "" {
		return errors.New("passphrase must not be empty")
	}
	e.passphrase, e.locked = passphrase, true
	return nil
}

// Rekey swaps the passphrase, mirroring AgeEncryptor.Rekey.
func (e *TestEncryptor) Rekey(oldPassphrase, newPassphrase string) error {
	if _, err := e.Unlock(oldPassphrase); err != nil {
		return err
	}
	return e.Setup(newPassphrase)
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(sealedPrefix); err != nil {
		return fmt.Errorf("writing sealed prefix: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying address payload: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (addresses.DecryptionContext, error) {
	if e.locked && passphrase != e.passphrase {
		return nil, errWrongPassphrase
	}
	return &TestDecryptionContext{}, nil
}

// IsConfigured is always true; there are no key files to create.
func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext opens payloads sealed by TestEncryptor.
type TestDecryptionContext struct{}

var _ addresses.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	prefix := make([]byte, len(sealedPrefix))
	if _, err := io.ReadFull(r, prefix); err != nil {
		return fmt.Errorf("reading sealed prefix: %w", err)
	}
	if !bytes.Equal(prefix, sealedPrefix) {
		return errors.New("payload was not sealed by the test encryptor")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying address payload: %w", err)
	}
	return nil
}
