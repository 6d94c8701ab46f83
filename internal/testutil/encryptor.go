package testutil

import (
	"addrstore/internal/addresses"
	"addrstore/internal/encryption"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() addresses.Encryptor {
	return encryption.NewTestEncryptor()
}
