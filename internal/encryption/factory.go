package encryption

import (
	"fmt"

	"addrstore/internal/addresses"
	"addrstore/internal/config"
)

// NewEncryptorFromConfig returns the payload encryptor named by
// encryption.type. An empty type means age, which needs both key paths.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (addresses.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption needs public_key_path and private_key_path")
		}
		return NewAgeEncryptor(cfg), nil
	case "test":
		if cfg.Armor {
			return nil, fmt.Errorf("armor is only supported for age encryption")
		}
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
