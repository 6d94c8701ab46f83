// Package remote holds the object stores sync payloads are exchanged through.
package remote

import (
	"errors"
	"fmt"

	"addrstore/internal/model"
)

// ErrKeyNotFound is returned by Get for a key that was never stored.
var ErrKeyNotFound = errors.New("remote key not found")

// validateKey keeps keys to the guid alphabet so they are safe as file names
// and object keys.
func validateKey(key string) error {
	if err := model.ValidateGUID(key); err != nil {
		return fmt.Errorf("invalid remote key: %w", err)
	}
	return nil
}
