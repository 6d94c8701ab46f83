package syncmgr

import (
	"encoding/json"
	"fmt"

	"addrstore/internal/model"
	"addrstore/internal/reconcile"
)

// envelope is the cleartext form of one remote payload. A deletion carries
// only the id.
type envelope struct {
	ID      string          `json:"id"`
	Deleted bool            `json:"deleted,omitempty"`
	Address *payloadAddress `json:"address,omitempty"`
}

type payloadAddress struct {
	model.Address
	model.Metadata
}

// EncodeRecord serialises a record for upload.
func EncodeRecord(rec *model.AddressRecord) ([]byte, error) {
	return json.Marshal(envelope{
		ID:      rec.GUID,
		Address: &payloadAddress{Address: rec.Address, Metadata: rec.Metadata},
	})
}

// EncodeTombstone serialises a deletion for upload.
func EncodeTombstone(guid string) ([]byte, error) {
	return json.Marshal(envelope{ID: guid, Deleted: true})
}

// DecodeChange parses a downloaded payload. key is the remote key it was
// stored under and must match the payload id.
func DecodeChange(key string, data []byte) (reconcile.IncomingChange, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding payload %s: %w", key, err)
	}
	if env.ID != key {
		return nil, fmt.Errorf("payload %s carries id %q", key, env.ID)
	}

	if env.Deleted {
		if err := model.ValidateGUID(env.ID); err != nil {
			return nil, err
		}
		return reconcile.RemoteTombstone{GUID: env.ID}, nil
	}
	if env.Address == nil {
		return nil, fmt.Errorf("payload %s has neither address nor deleted flag", key)
	}

	rec, err := model.NewAddressRecord(env.ID, env.Address.Address, env.Address.Metadata)
	if err != nil {
		return nil, fmt.Errorf("payload %s: %w", key, err)
	}
	return reconcile.Remote{Record: rec}, nil
}
