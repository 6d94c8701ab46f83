package syncmgr

import (
	"strings"
	"testing"

	"addrstore/internal/model"
	"addrstore/internal/reconcile"
)

func TestEncodeDecode(t *testing.T) {
	rec := &model.AddressRecord{
		GUID: "abc123",
		Address: model.Address{
			StreetAddress: model.String("1 Main St"),
			Organization:  model.String(""),
			Country:       model.String("US"),
		},
		Metadata: model.Metadata{TimeCreated: 10, TimeLastUsed: 20, TimeLastModified: 30, TimesUsed: 4},
	}

	data, err := EncodeRecord(rec)
	if err != nil {
		t.Fatalf("EncodeRecord() error = %v", err)
	}
	if strings.Contains(string(data), `"name"`) {
		t.Errorf("absent field was encoded: %s", data)
	}

	change, err := DecodeChange("abc123", data)
	if err != nil {
		t.Fatalf("DecodeChange() error = %v", err)
	}
	remote, ok := change.(reconcile.Remote)
	if !ok {
		t.Fatalf("DecodeChange() = %T, want reconcile.Remote", change)
	}
	if !remote.Record.Equal(rec) {
		t.Errorf("DecodeChange() = %+v, want %+v", remote.Record, rec)
	}
	if remote.Record.Organization == nil || *remote.Record.Organization != "" {
		t.Error("empty organization should survive as empty, not absent")
	}

	data, err = EncodeTombstone("abc123")
	if err != nil {
		t.Fatalf("EncodeTombstone() error = %v", err)
	}
	change, err = DecodeChange("abc123", data)
	if err != nil {
		t.Fatalf("DecodeChange() error = %v", err)
	}
	if got, ok := change.(reconcile.RemoteTombstone); !ok || got.GUID != "abc123" {
		t.Errorf("DecodeChange() = %#v, want RemoteTombstone{abc123}", change)
	}
}

func TestDecodeChange_Rejects(t *testing.T) {
	tests := []struct {
		name string
		key  string
		data string
	}{
		{name: "not json", key: "a", data: "garbage"},
		{name: "id mismatch", key: "a", data: `{"id":"b","deleted":true}`},
		{name: "no body", key: "a", data: `{"id":"a"}`},
		{name: "negative metadata", key: "a", data: `{"id":"a","address":{"times_used":-1}}`},
		{name: "bad guid", key: "a b", data: `{"id":"a b","deleted":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeChange(tt.key, []byte(tt.data)); err == nil {
				t.Error("DecodeChange() expected error")
			}
		})
	}
}
