package ffi

import (
	"context"
	"encoding/json"
	"testing"

	"addrstore/internal/addresses"
	"addrstore/internal/model"
	"addrstore/internal/reconcile"
	"addrstore/internal/testutil"
)

type testResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *ErrorBody      `json:"error"`
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	store := testutil.NewTestStore(t)
	engine := addresses.NewEngine(store, reconcile.NewPlanner(model.DefaultDedupeFields, true),
		addresses.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator(), addresses.Options{})
	return NewHandler(engine, addresses.NewNopLogger())
}

func call(t *testing.T, h *Handler, req string) testResponse {
	t.Helper()
	var resp testResponse
	if err := json.Unmarshal(h.Handle(context.Background(), []byte(req)), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	return resp
}

func TestHandler_Lifecycle(t *testing.T) {
	h := newTestHandler(t)

	resp := call(t, h, `{"method":"add","address":{"name":"Jane Doe","street_address":"1 Main St","country":"US"}}`)
	if !resp.OK {
		t.Fatalf("add failed: %+v", resp.Error)
	}
	var added struct {
		GUID          string `json:"guid"`
		StreetAddress string `json:"street_address"`
		ChangeCounter int64  `json:"change_counter"`
		Unsynced      bool   `json:"unsynced"`
	}
	if err := json.Unmarshal(resp.Result, &added); err != nil {
		t.Fatalf("decoding add result: %v", err)
	}
	if added.GUID == "" || added.StreetAddress != "1 Main St" || !added.Unsynced {
		t.Errorf("add result = %+v", added)
	}

	resp = call(t, h, `{"method":"update","guid":"`+added.GUID+`","patch":{"email":"jane@example.com","name":null}}`)
	if !resp.OK {
		t.Fatalf("update failed: %+v", resp.Error)
	}
	var updated map[string]any
	json.Unmarshal(resp.Result, &updated)
	if updated["email"] != "jane@example.com" {
		t.Errorf("email = %v, want jane@example.com", updated["email"])
	}
	if _, ok := updated["name"]; ok {
		t.Error("name should be cleared by a null patch value")
	}

	resp = call(t, h, `{"method":"touch","guid":"`+added.GUID+`"}`)
	json.Unmarshal(resp.Result, &updated)
	if updated["times_used"] != float64(1) {
		t.Errorf("times_used = %v, want 1", updated["times_used"])
	}

	for _, method := range []string{"list", "unsynced"} {
		resp = call(t, h, `{"method":"`+method+`"}`)
		var list []map[string]any
		if err := json.Unmarshal(resp.Result, &list); err != nil || len(list) != 1 {
			t.Errorf("%s result = %s, want one record", method, resp.Result)
		}
	}

	resp = call(t, h, `{"method":"delete","guid":"`+added.GUID+`"}`)
	if string(resp.Result) != `{"deleted":true}` {
		t.Errorf("delete result = %s", resp.Result)
	}
	resp = call(t, h, `{"method":"delete","guid":"`+added.GUID+`"}`)
	if string(resp.Result) != `{"deleted":false}` {
		t.Errorf("second delete result = %s", resp.Result)
	}

	if resp = call(t, h, `{"method":"reset_sync"}`); !resp.OK {
		t.Errorf("reset_sync failed: %+v", resp.Error)
	}
}

func TestHandler_Errors(t *testing.T) {
	h := newTestHandler(t)
	resp := call(t, h, `{"method":"add","address":{"street_address":"1 Main St","country":"US"}}`)
	var rec struct {
		GUID string `json:"guid"`
	}
	json.Unmarshal(resp.Result, &rec)

	tests := []struct {
		name      string
		req       string
		wantKind  addresses.ErrorKind
		wantField model.FieldName
	}{
		{name: "not json", req: `{"method":`, wantKind: addresses.KindInvalidRequest},
		{name: "no method", req: `{}`, wantKind: addresses.KindInvalidRequest},
		{name: "unknown method", req: `{"method":"explode"}`, wantKind: addresses.KindInvalidRequest},
		{name: "add without address", req: `{"method":"add"}`, wantKind: addresses.KindInvalidRequest},
		{name: "get without guid", req: `{"method":"get"}`, wantKind: addresses.KindInvalidRequest},
		{name: "get unknown", req: `{"method":"get","guid":"nope"}`, wantKind: addresses.KindNotFound},
		{name: "touch unknown", req: `{"method":"touch","guid":"nope"}`, wantKind: addresses.KindNotFound},
		{
			name:      "add missing country",
			req:       `{"method":"add","address":{"street_address":"1 Main St"}}`,
			wantKind:  addresses.KindInvalidField,
			wantField: model.FieldCountry,
		},
		{
			name:      "clear mandatory field",
			req:       `{"method":"update","guid":"` + rec.GUID + `","patch":{"street_address":null}}`,
			wantKind:  addresses.KindInvalidField,
			wantField: model.FieldStreetAddress,
		},
		{
			name:      "unknown patch field",
			req:       `{"method":"update","guid":"` + rec.GUID + `","patch":{"zip":"62701"}}`,
			wantKind:  addresses.KindInvalidField,
			wantField: "zip",
		},
		{
			name:      "padded patch field",
			req:       `{"method":"update","guid":"` + rec.GUID + `","patch":{" name":"x"}}`,
			wantKind:  addresses.KindInvalidField,
			wantField: " name",
		},
		{name: "empty patch", req: `{"method":"update","guid":"` + rec.GUID + `","patch":{}}`, wantKind: addresses.KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, h, tt.req)
			if resp.OK || resp.Error == nil {
				t.Fatalf("response = %+v, want error", resp)
			}
			if resp.Error.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s (message %q)", resp.Error.Kind, tt.wantKind, resp.Error.Message)
			}
			if resp.Error.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", resp.Error.Field, tt.wantField)
			}
		})
	}
}

func TestHandler_RecoversFromPanic(t *testing.T) {
	h := NewHandler(nil, addresses.NewNopLogger())

	resp := call(t, h, `{"method":"list"}`)
	if resp.OK || resp.Error == nil || resp.Error.Kind != addresses.KindInternal {
		t.Errorf("response = %+v, want Internal error", resp)
	}
}

func TestHandler_Canceled(t *testing.T) {
	h := newTestHandler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var resp testResponse
	json.Unmarshal(h.Handle(ctx, []byte(`{"method":"list"}`)), &resp)
	if resp.OK || resp.Error.Kind != addresses.KindCanceled {
		t.Errorf("response = %+v, want Canceled", resp)
	}
}
