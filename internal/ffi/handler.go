// Package ffi is the byte-oriented boundary host applications call into.
// Requests and responses are JSON documents; errors cross the boundary as
// discriminated kinds, never as panics.
package ffi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"addrstore/internal/addresses"
	"addrstore/internal/model"
)

// Request is one call from the host.
type Request struct {
	Method  string         `json:"method"`
	GUID    string         `json:"guid,omitempty"`
	Address *model.Address `json:"address,omitempty"`
	Patch   model.Patch    `json:"patch,omitempty"`
}

// Response is returned for every request, successful or not.
type Response struct {
	OK     bool       `json:"ok"`
	Result any        `json:"result,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Kind    addresses.ErrorKind `json:"kind"`
	Message string              `json:"message"`
	Field   model.FieldName     `json:"field,omitempty"`
}

// Record is the host-facing view of a Local row.
type Record struct {
	*model.LocalRecord
	Unsynced bool `json:"unsynced"`
}

// requestError marks malformed requests.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// Handler dispatches requests to an Engine.
type Handler struct {
	engine *addresses.Engine
	logger addresses.Logger
}

// NewHandler creates a Handler with the provided dependencies.
func NewHandler(engine *addresses.Engine, logger addresses.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Handle decodes req, runs it and encodes the response. It never panics.
func (h *Handler) Handle(ctx context.Context, req []byte) (resp []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("recovered from panic in request handler", "panic", fmt.Sprint(r))
			resp = encode(Response{Error: &ErrorBody{Kind: addresses.KindInternal, Message: fmt.Sprintf("internal error: %v", r)}})
		}
	}()

	var r Request
	if err := json.Unmarshal(req, &r); err != nil {
		return encode(failure(badRequest("decoding request: %v", err)))
	}

	result, err := h.dispatch(ctx, r)
	if err != nil {
		h.logger.Warn("request failed", "method", r.Method, "guid", r.GUID, "error", err)
		return encode(failure(err))
	}
	return encode(Response{OK: true, Result: result})
}

func (h *Handler) dispatch(ctx context.Context, r Request) (any, error) {
	switch r.Method {
	case "add":
		if r.Address == nil {
			return nil, badRequest("add requires an address")
		}
		return view(h.engine.Add(ctx, *r.Address))
	case "get":
		if err := requireGUID(r); err != nil {
			return nil, err
		}
		return view(h.engine.Get(ctx, r.GUID))
	case "update":
		if err := requireGUID(r); err != nil {
			return nil, err
		}
		if len(r.Patch) == 0 {
			return nil, badRequest("update requires a non-empty patch")
		}
		return view(h.engine.Update(ctx, r.GUID, r.Patch))
	case "delete":
		if err := requireGUID(r); err != nil {
			return nil, err
		}
		deleted, err := h.engine.Delete(ctx, r.GUID)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"deleted": deleted}, nil
	case "touch":
		if err := requireGUID(r); err != nil {
			return nil, err
		}
		return view(h.engine.Touch(ctx, r.GUID))
	case "list":
		return views(h.engine.List(ctx))
	case "unsynced":
		return views(h.engine.ListUnsynced(ctx))
	case "reset_sync":
		return nil, h.engine.ResetSync(ctx)
	case "":
		return nil, badRequest("method is required")
	}
	return nil, badRequest("unknown method %q", r.Method)
}

func requireGUID(r Request) error {
	if r.GUID == "" {
		return badRequest("%s requires a guid", r.Method)
	}
	return nil
}

func view(rec *model.LocalRecord, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return Record{LocalRecord: rec, Unsynced: rec.Unsynced()}, nil
}

func views(recs []*model.LocalRecord, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Record{LocalRecord: rec, Unsynced: rec.Unsynced()})
	}
	return out, nil
}

func failure(err error) Response {
	kind := addresses.KindOf(err)
	var re *requestError
	if errors.As(err, &re) {
		kind = addresses.KindInvalidRequest
	}
	return Response{Error: &ErrorBody{
		Kind:    kind,
		Message: err.Error(),
		Field:   addresses.FieldOf(err),
	}}
}

func encode(resp Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		// Only reachable if a result type stops being marshalable.
		return []byte(`{"ok":false,"error":{"kind":"Internal","message":"encoding response"}}`)
	}
	return data
}
