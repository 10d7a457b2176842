package api

import (
	"encoding/json"
	"time"
)

// Envelope is the literal node-to-node RPC message from spec.md §6:
// POST /rpc with JSON {id, method, params, timestamp, from, to?}.
type Envelope struct {
	ID        string          `json:"id"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	From      string          `json:"from"`
	To        string          `json:"to,omitempty"`
}

// RPCError is the {code, message, data?} shape carried in a Response's
// error field.
type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Response answers an Envelope: {id, result?, error?, timestamp}.
type Response struct {
	ID        string          `json:"id"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *RPCError       `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Handler processes one RPC method's params and returns a result to be
// marshaled back, or an error.
type Handler func(params json.RawMessage) (any, error)

// Registry maps method name to Handler. The zero value is ready to use.
type Registry struct {
	handlers map[string]Handler
}

// Register adds or replaces the handler for method.
func (r *Registry) Register(method string, h Handler) {
	if r.handlers == nil {
		r.handlers = make(map[string]Handler)
	}
	r.handlers[method] = h
}

// Dispatch looks up and invokes method's handler, building a Response
// envelope. A missing method is itself reported as an RPCError rather
// than an HTTP-level failure, so the caller always gets a well-formed
// envelope back.
func (r *Registry) Dispatch(env Envelope) Response {
	resp := Response{ID: env.ID, Timestamp: time.Now()}
	h, ok := r.handlers[env.Method]
	if !ok {
		resp.Error = &RPCError{Code: "NotFound", Message: "unknown rpc method: " + env.Method}
		return resp
	}
	result, err := h(env.Params)
	if err != nil {
		resp.Error = &RPCError{Code: "InvalidArgument", Message: err.Error()}
		return resp
	}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			resp.Error = &RPCError{Code: "InvalidArgument", Message: err.Error()}
			return resp
		}
		resp.Result = raw
	}
	return resp
}
