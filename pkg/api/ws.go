package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WSFrame is the binary JSON frame spec.md §6 describes for the optional
// WebSocket path: {type, from, to?, data, timestamp, id}. The consensus
// messages (requestVote, voteResponse, appendEntries, appendResponse,
// heartbeat, handshake) all ride this shape, mirroring Envelope/Response
// but over a persistent duplex connection instead of request/response
// HTTP, for peers that prefer to hold one connection open rather than
// dialing /rpc per message.
type WSFrame struct {
	Type      string          `json:"type"`
	From      string          `json:"from"`
	To        string          `json:"to,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	ID        string          `json:"id"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and hands it to the registry
// dispatcher frame-by-frame until the peer disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("api: websocket upgrade failed")
		return
	}
	defer conn.Close()

	s.connections.Add(1)
	defer s.connections.Add(-1)

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		var frame WSFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		method := frame.Type
		if method == "heartbeat" {
			method = methodAppendEntries
		}
		replyType := frame.Type + "Response"
		switch method {
		case methodRequestVote:
			replyType = "voteResponse"
		case methodAppendEntries:
			replyType = "appendResponse"
		}
		result, err := s.cfg.Registry.dispatchRaw(method, frame.Data)
		reply := WSFrame{Type: replyType, From: s.cfg.NodeID, To: frame.From, ID: frame.ID, Timestamp: time.Now()}
		if err != nil {
			reply.Data, _ = json.Marshal(map[string]string{"error": err.Error()})
		} else if result != nil {
			reply.Data, _ = json.Marshal(result)
		}
		out, _ := json.Marshal(reply)
		if err := conn.WriteMessage(websocket.BinaryMessage, out); err != nil {
			return
		}
	}
}

// dispatchRaw is Dispatch's envelope-free sibling for the WebSocket path.
func (r *Registry) dispatchRaw(method string, params json.RawMessage) (any, error) {
	h, ok := r.handlers[method]
	if !ok {
		return nil, fmt.Errorf("unknown method: %s", method)
	}
	return h(params)
}
