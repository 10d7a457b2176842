package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/brainydb/brainy/pkg/migration"
	"github.com/brainydb/brainy/pkg/types"
)

// streamFrame is one element of the framed JSON sequence spec.md §6
// describes for POST /stream/{streamId}: {type∈{noun,verb}, data}.
type streamFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// StreamHandler receives shard-migration uploads on behalf of a
// migration.Receiver. The URL's {streamId} path segment carries the
// shard id (e.g. "shard-007"), matching what migration.Coordinator
// already threads through its Transport calls.
type StreamHandler struct {
	receiver *migration.Receiver
}

// NewStreamHandler wraps receiver for use by Server.
func NewStreamHandler(receiver *migration.Receiver) *StreamHandler {
	return &StreamHandler{receiver: receiver}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Stream == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("api: no stream handler configured"))
		return
	}
	shardID := r.PathValue("streamId")
	if shardID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("api: missing streamId"))
		return
	}

	s.connections.Add(1)
	defer s.connections.Add(-1)

	if err := s.cfg.Stream.ingest(shardID, r.Body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ingest decodes a concatenated sequence of streamFrame JSON values from
// body and routes each to the Receiver, collecting noun frames and verb
// frames into separate batches to avoid a store round-trip per item.
func (h *StreamHandler) ingest(shardID string, body io.Reader) error {
	dec := json.NewDecoder(body)

	const flushSize = 1000
	nounBatch := make([]*types.Noun, 0, flushSize)
	verbBatch := make([]*types.Verb, 0, flushSize)

	flushNouns := func() error {
		if len(nounBatch) == 0 {
			return nil
		}
		if err := h.receiver.ReceiveNouns(shardID, nounBatch); err != nil {
			return err
		}
		nounBatch = nounBatch[:0]
		return nil
	}
	flushVerbs := func() error {
		if len(verbBatch) == 0 {
			return nil
		}
		if err := h.receiver.ReceiveVerbs(shardID, verbBatch); err != nil {
			return err
		}
		verbBatch = verbBatch[:0]
		return nil
	}

	for {
		var frame streamFrame
		err := dec.Decode(&frame)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("api: malformed stream frame: %w", err)
		}
		switch frame.Type {
		case "noun":
			var n types.Noun
			if err := json.Unmarshal(frame.Data, &n); err != nil {
				return fmt.Errorf("api: malformed noun frame: %w", err)
			}
			nounBatch = append(nounBatch, &n)
			if len(nounBatch) >= flushSize {
				if err := flushNouns(); err != nil {
					return err
				}
			}
		case "verb":
			var v types.Verb
			if err := json.Unmarshal(frame.Data, &v); err != nil {
				return fmt.Errorf("api: malformed verb frame: %w", err)
			}
			verbBatch = append(verbBatch, &v)
			if len(verbBatch) >= flushSize {
				if err := flushVerbs(); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("api: unknown stream frame type %q", frame.Type)
		}
	}
	if err := flushNouns(); err != nil {
		return err
	}
	return flushVerbs()
}
