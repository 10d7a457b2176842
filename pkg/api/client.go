package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brainydb/brainy/pkg/cache"
	"github.com/brainydb/brainy/pkg/consensus"
	"github.com/brainydb/brainy/pkg/log"
	"github.com/brainydb/brainy/pkg/migration"
	"github.com/brainydb/brainy/pkg/replication"
	"github.com/brainydb/brainy/pkg/types"
	"github.com/google/uuid"
)

// RPC method names carried in an Envelope's Method field.
const (
	methodRequestVote    = "requestVote"
	methodAppendEntries  = "appendEntries"
	methodRequestValidate = "migration.requestValidate"
	methodRequestReset    = "migration.requestReset"
	methodNotifySwitch    = "migration.notifySwitch"
	methodGetUpdates      = "replication.getUpdates"
	methodCacheSyncBatch  = "cache.syncBatch"
	methodMigrationStart  = "migration.start"
)

// Client is brainy's HTTP transport for every node-to-node capability the
// rest of the codebase declares as a narrow interface: pkg/consensus's
// dev-mode Transport, pkg/migration's Transport, pkg/replication's
// Transport, and pkg/cache's Transport func type. One Client, addressed
// by peer endpoint string per call, satisfies all four — the teacher
// dials its gRPC client per-peer the same way (pkg/client/client.go),
// generalized here to plain HTTP/JSON against /rpc and /stream.
type Client struct {
	nodeID string
	http   *http.Client
}

// NewClient builds a Client identifying itself as nodeID in outgoing
// envelopes' From field.
func NewClient(nodeID string) *Client {
	return &Client{nodeID: nodeID, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *Client) call(ctx context.Context, peer, method string, params any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	env := Envelope{
		ID:        uuid.NewString(),
		Method:    method,
		Params:    raw,
		Timestamp: time.Now(),
		From:      c.nodeID,
		To:        peer,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peer+"/rpc", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("api: decode rpc response from %s: %w", peer, err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("api: rpc %s on %s: %s: %s", method, peer, out.Error.Code, out.Error.Message)
	}
	return out.Result, nil
}

// SendRequestVote implements pkg/consensus.Transport.
func (c *Client) SendRequestVote(ctx context.Context, peer string, args consensus.RequestVoteArgs) (consensus.RequestVoteReply, error) {
	var reply consensus.RequestVoteReply
	raw, err := c.call(ctx, peer, methodRequestVote, args)
	if err != nil {
		return reply, err
	}
	err = json.Unmarshal(raw, &reply)
	return reply, err
}

// SendAppendEntries implements pkg/consensus.Transport.
func (c *Client) SendAppendEntries(ctx context.Context, peer string, args consensus.AppendEntriesArgs) (consensus.AppendEntriesReply, error) {
	var reply consensus.AppendEntriesReply
	raw, err := c.call(ctx, peer, methodAppendEntries, args)
	if err != nil {
		return reply, err
	}
	err = json.Unmarshal(raw, &reply)
	return reply, err
}

// SendNouns implements pkg/migration.Transport by streaming noun frames
// to the target's POST /stream/{shardID}.
func (c *Client) SendNouns(ctx context.Context, toNode, shardID string, nouns []*types.Noun) error {
	return c.stream(ctx, toNode, shardID, "noun", len(nouns), func(enc *json.Encoder) error {
		for _, n := range nouns {
			data, err := json.Marshal(n)
			if err != nil {
				return err
			}
			if err := enc.Encode(streamFrame{Type: "noun", Data: data}); err != nil {
				return err
			}
		}
		return nil
	})
}

// SendVerbs implements pkg/migration.Transport the same way as SendNouns.
func (c *Client) SendVerbs(ctx context.Context, toNode, shardID string, verbs []*types.Verb) error {
	return c.stream(ctx, toNode, shardID, "verb", len(verbs), func(enc *json.Encoder) error {
		for _, v := range verbs {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			if err := enc.Encode(streamFrame{Type: "verb", Data: data}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Client) stream(ctx context.Context, toNode, shardID, kind string, count int, write func(*json.Encoder) error) error {
	if count == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := write(json.NewEncoder(&buf)); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, toNode+"/stream/"+shardID, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api: stream %s batch of %d %ss to %s: %s: %s", shardID, count, kind, toNode, resp.Status, body)
	}
	return nil
}

// RequestValidate implements pkg/migration.Transport.
func (c *Client) RequestValidate(ctx context.Context, toNode, shardID string) (migration.ValidationResult, error) {
	var result migration.ValidationResult
	raw, err := c.call(ctx, toNode, methodRequestValidate, map[string]string{"shardId": shardID})
	if err != nil {
		return result, err
	}
	err = json.Unmarshal(raw, &result)
	return result, err
}

// RequestReset implements pkg/migration.Transport.
func (c *Client) RequestReset(ctx context.Context, toNode, shardID string) error {
	_, err := c.call(ctx, toNode, methodRequestReset, map[string]string{"shardId": shardID})
	return err
}

// NotifySwitch implements pkg/migration.Transport.
func (c *Client) NotifySwitch(ctx context.Context, toNode, shardID string, assignment types.ShardAssignment) error {
	_, err := c.call(ctx, toNode, methodNotifySwitch, map[string]any{"shardId": shardID, "assignment": assignment})
	return err
}

// migrationStartParams/Result mirror the shape RegisterCoordinatorHandlers
// decodes/returns for methodMigrationStart.
type migrationStartParams struct {
	ShardIndex int    `json:"shardIndex"`
	FromNode   string `json:"fromNode"`
	ToNode     string `json:"toNode"`
}

// TriggerMigration asks leaderNode's Coordinator to start migrating
// shardIndex from fromNode to toNode, for the `brainy migrate` CLI
// command. The leader runs the migration asynchronously; this call
// returns once it has been accepted and assigned a Task id.
func (c *Client) TriggerMigration(ctx context.Context, leaderNode string, shardIndex int, fromNode, toNode string) (migration.Task, error) {
	var task migration.Task
	raw, err := c.call(ctx, leaderNode, methodMigrationStart, migrationStartParams{ShardIndex: shardIndex, FromNode: fromNode, ToNode: toNode})
	if err != nil {
		return task, err
	}
	err = json.Unmarshal(raw, &task)
	return task, err
}

// GetUpdates implements pkg/replication.Transport.
func (c *Client) GetUpdates(ctx context.Context, primaryNode string, fromSequence uint64) ([]replication.Operation, error) {
	raw, err := c.call(ctx, primaryNode, methodGetUpdates, map[string]uint64{"fromSequence": fromSequence})
	if err != nil {
		return nil, err
	}
	var ops []replication.Operation
	err = json.Unmarshal(raw, &ops)
	return ops, err
}

// BroadcastCacheSync returns a cache.Transport that POSTs batch to every
// peer currently returned by peers, best-effort: a single peer being
// unreachable does not fail the whole broadcast, it is only logged,
// matching spec.md §4.3's "messages are queued and flushed" framing —
// cache coherence is an optimization, not a correctness requirement.
func (c *Client) BroadcastCacheSync(peers func() []string) cache.Transport {
	return func(batch cache.BatchMessage) error {
		for _, peer := range peers() {
			if _, err := c.call(context.Background(), peer, methodCacheSyncBatch, batch); err != nil {
				log.Logger.Warn().Err(err).Str("peer", peer).Msg("api: cache sync broadcast failed")
			}
		}
		return nil
	}
}
