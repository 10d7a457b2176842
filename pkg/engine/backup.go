package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/brainydb/brainy/pkg/index/hnsw"
	"github.com/brainydb/brainy/pkg/types"
)

// backupDocument is the on-disk shape the `backup`/`restore` CLI
// commands round-trip per spec.md §8's "restore(backup(db)) ≡ db"
// round-trip law: every noun and verb this node currently holds, plus
// each shard's bit-stable HNSW snapshot (pkg/index/hnsw's own
// Save/Load format), keyed by shard index.
type backupDocument struct {
	Dimension int            `json:"dimension"`
	Nouns     []*types.Noun  `json:"nouns"`
	Verbs     []*types.Verb  `json:"verbs"`
	Shards    map[int][]byte `json:"shards"`
}

// Backup writes every noun, verb, and HNSW shard this Engine holds to w,
// discovering entity ids the same way pkg/migration does — by replaying
// the change log rather than requiring a dedicated list-all store
// method, since both callers need the same "every id ever written"
// view.
func (e *Engine) Backup(w io.Writer) error {
	it, err := e.store.ReadChangesSince(0)
	if err != nil {
		return fmt.Errorf("engine: backup: %w", err)
	}
	defer it.Close()

	seenNoun := make(map[string]struct{})
	seenVerb := make(map[string]struct{})
	for {
		ev, ok := it.Next()
		if !ok {
			break
		}
		switch ev.EntityKind {
		case types.EntityNoun:
			seenNoun[ev.ID] = struct{}{}
		case types.EntityVerb:
			seenVerb[ev.ID] = struct{}{}
		}
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("engine: backup: %w", err)
	}

	doc := backupDocument{Dimension: e.cfg.Dimension, Shards: make(map[int][]byte)}
	for id := range seenNoun {
		n, err := e.store.GetNoun(id)
		if err != nil || n == nil {
			continue
		}
		doc.Nouns = append(doc.Nouns, n)
	}
	for id := range seenVerb {
		v, err := e.store.GetVerb(id)
		if err != nil || v == nil {
			continue
		}
		doc.Verbs = append(doc.Verbs, v)
	}

	e.shardsMu.RLock()
	for idx, shard := range e.shards {
		var buf bytes.Buffer
		if err := shard.Save(&buf); err != nil {
			e.shardsMu.RUnlock()
			return fmt.Errorf("engine: backup: shard %d: %w", idx, err)
		}
		doc.Shards[idx] = buf.Bytes()
	}
	e.shardsMu.RUnlock()

	return json.NewEncoder(w).Encode(doc)
}

// RestoreBackup replaces this Engine's entity store and in-memory shards
// with the contents of a Backup document read from r. It is an offline
// operation: callers must not serve traffic against the engine
// concurrently with RestoreBackup, so it writes directly through the
// store and shard maps rather than through Add/Relate's
// operational-mode guards. Named distinctly from Restore(ctx, id), the
// noun-tombstone undelete operation spec.md §3 also calls "restore".
func (e *Engine) RestoreBackup(r io.Reader) error {
	var doc backupDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("engine: restore: %w", err)
	}
	if doc.Dimension != e.cfg.Dimension {
		return fmt.Errorf("engine: restore: backup dimension %d does not match index dimension %d", doc.Dimension, e.cfg.Dimension)
	}

	// Re-append a change event per entity: migration, cleanup, and Backup
	// itself all enumerate ids by replaying the change log, so a restored
	// store with no log entries would look empty to every one of them.
	for _, n := range doc.Nouns {
		if err := e.store.SaveNoun(n); err != nil {
			return fmt.Errorf("engine: restore: noun %s: %w", n.ID, err)
		}
		if _, err := e.store.AppendChange(types.ChangeEvent{Op: types.ChangeAdd, EntityKind: types.EntityNoun, ID: n.ID, Version: n.Version, Timestamp: n.UpdatedAt}); err != nil {
			return fmt.Errorf("engine: restore: noun %s change event: %w", n.ID, err)
		}
	}
	for _, v := range doc.Verbs {
		if err := e.store.SaveVerb(v); err != nil {
			return fmt.Errorf("engine: restore: verb %s: %w", v.ID, err)
		}
		if _, err := e.store.AppendChange(types.ChangeEvent{Op: types.ChangeRelate, EntityKind: types.EntityVerb, ID: v.ID, Version: v.Version, Timestamp: v.UpdatedAt}); err != nil {
			return fmt.Errorf("engine: restore: verb %s change event: %w", v.ID, err)
		}
	}

	e.shardsMu.Lock()
	for idx, raw := range doc.Shards {
		shard, err := loadHNSW(raw)
		if err != nil {
			e.shardsMu.Unlock()
			return fmt.Errorf("engine: restore: shard %d: %w", idx, err)
		}
		e.shards[idx] = shard
	}
	e.shardsMu.Unlock()

	entries := make(map[string]map[string][]string, len(doc.Nouns))
	for _, n := range doc.Nouns {
		entries[n.ID] = fieldsOf(n.Metadata)
	}
	e.metaIndex.Rebuild(entries)

	return nil
}

func loadHNSW(raw []byte) (*hnsw.HNSW, error) {
	return hnsw.Load(bytes.NewReader(raw))
}
