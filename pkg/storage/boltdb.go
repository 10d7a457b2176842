package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"path/filepath"
	"sort"

	"github.com/brainydb/brainy/internal/brainyerr"
	"github.com/brainydb/brainy/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketNouns         = []byte("nouns")
	bucketVerbs         = []byte("verbs")
	bucketVerbsBySource = []byte("verbs_by_source")
	bucketVerbsByTarget = []byte("verbs_by_target")
	bucketVerbsByType   = []byte("verbs_by_type")
	bucketMetadata      = []byte("metadata")
	bucketChangeLog     = []byte("changelog")
	bucketClusterConfig = []byte("cluster_config")
	bucketStats         = []byte("stats")

	clusterConfigKey = []byte("config")
)

// BoltStore is the local file system storage adapter, backed by
// go.etcd.io/bbolt. Every write is a single bucket-scoped transaction;
// cross-key atomicity is not provided, matching the Store contract.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a BoltDB file under
// dataDir and ensures all buckets exist.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "brainy.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, brainyerr.Wrap(brainyerr.StorageFailure, "open brainy.db", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketNouns, bucketVerbs, bucketVerbsBySource, bucketVerbsByTarget,
			bucketVerbsByType, bucketMetadata, bucketChangeLog, bucketClusterConfig,
			bucketStats,
		}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, brainyerr.Wrap(brainyerr.StorageFailure, "create buckets", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func indexKey(a, b string) []byte {
	return append(append([]byte(a), 0), []byte(b)...)
}

// SaveNoun upserts n and maintains no secondary index (nouns are always
// looked up by id or scanned by type, which this adapter does with a
// full bucket scan filtered in memory).
func (s *BoltStore) SaveNoun(n *types.Noun) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketNouns).Put([]byte(n.ID), data)
	})
}

func (s *BoltStore) GetNoun(id string) (*types.Noun, error) {
	var n types.Noun
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketNouns).Get([]byte(id))
		if data == nil {
			return brainyerr.Newf(brainyerr.NotFound, "noun not found: %s", id)
		}
		return json.Unmarshal(data, &n)
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *BoltStore) ListNounsByType(nounType types.NounType) ([]*types.Noun, error) {
	var out []*types.Noun
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNouns).ForEach(func(k, v []byte) error {
			var n types.Noun
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			if n.Type == nounType {
				out = append(out, &n)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteNoun(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNouns).Delete([]byte(id))
	})
}

// SaveVerb upserts v and maintains the source/target/type secondary
// indexes used by GetVerbsBy{Source,Target,Type}.
func (s *BoltStore) SaveVerb(v *types.Verb) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketVerbs).Put([]byte(v.ID), data); err != nil {
			return err
		}
		if err := tx.Bucket(bucketVerbsBySource).Put(indexKey(v.SourceID, v.ID), nil); err != nil {
			return err
		}
		if err := tx.Bucket(bucketVerbsByTarget).Put(indexKey(v.TargetID, v.ID), nil); err != nil {
			return err
		}
		return tx.Bucket(bucketVerbsByType).Put(indexKey(string(v.Type), v.ID), nil)
	})
}

func (s *BoltStore) GetVerb(id string) (*types.Verb, error) {
	var v types.Verb
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketVerbs).Get([]byte(id))
		if data == nil {
			return brainyerr.Newf(brainyerr.NotFound, "verb not found: %s", id)
		}
		return json.Unmarshal(data, &v)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *BoltStore) verbsByIndex(bucket []byte, prefix string) ([]*types.Verb, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		pfx := append([]byte(prefix), 0)
		for k, _ := c.Seek(pfx); k != nil && bytes.HasPrefix(k, pfx); k, _ = c.Next() {
			ids = append(ids, string(k[len(pfx):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*types.Verb, 0, len(ids))
	for _, id := range ids {
		v, err := s.GetVerb(id)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *BoltStore) GetVerbsBySource(nounID string) ([]*types.Verb, error) {
	return s.verbsByIndex(bucketVerbsBySource, nounID)
}

func (s *BoltStore) GetVerbsByTarget(nounID string) ([]*types.Verb, error) {
	return s.verbsByIndex(bucketVerbsByTarget, nounID)
}

func (s *BoltStore) GetVerbsByType(verbType types.VerbType) ([]*types.Verb, error) {
	return s.verbsByIndex(bucketVerbsByType, string(verbType))
}

func (s *BoltStore) DeleteVerb(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketVerbs).Get([]byte(id))
		if data == nil {
			return nil
		}
		var v types.Verb
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		if err := tx.Bucket(bucketVerbs).Delete([]byte(id)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketVerbsBySource).Delete(indexKey(v.SourceID, v.ID)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketVerbsByTarget).Delete(indexKey(v.TargetID, v.ID)); err != nil {
			return err
		}
		return tx.Bucket(bucketVerbsByType).Delete(indexKey(string(v.Type), v.ID))
	})
}

func (s *BoltStore) SaveMetadata(key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMetadata).Put([]byte(key), value)
	})
}

func (s *BoltStore) GetMetadata(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMetadata).Get([]byte(key))
		if data == nil {
			return brainyerr.Newf(brainyerr.NotFound, "metadata key not found: %s", key)
		}
		out = append([]byte(nil), data...)
		return nil
	})
	return out, err
}

func (s *BoltStore) SaveStatistics(stats types.NodeStats) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketStats).Put([]byte("latest"), data)
	})
}

func (s *BoltStore) GetStorageStatus() (StorageStatus, error) {
	var status StorageStatus
	status.Healthy = true
	err := s.db.View(func(tx *bolt.Tx) error {
		status.NounCount = int64(tx.Bucket(bucketNouns).Stats().KeyN)
		status.VerbCount = int64(tx.Bucket(bucketVerbs).Stats().KeyN)
		status.SizeBytes = tx.Size()
		return nil
	})
	return status, err
}

// Stats scans both entity buckets; it backs the metrics collector's slow
// sampling tick, not any request path.
func (s *BoltStore) Stats() (EntityStats, error) {
	stats := EntityStats{
		NounsByType: make(map[string]int),
		VerbsByType: make(map[string]int),
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketNouns).ForEach(func(k, v []byte) error {
			var n types.Noun
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			stats.NounsByType[string(n.Type)]++
			if n.Tombstone {
				stats.Tombstones++
			}
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket(bucketVerbs).ForEach(func(k, v []byte) error {
			var vb types.Verb
			if err := json.Unmarshal(v, &vb); err != nil {
				return err
			}
			stats.VerbsByType[string(vb.Type)]++
			if vb.Tombstone {
				stats.Tombstones++
			}
			return nil
		})
	})
	if err != nil {
		return EntityStats{}, brainyerr.Wrap(brainyerr.StorageFailure, "stats scan", err)
	}
	return stats, nil
}

func (s *BoltStore) SaveClusterConfig(cfg *types.ClusterConfig) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketClusterConfig).Put(clusterConfigKey, data)
	})
}

func (s *BoltStore) GetClusterConfig() (*types.ClusterConfig, error) {
	var cfg types.ClusterConfig
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketClusterConfig).Get(clusterConfigKey)
		if data == nil {
			return brainyerr.New(brainyerr.NotFound, "cluster config not set")
		}
		return json.Unmarshal(data, &cfg)
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func seqKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

// AppendChange assigns the next sequence number (the highest existing
// key + 1) and stores the event under that key, so ForEach naturally
// yields events in ascending seq order.
func (s *BoltStore) AppendChange(event types.ChangeEvent) (uint64, error) {
	var assigned uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChangeLog)
		next, err := b.NextSequence()
		if err != nil {
			return err
		}
		event.Seq = next
		assigned = next
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		return b.Put(seqKey(next), data)
	})
	if err != nil {
		return 0, brainyerr.Wrap(brainyerr.StorageFailure, "append change", err)
	}
	return assigned, nil
}

func (s *BoltStore) ReadChangesSince(since uint64) (ChangeIterator, error) {
	var events []types.ChangeEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketChangeLog).Cursor()
		start := seqKey(since + 1)
		for k, v := c.Seek(start); k != nil; k, v = c.Next() {
			var e types.ChangeEvent
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			events = append(events, e)
		}
		return nil
	})
	if err != nil {
		return nil, brainyerr.Wrap(brainyerr.StorageFailure, "read changes", err)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return newSliceIterator(events), nil
}

func (s *BoltStore) SupportsChangeLogFastPath() bool { return true }
