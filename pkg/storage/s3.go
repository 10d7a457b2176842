package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/brainydb/brainy/internal/brainyerr"
	"github.com/brainydb/brainy/pkg/types"
)

// S3API is the minimal capability brainy needs from an S3-compatible
// object store. *s3.Client (from aws-sdk-go-v2/service/s3) satisfies it
// directly; tests can supply a fake without pulling in the SDK.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store is the object-storage adapter: every entity is one object
// under a key prefix (nouns/<id>, verbs/<id>, metadata/<key>,
// changelog/<seq>, cluster_config). S3 has no cheap way to answer "give
// me the index by type" or "changes since seq" without a full listing,
// so this adapter reports SupportsChangeLogFastPath() == false and
// callers fall back to full-scan reconciliation, as the storage contract
// allows.
type S3Store struct {
	client S3API
	bucket string
	prefix string

	mu          sync.Mutex
	changeSeq   uint64
	seqRecovered bool
}

// NewS3Store wraps an S3API client scoped to bucket, with keys rooted
// under prefix (which may be empty).
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(parts ...string) string {
	return s.prefix + strings.Join(parts, "/")
}

func (s *S3Store) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return brainyerr.Wrap(brainyerr.InvalidArgument, "s3store: marshal", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return brainyerr.Wrap(brainyerr.StorageFailure, "s3store: put "+key, err)
	}
	return nil
}

func (s *S3Store) getJSON(ctx context.Context, key string, out any) error {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return brainyerr.Wrap(brainyerr.NotFound, "s3store: get "+key, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return brainyerr.Wrap(brainyerr.StorageFailure, "s3store: read body "+key, err)
	}
	return json.Unmarshal(data, out)
}

func (s *S3Store) SaveNoun(n *types.Noun) error {
	return s.putJSON(context.Background(), s.key("nouns", n.ID), n)
}

func (s *S3Store) GetNoun(id string) (*types.Noun, error) {
	var n types.Noun
	if err := s.getJSON(context.Background(), s.key("nouns", id), &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ListNounsByType requires listing every object under the nouns/ prefix
// and filtering client-side, since S3 keys carry no secondary index.
func (s *S3Store) ListNounsByType(nounType types.NounType) ([]*types.Noun, error) {
	ctx := context.Background()
	keys, err := s.listKeys(ctx, s.key("nouns")+"/")
	if err != nil {
		return nil, err
	}
	var out []*types.Noun
	for _, k := range keys {
		var n types.Noun
		if err := s.getJSON(ctx, k, &n); err != nil {
			continue
		}
		if n.Type == nounType {
			out = append(out, &n)
		}
	}
	return out, nil
}

func (s *S3Store) DeleteNoun(id string) error {
	_, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key("nouns", id)),
	})
	if err != nil {
		return brainyerr.Wrap(brainyerr.StorageFailure, "s3store: delete noun", err)
	}
	return nil
}

func (s *S3Store) SaveVerb(v *types.Verb) error {
	return s.putJSON(context.Background(), s.key("verbs", v.ID), v)
}

func (s *S3Store) GetVerb(id string) (*types.Verb, error) {
	var v types.Verb
	if err := s.getJSON(context.Background(), s.key("verbs", id), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *S3Store) listVerbsFiltered(match func(*types.Verb) bool) ([]*types.Verb, error) {
	ctx := context.Background()
	keys, err := s.listKeys(ctx, s.key("verbs")+"/")
	if err != nil {
		return nil, err
	}
	var out []*types.Verb
	for _, k := range keys {
		var v types.Verb
		if err := s.getJSON(ctx, k, &v); err != nil {
			continue
		}
		if match(&v) {
			out = append(out, &v)
		}
	}
	return out, nil
}

func (s *S3Store) GetVerbsBySource(nounID string) ([]*types.Verb, error) {
	return s.listVerbsFiltered(func(v *types.Verb) bool { return v.SourceID == nounID })
}

func (s *S3Store) GetVerbsByTarget(nounID string) ([]*types.Verb, error) {
	return s.listVerbsFiltered(func(v *types.Verb) bool { return v.TargetID == nounID })
}

func (s *S3Store) GetVerbsByType(verbType types.VerbType) ([]*types.Verb, error) {
	return s.listVerbsFiltered(func(v *types.Verb) bool { return v.Type == verbType })
}

func (s *S3Store) DeleteVerb(id string) error {
	_, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key("verbs", id)),
	})
	if err != nil {
		return brainyerr.Wrap(brainyerr.StorageFailure, "s3store: delete verb", err)
	}
	return nil
}

func (s *S3Store) SaveMetadata(key string, value []byte) error {
	_, err := s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key("metadata", key)),
		Body:   bytes.NewReader(value),
	})
	if err != nil {
		return brainyerr.Wrap(brainyerr.StorageFailure, "s3store: put metadata", err)
	}
	return nil
}

func (s *S3Store) GetMetadata(key string) ([]byte, error) {
	resp, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key("metadata", key)),
	})
	if err != nil {
		return nil, brainyerr.Wrap(brainyerr.NotFound, "s3store: get metadata", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, brainyerr.Wrap(brainyerr.StorageFailure, "s3store: read metadata", err)
	}
	return data, nil
}

func (s *S3Store) SaveStatistics(stats types.NodeStats) error {
	return s.putJSON(context.Background(), s.key("stats", "latest"), stats)
}

func (s *S3Store) GetStorageStatus() (StorageStatus, error) {
	ctx := context.Background()
	nounKeys, err := s.listKeys(ctx, s.key("nouns")+"/")
	if err != nil {
		return StorageStatus{}, err
	}
	verbKeys, err := s.listKeys(ctx, s.key("verbs")+"/")
	if err != nil {
		return StorageStatus{}, err
	}
	return StorageStatus{
		Healthy:   true,
		NounCount: int64(len(nounKeys)),
		VerbCount: int64(len(verbKeys)),
	}, nil
}

// Stats lists and fetches every entity object, so it is expensive on
// large buckets; the metrics collector's sampling interval bounds how
// often that cost is paid.
func (s *S3Store) Stats() (EntityStats, error) {
	ctx := context.Background()
	stats := EntityStats{
		NounsByType: make(map[string]int),
		VerbsByType: make(map[string]int),
	}
	nounKeys, err := s.listKeys(ctx, s.key("nouns")+"/")
	if err != nil {
		return EntityStats{}, err
	}
	for _, k := range nounKeys {
		var n types.Noun
		if err := s.getJSON(ctx, k, &n); err != nil {
			continue
		}
		stats.NounsByType[string(n.Type)]++
		if n.Tombstone {
			stats.Tombstones++
		}
	}
	verbKeys, err := s.listKeys(ctx, s.key("verbs")+"/")
	if err != nil {
		return EntityStats{}, err
	}
	for _, k := range verbKeys {
		var v types.Verb
		if err := s.getJSON(ctx, k, &v); err != nil {
			continue
		}
		stats.VerbsByType[string(v.Type)]++
		if v.Tombstone {
			stats.Tombstones++
		}
	}
	return stats, nil
}

func (s *S3Store) SaveClusterConfig(cfg *types.ClusterConfig) error {
	return s.putJSON(context.Background(), s.key("cluster_config"), cfg)
}

func (s *S3Store) GetClusterConfig() (*types.ClusterConfig, error) {
	var cfg types.ClusterConfig
	if err := s.getJSON(context.Background(), s.key("cluster_config"), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// AppendChange assigns sequence numbers from an in-process counter
// (object storage has no atomic increment primitive), which is correct
// for a single writer per shard but not across concurrent writers to the
// same prefix; multi-writer deployments should prefer BoltStore or add
// an external sequencer in front of this adapter.
func (s *S3Store) AppendChange(event types.ChangeEvent) (uint64, error) {
	s.mu.Lock()
	if !s.seqRecovered {
		// First append since this process started: resume numbering after
		// the highest sequence already in the bucket, so a restart never
		// overwrites earlier changelog objects.
		if last, err := s.lastChangeSeq(context.Background()); err == nil && last > s.changeSeq {
			s.changeSeq = last
		}
		s.seqRecovered = true
	}
	s.changeSeq++
	seq := s.changeSeq
	s.mu.Unlock()

	event.Seq = seq
	if err := s.putJSON(context.Background(), s.key("changelog", seqPadded(seq)), event); err != nil {
		return 0, err
	}
	return seq, nil
}

// lastChangeSeq lists the changelog prefix and returns the highest key's
// sequence number; keys are zero-padded so the lexicographically last key
// is also the numerically last.
func (s *S3Store) lastChangeSeq(ctx context.Context) (uint64, error) {
	keys, err := s.listKeys(ctx, s.key("changelog")+"/")
	if err != nil || len(keys) == 0 {
		return 0, err
	}
	sort.Strings(keys)
	last := keys[len(keys)-1]
	var seq uint64
	for i := strings.LastIndexByte(last, '/') + 1; i < len(last); i++ {
		c := last[i]
		if c < '0' || c > '9' {
			return 0, nil
		}
		seq = seq*10 + uint64(c-'0')
	}
	return seq, nil
}

func (s *S3Store) ReadChangesSince(since uint64) (ChangeIterator, error) {
	ctx := context.Background()
	keys, err := s.listKeys(ctx, s.key("changelog")+"/")
	if err != nil {
		return nil, err
	}
	var events []types.ChangeEvent
	for _, k := range keys {
		var e types.ChangeEvent
		if err := s.getJSON(ctx, k, &e); err != nil {
			continue
		}
		if e.Seq > since {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return newSliceIterator(events), nil
}

// SupportsChangeLogFastPath is false: ReadChangesSince above does a full
// prefix listing rather than a seek, so callers should prefer full-scan
// reconciliation over relying on this being cheap.
func (s *S3Store) SupportsChangeLogFastPath() bool { return false }

func (s *S3Store) Close() error { return nil }

func (s *S3Store) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, brainyerr.Wrap(brainyerr.StorageFailure, "s3store: list "+prefix, err)
		}
		for _, obj := range resp.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if resp.IsTruncated == nil || !*resp.IsTruncated {
			break
		}
		token = resp.NextContinuationToken
	}
	return keys, nil
}

func seqPadded(seq uint64) string {
	const width = 20 // enough digits for any uint64, keeps lexicographic == numeric order
	s := itoa(seq)
	for len(s) < width {
		s = "0" + s
	}
	return s
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
