// Command brainy runs a brainy node or drives one-off cluster
// maintenance operations against a running cluster, per spec.md §6's
// CLI surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/brainydb/brainy/pkg/api"
	"github.com/brainydb/brainy/pkg/cache"
	"github.com/brainydb/brainy/pkg/cleanup"
	"github.com/brainydb/brainy/pkg/config"
	"github.com/brainydb/brainy/pkg/consensus"
	"github.com/brainydb/brainy/pkg/embed"
	"github.com/brainydb/brainy/pkg/engine"
	"github.com/brainydb/brainy/pkg/events"
	"github.com/brainydb/brainy/pkg/log"
	"github.com/brainydb/brainy/pkg/metrics"
	"github.com/brainydb/brainy/pkg/migration"
	"github.com/brainydb/brainy/pkg/partition"
	"github.com/brainydb/brainy/pkg/replication"
	"github.com/brainydb/brainy/pkg/storage"
	"github.com/brainydb/brainy/pkg/types"
)

// Exit codes from spec.md §6.
const (
	exitOK                = 0
	exitInvalidArgs       = 2
	exitStorageFailure    = 3
	exitClusterUnreachable = 4
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCode lets a subcommand pick a specific exit status (storage
// failure, cluster unreachable) instead of the generic "invalid usage"
// code cobra would otherwise imply.
type exitCode struct {
	code int
	err  error
}

func (e *exitCode) Error() string { return e.err.Error() }

func exitCodeFor(err error) int {
	if ec, ok := err.(*exitCode); ok {
		return ec.code
	}
	return exitInvalidArgs
}

func fail(code int, format string, args ...any) error {
	return &exitCode{code: code, err: fmt.Errorf(format, args...)}
}

var rootCmd = &cobra.Command{
	Use:     "brainy",
	Short:   "brainy - a vector + graph database engine",
	Version: version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("brainy version %s\ncommit: %s\n", version, commit))
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit logs as JSON")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

// ---------------------------------------------------------------------
// server
// ---------------------------------------------------------------------

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run a brainy node",
	RunE:  runServer,
}

func init() {
	f := serverCmd.Flags()
	f.String("node-id", "", "node identity (generated if empty)")
	f.String("role", "hybrid", "instance role: writer|reader|hybrid")
	f.Int("http-port", 8080, "HTTP control-plane port")
	f.StringSlice("seeds", nil, "peer addresses to discover/join through")
	f.String("storage", "bolt", "storage backend: memory|bolt|s3")
	f.String("data-dir", "./data", "local data directory (bolt storage)")
	f.String("s3-bucket", "", "S3 bucket (s3 storage)")
	f.String("s3-prefix", "", "S3 key prefix (s3 storage)")
	f.String("s3-endpoint", "", "S3-compatible endpoint override (s3 storage)")
	f.String("s3-region", "us-east-1", "S3 region (s3 storage)")
	f.String("s3-access-key", "", "S3 static access key (s3 storage; falls back to the default AWS credential chain if empty)")
	f.String("s3-secret-key", "", "S3 static secret key (s3 storage)")
	f.Bool("read-only", false, "refuse writes")
	f.Bool("write-only", false, "refuse searches")
	f.Bool("frozen", false, "refuse all mutating side effects")
	f.Int("dimension", 384, "vector dimension, fixed at first insert")
	f.String("distance", "cosine", "distance kernel: cosine|euclidean|manhattan|dot")
	f.Int("shard-count", 1, "number of shards, fixed at cluster init")
	f.Bool("dev-coordinator", false, "use the simple dev coordinator instead of Raft")
	f.String("config", "", "path to a YAML config file")
}

func runServer(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	configPath, _ := f.GetString("config")

	cfgNode, err := config.Load(configPath)
	if err != nil {
		return fail(exitInvalidArgs, "config: %w", err)
	}
	applyServerFlags(f, cfgNode)

	if cfgNode.NodeID == "" {
		cfgNode.NodeID = "node-" + randomSuffix()
	}
	if cfgNode.ReadOnly && cfgNode.WriteOnly {
		return fail(exitInvalidArgs, "server: --read-only and --write-only are mutually exclusive")
	}

	logger := log.WithNodeID(cfgNode.NodeID)

	if len(cfgNode.Seeds) == 0 {
		seeds, err := resolveSeeds(cfgNode)
		if err != nil {
			logger.Warn().Err(err).Msg("server: seed discovery failed, starting with no seeds")
		} else if len(seeds) > 0 {
			logger.Info().Strs("seeds", seeds).Msg("server: resolved seeds from environment discovery")
			cfgNode.Seeds = seeds
		}
	}

	store, closeStore, err := openStorage(cfgNode)
	if err != nil {
		return fail(exitStorageFailure, "server: open storage: %w", err)
	}
	defer closeStore()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	mode := engine.ModeHybrid
	switch {
	case cfgNode.Frozen:
		mode = engine.ModeFrozen
	case cfgNode.ReadOnly:
		mode = engine.ModeReadOnly
	case cfgNode.WriteOnly:
		mode = engine.ModeWriteOnly
	}

	distanceFlag, _ := f.GetString("distance")
	distance, err := parseDistance(distanceFlag)
	if err != nil {
		return fail(exitInvalidArgs, "server: %w", err)
	}

	eng, err := engine.New(store, broker, engine.Config{
		NodeID:     cfgNode.NodeID,
		Mode:       mode,
		Dimension:  cfgNode.Dimension,
		Distance:   distance,
		ShardCount: cfgNode.ShardCount,
		Embedder:   embed.NewStaticEmbedder(cfgNode.Dimension),
		Cache:      cache.Config{NodeID: cfgNode.NodeID},
	})
	if err != nil {
		return fail(exitInvalidArgs, "server: build engine: %w", err)
	}
	defer eng.Close()

	client := api.NewClient(cfgNode.NodeID)
	registry := &api.Registry{}
	receiver := migration.NewReceiver(store)
	api.RegisterMigrationHandlers(registry, receiver)

	partitioner := partition.New(cfgNode.ShardCount)

	self := types.NodeInfo{
		ID:       cfgNode.NodeID,
		Endpoint: endpointFor(cfgNode),
		Started:  time.Now(),
		Role:     types.RaftRoleFollower,
	}
	hostname, _ := os.Hostname()
	self.Hostname = hostname

	discovery := consensus.NewDiscovery(self, store, cfgNode.HeartbeatInterval, cfgNode.DiscoveryInterval, cfgNode.NodeTimeout)
	isNew, err := discovery.Bootstrap()
	if err != nil {
		return fail(exitClusterUnreachable, "server: cluster bootstrap: %w", err)
	}
	if isNew {
		logger.Info().Msg("server: initialized new cluster, this node is sole leader")
	}
	discovery.Start()
	defer discovery.Stop()

	var leader migration.ConsensusProposer
	var raftStatsFn func() map[string]string
	var simpleCoord *consensus.SimpleCoordinator
	if cfgNode.DevCoordinator {
		simpleCoord = consensus.NewSimpleCoordinator(cfgNode.NodeID, cfgNode.Seeds, 150*time.Millisecond, client)
		api.RegisterConsensusHandlers(registry, simpleCoord)
		simpleCoord.Start()
		defer simpleCoord.Stop()
		leader = simpleCoord
	} else {
		raftNode, err := consensus.NewRaftNode(consensus.Config{
			NodeID:   cfgNode.NodeID,
			BindAddr: fmt.Sprintf("0.0.0.0:%d", cfgNode.HTTPPort+1000),
			DataDir:  cfgNode.DataDir,
		}, store)
		if err != nil {
			return fail(exitStorageFailure, "server: build raft node: %w", err)
		}
		if len(cfgNode.Seeds) == 0 {
			if err := raftNode.Bootstrap(); err != nil {
				return fail(exitClusterUnreachable, "server: raft bootstrap: %w", err)
			}
		} else if err := raftNode.Join(func(nodeID, addr string) error { return nil }); err != nil {
			return fail(exitClusterUnreachable, "server: raft join: %w", err)
		}
		defer raftNode.Shutdown()
		leader = raftNode
		raftStatsFn = raftNode.Stats
	}

	collector := metrics.NewCollector(&collectorSource{
		store:       store,
		discovery:   discovery,
		shardCount:  cfgNode.ShardCount,
		nodeTimeout: cfgNode.NodeTimeout,
		leader:      leader,
		raftStats:   raftStatsFn,
	})
	collector.Start()
	defer collector.Stop()

	coordinator := migration.NewCoordinator(store, partitioner, client, leader, migration.Config{})
	api.RegisterCoordinatorHandlers(registry, coordinator)
	defer coordinator.Stop()

	primaryLog := replication.NewPrimaryLog(store)
	api.RegisterReplicationHandlers(registry, primaryLog)

	syncer := cache.NewSyncer(eng.Cache(), cfgNode.NodeID, cfgNode.HeartbeatInterval, 100, client.BroadcastCacheSync(func() []string {
		return peerEndpoints(discovery)
	}))
	api.RegisterCacheHandlers(registry, syncer)
	syncer.Start()
	defer syncer.Stop()

	cleaner := cleanup.New(store, eng.MetaIndex(), leader, cleanup.Config{})
	cleaner.Start()
	defer cleaner.Stop()

	streamHandler := api.NewStreamHandler(receiver)
	srv := api.NewServer(api.Config{
		NodeID:   cfgNode.NodeID,
		Addr:     fmt.Sprintf(":%d", cfgNode.HTTPPort),
		Registry: registry,
		Broker:   broker,
		Peers:    discovery,
		Stream:   streamHandler,
	})
	srv.Handle("/metrics", metrics.Handler())
	srv.Handle("/healthz", metrics.HealthHandler())
	srv.Handle("/readyz", metrics.ReadyHandler())
	srv.Start()

	fmt.Printf("brainy node %s listening on :%d (role=%s, storage=%s, shards=%d)\n",
		cfgNode.NodeID, cfgNode.HTTPPort, cfgNode.Role, cfgNode.Storage, cfgNode.ShardCount)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("server: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func applyServerFlags(f *pflag.FlagSet, cfgNode *config.Node) {
	if v, _ := f.GetString("node-id"); v != "" {
		cfgNode.NodeID = v
	}
	if v, _ := f.GetString("role"); v != "" {
		cfgNode.Role = config.InstanceRole(v)
	}
	if v, _ := f.GetInt("http-port"); v != 0 {
		cfgNode.HTTPPort = v
	}
	if v, _ := f.GetStringSlice("seeds"); len(v) > 0 {
		cfgNode.Seeds = v
	}
	if v, _ := f.GetString("storage"); v != "" {
		cfgNode.Storage = v
	}
	if v, _ := f.GetString("data-dir"); v != "" {
		cfgNode.DataDir = v
	}
	applyS3Flags(f, cfgNode)
	if v, _ := f.GetBool("read-only"); v {
		cfgNode.ReadOnly = v
	}
	if v, _ := f.GetBool("write-only"); v {
		cfgNode.WriteOnly = v
	}
	if v, _ := f.GetBool("frozen"); v {
		cfgNode.Frozen = v
	}
	if v, _ := f.GetInt("dimension"); v != 0 {
		cfgNode.Dimension = v
	}
	if v, _ := f.GetInt("shard-count"); v != 0 {
		cfgNode.ShardCount = v
	}
	if v, _ := f.GetBool("dev-coordinator"); v {
		cfgNode.DevCoordinator = v
	}
}

// applyS3Flags overlays the S3 storage flags shared by server, backup,
// and restore onto cfgNode.
func applyS3Flags(f *pflag.FlagSet, cfgNode *config.Node) {
	if v, _ := f.GetString("s3-bucket"); v != "" {
		cfgNode.S3Bucket = v
	}
	if v, _ := f.GetString("s3-prefix"); v != "" {
		cfgNode.S3Prefix = v
	}
	if v, _ := f.GetString("s3-endpoint"); v != "" {
		cfgNode.S3Endpoint = v
	}
	if v, _ := f.GetString("s3-region"); v != "" {
		cfgNode.S3Region = v
	}
	if v, _ := f.GetString("s3-access-key"); v != "" {
		cfgNode.S3AccessKey = v
	}
	if v, _ := f.GetString("s3-secret-key"); v != "" {
		cfgNode.S3SecretKey = v
	}
}

func endpointFor(cfgNode *config.Node) string {
	host := cfgNode.PublicIP
	if host == "" {
		host = "http://localhost"
	} else if len(host) < 4 || host[:4] != "http" {
		host = "http://" + host
	}
	return fmt.Sprintf("%s:%d", host, cfgNode.HTTPPort)
}

// resolveSeeds consults the environment-variable discovery contracts
// (spec.md §6) when --seeds was left empty: a headless-service DNS name
// (BRAINY_DNS) or the Kubernetes Endpoints API
// (BRAINY_SERVICE/BRAINY_NAMESPACE + KUBERNETES_SERVICE_HOST/
// KUBERNETES_TOKEN), in that order.
func resolveSeeds(cfgNode *config.Node) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if cfgNode.DNS != "" {
		return consensus.NewDNSDiscovery(cfgNode.DNS, cfgNode.HTTPPort).Peers(ctx)
	}
	if config.KubernetesDiscoveryEnabled() && cfgNode.Service != "" {
		apiHost := fmt.Sprintf("%s:443", config.KubernetesServiceHost())
		return consensus.NewK8sDiscovery(apiHost, config.KubernetesToken(), cfgNode.Service, cfgNode.Namespace, cfgNode.HTTPPort).Peers(ctx)
	}
	return nil, nil
}

// collectorSource feeds metrics.Collector from the storage adapter, the
// discovery registry, and the active consensus backend. Entity counts
// come from a full store scan, so they are memoized briefly — the
// collector calls the per-type and tombstone accessors on the same tick.
type collectorSource struct {
	store       storage.Store
	discovery   *consensus.Discovery
	shardCount  int
	nodeTimeout time.Duration
	leader      migration.ConsensusProposer
	raftStats   func() map[string]string

	mu       sync.Mutex
	cached   storage.EntityStats
	cachedAt time.Time
}

func (s *collectorSource) entityStats() storage.EntityStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cachedAt.IsZero() && time.Since(s.cachedAt) < 5*time.Second {
		return s.cached
	}
	stats, err := s.store.Stats()
	if err != nil {
		return s.cached
	}
	s.cached = stats
	s.cachedAt = time.Now()
	return stats
}

func (s *collectorSource) ListNodes() ([]metrics.NodeSnapshot, error) {
	peers, err := s.discovery.Peers()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := []metrics.NodeSnapshot{{Role: string(s.discovery.Self().Role), Status: "ready"}}
	for _, p := range peers {
		status := "ready"
		if now.Sub(p.LastSeen) > s.nodeTimeout {
			status = "down"
		}
		out = append(out, metrics.NodeSnapshot{Role: string(p.Role), Status: status})
	}
	return out, nil
}

func (s *collectorSource) ShardCount() int { return s.shardCount }

func (s *collectorSource) NounCountsByType() map[string]int { return s.entityStats().NounsByType }

func (s *collectorSource) VerbCountsByType() map[string]int { return s.entityStats().VerbsByType }

func (s *collectorSource) TombstoneCount() int { return s.entityStats().Tombstones }

func (s *collectorSource) IsLeader() bool { return s.leader.IsLeader() }

func (s *collectorSource) RaftStats() (logIndex uint64, appliedIndex uint64, peers int) {
	if s.raftStats == nil {
		return 0, 0, 0
	}
	stats := s.raftStats()
	logIndex, _ = strconv.ParseUint(stats["last_log_index"], 10, 64)
	appliedIndex, _ = strconv.ParseUint(stats["applied_index"], 10, 64)
	peers, _ = strconv.Atoi(stats["num_peers"])
	return logIndex, appliedIndex, peers
}

func peerEndpoints(d *consensus.Discovery) []string {
	peers, err := d.Peers()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.Endpoint)
	}
	return out
}

func parseDistance(s string) (types.DistanceFunction, error) {
	switch s {
	case "", "cosine":
		return types.DistanceCosine, nil
	case "euclidean":
		return types.DistanceEuclidean, nil
	case "manhattan":
		return types.DistanceManhattan, nil
	case "dot":
		return types.DistanceDot, nil
	default:
		return 0, fmt.Errorf("unknown distance function %q", s)
	}
}

func randomSuffix() string {
	return fmt.Sprintf("%x", time.Now().UnixNano())
}

// openStorage builds the storage.Store named by cfgNode.Storage and
// returns a function to close it.
func openStorage(cfgNode *config.Node) (storage.Store, func(), error) {
	switch cfgNode.Storage {
	case "memory":
		s := storage.NewMemoryStore()
		return s, func() { _ = s.Close() }, nil
	case "bolt", "":
		s, err := storage.NewBoltStore(cfgNode.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "s3":
		if cfgNode.S3Bucket == "" {
			return nil, nil, fmt.Errorf("s3 storage requires --s3-bucket")
		}
		ctx := context.Background()
		opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfgNode.S3Region)}
		if cfgNode.S3AccessKey != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfgNode.S3AccessKey, cfgNode.S3SecretKey, "")))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, nil, err
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfgNode.S3Endpoint != "" {
				o.BaseEndpoint = &cfgNode.S3Endpoint
				o.UsePathStyle = true
			}
		})
		s := storage.NewS3Store(client, cfgNode.S3Bucket, cfgNode.S3Prefix)
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfgNode.Storage)
	}
}

// ---------------------------------------------------------------------
// migrate
// ---------------------------------------------------------------------

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate a shard to another node",
	RunE:  runMigrate,
}

func init() {
	f := migrateCmd.Flags()
	f.Int("shard", -1, "shard index to migrate")
	f.String("to", "", "target node endpoint")
	f.String("from", "", "source node endpoint (defaults to --leader)")
	f.String("leader", "http://localhost:8080", "leader node endpoint to request the migration from")
	f.String("node-id", "brainy-cli", "identity this CLI presents in RPC envelopes")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	shard, _ := f.GetInt("shard")
	to, _ := f.GetString("to")
	from, _ := f.GetString("from")
	leader, _ := f.GetString("leader")
	nodeID, _ := f.GetString("node-id")

	if shard < 0 || to == "" {
		return fail(exitInvalidArgs, "migrate: --shard and --to are required")
	}
	if from == "" {
		from = leader
	}

	client := api.NewClient(nodeID)
	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Second)
	defer cancel()

	task, err := client.TriggerMigration(ctx, leader, shard, from, to)
	if err != nil {
		return fail(exitClusterUnreachable, "migrate: %w", err)
	}
	fmt.Printf("migration %s started: shard-%03d %s -> %s\n", task.ID, shard, from, to)
	return nil
}

// ---------------------------------------------------------------------
// backup / restore
// ---------------------------------------------------------------------

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a bit-stable backup of this node's local data",
	RunE:  runBackup,
}

func init() {
	f := backupCmd.Flags()
	f.String("out", "", "output file path")
	addOfflineStorageFlags(f)
}

func runBackup(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	out, _ := f.GetString("out")
	if out == "" {
		return fail(exitInvalidArgs, "backup: --out is required")
	}

	eng, closeFn, err := openOfflineEngine(f)
	if err != nil {
		return fail(exitStorageFailure, "backup: %w", err)
	}
	defer closeFn()

	file, err := os.Create(out)
	if err != nil {
		return fail(exitStorageFailure, "backup: %w", err)
	}
	defer file.Close()

	if err := eng.Backup(file); err != nil {
		return fail(exitStorageFailure, "backup: %w", err)
	}
	fmt.Printf("backup written to %s\n", out)
	return nil
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a node's local data from a backup",
	RunE:  runRestore,
}

func init() {
	f := restoreCmd.Flags()
	f.String("in", "", "input file path")
	addOfflineStorageFlags(f)
}

func runRestore(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	in, _ := f.GetString("in")
	if in == "" {
		return fail(exitInvalidArgs, "restore: --in is required")
	}

	eng, closeFn, err := openOfflineEngine(f)
	if err != nil {
		return fail(exitStorageFailure, "restore: %w", err)
	}
	defer closeFn()

	file, err := os.Open(in)
	if err != nil {
		return fail(exitStorageFailure, "restore: %w", err)
	}
	defer file.Close()

	if err := eng.RestoreBackup(file); err != nil {
		return fail(exitInvalidArgs, "restore: %w", err)
	}
	fmt.Printf("restored from %s\n", in)
	return nil
}

// addOfflineStorageFlags registers the storage-selection flags backup
// and restore share.
func addOfflineStorageFlags(f *pflag.FlagSet) {
	f.String("storage", "bolt", "storage backend: memory|bolt|s3")
	f.String("data-dir", "./data", "local data directory (bolt storage)")
	f.String("s3-bucket", "", "S3 bucket (s3 storage)")
	f.String("s3-prefix", "", "S3 key prefix (s3 storage)")
	f.String("s3-endpoint", "", "S3-compatible endpoint override (s3 storage)")
	f.String("s3-region", "us-east-1", "S3 region (s3 storage)")
	f.String("s3-access-key", "", "S3 static access key (s3 storage)")
	f.String("s3-secret-key", "", "S3 static secret key (s3 storage)")
	f.Int("dimension", 384, "vector dimension")
	f.Int("shard-count", 1, "number of shards")
}

// openOfflineEngine builds a bare Engine over the named storage backend
// for backup/restore, with no network, consensus, or cleanup loops
// attached.
func openOfflineEngine(f *pflag.FlagSet) (*engine.Engine, func(), error) {
	storageKind, _ := f.GetString("storage")
	dataDir, _ := f.GetString("data-dir")
	dimension, _ := f.GetInt("dimension")
	shardCount, _ := f.GetInt("shard-count")

	cfgNode := &config.Node{Storage: storageKind, DataDir: dataDir}
	applyS3Flags(f, cfgNode)
	store, closeStore, err := openStorage(cfgNode)
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.New(store, nil, engine.Config{
		NodeID:     "offline",
		Dimension:  dimension,
		ShardCount: shardCount,
		Embedder:   embed.NewStaticEmbedder(dimension),
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return eng, func() { eng.Close(); closeStore() }, nil
}
