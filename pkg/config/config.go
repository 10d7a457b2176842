// Package config reads brainy's node/cluster bootstrap configuration: the
// recognized environment-variable contract (spec.md §6) and an optional
// on-disk YAML file for operator-friendly overrides. Wire messages and the
// _cluster/*.json documents stay JSON; this package is the one place YAML
// is used, matching the teacher's use of gopkg.in/yaml.v3 for operator
// config rather than wire payloads.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// InstanceRole mirrors types.InstanceRole as a string for config-file and
// env-var parsing, kept separate so this package never imports pkg/types.
type InstanceRole string

const (
	RoleWriter InstanceRole = "writer"
	RoleReader InstanceRole = "reader"
	RoleHybrid InstanceRole = "hybrid"
)

// Node holds the settings a single process needs to start: identity,
// transport ports, storage backend, and operational-mode flags.
type Node struct {
	NodeID   string        `yaml:"nodeId"`
	Role     InstanceRole  `yaml:"role"`
	HTTPPort int           `yaml:"httpPort"`
	WSPort   int           `yaml:"wsPort"`
	DataDir  string        `yaml:"dataDir"`
	Storage  string        `yaml:"storage"` // "memory" | "bolt" | "s3"
	ReadOnly bool          `yaml:"readOnly"`
	WriteOnly bool         `yaml:"writeOnly"`
	Frozen   bool          `yaml:"frozen"`
	Seeds    []string      `yaml:"seeds"`
	DevCoordinator bool    `yaml:"devCoordinator"`

	Dimension  int                   `yaml:"dimension"`
	ShardCount int                   `yaml:"shardCount"`

	S3Bucket    string `yaml:"s3Bucket"`
	S3Prefix    string `yaml:"s3Prefix"`
	S3Endpoint  string `yaml:"s3Endpoint"`
	S3Region    string `yaml:"s3Region"`
	S3AccessKey string `yaml:"s3AccessKey"`
	S3SecretKey string `yaml:"s3SecretKey"`

	// Discovery
	DNS             string        `yaml:"dns"`
	Service         string        `yaml:"service"`
	Namespace       string        `yaml:"namespace"`
	ModelsPath      string        `yaml:"modelsPath"`
	PublicIP        string        `yaml:"publicIp"`
	NodeTimeout     time.Duration `yaml:"nodeTimeout"`
	DiscoveryInterval time.Duration `yaml:"discoveryInterval"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
}

func (n *Node) setDefaults() {
	if n.HTTPPort == 0 {
		n.HTTPPort = 8080
	}
	if n.DataDir == "" {
		n.DataDir = "./data"
	}
	if n.Storage == "" {
		n.Storage = "bolt"
	}
	if n.NodeTimeout <= 0 {
		n.NodeTimeout = 30 * time.Second
	}
	if n.DiscoveryInterval <= 0 {
		n.DiscoveryInterval = 10 * time.Second
	}
	if n.HeartbeatInterval <= 0 {
		n.HeartbeatInterval = 5 * time.Second
	}
	if n.Role == "" {
		n.Role = RoleHybrid
	}
	if n.Dimension <= 0 {
		n.Dimension = 384
	}
	if n.ShardCount <= 0 {
		n.ShardCount = 1
	}
}

// Load reads a YAML config file if path is non-empty, then applies
// environment-variable overrides from spec.md §6 on top of it (env wins,
// matching the teacher's flag-then-env precedence in cmd/warren).
func Load(path string) (*Node, error) {
	n := &Node{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, n); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := n.ApplyEnv(); err != nil {
		return nil, err
	}
	n.setDefaults()
	return n, nil
}

// ApplyEnv overlays the recognized BRAINY_*/PUBLIC_IP/POD_IP environment
// variables from spec.md §6; the KUBERNETES_* variables are not copied
// into Node and are read through the accessors below. BRAINY_ROLE rejects
// any value outside writer/reader/hybrid.
func (n *Node) ApplyEnv() error {
	if v := os.Getenv("BRAINY_ROLE"); v != "" {
		switch InstanceRole(v) {
		case RoleWriter, RoleReader, RoleHybrid:
			n.Role = InstanceRole(v)
		default:
			return fmt.Errorf("config: BRAINY_ROLE must be one of writer|reader|hybrid, got %q", v)
		}
	}
	if v := os.Getenv("BRAINY_HTTP_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: BRAINY_HTTP_PORT: %w", err)
		}
		n.HTTPPort = p
	}
	if v := os.Getenv("BRAINY_WS_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: BRAINY_WS_PORT: %w", err)
		}
		n.WSPort = p
	}
	if v := os.Getenv("BRAINY_DNS"); v != "" {
		n.DNS = v
	}
	if v := os.Getenv("BRAINY_SERVICE"); v != "" {
		n.Service = v
	}
	if v := os.Getenv("BRAINY_NAMESPACE"); v != "" {
		n.Namespace = v
	}
	if v := os.Getenv("BRAINY_MODELS_PATH"); v != "" {
		n.ModelsPath = v
	}
	if v := os.Getenv("BRAINY_S3_BUCKET"); v != "" {
		n.S3Bucket = v
	}
	if v := os.Getenv("BRAINY_S3_ACCESS_KEY"); v != "" {
		n.S3AccessKey = v
	}
	if v := os.Getenv("BRAINY_S3_SECRET_KEY"); v != "" {
		n.S3SecretKey = v
	}
	if v := os.Getenv("PUBLIC_IP"); v != "" {
		n.PublicIP = v
	}
	if v := os.Getenv("POD_IP"); v != "" {
		n.PublicIP = v
	}
	return nil
}

// KubernetesDiscoveryEnabled reports whether the Kubernetes Endpoints
// discovery env-var contract (spec.md §6) is present.
func KubernetesDiscoveryEnabled() bool {
	return os.Getenv("KUBERNETES_SERVICE_HOST") != "" && os.Getenv("KUBERNETES_TOKEN") != ""
}

// KubernetesServiceHost returns the KUBERNETES_SERVICE_HOST value.
func KubernetesServiceHost() string {
	return os.Getenv("KUBERNETES_SERVICE_HOST")
}

// KubernetesToken returns the KUBERNETES_TOKEN value.
func KubernetesToken() string {
	return os.Getenv("KUBERNETES_TOKEN")
}
