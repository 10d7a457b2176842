package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	n, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, n.HTTPPort)
	assert.Equal(t, "bolt", n.Storage)
	assert.Equal(t, RoleHybrid, n.Role)
	assert.Equal(t, 30*time.Second, n.NodeTimeout)
	assert.Equal(t, 384, n.Dimension)
	assert.Equal(t, 1, n.ShardCount)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nodeId: node-a
role: writer
httpPort: 9090
storage: memory
shardCount: 8
seeds:
  - 10.0.0.2:8080
`), 0o644))

	n, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "node-a", n.NodeID)
	assert.Equal(t, RoleWriter, n.Role)
	assert.Equal(t, 9090, n.HTTPPort)
	assert.Equal(t, "memory", n.Storage)
	assert.Equal(t, 8, n.ShardCount)
	assert.Equal(t, []string{"10.0.0.2:8080"}, n.Seeds)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("role: writer\nhttpPort: 9090\n"), 0o644))

	t.Setenv("BRAINY_ROLE", "reader")
	t.Setenv("BRAINY_HTTP_PORT", "7070")

	n, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, RoleReader, n.Role)
	assert.Equal(t, 7070, n.HTTPPort)
}

func TestBrainyRoleRejectsUnknownValue(t *testing.T) {
	t.Setenv("BRAINY_ROLE", "superuser")
	_, err := Load("")
	assert.Error(t, err)
}

func TestBrainyHTTPPortRejectsNonNumeric(t *testing.T) {
	t.Setenv("BRAINY_HTTP_PORT", "eighty")
	_, err := Load("")
	assert.Error(t, err)
}

func TestDiscoveryEnvVars(t *testing.T) {
	t.Setenv("BRAINY_DNS", "brainy.internal")
	t.Setenv("BRAINY_SERVICE", "brainy")
	t.Setenv("BRAINY_NAMESPACE", "prod")
	t.Setenv("BRAINY_MODELS_PATH", "/models")
	t.Setenv("PUBLIC_IP", "203.0.113.9")

	n, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "brainy.internal", n.DNS)
	assert.Equal(t, "brainy", n.Service)
	assert.Equal(t, "prod", n.Namespace)
	assert.Equal(t, "/models", n.ModelsPath)
	assert.Equal(t, "203.0.113.9", n.PublicIP)
}

func TestPodIPOverridesPublicIP(t *testing.T) {
	t.Setenv("PUBLIC_IP", "203.0.113.9")
	t.Setenv("POD_IP", "10.1.2.3")

	n, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3", n.PublicIP)
}

func TestKubernetesDiscoveryEnabled(t *testing.T) {
	t.Setenv("KUBERNETES_SERVICE_HOST", "")
	t.Setenv("KUBERNETES_TOKEN", "")
	assert.False(t, KubernetesDiscoveryEnabled())

	t.Setenv("KUBERNETES_SERVICE_HOST", "10.96.0.1")
	assert.False(t, KubernetesDiscoveryEnabled(), "host without token is not enough")

	t.Setenv("KUBERNETES_TOKEN", "tok")
	assert.True(t, KubernetesDiscoveryEnabled())
	assert.Equal(t, "10.96.0.1", KubernetesServiceHost())
	assert.Equal(t, "tok", KubernetesToken())
}
