package consensus

import (
	"context"
	"fmt"
	"net"
)

// DNSDiscovery resolves peer endpoints from the BRAINY_DNS environment
// contract (spec.md §6): a single DNS name whose A/AAAA records are the
// cluster's current member addresses, the same headless-service pattern
// used by the Kubernetes Endpoints strategy (discovery_k8s.go) but
// without needing the Kubernetes API.
type DNSDiscovery struct {
	resolver *net.Resolver
	name     string
	port     int
}

// NewDNSDiscovery builds a DNSDiscovery for the given DNS name and the
// port every peer listens on.
func NewDNSDiscovery(name string, port int) *DNSDiscovery {
	return &DNSDiscovery{resolver: net.DefaultResolver, name: name, port: port}
}

// Peers resolves the configured name to a set of "host:port" endpoints.
func (d *DNSDiscovery) Peers(ctx context.Context) ([]string, error) {
	if d.name == "" {
		return nil, nil
	}
	addrs, err := d.resolver.LookupHost(ctx, d.name)
	if err != nil {
		return nil, fmt.Errorf("consensus: dns lookup %s: %w", d.name, err)
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, fmt.Sprintf("%s:%d", a, d.port))
	}
	return out, nil
}
