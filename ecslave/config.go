package ecslave

import "github.com/zultron/etherlabmaster/ecreq"

// Config is the slave-config collaborator a Slave consults for its internal,
// long-lived register requests (spec.md §4.1.2). A Slave whose config has
// been torn down observes a nil Config and cleans up in place rather than
// touching a freed request.
type Config interface {
	// RegisterRequests returns the config-owned internal register request
	// queue in submission order. Entries are scanned, not dequeued: the
	// owning config re-inspects the same slot cycle after cycle.
	RegisterRequests() []*ecreq.RegisterRequest
}
