// Package tools implements the Tool Dispatch & Connection Layer (spec
// §4.7): a namespaced provider:tool registry, legacy-name rewriting,
// encrypted-at-rest provider connections, circuit-broken dispatch with a
// Redis result cache, and idempotent-response normalization.
package tools

import (
	"context"
	"time"
)

// Descriptor is one entry in the closed tool registry.
type Descriptor struct {
	Provider string
	Tool     string
	// IdempotentErrors lists provider error substrings that actually mean
	// "this already happened" (§4.7): dispatch treats a match as success
	// rather than surfacing it as a failure.
	IdempotentErrors []string
}

// Key returns the canonical "provider:tool" registry key.
func (d Descriptor) Key() string {
	return d.Provider + ":" + d.Tool
}

// Connection is a tenant's credentials for one provider, decrypted only
// for the duration of a single dispatch call.
type Connection struct {
	ID             string
	Provider       string
	OrganizationID string
	BaseURL        string
	EncryptedToken []byte
	Nonce          []byte
}

// ConnectionStore resolves a tenant's connection for a provider. Backed by
// the Persistence layer's provider_connection table in production.
type ConnectionStore interface {
	Get(ctx context.Context, organizationID, provider string) (Connection, error)
}

// Invoker actually talks to a provider connection; HTTPInvoker is the only
// production implementation, but the interface keeps Dispatcher testable
// without a live HTTP endpoint.
type Invoker interface {
	Invoke(ctx context.Context, conn Connection, tool string, input map[string]interface{}) (string, error)
}

const defaultCacheTTL = 10 * time.Minute
