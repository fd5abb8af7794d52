// Package provider holds the enum-keyed client table. Connecting a new
// CRM to the system is one Register call; nothing dispatches on raw
// provider strings.
package provider

import (
	"context"
	"fmt"

	contractx "github.com/socialscribe/scribe/crm/contract"
)

type Registry struct {
	clients map[contractx.Provider]contractx.ProviderClient
	order   []contractx.Provider
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[contractx.Provider]contractx.ProviderClient, 2),
	}
}

// Register adds (or replaces) the client for its provider.
func (r *Registry) Register(client contractx.ProviderClient) {
	p := client.Provider()
	if _, exists := r.clients[p]; !exists {
		r.order = append(r.order, p)
	}
	r.clients[p] = client
}

func (r *Registry) ClientFor(p contractx.Provider) (contractx.ProviderClient, error) {
	client, ok := r.clients[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contractx.ErrUnsupportedProvider, p)
	}
	return client, nil
}

// Providers returns the registered providers in registration order.
func (r *Registry) Providers() []contractx.Provider {
	out := make([]contractx.Provider, len(r.order))
	copy(out, r.order)
	return out
}

// ApplyUpdates turns the applied suggestions into one contact write.
// Suggestions toggled off are skipped; if nothing is left the call
// returns contract.ErrNoOpUpdate instead of issuing an empty write.
func ApplyUpdates(ctx context.Context, client contractx.ProviderClient, cred contractx.Credential, id string, suggestions []contractx.Suggestion) (*contractx.Contact, error) {
	updates := make(map[string]string, len(suggestions))
	for _, s := range suggestions {
		if !s.Apply {
			continue
		}
		updates[s.Field] = s.NewValue
	}
	if len(updates) == 0 {
		return nil, contractx.ErrNoOpUpdate
	}
	return client.UpdateContact(ctx, cred, id, updates)
}
