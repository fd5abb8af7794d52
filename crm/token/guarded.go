package token

import (
	"context"

	contractx "github.com/socialscribe/scribe/crm/contract"
)

// Client is what a concrete provider client must offer to be guarded:
// the capability set plus its own refresh/auth-classification half.
type Client interface {
	contractx.ProviderClient
	contractx.TokenSource
}

// GuardedClient is a ProviderClient whose every operation runs under the
// guardian's refresh-and-retry policy. The rest of the system only ever
// talks to providers through this wrapper.
type GuardedClient struct {
	guardian *Guardian
	client   Client
}

var _ contractx.ProviderClient = (*GuardedClient)(nil)

func Guard(guardian *Guardian, client Client) *GuardedClient {
	return &GuardedClient{guardian: guardian, client: client}
}

func (c *GuardedClient) Provider() contractx.Provider {
	return c.client.Provider()
}

func (c *GuardedClient) SearchContacts(ctx context.Context, cred contractx.Credential, query string) ([]contractx.Contact, error) {
	return Call(ctx, c.guardian, c.client, cred, func(ctx context.Context, cred contractx.Credential) ([]contractx.Contact, error) {
		return c.client.SearchContacts(ctx, cred, query)
	})
}

func (c *GuardedClient) GetContact(ctx context.Context, cred contractx.Credential, id string) (*contractx.Contact, error) {
	return Call(ctx, c.guardian, c.client, cred, func(ctx context.Context, cred contractx.Credential) (*contractx.Contact, error) {
		return c.client.GetContact(ctx, cred, id)
	})
}

func (c *GuardedClient) GetContactWithContext(ctx context.Context, cred contractx.Credential, id string) (*contractx.Contact, error) {
	return Call(ctx, c.guardian, c.client, cred, func(ctx context.Context, cred contractx.Credential) (*contractx.Contact, error) {
		return c.client.GetContactWithContext(ctx, cred, id)
	})
}

func (c *GuardedClient) UpdateContact(ctx context.Context, cred contractx.Credential, id string, updates map[string]string) (*contractx.Contact, error) {
	return Call(ctx, c.guardian, c.client, cred, func(ctx context.Context, cred contractx.Credential) (*contractx.Contact, error) {
		return c.client.UpdateContact(ctx, cred, id, updates)
	})
}
