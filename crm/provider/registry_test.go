package provider

import (
	"context"
	"errors"
	"testing"

	contractx "github.com/socialscribe/scribe/crm/contract"
)

type stubClient struct {
	provider contractx.Provider
	updated  map[string]string
}

func (s *stubClient) Provider() contractx.Provider {
	return s.provider
}

func (s *stubClient) SearchContacts(ctx context.Context, cred contractx.Credential, query string) ([]contractx.Contact, error) {
	return nil, nil
}

func (s *stubClient) GetContact(ctx context.Context, cred contractx.Credential, id string) (*contractx.Contact, error) {
	return nil, contractx.ErrNotFound
}

func (s *stubClient) GetContactWithContext(ctx context.Context, cred contractx.Credential, id string) (*contractx.Contact, error) {
	return nil, contractx.ErrNotFound
}

func (s *stubClient) UpdateContact(ctx context.Context, cred contractx.Credential, id string, updates map[string]string) (*contractx.Contact, error) {
	s.updated = updates
	return &contractx.Contact{ID: id, Provider: s.provider}, nil
}

func TestRegistryClientFor(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(&stubClient{provider: contractx.ProviderHubSpot})

	client, err := r.ClientFor(contractx.ProviderHubSpot)
	if err != nil {
		t.Fatalf("ClientFor(hubspot) error = %v", err)
	}
	if client.Provider() != contractx.ProviderHubSpot {
		t.Fatalf("client provider = %q, want hubspot", client.Provider())
	}
}

func TestRegistryUnsupportedProvider(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.ClientFor(contractx.ProviderSalesforce)
	if !errors.Is(err, contractx.ErrUnsupportedProvider) {
		t.Fatalf("ClientFor() error = %v, want ErrUnsupportedProvider", err)
	}
}

func TestRegistryProvidersInRegistrationOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(&stubClient{provider: contractx.ProviderSalesforce})
	r.Register(&stubClient{provider: contractx.ProviderHubSpot})
	r.Register(&stubClient{provider: contractx.ProviderSalesforce}) // replace, not duplicate

	got := r.Providers()
	if len(got) != 2 || got[0] != contractx.ProviderSalesforce || got[1] != contractx.ProviderHubSpot {
		t.Fatalf("Providers() = %v, want [salesforce hubspot]", got)
	}
}

func TestApplyUpdatesFiltersToggledOff(t *testing.T) {
	t.Parallel()

	client := &stubClient{provider: contractx.ProviderHubSpot}
	suggestions := []contractx.Suggestion{
		{Field: "phone", NewValue: "555-9999", Apply: true},
		{Field: "email", NewValue: "new@example.com", Apply: false},
	}

	_, err := ApplyUpdates(context.Background(), client, contractx.Credential{}, "h1", suggestions)
	if err != nil {
		t.Fatalf("ApplyUpdates() error = %v", err)
	}
	if len(client.updated) != 1 || client.updated["phone"] != "555-9999" {
		t.Fatalf("updates sent = %v, want only phone", client.updated)
	}
}

func TestApplyUpdatesNothingToApply(t *testing.T) {
	t.Parallel()

	client := &stubClient{provider: contractx.ProviderHubSpot}
	suggestions := []contractx.Suggestion{
		{Field: "phone", NewValue: "555-9999", Apply: false},
	}

	_, err := ApplyUpdates(context.Background(), client, contractx.Credential{}, "h1", suggestions)
	if !errors.Is(err, contractx.ErrNoOpUpdate) {
		t.Fatalf("ApplyUpdates() error = %v, want ErrNoOpUpdate", err)
	}
	if client.updated != nil {
		t.Fatalf("an empty write was issued: %v", client.updated)
	}
}
