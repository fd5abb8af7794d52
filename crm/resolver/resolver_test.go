package resolver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	contractx "github.com/socialscribe/scribe/crm/contract"
)

type fakeClient struct {
	provider contractx.Provider
	contacts []contractx.Contact
	err      error
	delay    time.Duration
	calls    atomic.Int32
}

func (f *fakeClient) Provider() contractx.Provider {
	return f.provider
}

func (f *fakeClient) SearchContacts(ctx context.Context, cred contractx.Credential, query string) ([]contractx.Contact, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, &contractx.TransportError{Err: ctx.Err()}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.contacts, nil
}

func (f *fakeClient) GetContact(ctx context.Context, cred contractx.Credential, id string) (*contractx.Contact, error) {
	return nil, contractx.ErrNotFound
}

func (f *fakeClient) GetContactWithContext(ctx context.Context, cred contractx.Credential, id string) (*contractx.Contact, error) {
	return nil, contractx.ErrNotFound
}

func (f *fakeClient) UpdateContact(ctx context.Context, cred contractx.Credential, id string, updates map[string]string) (*contractx.Contact, error) {
	return nil, errors.New("not implemented")
}

type fakeClients map[contractx.Provider]contractx.ProviderClient

func (f fakeClients) ClientFor(p contractx.Provider) (contractx.ProviderClient, error) {
	client, ok := f[p]
	if !ok {
		return nil, contractx.ErrUnsupportedProvider
	}
	return client, nil
}

func credFor(p contractx.Provider) contractx.Credential {
	return contractx.Credential{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		Provider: p,
	}
}

func contact(p contractx.Provider, id, first, last, email string) contractx.Contact {
	return contractx.Contact{
		ID:        id,
		Provider:  p,
		FirstName: contractx.StringPtr(first),
		LastName:  contractx.StringPtr(last),
		Email:     contractx.StringPtr(email),
	}
}

func TestSearchAllZeroCredentials(t *testing.T) {
	t.Parallel()

	r, err := New(fakeClients{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got := r.SearchAll(context.Background(), nil, "john")
	if got == nil {
		t.Fatal("SearchAll() = nil, want empty slice")
	}
	if len(got) != 0 {
		t.Fatalf("SearchAll() returned %d contacts, want 0", len(got))
	}
}

func TestSearchAllSingleProvider(t *testing.T) {
	t.Parallel()

	hubspot := &fakeClient{
		provider: contractx.ProviderHubSpot,
		contacts: []contractx.Contact{contact(contractx.ProviderHubSpot, "h1", "John", "Doe", "john@hubspot.com")},
	}
	r, err := New(fakeClients{contractx.ProviderHubSpot: hubspot})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got := r.SearchAll(context.Background(), []contractx.Credential{credFor(contractx.ProviderHubSpot)}, "john")
	if len(got) != 1 {
		t.Fatalf("SearchAll() returned %d contacts, want 1", len(got))
	}
	if got[0].ID != "h1" {
		t.Fatalf("contact id = %q, want h1", got[0].ID)
	}
	if got[0].Provider != contractx.ProviderHubSpot {
		t.Fatalf("contact provider = %q, want hubspot", got[0].Provider)
	}
}

func TestSearchAllDropsFailedBranch(t *testing.T) {
	t.Parallel()

	hubspot := &fakeClient{
		provider: contractx.ProviderHubSpot,
		err:      &contractx.APIError{Status: 500, Body: "hubspot down"},
	}
	salesforce := &fakeClient{
		provider: contractx.ProviderSalesforce,
		contacts: []contractx.Contact{contact(contractx.ProviderSalesforce, "s1", "Jane", "Doe", "jane@sf.com")},
	}
	r, err := New(fakeClients{
		contractx.ProviderHubSpot:    hubspot,
		contractx.ProviderSalesforce: salesforce,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	creds := []contractx.Credential{credFor(contractx.ProviderHubSpot), credFor(contractx.ProviderSalesforce)}
	got := r.SearchAll(context.Background(), creds, "doe")
	if len(got) != 1 {
		t.Fatalf("SearchAll() returned %d contacts, want only the healthy branch's 1", len(got))
	}
	if got[0].ID != "s1" {
		t.Fatalf("contact id = %q, want s1", got[0].ID)
	}
}

func TestSearchAllEnforcesFanOutCap(t *testing.T) {
	t.Parallel()

	hubspot := &fakeClient{provider: contractx.ProviderHubSpot}
	r, err := New(fakeClients{contractx.ProviderHubSpot: hubspot})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	creds := make([]contractx.Credential, 5)
	for i := range creds {
		creds[i] = credFor(contractx.ProviderHubSpot)
	}
	r.SearchAll(context.Background(), creds, "john")

	if got := hubspot.calls.Load(); got != 4 {
		t.Fatalf("dispatched %d searches, want the cap of 4", got)
	}
}

func TestSearchAllDropsTimedOutBranch(t *testing.T) {
	t.Parallel()

	slow := &fakeClient{
		provider: contractx.ProviderHubSpot,
		delay:    500 * time.Millisecond,
		contacts: []contractx.Contact{contact(contractx.ProviderHubSpot, "h1", "John", "Doe", "john@hubspot.com")},
	}
	fast := &fakeClient{
		provider: contractx.ProviderSalesforce,
		contacts: []contractx.Contact{contact(contractx.ProviderSalesforce, "s1", "Jane", "Doe", "jane@sf.com")},
	}
	r, err := New(fakeClients{
		contractx.ProviderHubSpot:    slow,
		contractx.ProviderSalesforce: fast,
	}, WithBranchTimeout(30*time.Millisecond))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	creds := []contractx.Credential{credFor(contractx.ProviderHubSpot), credFor(contractx.ProviderSalesforce)}
	got := r.SearchAll(context.Background(), creds, "doe")
	if len(got) != 1 {
		t.Fatalf("SearchAll() returned %d contacts, want 1", len(got))
	}
	if got[0].ID != "s1" {
		t.Fatalf("contact id = %q, want s1 from the branch that beat its timeout", got[0].ID)
	}
}

func TestSearchAllMergesInDispatchOrder(t *testing.T) {
	t.Parallel()

	// The first branch settles last; its results must still come first.
	hubspot := &fakeClient{
		provider: contractx.ProviderHubSpot,
		delay:    50 * time.Millisecond,
		contacts: []contractx.Contact{
			contact(contractx.ProviderHubSpot, "h1", "John", "Doe", "john@hubspot.com"),
			contact(contractx.ProviderHubSpot, "h2", "Johnny", "Dole", "johnny@hubspot.com"),
		},
	}
	salesforce := &fakeClient{
		provider: contractx.ProviderSalesforce,
		contacts: []contractx.Contact{contact(contractx.ProviderSalesforce, "s1", "Jane", "Doe", "jane@sf.com")},
	}
	r, err := New(fakeClients{
		contractx.ProviderHubSpot:    hubspot,
		contractx.ProviderSalesforce: salesforce,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	creds := []contractx.Credential{credFor(contractx.ProviderHubSpot), credFor(contractx.ProviderSalesforce)}
	got := r.SearchAll(context.Background(), creds, "doe")
	if len(got) != 3 {
		t.Fatalf("SearchAll() returned %d contacts, want 3", len(got))
	}
	wantOrder := []string{"h1", "h2", "s1"}
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Fatalf("merged[%d].ID = %q, want %q (dispatch order)", i, got[i].ID, want)
		}
	}
}

func TestSearchAllUnknownProviderBranchSkipped(t *testing.T) {
	t.Parallel()

	salesforce := &fakeClient{
		provider: contractx.ProviderSalesforce,
		contacts: []contractx.Contact{contact(contractx.ProviderSalesforce, "s1", "Jane", "Doe", "jane@sf.com")},
	}
	r, err := New(fakeClients{contractx.ProviderSalesforce: salesforce})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	creds := []contractx.Credential{
		{ID: uuid.New(), Provider: contractx.Provider("pipedrive")},
		credFor(contractx.ProviderSalesforce),
	}
	got := r.SearchAll(context.Background(), creds, "jane")
	if len(got) != 1 || got[0].ID != "s1" {
		t.Fatalf("SearchAll() = %+v, want only s1", got)
	}
}
