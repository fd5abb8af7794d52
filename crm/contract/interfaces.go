package contract

import (
	"context"

	"github.com/google/uuid"
)

// ProviderClient is the fixed capability set every connected CRM
// implements. Adding a CRM means implementing this interface and
// registering it; nothing else in the system changes.
type ProviderClient interface {
	Provider() Provider

	// SearchContacts returns at most one page (10) of matches. Result
	// ordering is provider-defined. Implementations must escape the query
	// against their own query language.
	SearchContacts(ctx context.Context, cred Credential, query string) ([]Contact, error)

	// GetContact returns ErrNotFound for an id the provider does not know.
	GetContact(ctx context.Context, cred Credential, id string) (*Contact, error)

	// GetContactWithContext fetches the contact plus its notes and tasks.
	// Either sub-fetch failing degrades to an empty list for that
	// sub-resource; only the base contact fetch can fail the call.
	GetContactWithContext(ctx context.Context, cred Credential, id string) (*Contact, error)

	// UpdateContact maps canonical field names to the provider's native
	// ones, writes, and returns the post-update normalized contact.
	UpdateContact(ctx context.Context, cred Credential, id string, updates map[string]string) (*Contact, error)
}

// TokenSource is the refresh half of a provider client: how to mint a
// fresh credential and how to recognize this provider's auth failures.
type TokenSource interface {
	// RefreshToken exchanges the refresh token for a new access token. The
	// returned credential may have an empty RefreshToken (providers do not
	// always rotate it) and a nil ExpiresAt; the guardian normalizes both.
	RefreshToken(ctx context.Context, cred Credential) (Credential, error)

	// IsAuthError reports whether err is this provider's way of saying the
	// access token is expired or invalid.
	IsAuthError(err error) bool
}

type CredentialStore interface {
	Get(ctx context.Context, userID uuid.UUID, provider Provider) (*Credential, error)
	ListConnected(ctx context.Context, userID uuid.UUID) ([]Credential, error)
	Save(ctx context.Context, cred *Credential) error
}

// Assistant is the opaque AI boundary: transcript extraction and
// contact Q&A. The core never looks inside it.
type Assistant interface {
	ExtractFields(ctx context.Context, transcript string, provider Provider) ([]ExtractedField, error)
	Answer(ctx context.Context, question string, contact *Contact, provider Provider) (string, error)
}
