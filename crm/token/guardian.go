// Package token wraps outbound provider calls with the token lifecycle
// policy: refresh proactively inside a buffer window, and recover from
// the race where the token died between the freshness check and the call
// with exactly one refresh-and-retry.
package token

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/socialscribe/scribe/crm/contract"
)

const (
	// refreshBuffer is how close to expiry a token may get before a call
	// triggers a proactive refresh.
	refreshBuffer = 300 * time.Second

	// fallbackTTL is assumed when a token endpoint asserts no expiry.
	fallbackTTL = time.Hour
)

type Guardian struct {
	store contractx.CredentialStore
	now   func() time.Time
}

func NewGuardian(store contractx.CredentialStore) (*Guardian, error) {
	if store == nil {
		return nil, errors.New("credential store is required")
	}
	return &Guardian{
		store: store,
		now:   time.Now,
	}, nil
}

// Call runs one provider API call under the guardian's policy:
//
//  1. If the credential is expired, has no expiry, or expires inside the
//     buffer window, refresh first. The call only ever sees a live token.
//  2. If the call fails with what the provider classifies as an auth
//     error, refresh once, re-invoke once, and return that second result
//     as final whatever it is.
//  3. Every other error passes through untouched.
//
// A failed refresh surfaces as *contract.TokenRefreshError and is never
// retried.
func Call[T any](ctx context.Context, g *Guardian, src contractx.TokenSource, cred contractx.Credential, call func(context.Context, contractx.Credential) (T, error)) (T, error) {
	var zero T
	if g == nil {
		return zero, errors.New("nil guardian")
	}
	if src == nil {
		return zero, errors.New("nil token source")
	}

	if g.needsRefresh(cred) {
		refreshed, err := g.refresh(ctx, src, cred)
		if err != nil {
			return zero, err
		}
		cred = refreshed
	}

	out, err := call(ctx, cred)
	if err == nil || !src.IsAuthError(err) {
		return out, err
	}

	log.Warn().
		Str("provider", string(cred.Provider)).
		Str("credential_id", cred.ID.String()).
		Msg("auth error on live token, refreshing and retrying once")

	refreshed, rerr := g.refresh(ctx, src, cred)
	if rerr != nil {
		return zero, rerr
	}
	return call(ctx, refreshed)
}

func (g *Guardian) needsRefresh(cred contractx.Credential) bool {
	if cred.ExpiresAt == nil {
		return true
	}
	return cred.ExpiresAt.Before(g.now().Add(refreshBuffer))
}

// refresh exchanges the refresh token and persists the result before the
// caller proceeds. Providers do not always rotate the refresh token or
// assert an expiry; both gaps are filled here.
func (g *Guardian) refresh(ctx context.Context, src contractx.TokenSource, cred contractx.Credential) (contractx.Credential, error) {
	refreshed, err := src.RefreshToken(ctx, cred)
	if err != nil {
		var tre *contractx.TokenRefreshError
		if errors.As(err, &tre) {
			return contractx.Credential{}, err
		}
		return contractx.Credential{}, &contractx.TokenRefreshError{Reason: err.Error(), Err: err}
	}

	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = cred.RefreshToken
	}
	if refreshed.ExpiresAt == nil {
		expiry := g.now().Add(fallbackTTL)
		refreshed.ExpiresAt = &expiry
	}

	if err := g.store.Save(ctx, &refreshed); err != nil {
		return contractx.Credential{}, &contractx.TokenRefreshError{
			Reason: "persist refreshed credential: " + err.Error(),
			Err:    err,
		}
	}

	log.Debug().
		Str("provider", string(refreshed.Provider)).
		Str("credential_id", refreshed.ID.String()).
		Time("expires_at", *refreshed.ExpiresAt).
		Msg("refreshed crm token")

	return refreshed, nil
}
