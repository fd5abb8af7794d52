// Package resolver fans a contact search out across every CRM a user
// has connected and merges whatever came back. Availability beats
// completeness: a provider that errors or times out contributes nothing,
// and only the caller knows whether zero credentials means "no CRM
// connected".
package resolver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/socialscribe/scribe/crm/contract"
)

const (
	// defaultFanOutCap bounds worst-case latency and cost; credentials
	// past the cap are not queried.
	defaultFanOutCap = 4

	// defaultBranchTimeout is the hard per-provider deadline.
	defaultBranchTimeout = 10 * time.Second
)

// Clients resolves a provider tag to its (guarded) client.
type Clients interface {
	ClientFor(p contractx.Provider) (contractx.ProviderClient, error)
}

type Option func(*Resolver)

func WithBranchTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.branchTimeout = d
		}
	}
}

func WithFanOutCap(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.fanOutCap = n
		}
	}
}

type Resolver struct {
	clients       Clients
	branchTimeout time.Duration
	fanOutCap     int
}

func New(clients Clients, opts ...Option) (*Resolver, error) {
	if clients == nil {
		return nil, errors.New("client registry is required")
	}
	r := &Resolver{
		clients:       clients,
		branchTimeout: defaultBranchTimeout,
		fanOutCap:     defaultFanOutCap,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// SearchAll queries every credential concurrently and concatenates the
// successful branches in credential order, so one provider's results
// stay contiguous. Zero credentials yields an empty list, not an error;
// distinguishing "no CRM connected" is the caller's job.
func (r *Resolver) SearchAll(ctx context.Context, creds []contractx.Credential, query string) []contractx.Contact {
	if len(creds) == 0 {
		return []contractx.Contact{}
	}
	if len(creds) > r.fanOutCap {
		log.Warn().
			Int("connected", len(creds)).
			Int("cap", r.fanOutCap).
			Msg("more credentials than fan-out cap, querying the first ones only")
		creds = creds[:r.fanOutCap]
	}

	// One slot per branch; each goroutine writes only its own index, so
	// the only coordination point is the WaitGroup.
	branches := make([][]contractx.Contact, len(creds))
	var wg sync.WaitGroup
	for i, cred := range creds {
		wg.Add(1)
		go func(i int, cred contractx.Credential) {
			defer wg.Done()
			branches[i] = r.searchOne(ctx, cred, query)
		}(i, cred)
	}
	wg.Wait()

	total := 0
	for _, b := range branches {
		total += len(b)
	}
	merged := make([]contractx.Contact, 0, total)
	for _, b := range branches {
		merged = append(merged, b...)
	}
	return merged
}

// searchOne runs a single branch under its own timeout. Every failure
// mode (unknown provider, API error, timeout) is logged and swallowed.
func (r *Resolver) searchOne(ctx context.Context, cred contractx.Credential, query string) []contractx.Contact {
	branchCtx, cancel := context.WithTimeout(ctx, r.branchTimeout)
	defer cancel()

	client, err := r.clients.ClientFor(cred.Provider)
	if err != nil {
		log.Warn().Err(err).Str("provider", string(cred.Provider)).Msg("search branch skipped")
		return nil
	}

	contacts, err := client.SearchContacts(branchCtx, cred, query)
	if err != nil {
		log.Warn().Err(err).Str("provider", string(cred.Provider)).Msg("search branch dropped")
		return nil
	}
	return contacts
}
