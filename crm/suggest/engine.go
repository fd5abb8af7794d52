// Package suggest turns raw AI transcript extractions into change-only
// suggestion lists, diffed against live CRM state.
package suggest

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/socialscribe/scribe/crm/contract"
	fieldconfigx "github.com/socialscribe/scribe/crm/fieldconfig"
)

// Clients resolves a provider tag to its (guarded) client.
type Clients interface {
	ClientFor(p contractx.Provider) (contractx.ProviderClient, error)
}

type Engine struct {
	clients   Clients
	assistant contractx.Assistant
}

func NewEngine(clients Clients, assistant contractx.Assistant) (*Engine, error) {
	if clients == nil {
		return nil, errors.New("client registry is required")
	}
	if assistant == nil {
		return nil, errors.New("assistant is required")
	}
	return &Engine{clients: clients, assistant: assistant}, nil
}

// GenerateSuggestions extracts field changes from a meeting transcript
// and diffs them against the contact's current CRM state.
func (e *Engine) GenerateSuggestions(ctx context.Context, cred contractx.Credential, contactID, meeting string, provider contractx.Provider) (*contractx.Contact, []contractx.Suggestion, error) {
	client, err := e.clients.ClientFor(provider)
	if err != nil {
		return nil, nil, err
	}
	contact, err := client.GetContact(ctx, cred, contactID)
	if err != nil {
		return nil, nil, fmt.Errorf("load contact for diffing: %w", err)
	}
	extracted, err := e.assistant.ExtractFields(ctx, meeting, provider)
	if err != nil {
		return nil, nil, err
	}
	return contact, FormatSuggestions(extracted, contact, provider), nil
}

// GenerateFromMeeting extracts suggestions before any contact is chosen.
// With no contact every proposal counts as a change; MergeWithContact
// re-validates once the caller picks one.
func (e *Engine) GenerateFromMeeting(ctx context.Context, meeting string, provider contractx.Provider) ([]contractx.Suggestion, error) {
	extracted, err := e.assistant.ExtractFields(ctx, meeting, provider)
	if err != nil {
		return nil, err
	}
	return FormatSuggestions(extracted, nil, provider), nil
}

// FormatSuggestions diffs AI extractions against the contact (nil for
// "none chosen yet") and keeps only actual changes. Every surfaced
// suggestion starts with Apply set; the opt-out toggle belongs to the
// caller.
func FormatSuggestions(extracted []contractx.ExtractedField, contact *contractx.Contact, provider contractx.Provider) []contractx.Suggestion {
	suggestions := make([]contractx.Suggestion, 0, len(extracted))
	for _, f := range extracted {
		current := contact.Field(f.Field)
		if !hasChange(current, f.Value) {
			continue
		}
		suggestions = append(suggestions, contractx.Suggestion{
			Field:        f.Field,
			Label:        fieldconfigx.FieldLabel(provider, f.Field),
			CurrentValue: current,
			NewValue:     f.Value,
			Context:      f.Context,
			Timestamp:    f.Timestamp,
			Apply:        true,
			HasChange:    true,
		})
	}
	return suggestions
}

// MergeWithContact re-diffs an existing suggestion list against a
// now-known contact: recompute current values, drop proposals the CRM
// already holds, and re-arm Apply on the survivors. Merging the result
// against the same contact again is a no-op.
func MergeWithContact(suggestions []contractx.Suggestion, contact *contractx.Contact) []contractx.Suggestion {
	merged := make([]contractx.Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		current := contact.Field(s.Field)
		if !hasChange(current, s.NewValue) {
			continue
		}
		s.CurrentValue = current
		s.HasChange = true
		s.Apply = true
		merged = append(merged, s)
	}
	return merged
}

// hasChange is the one equality rule for suggestion diffing: an absent
// (nil) current value differs from every proposal, an empty string
// included. Collapsing nil and "" here would change observable behavior.
func hasChange(current *string, proposed string) bool {
	if current == nil {
		return true
	}
	return *current != proposed
}
