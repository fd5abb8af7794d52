// Package chat sequences one question/answer turn: resolve an @mention
// across the user's CRMs, pin the matched contact, and hand the question
// to the assistant. The orchestrator never fails a turn because history
// persistence hiccuped.
package chat

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/socialscribe/scribe/crm/contract"
)

// Searcher is the multi-CRM resolver surface the orchestrator needs.
type Searcher interface {
	SearchAll(ctx context.Context, creds []contractx.Credential, query string) []contractx.Contact
}

// Clients resolves a provider tag to its (guarded) client.
type Clients interface {
	ClientFor(p contractx.Provider) (contractx.ProviderClient, error)
}

var mentionPattern = regexp.MustCompile(`@([A-Za-z][A-Za-z0-9._'-]*)`)

type Orchestrator struct {
	search    Searcher
	clients   Clients
	assistant contractx.Assistant
	history   HistoryStore

	now func() time.Time
}

func New(search Searcher, clients Clients, assistant contractx.Assistant, history HistoryStore) (*Orchestrator, error) {
	if search == nil {
		return nil, errors.New("searcher is required")
	}
	if clients == nil {
		return nil, errors.New("client registry is required")
	}
	if assistant == nil {
		return nil, errors.New("assistant is required")
	}
	if history == nil {
		history = noopHistoryStore{}
	}
	return &Orchestrator{
		search:    search,
		clients:   clients,
		assistant: assistant,
		history:   history,
		now:       time.Now,
	}, nil
}

// Ask runs one turn. A question tagging "@name" searches all connected
// CRMs and pins the first match (with its notes and tasks) as the
// conversation's active contact; later turns keep talking about it until
// another mention replaces it.
func (o *Orchestrator) Ask(ctx context.Context, conversationID string, userID uuid.UUID, creds []contractx.Credential, question string) (string, error) {
	conv, err := o.history.Load(ctx, conversationID)
	if err != nil {
		if !errors.Is(err, ErrConversationNotFound) {
			log.Warn().Err(err).Str("conversation_id", conversationID).Msg("conversation load failed, starting fresh")
		}
		conv = NewConversation(conversationID, userID, o.now())
	}

	if mention := ExtractMention(question); mention != "" {
		if contact := o.resolveMention(ctx, creds, mention); contact != nil {
			conv.Contact = contact
		}
	}

	var provider contractx.Provider
	if conv.Contact != nil {
		provider = conv.Contact.Provider
	}

	answer, err := o.assistant.Answer(ctx, question, conv.Contact, provider)
	if err != nil {
		return "", err
	}

	now := o.now()
	conv.Append(RoleUser, question, now)
	conv.Append(RoleAssistant, answer, now)
	if err := o.history.Save(ctx, conv); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("conversation save failed")
	}

	return answer, nil
}

// ActiveContact returns the contact pinned on a conversation, or nil.
func (o *Orchestrator) ActiveContact(ctx context.Context, conversationID string) *contractx.Contact {
	conv, err := o.history.Load(ctx, conversationID)
	if err != nil {
		return nil
	}
	return conv.Contact
}

// resolveMention searches all CRMs for the mentioned name and enriches
// the first hit with its notes and tasks. Any failure degrades to the
// bare search result or to no pin at all; a turn never dies on a lookup.
func (o *Orchestrator) resolveMention(ctx context.Context, creds []contractx.Credential, mention string) *contractx.Contact {
	results := o.search.SearchAll(ctx, creds, mention)
	if len(results) == 0 {
		return nil
	}
	first := results[0]

	cred, ok := credentialFor(creds, first.Provider)
	if !ok {
		return &first
	}
	client, err := o.clients.ClientFor(first.Provider)
	if err != nil {
		return &first
	}
	full, err := client.GetContactWithContext(ctx, cred, first.ID)
	if err != nil {
		log.Debug().Err(err).Str("contact_id", first.ID).Msg("contact context fetch failed, pinning bare contact")
		return &first
	}
	return full
}

// ExtractMention returns the first "@name" token in the text, without
// the @, or "" when there is none.
func ExtractMention(text string) string {
	m := mentionPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func credentialFor(creds []contractx.Credential, p contractx.Provider) (contractx.Credential, bool) {
	for _, c := range creds {
		if c.Provider == p {
			return c, true
		}
	}
	return contractx.Credential{}, false
}

type noopHistoryStore struct{}

func (noopHistoryStore) Load(context.Context, string) (*Conversation, error) {
	return nil, ErrConversationNotFound
}

func (noopHistoryStore) Save(context.Context, *Conversation) error {
	return nil
}

func (noopHistoryStore) Delete(context.Context, string) error {
	return nil
}
