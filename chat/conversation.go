package chat

import (
	"time"

	"github.com/google/uuid"

	contractx "github.com/socialscribe/scribe/crm/contract"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is one user's chat transcript plus the contact currently
// pinned by an @mention, if any.
type Conversation struct {
	ID       string             `json:"id"`
	UserID   uuid.UUID          `json:"user_id"`
	Messages []Message          `json:"messages,omitempty"`
	Contact  *contractx.Contact `json:"contact,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewConversation(id string, userID uuid.UUID, now time.Time) *Conversation {
	return &Conversation{
		ID:        id,
		UserID:    userID,
		UpdatedAt: now.UTC(),
	}
}

func (c *Conversation) Append(role Role, content string, now time.Time) {
	c.Messages = append(c.Messages, Message{
		Role:      role,
		Content:   content,
		CreatedAt: now.UTC(),
	})
	c.UpdatedAt = now.UTC()
}
