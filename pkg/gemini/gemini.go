// Package gemini implements the assistant boundary on Gemini's
// OpenAI-compatible endpoint: meeting-transcript field extraction and
// contact Q&A. The rest of the system treats both as opaque functions.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	contractx "github.com/socialscribe/scribe/crm/contract"
	fieldconfigx "github.com/socialscribe/scribe/crm/fieldconfig"
)

type Config struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true" default:"https://generativelanguage.googleapis.com/v1beta/openai"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model   string        `envconfig:"MODEL" split_words:"true" default:"gemini-2.0-flash"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

type Assistant struct {
	client *openaisdk.Client
	model  string
}

var _ contractx.Assistant = (*Assistant)(nil)

func New(cfg Config) (*Assistant, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	client := openaisdk.NewClient(opts...)
	return &Assistant{
		client: &client,
		model:  strings.TrimSpace(cfg.Model),
	}, nil
}

func MustNew(cfg Config) *Assistant {
	a, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return a
}

// ExtractFields asks the model for (field, value) pairs mentioned in the
// transcript, restricted to the provider's extractable fields. The model
// sees no current CRM values; diffing happens downstream.
func (a *Assistant) ExtractFields(ctx context.Context, transcript string, provider contractx.Provider) ([]contractx.ExtractedField, error) {
	system := extractionPrompt(provider)

	resp, err := a.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(a.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(system),
			openaisdk.UserMessage(transcript),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini extract fields: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("gemini extract fields: empty response")
	}

	return parseExtractedFields(resp.Choices[0].Message.Content)
}

// Answer replies to a CRM question, grounded in the contact's data when
// one is selected.
func (a *Assistant) Answer(ctx context.Context, question string, contact *contractx.Contact, provider contractx.Provider) (string, error) {
	system, err := answerPrompt(contact, provider)
	if err != nil {
		return "", err
	}

	resp, err := a.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(a.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(system),
			openaisdk.UserMessage(question),
		},
	})
	if err != nil {
		return "", fmt.Errorf("gemini answer: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("gemini answer: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func answerPrompt(contact *contractx.Contact, provider contractx.Provider) (string, error) {
	system := "You are a CRM assistant. Answer the user's question about their contacts concisely."
	if contact == nil {
		return system + "\nNo contact is selected; answer in general terms and suggest tagging a contact with @ if specifics are needed.", nil
	}

	contactJSON, err := json.Marshal(contact)
	if err != nil {
		return "", fmt.Errorf("marshal contact for prompt: %w", err)
	}
	name := contact.DisplayName()
	if name == "" {
		name = "an unnamed contact"
	}
	return system + fmt.Sprintf(
		"\nThe user is asking about %s, a %s contact:\n%s",
		name, fieldconfigx.DisplayName(provider), contactJSON,
	), nil
}

func extractionPrompt(provider contractx.Provider) string {
	fields := fieldconfigx.ExtractableFields(provider)
	return fmt.Sprintf(
		`You extract CRM field updates from meeting transcripts.
Allowed fields for %s: %s.
Return ONLY a JSON array, no prose. Each element:
{"field": "<allowed field>", "value": "<new value>", "context": "<short quote from the transcript>", "timestamp": "<MM:SS or empty>"}
Return [] when the transcript mentions no field values.`,
		fieldconfigx.DisplayName(provider), strings.Join(fields, ", "),
	)
}

// parseExtractedFields tolerates the model wrapping its JSON in a
// markdown code fence.
func parseExtractedFields(content string) ([]contractx.ExtractedField, error) {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var fields []contractx.ExtractedField
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return nil, fmt.Errorf("decode extracted fields: %w", err)
	}

	out := fields[:0]
	for _, f := range fields {
		if strings.TrimSpace(f.Field) == "" {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}
