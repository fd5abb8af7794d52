// Package hubspot implements the provider client capability set against
// the HubSpot CRM v3 REST API.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/socialscribe/scribe/crm/contract"
)

const (
	searchPageSize       = 10
	maxResponseSizeBytes = 2 << 20
)

// contactProperties are the HubSpot property names fetched for every
// contact read. HubSpot's native names already match the canonical ones.
var contactProperties = []string{
	"firstname", "lastname", "email", "phone", "mobilephone",
	"jobtitle", "company", "address", "city", "state", "zip", "country",
}

type Config struct {
	BaseURL      string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.hubapi.com"`
	ClientID     string        `envconfig:"CLIENT_ID" split_words:"true" required:"true"`
	ClientSecret string        `envconfig:"CLIENT_SECRET" split_words:"true" required:"true"`
	Timeout      time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
}

type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("hubspot base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid hubspot base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:      baseURL,
		clientID:     strings.TrimSpace(cfg.ClientID),
		clientSecret: strings.TrimSpace(cfg.ClientSecret),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

func (c *Client) Provider() contractx.Provider {
	return contractx.ProviderHubSpot
}

type searchRequest struct {
	Query      string   `json:"query"`
	Limit      int      `json:"limit"`
	Properties []string `json:"properties"`
}

type contactRecord struct {
	ID         string             `json:"id"`
	Properties map[string]*string `json:"properties"`
}

type searchResponse struct {
	Results []contactRecord `json:"results"`
}

func (c *Client) SearchContacts(ctx context.Context, cred contractx.Credential, query string) ([]contractx.Contact, error) {
	var resp searchResponse
	err := c.doJSON(ctx, cred, http.MethodPost, "/crm/v3/objects/contacts/search", searchRequest{
		Query:      query,
		Limit:      searchPageSize,
		Properties: contactProperties,
	}, &resp)
	if err != nil {
		return nil, err
	}

	contacts := make([]contractx.Contact, 0, len(resp.Results))
	for _, r := range resp.Results {
		contacts = append(contacts, normalizeContact(r))
	}
	return contacts, nil
}

func (c *Client) GetContact(ctx context.Context, cred contractx.Credential, id string) (*contractx.Contact, error) {
	path := "/crm/v3/objects/contacts/" + url.PathEscape(id) +
		"?properties=" + strings.Join(contactProperties, ",")

	var rec contactRecord
	if err := c.doJSON(ctx, cred, http.MethodGet, path, nil, &rec); err != nil {
		var apiErr *contractx.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, contractx.ErrNotFound
		}
		return nil, err
	}

	contact := normalizeContact(rec)
	return &contact, nil
}

// GetContactWithContext loads the contact, then notes and tasks
// independently. A failing sub-fetch leaves that list empty instead of
// failing the call.
func (c *Client) GetContactWithContext(ctx context.Context, cred contractx.Credential, id string) (*contractx.Contact, error) {
	contact, err := c.GetContact(ctx, cred, id)
	if err != nil {
		return nil, err
	}

	notes, err := c.fetchNotes(ctx, cred, id)
	if err != nil {
		log.Debug().Err(err).Str("contact_id", id).Msg("hubspot notes fetch degraded to empty")
		notes = []contractx.Note{}
	}
	contact.Notes = notes

	tasks, err := c.fetchTasks(ctx, cred, id)
	if err != nil {
		log.Debug().Err(err).Str("contact_id", id).Msg("hubspot tasks fetch degraded to empty")
		tasks = []contractx.Task{}
	}
	contact.Tasks = tasks

	return contact, nil
}

func (c *Client) UpdateContact(ctx context.Context, cred contractx.Credential, id string, updates map[string]string) (*contractx.Contact, error) {
	properties := make(map[string]string, len(updates))
	for field, value := range updates {
		properties[nativeFieldName(field)] = value
	}

	var rec contactRecord
	err := c.doJSON(ctx, cred, http.MethodPatch, "/crm/v3/objects/contacts/"+url.PathEscape(id), map[string]any{
		"properties": properties,
	}, &rec)
	if err != nil {
		return nil, err
	}

	if rec.ID == "" {
		// PATCH responded without a usable body; read the contact back.
		return c.GetContact(ctx, cred, id)
	}
	contact := normalizeContact(rec)
	return &contact, nil
}

// nativeFieldName maps a canonical field name to HubSpot's property
// name. HubSpot's contact properties use the canonical names verbatim.
func nativeFieldName(field string) string {
	return field
}

type associationsResponse struct {
	Results []struct {
		ToObjectID int64 `json:"toObjectId"`
	} `json:"results"`
}

type batchReadRequest struct {
	Inputs     []batchReadInput `json:"inputs"`
	Properties []string         `json:"properties"`
}

type batchReadInput struct {
	ID string `json:"id"`
}

type batchReadResponse struct {
	Results []contactRecord `json:"results"`
}

func (c *Client) fetchNotes(ctx context.Context, cred contractx.Credential, contactID string) ([]contractx.Note, error) {
	records, err := c.fetchAssociated(ctx, cred, contactID, "notes", []string{"hs_note_body", "hs_timestamp"})
	if err != nil {
		return nil, err
	}

	notes := make([]contractx.Note, 0, len(records))
	for _, r := range records {
		notes = append(notes, contractx.Note{
			ID:        r.ID,
			Body:      propValue(r.Properties, "hs_note_body"),
			CreatedAt: parseTimestamp(propValue(r.Properties, "hs_timestamp")),
		})
	}
	return notes, nil
}

func (c *Client) fetchTasks(ctx context.Context, cred contractx.Credential, contactID string) ([]contractx.Task, error) {
	records, err := c.fetchAssociated(ctx, cred, contactID, "tasks", []string{"hs_task_body", "hs_task_status", "hs_timestamp", "hs_createdate"})
	if err != nil {
		return nil, err
	}

	tasks := make([]contractx.Task, 0, len(records))
	for _, r := range records {
		task := contractx.Task{
			ID:          r.ID,
			Description: propValue(r.Properties, "hs_task_body"),
			Status:      propValue(r.Properties, "hs_task_status"),
			CreatedAt:   parseTimestamp(propValue(r.Properties, "hs_createdate")),
		}
		// hs_timestamp on a task is its due date.
		if due := parseTimestamp(propValue(r.Properties, "hs_timestamp")); !due.IsZero() {
			task.DueDate = &due
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// fetchAssociated walks the contact's associations of one object type,
// then batch-reads the associated records with the given properties.
func (c *Client) fetchAssociated(ctx context.Context, cred contractx.Credential, contactID, objectType string, properties []string) ([]contactRecord, error) {
	var assoc associationsResponse
	path := "/crm/v4/objects/contacts/" + url.PathEscape(contactID) + "/associations/" + objectType
	if err := c.doJSON(ctx, cred, http.MethodGet, path, nil, &assoc); err != nil {
		return nil, err
	}
	if len(assoc.Results) == 0 {
		return nil, nil
	}

	inputs := make([]batchReadInput, 0, len(assoc.Results))
	for _, r := range assoc.Results {
		inputs = append(inputs, batchReadInput{ID: strconv.FormatInt(r.ToObjectID, 10)})
	}

	var batch batchReadResponse
	err := c.doJSON(ctx, cred, http.MethodPost, "/crm/v3/objects/"+objectType+"/batch/read", batchReadRequest{
		Inputs:     inputs,
		Properties: properties,
	}, &batch)
	if err != nil {
		return nil, err
	}
	return batch.Results, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (c *Client) RefreshToken(ctx context.Context, cred contractx.Credential) (contractx.Credential, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {cred.RefreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/v1/token", strings.NewReader(form.Encode()))
	if err != nil {
		return contractx.Credential{}, fmt.Errorf("build hubspot token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return contractx.Credential{}, &contractx.TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return contractx.Credential{}, fmt.Errorf("read hubspot token response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return contractx.Credential{}, &contractx.APIError{Status: resp.StatusCode, Body: string(raw)}
	}

	var tok tokenResponse
	if err := json.Unmarshal(raw, &tok); err != nil {
		return contractx.Credential{}, fmt.Errorf("decode hubspot token response: %w", err)
	}
	if tok.AccessToken == "" {
		return contractx.Credential{}, errors.New("hubspot token response missing access_token")
	}

	refreshed := cred
	refreshed.AccessToken = tok.AccessToken
	refreshed.RefreshToken = tok.RefreshToken
	refreshed.ExpiresAt = nil
	if tok.ExpiresIn > 0 {
		expiry := time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
		refreshed.ExpiresAt = &expiry
	}
	return refreshed, nil
}

// IsAuthError recognizes HubSpot's expired/invalid-token responses: a
// plain 401, or a 400 whose body carries a token-expiry signature.
func (c *Client) IsAuthError(err error) bool {
	var apiErr *contractx.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == http.StatusUnauthorized {
		return true
	}
	body := strings.ToLower(apiErr.Body)
	return strings.Contains(body, "expired") ||
		strings.Contains(body, "unauthorized") ||
		strings.Contains(body, "invalid_token")
}

func (c *Client) doJSON(ctx context.Context, cred contractx.Credential, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal hubspot request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build hubspot request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &contractx.TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("read hubspot response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &contractx.APIError{Status: resp.StatusCode, Body: string(raw)}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode hubspot response: %w", err)
	}
	return nil
}

func normalizeContact(rec contactRecord) contractx.Contact {
	props := rec.Properties
	return contractx.Contact{
		ID:          rec.ID,
		Provider:    contractx.ProviderHubSpot,
		FirstName:   props["firstname"],
		LastName:    props["lastname"],
		Email:       props["email"],
		Phone:       props["phone"],
		MobilePhone: props["mobilephone"],
		JobTitle:    props["jobtitle"],
		Company:     props["company"],
		Address:     props["address"],
		City:        props["city"],
		State:       props["state"],
		Zip:         props["zip"],
		Country:     props["country"],
	}
}

func propValue(props map[string]*string, name string) string {
	if v := props[name]; v != nil {
		return *v
	}
	return ""
}

// parseTimestamp accepts HubSpot's two timestamp encodings: RFC 3339 and
// epoch milliseconds as a string.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}
