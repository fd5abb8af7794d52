// Package salesforce implements the provider client capability set
// against the Salesforce REST API, SOQL included.
package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/socialscribe/scribe/crm/contract"
)

const (
	apiVersion           = "v60.0"
	searchPageSize       = 10
	maxResponseSizeBytes = 2 << 20
)

// nativeFields maps canonical field names to Salesforce Contact fields.
var nativeFields = map[string]string{
	"firstname":   "FirstName",
	"lastname":    "LastName",
	"email":       "Email",
	"phone":       "Phone",
	"mobilephone": "MobilePhone",
	"jobtitle":    "Title",
	"department":  "Department",
	"address":     "MailingStreet",
	"city":        "MailingCity",
	"state":       "MailingState",
	"zip":         "MailingPostalCode",
	"country":     "MailingCountry",
}

// authErrorCodes are the session-death codes Salesforce returns in its
// error array. Any of them means the access token is gone.
var authErrorCodes = map[string]bool{
	"INVALID_SESSION_ID":  true,
	"SESSION_EXPIRED":     true,
	"INVALID_AUTH_HEADER": true,
}

type Config struct {
	// LoginURL hosts the token endpoint; data calls go to the instance URL
	// carried on each credential.
	LoginURL     string        `envconfig:"LOGIN_URL" split_words:"true" default:"https://login.salesforce.com"`
	ClientID     string        `envconfig:"CLIENT_ID" split_words:"true" required:"true"`
	ClientSecret string        `envconfig:"CLIENT_SECRET" split_words:"true" required:"true"`
	Timeout      time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
}

type Client struct {
	loginURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	loginURL := strings.TrimRight(strings.TrimSpace(cfg.LoginURL), "/")
	if loginURL == "" {
		return nil, errors.New("salesforce login url is required")
	}
	if _, err := url.ParseRequestURI(loginURL); err != nil {
		return nil, fmt.Errorf("invalid salesforce login url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		loginURL:     loginURL,
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
	return contractx.ProviderSalesforce
}

type contactRecord struct {
	ID          string  `json:"Id"`
	FirstName   *string `json:"FirstName"`
	LastName    *string `json:"LastName"`
	Email       *string `json:"Email"`
	Phone       *string `json:"Phone"`
	MobilePhone *string `json:"MobilePhone"`
	Title       *string `json:"Title"`
	Department  *string `json:"Department"`
	Street      *string `json:"MailingStreet"`
	City        *string `json:"MailingCity"`
	State       *string `json:"MailingState"`
	PostalCode  *string `json:"MailingPostalCode"`
	Country     *string `json:"MailingCountry"`
	PhotoURL    *string `json:"PhotoUrl"`
}

type queryResponse[T any] struct {
	Records []T `json:"records"`
}

func (c *Client) SearchContacts(ctx context.Context, cred contractx.Credential, query string) ([]contractx.Contact, error) {
	escaped := EscapeSOQL(query)
	soql := fmt.Sprintf(
		"SELECT Id, FirstName, LastName, Email, Phone, MobilePhone, Title, Department, "+
			"MailingStreet, MailingCity, MailingState, MailingPostalCode, MailingCountry, PhotoUrl "+
			"FROM Contact WHERE Name LIKE '%%%s%%' OR Email LIKE '%%%s%%' LIMIT %d",
		escaped, escaped, searchPageSize,
	)

	var resp queryResponse[contactRecord]
	if err := c.query(ctx, cred, soql, &resp); err != nil {
		return nil, err
	}

	contacts := make([]contractx.Contact, 0, len(resp.Records))
	for _, r := range resp.Records {
		contacts = append(contacts, normalizeContact(r))
	}
	return contacts, nil
}

func (c *Client) GetContact(ctx context.Context, cred contractx.Credential, id string) (*contractx.Contact, error) {
	var rec contactRecord
	err := c.doJSON(ctx, cred, http.MethodGet, "/services/data/"+apiVersion+"/sobjects/Contact/"+url.PathEscape(id), nil, &rec)
	if err != nil {
		var apiErr *contractx.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, contractx.ErrNotFound
		}
		return nil, err
	}

	contact := normalizeContact(rec)
	return &contact, nil
}

func (c *Client) GetContactWithContext(ctx context.Context, cred contractx.Credential, id string) (*contractx.Contact, error) {
	contact, err := c.GetContact(ctx, cred, id)
	if err != nil {
		return nil, err
	}

	notes, err := c.fetchNotes(ctx, cred, id)
	if err != nil {
		log.Debug().Err(err).Str("contact_id", id).Msg("salesforce notes fetch degraded to empty")
		notes = []contractx.Note{}
	}
	contact.Notes = notes

	tasks, err := c.fetchTasks(ctx, cred, id)
	if err != nil {
		log.Debug().Err(err).Str("contact_id", id).Msg("salesforce tasks fetch degraded to empty")
		tasks = []contractx.Task{}
	}
	contact.Tasks = tasks

	return contact, nil
}

// UpdateContact PATCHes the record and reads it back; Salesforce answers
// a successful update with 204 and no body.
func (c *Client) UpdateContact(ctx context.Context, cred contractx.Credential, id string, updates map[string]string) (*contractx.Contact, error) {
	payload := make(map[string]string, len(updates))
	for field, value := range updates {
		native, ok := nativeFields[field]
		if !ok {
			native = field
		}
		payload[native] = value
	}

	err := c.doJSON(ctx, cred, http.MethodPatch, "/services/data/"+apiVersion+"/sobjects/Contact/"+url.PathEscape(id), payload, nil)
	if err != nil {
		return nil, err
	}
	return c.GetContact(ctx, cred, id)
}

type noteRecord struct {
	ID          string  `json:"Id"`
	Body        *string `json:"Body"`
	CreatedDate *string `json:"CreatedDate"`
}

func (c *Client) fetchNotes(ctx context.Context, cred contractx.Credential, contactID string) ([]contractx.Note, error) {
	soql := fmt.Sprintf(
		"SELECT Id, Body, CreatedDate FROM Note WHERE ParentId = '%s' ORDER BY CreatedDate DESC",
		EscapeSOQL(contactID),
	)

	var resp queryResponse[noteRecord]
	if err := c.query(ctx, cred, soql, &resp); err != nil {
		return nil, err
	}

	notes := make([]contractx.Note, 0, len(resp.Records))
	for _, r := range resp.Records {
		notes = append(notes, contractx.Note{
			ID:        r.ID,
			Body:      strValue(r.Body),
			CreatedAt: parseDate(r.CreatedDate),
		})
	}
	return notes, nil
}

type taskRecord struct {
	ID           string  `json:"Id"`
	Subject      *string `json:"Subject"`
	Description  *string `json:"Description"`
	Status       *string `json:"Status"`
	ActivityDate *string `json:"ActivityDate"`
	CreatedDate  *string `json:"CreatedDate"`
}

func (c *Client) fetchTasks(ctx context.Context, cred contractx.Credential, contactID string) ([]contractx.Task, error) {
	soql := fmt.Sprintf(
		"SELECT Id, Subject, Description, Status, ActivityDate, CreatedDate FROM Task WHERE WhoId = '%s' ORDER BY CreatedDate DESC",
		EscapeSOQL(contactID),
	)

	var resp queryResponse[taskRecord]
	if err := c.query(ctx, cred, soql, &resp); err != nil {
		return nil, err
	}

	tasks := make([]contractx.Task, 0, len(resp.Records))
	for _, r := range resp.Records {
		description := strValue(r.Description)
		if description == "" {
			description = strValue(r.Subject)
		}
		task := contractx.Task{
			ID:          r.ID,
			Description: description,
			Status:      strValue(r.Status),
			CreatedAt:   parseDate(r.CreatedDate),
		}
		if due := parseDate(r.ActivityDate); !due.IsZero() {
			task.DueDate = &due
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	InstanceURL string `json:"instance_url"`
}

// RefreshToken exchanges the refresh token at the login host. Salesforce
// neither rotates the refresh token nor asserts an expiry here; the
// guardian fills both gaps.
func (c *Client) RefreshToken(ctx context.Context, cred contractx.Credential) (contractx.Credential, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {cred.RefreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL+"/services/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return contractx.Credential{}, fmt.Errorf("build salesforce token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return contractx.Credential{}, &contractx.TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return contractx.Credential{}, fmt.Errorf("read salesforce token response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return contractx.Credential{}, &contractx.APIError{Status: resp.StatusCode, Body: string(raw)}
	}

	var tok tokenResponse
	if err := json.Unmarshal(raw, &tok); err != nil {
		return contractx.Credential{}, fmt.Errorf("decode salesforce token response: %w", err)
	}
	if tok.AccessToken == "" {
		return contractx.Credential{}, errors.New("salesforce token response missing access_token")
	}

	refreshed := cred
	refreshed.AccessToken = tok.AccessToken
	refreshed.RefreshToken = ""
	refreshed.ExpiresAt = nil
	if tok.InstanceURL != "" {
		refreshed.InstanceURL = strings.TrimRight(tok.InstanceURL, "/")
	}
	return refreshed, nil
}

type apiErrorEntry struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// IsAuthError recognizes a dead session: a plain 401, or an error array
// whose errorCode is one of the session-death codes.
func (c *Client) IsAuthError(err error) bool {
	var apiErr *contractx.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == http.StatusUnauthorized {
		return true
	}

	var entries []apiErrorEntry
	if jsonErr := json.Unmarshal([]byte(apiErr.Body), &entries); jsonErr == nil {
		for _, e := range entries {
			if authErrorCodes[e.ErrorCode] {
				return true
			}
		}
		return false
	}
	for code := range authErrorCodes {
		if strings.Contains(apiErr.Body, code) {
			return true
		}
	}
	return false
}

// EscapeSOQL neutralizes the two characters that break out of a SOQL
// string literal: backslash first, then the single quote.
func EscapeSOQL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func (c *Client) query(ctx context.Context, cred contractx.Credential, soql string, out any) error {
	path := "/services/data/" + apiVersion + "/query?q=" + url.QueryEscape(soql)
	return c.doJSON(ctx, cred, http.MethodGet, path, nil, out)
}

func (c *Client) doJSON(ctx context.Context, cred contractx.Credential, method, path string, body, out any) error {
	instance := strings.TrimRight(strings.TrimSpace(cred.InstanceURL), "/")
	if instance == "" {
		return errors.New("salesforce credential has no instance url")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal salesforce request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, instance+path, reader)
	if err != nil {
		return fmt.Errorf("build salesforce request: %w", err)
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
		return fmt.Errorf("read salesforce response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &contractx.APIError{Status: resp.StatusCode, Body: string(raw)}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode salesforce response: %w", err)
	}
	return nil
}

func normalizeContact(rec contactRecord) contractx.Contact {
	return contractx.Contact{
		ID:          rec.ID,
		Provider:    contractx.ProviderSalesforce,
		FirstName:   rec.FirstName,
		LastName:    rec.LastName,
		Email:       rec.Email,
		Phone:       rec.Phone,
		MobilePhone: rec.MobilePhone,
		JobTitle:    rec.Title,
		Department:  rec.Department,
		Address:     rec.Street,
		City:        rec.City,
		State:       rec.State,
		Zip:         rec.PostalCode,
		Country:     rec.Country,
		PhotoURL:    rec.PhotoURL,
	}
}

func strValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// parseDate accepts Salesforce's two date encodings: full timestamps
// ("2024-01-15T10:30:00.000+0000") and bare dates on Task.ActivityDate.
func parseDate(s *string) time.Time {
	if s == nil || *s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02T15:04:05.000-0700", time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, *s); err == nil {
			return t
		}
	}
	return time.Time{}
}
