package salesforce

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	contractx "github.com/socialscribe/scribe/crm/contract"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, contractx.Credential) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		LoginURL:     server.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	cred := contractx.Credential{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		Provider:     contractx.ProviderSalesforce,
		InstanceURL:  server.URL,
	}
	return client, cred
}

func TestEscapeSOQL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"john", "john"},
		{"o'brien", `o\'brien`},
		{`back\slash`, `back\\slash`},
		{`'; DELETE FROM Contact; --`, `\'; DELETE FROM Contact; --`},
	}
	for _, tc := range cases {
		if got := EscapeSOQL(tc.in); got != tc.want {
			t.Fatalf("EscapeSOQL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSearchContactsEscapesQueryIntoSOQL(t *testing.T) {
	t.Parallel()

	var gotSOQL string
	client, cred := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/services/data/"+apiVersion+"/query") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		gotSOQL = r.URL.Query().Get("q")
		fmt.Fprint(w, `{"records":[{"Id":"s1","FirstName":"Jane","LastName":"O'Brien","Email":"jane@sf.com","Department":"Engineering"}]}`)
	}))

	contacts, err := client.SearchContacts(context.Background(), cred, "o'brien")
	if err != nil {
		t.Fatalf("SearchContacts() error = %v", err)
	}
	if !strings.Contains(gotSOQL, `\'brien`) {
		t.Fatalf("soql = %q, want the quote escaped", gotSOQL)
	}
	if !strings.Contains(gotSOQL, fmt.Sprintf("LIMIT %d", searchPageSize)) {
		t.Fatalf("soql = %q, want the page-size limit", gotSOQL)
	}
	if len(contacts) != 1 {
		t.Fatalf("got %d contacts, want 1", len(contacts))
	}
	c := contacts[0]
	if c.Provider != contractx.ProviderSalesforce {
		t.Fatalf("provider tag = %q, want salesforce", c.Provider)
	}
	if c.Department == nil || *c.Department != "Engineering" {
		t.Fatalf("department = %v, want Engineering", c.Department)
	}
	if c.Company != nil {
		t.Fatalf("company = %v, want nil on a salesforce contact", c.Company)
	}
}

func TestGetContactNotFound(t *testing.T) {
	t.Parallel()

	client, cred := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `[{"errorCode":"NOT_FOUND","message":"The requested resource does not exist"}]`)
	}))

	_, err := client.GetContact(context.Background(), cred, "missing")
	if !errors.Is(err, contractx.ErrNotFound) {
		t.Fatalf("GetContact() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateContactMapsFieldsAndRefetches(t *testing.T) {
	t.Parallel()

	var patchBody string
	var gets int
	client, cred := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			body, err := io.ReadAll(r.Body)
			if err != nil {
				t.Fatal(err)
			}
			patchBody = string(body)
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			gets++
			fmt.Fprint(w, `{"Id":"s1","Phone":"555-9999","Title":"VP Sales"}`)
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	}))

	contact, err := client.UpdateContact(context.Background(), cred, "s1", map[string]string{
		"phone":    "555-9999",
		"jobtitle": "VP Sales",
	})
	if err != nil {
		t.Fatalf("UpdateContact() error = %v", err)
	}
	if !strings.Contains(patchBody, `"Phone"`) || !strings.Contains(patchBody, `"Title"`) {
		t.Fatalf("patch body = %s, want native field names Phone and Title", patchBody)
	}
	if gets != 1 {
		t.Fatalf("re-fetch GETs = %d, want 1 after a bodyless 204", gets)
	}
	if contact.JobTitle == nil || *contact.JobTitle != "VP Sales" {
		t.Fatalf("jobtitle = %v, want VP Sales", contact.JobTitle)
	}
}

func TestGetContactWithContextLoadsNotesAndTasks(t *testing.T) {
	t.Parallel()

	client, cred := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/sobjects/Contact/") {
			fmt.Fprint(w, `{"Id":"s1","FirstName":"Jane"}`)
			return
		}
		soql := r.URL.Query().Get("q")
		switch {
		case strings.Contains(soql, "FROM Note"):
			fmt.Fprint(w, `{"records":[{"Id":"n1","Body":"Spoke about renewal","CreatedDate":"2024-01-15T10:30:00.000+0000"}]}`)
		case strings.Contains(soql, "FROM Task"):
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `[{"errorCode":"UNKNOWN_EXCEPTION","message":"boom"}]`)
		default:
			t.Fatalf("unexpected soql %q", soql)
		}
	}))

	contact, err := client.GetContactWithContext(context.Background(), cred, "s1")
	if err != nil {
		t.Fatalf("GetContactWithContext() error = %v", err)
	}
	if len(contact.Notes) != 1 || contact.Notes[0].Body != "Spoke about renewal" {
		t.Fatalf("notes = %+v, want the one fetched note", contact.Notes)
	}
	if len(contact.Tasks) != 0 {
		t.Fatalf("tasks = %+v, want empty after a failed sub-fetch", contact.Tasks)
	}
}

func TestRefreshTokenKeepsNothingItWasNotGiven(t *testing.T) {
	t.Parallel()

	client, cred := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/services/oauth2/token" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"access_token":"new-access","instance_url":"https://na1.salesforce.com/"}`)
	}))

	refreshed, err := client.RefreshToken(context.Background(), cred)
	if err != nil {
		t.Fatalf("RefreshToken() error = %v", err)
	}
	if refreshed.AccessToken != "new-access" {
		t.Fatalf("access token = %q, want new-access", refreshed.AccessToken)
	}
	// Salesforce rotates neither; the guardian fills both in.
	if refreshed.RefreshToken != "" {
		t.Fatalf("refresh token = %q, want empty for the guardian to retain the old one", refreshed.RefreshToken)
	}
	if refreshed.ExpiresAt != nil {
		t.Fatalf("expiry = %v, want nil for the guardian's fallback TTL", refreshed.ExpiresAt)
	}
	if refreshed.InstanceURL != "https://na1.salesforce.com" {
		t.Fatalf("instance url = %q, want the trimmed new one", refreshed.InstanceURL)
	}
}

func TestMissingInstanceURL(t *testing.T) {
	t.Parallel()

	client, cred := newTestClient(t, http.NotFoundHandler())
	cred.InstanceURL = ""

	_, err := client.GetContact(context.Background(), cred, "s1")
	if err == nil || !strings.Contains(err.Error(), "instance url") {
		t.Fatalf("GetContact() error = %v, want a missing-instance-url error", err)
	}
}

func TestIsAuthError(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.NotFoundHandler())

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"401", &contractx.APIError{Status: 401, Body: "unauthorized"}, true},
		{"invalid session", &contractx.APIError{Status: 400, Body: `[{"errorCode":"INVALID_SESSION_ID","message":"Session expired or invalid"}]`}, true},
		{"session expired", &contractx.APIError{Status: 403, Body: `[{"errorCode":"SESSION_EXPIRED","message":"expired"}]`}, true},
		{"other code", &contractx.APIError{Status: 400, Body: `[{"errorCode":"MALFORMED_QUERY","message":"bad soql"}]`}, false},
		{"transport", &contractx.TransportError{Err: errors.New("timeout")}, false},
	}
	for _, tc := range cases {
		if got := client.IsAuthError(tc.err); got != tc.want {
			t.Fatalf("IsAuthError(%s) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
