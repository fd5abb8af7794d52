package contract

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Provider string

const (
	ProviderHubSpot    Provider = "hubspot"
	ProviderSalesforce Provider = "salesforce"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderHubSpot, ProviderSalesforce:
		return true
	default:
		return false
	}
}

// Credential is one user's OAuth grant for one CRM. There is at most one
// per (user, provider) pair; re-auth upserts in place. The token guardian
// is the only component that mutates it after creation.
type Credential struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Provider     Provider   `json:"provider"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	// InstanceURL is the provider instance identifier, e.g. the Salesforce
	// instance URL the tokens are scoped to. Empty for providers with a
	// single API host.
	InstanceURL string `json:"instance_url,omitempty"`
}

// Contact is the normalized, provider-agnostic contact shape every
// provider client produces. Optional fields are pointers so that a field
// the provider never returned stays nil and is never confused with an
// empty string the provider actually holds.
type Contact struct {
	ID          string   `json:"id"`
	Provider    Provider `json:"crm_provider"`
	FirstName   *string  `json:"firstname,omitempty"`
	LastName    *string  `json:"lastname,omitempty"`
	Email       *string  `json:"email,omitempty"`
	Phone       *string  `json:"phone,omitempty"`
	MobilePhone *string  `json:"mobilephone,omitempty"`
	JobTitle    *string  `json:"jobtitle,omitempty"`
	Company     *string  `json:"company,omitempty"`    // HubSpot only
	Department  *string  `json:"department,omitempty"` // Salesforce only
	Address     *string  `json:"address,omitempty"`
	City        *string  `json:"city,omitempty"`
	State       *string  `json:"state,omitempty"`
	Zip         *string  `json:"zip,omitempty"`
	Country     *string  `json:"country,omitempty"`
	PhotoURL    *string  `json:"photo_url,omitempty"`
	Notes       []Note   `json:"notes,omitempty"`
	Tasks       []Task   `json:"tasks,omitempty"`
}

// DisplayName joins first and last name, falling back to the email
// address when both are absent.
func (c *Contact) DisplayName() string {
	if c == nil {
		return ""
	}
	name := strings.TrimSpace(deref(c.FirstName) + " " + deref(c.LastName))
	if name != "" {
		return name
	}
	return deref(c.Email)
}

// Field returns the value of a canonical field by name, or nil when the
// field is unset or the name is unknown. Unknown names are not an error;
// AI extraction may propose fields a provider never carries.
func (c *Contact) Field(name string) *string {
	if c == nil {
		return nil
	}
	switch name {
	case "firstname":
		return c.FirstName
	case "lastname":
		return c.LastName
	case "email":
		return c.Email
	case "phone":
		return c.Phone
	case "mobilephone":
		return c.MobilePhone
	case "jobtitle":
		return c.JobTitle
	case "company":
		return c.Company
	case "department":
		return c.Department
	case "address":
		return c.Address
	case "city":
		return c.City
	case "state":
		return c.State
	case "zip":
		return c.Zip
	case "country":
		return c.Country
	default:
		return nil
	}
}

type Note struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type Task struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      string     `json:"status,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ExtractedField is one raw (field, value) pair the AI pulled out of a
// meeting transcript. It carries no knowledge of the CRM's current state.
type ExtractedField struct {
	Field     string `json:"field"`
	Value     string `json:"value"`
	Context   string `json:"context,omitempty"`
	Timestamp string `json:"timestamp,omitempty"` // "MM:SS" into the recording
}

// Suggestion is one proposed field change, diffed against live CRM state.
type Suggestion struct {
	Field        string  `json:"field"`
	Label        string  `json:"label"`
	CurrentValue *string `json:"current_value"`
	NewValue     string  `json:"new_value"`
	Context      string  `json:"context,omitempty"`
	Timestamp    string  `json:"timestamp,omitempty"`
	Apply        bool    `json:"apply"`
	HasChange    bool    `json:"has_change"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr is a convenience for building Contact literals.
func StringPtr(s string) *string {
	return &s
}
