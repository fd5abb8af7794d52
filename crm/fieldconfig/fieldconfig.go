// Package fieldconfig is the static per-provider field metadata table:
// which canonical fields the AI may extract for a provider, and the human
// labels the UI shows for them. Adding a provider is one new table entry;
// existing entries are never edited.
package fieldconfig

import (
	contractx "github.com/socialscribe/scribe/crm/contract"
)

type entry struct {
	provider    contractx.Provider
	displayName string
	fields      []string
	labels      map[string]string
}

// entries is the one place a provider is declared; the lookup table and
// the stable provider order both derive from it.
var entries = []entry{
	{
		provider:    contractx.ProviderHubSpot,
		displayName: "HubSpot",
		fields: []string{
			"firstname", "lastname", "email", "phone", "mobilephone",
			"jobtitle", "company", "address", "city", "state", "zip", "country",
		},
		labels: map[string]string{
			"firstname":   "First Name",
			"lastname":    "Last Name",
			"email":       "Email",
			"phone":       "Phone",
			"mobilephone": "Mobile Phone",
			"jobtitle":    "Job Title",
			"company":     "Company",
			"address":     "Address",
			"city":        "City",
			"state":       "State",
			"zip":         "ZIP Code",
			"country":     "Country",
		},
	},
	{
		provider:    contractx.ProviderSalesforce,
		displayName: "Salesforce",
		fields: []string{
			"firstname", "lastname", "email", "phone", "mobilephone",
			"jobtitle", "department", "address", "city", "state", "zip", "country",
		},
		labels: map[string]string{
			"firstname":   "First Name",
			"lastname":    "Last Name",
			"email":       "Email",
			"phone":       "Phone",
			"mobilephone": "Mobile Phone",
			"jobtitle":    "Job Title",
			"department":  "Department",
			"address":     "Mailing Street",
			"city":        "Mailing City",
			"state":       "Mailing State",
			"zip":         "Mailing Postal Code",
			"country":     "Mailing Country",
		},
	},
}

var table = func() map[contractx.Provider]entry {
	m := make(map[contractx.Provider]entry, len(entries))
	for _, e := range entries {
		m[e.provider] = e
	}
	return m
}()

// ExtractableFields returns the ordered canonical field names the AI may
// propose for this provider. Nil for an unknown provider.
func ExtractableFields(provider contractx.Provider) []string {
	e, ok := table[provider]
	if !ok {
		return nil
	}
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// FieldLabels returns a copy of the field -> label map for this provider.
func FieldLabels(provider contractx.Provider) map[string]string {
	e, ok := table[provider]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(e.labels))
	for k, v := range e.labels {
		out[k] = v
	}
	return out
}

// FieldLabel returns the display label for a field, falling back to the
// raw field name when the field (or provider) is unregistered. Registry
// absence restricts display only, never diffing.
func FieldLabel(provider contractx.Provider, field string) string {
	if e, ok := table[provider]; ok {
		if label, ok := e.labels[field]; ok {
			return label
		}
	}
	return field
}

// DisplayName returns the human product name for a provider, or the raw
// provider tag when unregistered.
func DisplayName(provider contractx.Provider) string {
	if e, ok := table[provider]; ok {
		return e.displayName
	}
	return string(provider)
}

// SupportedProviders returns the providers in declaration order,
// regardless of map iteration.
func SupportedProviders() []contractx.Provider {
	out := make([]contractx.Provider, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.provider)
	}
	return out
}

func Supported(provider contractx.Provider) bool {
	_, ok := table[provider]
	return ok
}
