// Package provider holds the static provider catalog: for every provider id,
// which request fields exist, which of them the user must supply, and how to
// run OAuth2 against the provider's endpoints. The catalog is immutable after
// load.
package provider

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// ID identifies a storage provider.
type ID string

// Known provider ids.
const (
	HardDrive   ID = "harddrive"
	GoogleDrive ID = "googledrive"
	Gmail       ID = "gmail"
	OneDrive    ID = "onedrive"
	Knowledge   ID = "knowledge"
)

// Placement says where client credentials travel in a token request.
// Exactly one placement applies per provider.
type Placement string

// Token request credential placements.
const (
	InQuery    Placement = "requestQuery"      // URL query parameters, empty body
	InJSONBody Placement = "requestBody"       // application/json body
	InFormBody Placement = "requestBodyString" // application/x-www-form-urlencoded body
)

// Field locations on Files API requests.
const (
	FieldInHeader = "header"
	FieldInBody   = "body"
)

// Field describes one provider-specific value.
type Field struct {
	Name      string `yaml:"name"`
	In        string `yaml:"in"`
	From      string `yaml:"from"`
	Prompt    string `yaml:"prompt"`
	UserInput bool   `yaml:"userInput"`
	Secret    bool   `yaml:"secret"`
	Default   string `yaml:"default"`
}

// Validate checks a single field definition.
func (f Field) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Name, validation.Required),
		validation.Field(&f.From, validation.Required),
		validation.Field(&f.In, validation.In(FieldInHeader, FieldInBody)),
		validation.Field(&f.Prompt, validation.When(f.UserInput, validation.Required)),
	)
}

// AuthDetails describes a provider's OAuth2 endpoints.
type AuthDetails struct {
	AuthorizeURI       string    `yaml:"authorizeUri"`
	TokenURI           string    `yaml:"tokenUri"`
	RedirectURI        string    `yaml:"redirectUri"`
	Scopes             []string  `yaml:"scopes"`
	SendAuthMetadataIn Placement `yaml:"sendAuthMetadataIn"`
}

// Validate checks the OAuth2 details.
func (a *AuthDetails) Validate() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.AuthorizeURI, validation.Required),
		validation.Field(&a.TokenURI, validation.Required),
		validation.Field(&a.RedirectURI, validation.Required),
		validation.Field(&a.SendAuthMetadataIn, validation.Required,
			validation.In(InQuery, InJSONBody, InFormBody)),
	)
}

// Spec is one catalog entry.
type Spec struct {
	ID          ID           `yaml:"-"`
	Name        string       `yaml:"name"`
	Local       bool         `yaml:"local"`
	ReadOnly    bool         `yaml:"readOnly"`
	ContentAuth bool         `yaml:"contentAuth"`
	Fields      []Field      `yaml:"fields"`
	Auth        *AuthDetails `yaml:"auth"`
}

// Validate checks the entry and all of its fields.
func (s *Spec) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Name, validation.Required),
		validation.Field(&s.Fields),
		validation.Field(&s.Auth),
	)
}

// HasOAuth reports whether the provider authenticates with OAuth2.
func (s *Spec) HasOAuth() bool {
	return s.Auth != nil
}

// UserInputs returns the fields the user must supply when creating a drive,
// in catalog order.
func (s *Spec) UserInputs() []Field {
	var out []Field

	for _, f := range s.Fields {
		if f.UserInput {
			out = append(out, f)
		}
	}

	return out
}

// RequestFields returns the fields sent on Files API requests in the given
// location (FieldInHeader or FieldInBody).
func (s *Spec) RequestFields(in string) []Field {
	var out []Field

	for _, f := range s.Fields {
		if f.In == in {
			out = append(out, f)
		}
	}

	return out
}

// Catalog is the immutable set of provider specs.
type Catalog struct {
	specs map[ID]*Spec
}

//go:embed catalog.yaml
var catalogYAML []byte

var defaultCatalog = sync.OnceValues(func() (*Catalog, error) {
	return Parse(catalogYAML)
})

// Default returns the embedded catalog. It panics if the embedded YAML is
// invalid, which the package tests rule out.
func Default() *Catalog {
	cat, err := defaultCatalog()
	if err != nil {
		panic(fmt.Sprintf("provider: embedded catalog: %v", err))
	}

	return cat
}

// Parse decodes and validates a YAML catalog keyed by provider id.
func Parse(data []byte) (*Catalog, error) {
	var raw map[ID]*Spec
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("provider: decoding catalog: %w", err)
	}

	specs := make(map[ID]*Spec, len(raw))

	for id, spec := range raw {
		if spec == nil {
			return nil, fmt.Errorf("provider: %s: empty entry", id)
		}

		spec.ID = id

		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("provider: %s: %w", id, err)
		}

		specs[id] = spec
	}

	return &Catalog{specs: specs}, nil
}

// Lookup returns the spec for id.
func (c *Catalog) Lookup(id ID) (*Spec, bool) {
	s, ok := c.specs[id]

	return s, ok
}

// IDs returns all provider ids, sorted.
func (c *Catalog) IDs() []ID {
	ids := make([]ID, 0, len(c.specs))
	for id := range c.specs {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// Known reports whether id is in the catalog.
func (c *Catalog) Known(id ID) bool {
	_, ok := c.specs[id]

	return ok
}
