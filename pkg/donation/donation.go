// Package donation defines the declarative manifests intent handlers publish
// to describe their callable methods. A donation lists, per method, the
// intent suffix it serves, the phrases that trigger it, and the parameters
// to extract from the utterance. NLU providers match against the phrases;
// the orchestrator dispatches to the named method.
//
// Manifests are JSON documents validated against an embedded JSON Schema
// plus a handful of cross-field rules the schema cannot express (duplicate
// method names, choice parameters without choices). Handlers typically embed
// their manifest and parse it at construction:
//
//	//go:embed donation.json
//	var donationJSON []byte
//
//	don, err := donation.Parse(donationJSON)
package donation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema.json
var schemaJSON []byte

// ErrInvalidDonation wraps all parse and validation failures.
var ErrInvalidDonation = errors.New("donation: invalid manifest")

// ParamType enumerates the value types a donated parameter may declare.
type ParamType string

const (
	ParamString   ParamType = "string"
	ParamInteger  ParamType = "integer"
	ParamFloat    ParamType = "float"
	ParamDuration ParamType = "duration"
	ParamDatetime ParamType = "datetime"
	ParamBoolean  ParamType = "boolean"
	ParamChoice   ParamType = "choice"
	ParamEntity   ParamType = "entity"
)

// IsValid reports whether t is one of the defined parameter types.
func (t ParamType) IsValid() bool {
	switch t {
	case ParamString, ParamInteger, ParamFloat, ParamDuration,
		ParamDatetime, ParamBoolean, ParamChoice, ParamEntity:
		return true
	}
	return false
}

// Parameter describes a single value a method extracts from the utterance.
type Parameter struct {
	Name     string    `json:"name"`
	Type     ParamType `json:"type"`
	Choices  []string  `json:"choices,omitempty"`
	Required bool      `json:"required,omitempty"`
}

// Example pairs a sample utterance with the parameters it should yield.
// Examples document the method and seed fuzzy matching.
type Example struct {
	Text       string         `json:"text"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// MethodDonation describes one callable method of a handler.
type MethodDonation struct {
	MethodName   string      `json:"method_name"`
	IntentSuffix string      `json:"intent_suffix"`
	Phrases      []string    `json:"phrases"`
	Parameters   []Parameter `json:"parameters,omitempty"`
	Examples     []Example   `json:"examples,omitempty"`
}

// Donation is a handler's complete manifest.
type Donation struct {
	HandlerDomain      string           `json:"handler_domain"`
	MethodDonations    []MethodDonation `json:"method_donations"`
	IntentNamePatterns []string         `json:"intent_name_patterns,omitempty"`
}

// IntentName returns the full intent name for one of the donation's methods:
// "{handler_domain}.{intent_suffix}".
func (d *Donation) IntentName(m MethodDonation) string {
	return d.HandlerDomain + "." + m.IntentSuffix
}

// Method returns the method donation serving the given intent suffix, or nil.
func (d *Donation) Method(suffix string) *MethodDonation {
	for i := range d.MethodDonations {
		if d.MethodDonations[i].IntentSuffix == suffix {
			return &d.MethodDonations[i]
		}
	}
	return nil
}

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal embedded schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("donation.schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile("donation.schema.json")
})

// Parse validates data against the donation schema and decodes it. Schema
// violations, duplicate method names or intent suffixes, and choice
// parameters without choices all fail with an error wrapping
// [ErrInvalidDonation].
func Parse(data []byte) (*Donation, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("donation: schema: %w", err)
	}

	var inst any
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDonation, err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDonation, err)
	}

	var d Donation
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDonation, err)
	}
	if err := validate(&d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDonation, err)
	}
	return &d, nil
}

// validate applies the cross-field rules the JSON Schema cannot express.
func validate(d *Donation) error {
	var errs []error

	methodNames := make(map[string]struct{}, len(d.MethodDonations))
	suffixes := make(map[string]struct{}, len(d.MethodDonations))

	for i, m := range d.MethodDonations {
		prefix := fmt.Sprintf("method_donations[%d]", i)

		if _, dup := methodNames[m.MethodName]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate method_name %q", prefix, m.MethodName))
		}
		methodNames[m.MethodName] = struct{}{}

		if _, dup := suffixes[m.IntentSuffix]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate intent_suffix %q", prefix, m.IntentSuffix))
		}
		suffixes[m.IntentSuffix] = struct{}{}

		seen := make(map[string]struct{}, len(m.Parameters))
		for j, p := range m.Parameters {
			if _, dup := seen[p.Name]; dup {
				errs = append(errs, fmt.Errorf("%s.parameters[%d]: duplicate name %q", prefix, j, p.Name))
			}
			seen[p.Name] = struct{}{}
			if p.Type == ParamChoice && len(p.Choices) == 0 {
				errs = append(errs, fmt.Errorf("%s.parameters[%d]: choice parameter %q has no choices", prefix, j, p.Name))
			}
			if p.Type != ParamChoice && len(p.Choices) > 0 {
				errs = append(errs, fmt.Errorf("%s.parameters[%d]: choices set on non-choice parameter %q", prefix, j, p.Name))
			}
		}
	}

	return errors.Join(errs...)
}
