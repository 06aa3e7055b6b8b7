// Package schema defines the header rules a SEACE workbook is checked against.
//
// A Profile pairs accepted source headers with canonical field names (the
// alias map), names the canonical fields that must be present (the required
// set), and picks the normalization applied to headers before lookup. Profiles
// are loaded from YAML so that revisions of the required-field contract ship
// as configuration.
package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Normalization selects how a raw header becomes an alias lookup key.
type Normalization string

const (
	// Verbatim matches headers exactly as parsed.
	Verbatim Normalization = "verbatim"
	// Folded trims surrounding whitespace and lower-cases.
	Folded Normalization = "folded"
)

// Apply returns the lookup key for a raw header.
func (n Normalization) Apply(header string) string {
	if n == Folded {
		return strings.ToLower(strings.TrimSpace(header))
	}
	return header
}

// RecipientMode selects where the mail sink sends the workbook.
type RecipientMode string

const (
	// RecipientForm uses the address typed into the mail form.
	RecipientForm RecipientMode = "form"
	// RecipientFixed uses EMAIL_RECIPIENT from the environment.
	RecipientFixed RecipientMode = "fixed"
)

const (
	// DefaultSubject is used when the form leaves the subject empty or the profile fixes it.
	DefaultSubject = "Procesos SEACE validados"
	// DefaultBody is used when the form leaves the body empty or the profile fixes it.
	DefaultBody = "Se adjunta el archivo validado de procesos SEACE."
)

// ErrAliasConflict is returned when two alias keys normalize to the same
// lookup key but name different canonical fields.
var ErrAliasConflict = errors.New("alias conflict")

// MailRules controls the mail form for a profile.
type MailRules struct {
	Recipient    RecipientMode `yaml:"recipient"`
	FixedMessage bool          `yaml:"fixed_message"`
	Subject      string        `yaml:"subject"`
	Body         string        `yaml:"body"`
}

// Fields names the canonical columns the filter works on.
type Fields struct {
	Entity string `yaml:"entity"`
	Object string `yaml:"object"`
	Date   string `yaml:"date"`
}

// Profile is one revision of the header contract.
type Profile struct {
	Name          string            `yaml:"name"`
	Label         string            `yaml:"label"`
	Normalization Normalization     `yaml:"normalization"`
	Aliases       map[string]string `yaml:"aliases"`
	Required      []string          `yaml:"required"`
	Fields        Fields            `yaml:"fields"`
	Mail          MailRules         `yaml:"mail"`

	lookup map[string]string // normalized header -> canonical name
}

// Normalize returns the lookup key for header under this profile.
func (p *Profile) Normalize(header string) string {
	return p.Normalization.Apply(header)
}

// Canonical resolves a raw header to its canonical field name.
func (p *Profile) Canonical(header string) (string, bool) {
	name, ok := p.lookup[p.Normalize(header)]
	return name, ok
}

// IsRequired reports whether name is in the required set.
func (p *Profile) IsRequired(name string) bool {
	for _, r := range p.Required {
		if r == name {
			return true
		}
	}
	return false
}

// compile applies defaults, validates the profile and builds the lookup table.
func (p *Profile) compile() error {
	if p.Name == "" {
		return errors.New("profile name is required")
	}
	if p.Label == "" {
		p.Label = p.Name
	}

	switch p.Normalization {
	case "":
		p.Normalization = Verbatim
	case Verbatim, Folded:
	default:
		return fmt.Errorf("profile %q: unknown normalization %q (use verbatim or folded)", p.Name, p.Normalization)
	}

	if len(p.Aliases) == 0 {
		return fmt.Errorf("profile %q: aliases must not be empty", p.Name)
	}

	// Sort keys so conflict errors are reported deterministically.
	keys := make([]string, 0, len(p.Aliases))
	for k := range p.Aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p.lookup = make(map[string]string, len(keys))
	origin := make(map[string]string, len(keys))
	for _, k := range keys {
		target := strings.TrimSpace(p.Aliases[k])
		if target == "" {
			return fmt.Errorf("profile %q: alias %q has an empty canonical name", p.Name, k)
		}
		norm := p.Normalize(k)
		if prev, ok := p.lookup[norm]; ok && prev != target {
			return fmt.Errorf("profile %q: %w: %q and %q both normalize to %q but map to %q and %q",
				p.Name, ErrAliasConflict, origin[norm], k, norm, prev, target)
		}
		p.lookup[norm] = target
		origin[norm] = k
	}

	if len(p.Required) == 0 {
		seen := make(map[string]bool)
		for _, target := range p.lookup {
			if !seen[target] {
				seen[target] = true
				p.Required = append(p.Required, target)
			}
		}
		sort.Strings(p.Required)
	}

	seen := make(map[string]bool, len(p.Required))
	for _, r := range p.Required {
		if seen[r] {
			return fmt.Errorf("profile %q: required field %q listed twice", p.Name, r)
		}
		seen[r] = true
	}

	for role, field := range map[string]string{
		"entity": p.Fields.Entity,
		"object": p.Fields.Object,
		"date":   p.Fields.Date,
	} {
		if field == "" {
			return fmt.Errorf("profile %q: fields.%s is required", p.Name, role)
		}
		if !seen[field] {
			return fmt.Errorf("profile %q: fields.%s (%q) must be a required field", p.Name, role, field)
		}
	}

	switch p.Mail.Recipient {
	case "":
		p.Mail.Recipient = RecipientForm
	case RecipientForm, RecipientFixed:
	default:
		return fmt.Errorf("profile %q: mail.recipient must be form or fixed, got %q", p.Name, p.Mail.Recipient)
	}
	if p.Mail.Subject == "" {
		p.Mail.Subject = DefaultSubject
	}
	if p.Mail.Body == "" {
		p.Mail.Body = DefaultBody
	}

	return nil
}
