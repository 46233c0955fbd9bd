// Package directory holds the escalation contacts, on-call lines, dashboards
// and runbook documents the bot can point people to.
package directory

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/firstline/internal/triage"
)

//go:embed default.yaml
var defaultYAML []byte

const (
	TierL2 = "l2"
	TierL3 = "l3"
)

// Contact is an escalation target.
type Contact struct {
	Key             string          `yaml:"key"`
	Name            string          `yaml:"name"`
	Tier            string          `yaml:"tier"`
	Role            string          `yaml:"role"`
	Systems         []triage.System `yaml:"systems"`
	Phone           string          `yaml:"phone"`
	Email           string          `yaml:"email"`
	SlackWebhookURL string          `yaml:"slack_webhook_url"`
}

// Recipient is the summary addressee for c.
func (c Contact) Recipient() triage.Recipient {
	return triage.Recipient{Key: c.Key, Name: c.Name, Tier: c.Tier, Role: c.Role}
}

// Covers reports whether c handles sys. Contacts without systems cover everything.
func (c Contact) Covers(sys triage.System) bool {
	return len(c.Systems) == 0 || slices.Contains(c.Systems, sys)
}

// Link is a named URL, matched by name or alias.
type Link struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
	URL     string   `yaml:"url"`
}

func (l Link) matches(term string) bool {
	if strings.Contains(triage.Normalize(l.Name), term) {
		return true
	}
	for _, a := range l.Aliases {
		if strings.Contains(triage.Normalize(a), term) {
			return true
		}
	}
	return false
}

// OnCall holds the on-call lines per severity.
type OnCall struct {
	P1 string `yaml:"p1"`
	P2 string `yaml:"p2"`
}

// Directory is an immutable lookup table. Build it with Parse, Load or Builtin.
type Directory struct {
	Contacts   []Contact `yaml:"contacts"`
	OnCall     OnCall    `yaml:"oncall"`
	Dashboards []Link    `yaml:"dashboards"`
	Runbooks   []Link    `yaml:"runbooks"`

	byKey map[string]int
}

// Builtin returns the directory compiled into the binary.
func Builtin() *Directory {
	d, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("parse builtin directory: %v", err))
	}
	return d
}

// Load reads a directory file. An empty path yields the builtin directory.
func Load(path string) (*Directory, error) {
	if path == "" {
		return Builtin(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML directory.
func Parse(data []byte) (*Directory, error) {
	var d Directory
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse directory yaml: %w", err)
	}

	var errs []error
	d.byKey = make(map[string]int, len(d.Contacts))
	for i, c := range d.Contacts {
		switch {
		case c.Key == "":
			errs = append(errs, fmt.Errorf("contact %d: missing key", i))
			continue
		case c.Tier != TierL2 && c.Tier != TierL3:
			errs = append(errs, fmt.Errorf("contact %q: tier must be %q or %q, got %q", c.Key, TierL2, TierL3, c.Tier))
		}
		if _, dup := d.byKey[c.Key]; dup {
			errs = append(errs, fmt.Errorf("contact %q: duplicate key", c.Key))
			continue
		}
		d.byKey[c.Key] = i
	}
	for _, l := range slices.Concat(d.Dashboards, d.Runbooks) {
		if l.Name == "" || l.URL == "" {
			errs = append(errs, fmt.Errorf("link %q: name and url are required", l.Name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &d, nil
}

// Contact looks up a contact by key.
func (d *Directory) Contact(key string) (Contact, bool) {
	i, ok := d.byKey[key]
	if !ok {
		return Contact{}, false
	}
	return d.Contacts[i], true
}

// ForTier lists the contacts of tier that cover sys. When no contact covers
// sys, every contact of the tier is returned.
func (d *Directory) ForTier(tier string, sys triage.System) []Contact {
	var all, covering []Contact
	for _, c := range d.Contacts {
		if c.Tier != tier {
			continue
		}
		all = append(all, c)
		if c.Covers(sys) {
			covering = append(covering, c)
		}
	}
	if len(covering) == 0 {
		return all
	}
	return covering
}

// OnCallLine is the on-call line for sev.
func (d *Directory) OnCallLine(sev triage.Severity) string {
	if sev == triage.SeverityP1 {
		return d.OnCall.P1
	}
	return d.OnCall.P2
}

// Dashboard finds the first dashboard whose name or alias contains query.
func (d *Directory) Dashboard(query string) (Link, bool) {
	term := triage.Normalize(query)
	if term == "" {
		return Link{}, false
	}
	for _, l := range d.Dashboards {
		if l.matches(term) {
			return l, true
		}
	}
	return Link{}, false
}

// RunbookLinks lists the runbook documents whose name or alias contains
// query. An empty query lists them all.
func (d *Directory) RunbookLinks(query string) []Link {
	term := triage.Normalize(query)
	var out []Link
	for _, l := range d.Runbooks {
		if term == "" || l.matches(term) {
			out = append(out, l)
		}
	}
	return out
}

// RunbookFor is the runbook document for a classified system, if any.
func (d *Directory) RunbookFor(sys triage.System) (Link, bool) {
	if sys == triage.SystemUnknown {
		return Link{}, false
	}
	links := d.RunbookLinks(string(sys))
	if len(links) == 0 {
		return Link{}, false
	}
	return links[0], true
}
