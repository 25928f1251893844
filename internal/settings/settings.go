// Package settings loads the operator-editable outreach settings: sender
// identity, message templates, compliance headers, prompts and send policy.
//
// Example (YAML):
//
//	search:
//	  min_suppliers: 10
//	  max_suppliers: 15
//	email:
//	  from_email: procurement@sourcing-hub.com
//	  from_name: Procurement Team
//	  reply_to: replies@sourcing-hub.com
//	templates:
//	  subject: "{Inquiry|Request} regarding {{productDescription}}"
//	compliance:
//	  antispam_headers:
//	    Precedence: bulk
//	policy:
//	  daily_limit: 120
//	  send_interval_seconds: 30
//	automation:
//	  auto_reply: true
//	  auto_reply_delay_minutes: 30
package settings

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/octobees/supplier-outreach/internal/compose"
	"github.com/octobees/supplier-outreach/internal/generation"
)

// Search holds defaults for new search runs.
type Search struct {
	MinSuppliers     int     `yaml:"min_suppliers"`
	MaxSuppliers     int     `yaml:"max_suppliers"`
	Temperature      float64 `yaml:"temperature"`
	EmailTemperature float64 `yaml:"email_temperature"`
	// LocalizeEmails writes each email in the supplier country's business language.
	LocalizeEmails bool `yaml:"localize_emails"`
}

// Compliance carries headers added to every outbound message.
type Compliance struct {
	AntispamHeaders map[string]string `yaml:"antispam_headers"`
}

// Policy overrides the quota configuration when set.
type Policy struct {
	DailyLimit          int `yaml:"daily_limit"`
	SendIntervalSeconds int `yaml:"send_interval_seconds"`
}

// SendInterval returns the interval as a duration.
func (p Policy) SendInterval() time.Duration {
	return time.Duration(p.SendIntervalSeconds) * time.Second
}

// Automation controls automatic answers to supplier replies. Off by default.
type Automation struct {
	AutoReply             bool `yaml:"auto_reply"`
	AutoReplyDelayMinutes int  `yaml:"auto_reply_delay_minutes"`
}

// Delay returns how long a drafted reply waits in the queue.
func (a Automation) Delay() time.Duration {
	return time.Duration(a.AutoReplyDelayMinutes) * time.Minute
}

// Settings is the full settings document.
type Settings struct {
	Search     Search               `yaml:"search"`
	Email      compose.Identity     `yaml:"email"`
	Templates  compose.Templates    `yaml:"templates"`
	Compliance Compliance           `yaml:"compliance"`
	Prompts    generation.PromptSet `yaml:"prompts"`
	Policy     Policy               `yaml:"policy"`
	Automation Automation           `yaml:"automation"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		Search: Search{
			MinSuppliers:     15,
			MaxSuppliers:     20,
			Temperature:      0.1,
			EmailTemperature: 0.3,
		},
		Email: compose.Identity{
			FromEmail: "procurement@sourcing-hub.com",
			FromName:  "Procurement Team",
			ReplyTo:   "replies@sourcing-hub.com",
		},
		Templates: compose.DefaultTemplates(),
		Compliance: Compliance{AntispamHeaders: map[string]string{
			"X-Priority":               "3",
			"X-Mailer":                 "Professional Procurement System v1.0",
			"List-Unsubscribe":         "<mailto:replies@sourcing-hub.com?subject=UNSUBSCRIBE>",
			"X-Auto-Response-Suppress": "OOF, DR, RN, NRN, AutoReply",
			"Precedence":               "bulk",
		}},
		Prompts: generation.DefaultPrompts(),
		Policy: Policy{
			DailyLimit:          120,
			SendIntervalSeconds: 30,
		},
		Automation: Automation{AutoReplyDelayMinutes: 30},
	}
}

// Load reads path over the defaults. An empty path returns Default().
func Load(path string) (Settings, error) {
	s := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings file: %w", err)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings YAML: %w", err)
	}
	s.Prompts = s.Prompts.WithDefaults()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate reports inconsistent values.
func (s Settings) Validate() error {
	var errs []error
	if s.Search.MinSuppliers < 1 || s.Search.MaxSuppliers < 1 {
		errs = append(errs, errors.New("search supplier bounds must be positive"))
	}
	if s.Search.MinSuppliers > s.Search.MaxSuppliers {
		errs = append(errs, fmt.Errorf("search.min_suppliers (%d) exceeds search.max_suppliers (%d)", s.Search.MinSuppliers, s.Search.MaxSuppliers))
	}
	if !strings.Contains(s.Email.FromEmail, "@") {
		errs = append(errs, fmt.Errorf("email.from_email %q is not an address", s.Email.FromEmail))
	}
	if s.Policy.DailyLimit < 0 || s.Policy.SendIntervalSeconds < 0 {
		errs = append(errs, errors.New("policy values must not be negative"))
	}
	if d := s.Automation.AutoReplyDelayMinutes; d < 0 || d > 1440 {
		errs = append(errs, fmt.Errorf("automation.auto_reply_delay_minutes (%d) must be between 0 and 1440", d))
	}
	return errors.Join(errs...)
}
