// Package ticket defines the support ticket accepted by the triage engine.
package ticket

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Tier is the customer's plan level.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
	TierUnknown    Tier = "unknown"
)

// ErrInvalid is returned (wrapped) when a ticket fails validation.
var ErrInvalid = errors.New("invalid ticket")

// Ticket is a single customer support request. Treat it as read-only once validated.
type Ticket struct {
	ID            string            `json:"ticket_id" yaml:"ticket_id" validate:"required,max=128"`
	Subject       string            `json:"subject" yaml:"subject" validate:"max=500"`
	Body          string            `json:"body" yaml:"body" validate:"required,max=50000"`
	CustomerEmail string            `json:"customer_email" yaml:"customer_email" validate:"max=320"`
	CustomerName  string            `json:"customer_name,omitempty" yaml:"customer_name,omitempty" validate:"max=200"`
	Tier          Tier              `json:"customer_tier" yaml:"customer_tier"`
	Region        string            `json:"customer_region,omitempty" yaml:"customer_region,omitempty" validate:"max=64"`
	Channel       string            `json:"channel,omitempty" yaml:"channel,omitempty" validate:"max=64"`
	Timestamp     *time.Time        `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty" validate:"max=50"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json field names instead of Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Normalize trims whitespace and canonicalizes case-insensitive fields in place.
// Unrecognised tiers become TierUnknown.
func (t *Ticket) Normalize() {
	t.ID = strings.TrimSpace(t.ID)
	t.Subject = strings.TrimSpace(t.Subject)
	t.Body = strings.TrimSpace(t.Body)
	t.CustomerEmail = strings.ToLower(strings.TrimSpace(t.CustomerEmail))
	t.CustomerName = strings.TrimSpace(t.CustomerName)
	t.Region = strings.ToLower(strings.TrimSpace(t.Region))
	t.Channel = strings.ToLower(strings.TrimSpace(t.Channel))

	switch tier := Tier(strings.ToLower(strings.TrimSpace(string(t.Tier)))); tier {
	case TierFree, TierPro, TierEnterprise:
		t.Tier = tier
	default:
		t.Tier = TierUnknown
	}
}

// Validate normalizes the ticket and checks the fields every run depends on.
// Only the identifier and body are mandatory.
func (t *Ticket) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: ticket is nil", ErrInvalid)
	}
	t.Normalize()

	if err := validate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			switch fe.Tag() {
			case "required":
				msgs = append(msgs, fe.Field()+" is required")
			case "max":
				msgs = append(msgs, fmt.Sprintf("%s exceeds maximum length %s", fe.Field(), fe.Param()))
			default:
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
		}
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
	}
	return nil
}

// IsEnterprise reports whether the customer is on the enterprise tier.
func (t *Ticket) IsEnterprise() bool { return t.Tier == TierEnterprise }

// Text returns subject, body and metadata values joined for keyword matching.
// Metadata is appended in key order so the result is stable.
func (t *Ticket) Text() string {
	var b strings.Builder
	b.WriteString(t.Subject)
	b.WriteString("\n")
	b.WriteString(t.Body)

	keys := make([]string, 0, len(t.Metadata))
	for k := range t.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n")
		b.WriteString(t.Metadata[k])
	}
	return b.String()
}
