package tools

import (
	"context"
	"encoding/json"
	"strings"
)

const unknownCustomerNote = "New customer - no history available"

// CustomerHistory looks up a customer's CRM profile and past tickets.
type CustomerHistory struct {
	customers map[string]Customer
}

// CustomerHistoryInput is the customer_history payload.
type CustomerHistoryInput struct {
	CustomerEmail  string `json:"customer_email" validate:"required,email,max=320"`
	IncludeTickets *bool  `json:"include_tickets,omitempty"`
}

// CustomerHistoryOutput is the customer_history result. Unknown customers
// get Found=false, tier "unknown" and zero lifetime value.
type CustomerHistoryOutput struct {
	CustomerEmail       string       `json:"customer_email"`
	Found               bool         `json:"found"`
	Name                string       `json:"name,omitempty"`
	Company             string       `json:"company,omitempty"`
	Tier                string       `json:"tier"`
	CustomerSince       string       `json:"customer_since,omitempty"`
	LifetimeValue       float64      `json:"lifetime_value"`
	PastTicketCount     int          `json:"past_ticket_count"`
	PastTickets         []PastTicket `json:"past_tickets,omitempty"`
	AverageSatisfaction *float64     `json:"average_satisfaction,omitempty"`
	IsAtRisk            bool         `json:"is_at_risk"`
	Notes               string       `json:"notes,omitempty"`
}

// NewCustomerHistory creates the tool over the dataset's customers.
func NewCustomerHistory(ds *Dataset) *CustomerHistory {
	return &CustomerHistory{customers: ds.Customers}
}

func (c *CustomerHistory) Name() string { return NameCustomerHistory }

func (c *CustomerHistory) Description() string {
	return `Look up a customer by email: plan tier, lifetime value, past support tickets,
average satisfaction and whether account management has flagged them as at risk.`
}

func (c *CustomerHistory) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "customer_email": {"type": "string", "format": "email"},
            "include_tickets": {"type": "boolean", "description": "Include past ticket summaries. Defaults to true."}
        },
        "required": ["customer_email"]
    }`)
}

func (c *CustomerHistory) Execute(_ context.Context, params json.RawMessage) (json.RawMessage, error) {
	var in CustomerHistoryInput
	if err := decodeInput(params, &in); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(in.CustomerEmail))

	cust, ok := c.customers[email]
	if !ok {
		return encodeOutput(c.Name(), CustomerHistoryOutput{
			CustomerEmail: email,
			Tier:          "unknown",
			Notes:         unknownCustomerNote,
		})
	}

	out := CustomerHistoryOutput{
		CustomerEmail:       email,
		Found:               true,
		Name:                cust.Name,
		Company:             cust.Company,
		Tier:                cust.Tier,
		CustomerSince:       cust.Created,
		LifetimeValue:       cust.LifetimeValue,
		PastTicketCount:     len(cust.PastTickets),
		AverageSatisfaction: cust.AverageSatisfaction,
		IsAtRisk:            cust.IsAtRisk,
		Notes:               cust.Notes,
	}
	if in.IncludeTickets == nil || *in.IncludeTickets {
		out.PastTickets = append([]PastTicket(nil), cust.PastTickets...)
	}
	return encodeOutput(c.Name(), out)
}
