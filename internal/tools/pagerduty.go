package tools

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// escalation policy used for incidents raised from support
const pagerDutyPolicy = "engineering"

// PagerDutyIncidents lists simulated PagerDuty incidents.
type PagerDutyIncidents struct {
	incidents []PagerDutyIncident
	sim       *Simulation
}

// PagerDutyIncidentsInput is the pagerduty_incidents payload. All filters are optional.
type PagerDutyIncidentsInput struct {
	ServiceID string `json:"service_id,omitempty" validate:"max=100"`
	Urgency   string `json:"urgency,omitempty" validate:"omitempty,oneof=high low"`
	Status    string `json:"status,omitempty" validate:"omitempty,oneof=triggered acknowledged resolved"`
}

// PagerDutyIncidentsOutput is the pagerduty_incidents result.
type PagerDutyIncidentsOutput struct {
	Incidents   []PagerDutyIncident `json:"incidents"`
	Total       int                 `json:"total"`
	HasCritical bool                `json:"has_critical"`
}

// NewPagerDutyIncidents creates the tool over the dataset's incidents.
func NewPagerDutyIncidents(ds *Dataset, sim *Simulation) *PagerDutyIncidents {
	return &PagerDutyIncidents{incidents: ds.PagerDuty.Incidents, sim: sim}
}

func (p *PagerDutyIncidents) Name() string { return NamePagerDutyIncidents }

func (p *PagerDutyIncidents) Description() string {
	return `List open PagerDuty incidents, optionally filtered by service_id, urgency (high, low)
or status (triggered, acknowledged, resolved). has_critical is true when any high-urgency incident is returned.`
}

func (p *PagerDutyIncidents) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "service_id": {"type": "string"},
            "urgency": {"type": "string", "enum": ["high", "low"]},
            "status": {"type": "string", "enum": ["triggered", "acknowledged", "resolved"]}
        }
    }`)
}

func (p *PagerDutyIncidents) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var in PagerDutyIncidentsInput
	if err := decodeInput(params, &in); err != nil {
		return nil, err
	}
	if err := p.sim.call(ctx, p.Name()); err != nil {
		return nil, err
	}

	out := PagerDutyIncidentsOutput{Incidents: []PagerDutyIncident{}}
	for _, inc := range p.incidents {
		if in.ServiceID != "" && !strings.EqualFold(inc.ServiceID, in.ServiceID) {
			continue
		}
		if in.Urgency != "" && inc.Urgency != in.Urgency {
			continue
		}
		if in.Status != "" && inc.Status != in.Status {
			continue
		}
		out.Incidents = append(out.Incidents, inc)
		if inc.Urgency == "high" {
			out.HasCritical = true
		}
	}
	out.Total = len(out.Incidents)
	return encodeOutput(p.Name(), out)
}

// PagerDutyCreate simulates triggering a PagerDuty incident and paging on-call.
type PagerDutyCreate struct {
	onCall map[string]OnCallEngineer
	sim    *Simulation
	outbox *Outbox
	now    func() time.Time
}

// PagerDutyCreateInput is the pagerduty_create payload.
type PagerDutyCreateInput struct {
	ServiceID   string `json:"service_id" validate:"required,max=100"`
	Title       string `json:"title" validate:"required,max=255"`
	Urgency     string `json:"urgency" validate:"required,oneof=high low"`
	Description string `json:"description,omitempty" validate:"max=10000"`
}

// NewPagerDutyCreate creates the tool recording into outbox.
func NewPagerDutyCreate(ds *Dataset, sim *Simulation, outbox *Outbox, now func() time.Time) *PagerDutyCreate {
	if now == nil {
		now = time.Now
	}
	return &PagerDutyCreate{onCall: ds.PagerDuty.OnCall, sim: sim, outbox: outbox, now: now}
}

func (p *PagerDutyCreate) Name() string { return NamePagerDutyCreate }

func (p *PagerDutyCreate) Description() string {
	return `Trigger a PagerDuty incident and page the engineering on-call. Reserve for customer-impacting
outages that are not already covered by an open incident.`
}

func (p *PagerDutyCreate) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "service_id": {"type": "string"},
            "title": {"type": "string", "maxLength": 255},
            "urgency": {"type": "string", "enum": ["high", "low"]},
            "description": {"type": "string"}
        },
        "required": ["service_id", "title", "urgency"]
    }`)
}

func (p *PagerDutyCreate) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var in PagerDutyCreateInput
	if err := decodeInput(params, &in); err != nil {
		return nil, err
	}
	if err := p.sim.call(ctx, p.Name()); err != nil {
		return nil, err
	}

	created := p.outbox.addIncident(CreatedIncident{
		ServiceID:  in.ServiceID,
		Title:      in.Title,
		Urgency:    in.Urgency,
		Status:     "triggered",
		AssignedTo: p.onCall[pagerDutyPolicy],
		CreatedAt:  p.now().UTC(),
	})
	return encodeOutput(p.Name(), created)
}
