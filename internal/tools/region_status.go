package tools

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// RegionStatus reports service health and active incidents for a deployment region.
type RegionStatus struct {
	regions map[string]Region
	now     func() time.Time
}

// RegionStatusInput is the region_status payload.
type RegionStatusInput struct {
	Region        string   `json:"region" validate:"required,max=64"`
	CheckServices []string `json:"check_services,omitempty" validate:"omitempty,max=20,dive,required,max=64"`
}

// RegionStatusOutput is the region_status result. Unknown regions report
// OverallStatus "unknown" with no services.
type RegionStatusOutput struct {
	Region          string           `json:"region"`
	OverallStatus   string           `json:"overall_status"`
	Services        []ServiceStatus  `json:"services"`
	ActiveIncidents []RegionIncident `json:"active_incidents"`
	LastUpdated     time.Time        `json:"last_updated"`
}

// HasActiveOutage reports whether the region is currently impaired.
func (o *RegionStatusOutput) HasActiveOutage() bool {
	if len(o.ActiveIncidents) > 0 {
		return true
	}
	switch o.OverallStatus {
	case "outage", "major_outage", "partial_outage":
		return true
	}
	return false
}

// NewRegionStatus creates the tool over the dataset's regions.
func NewRegionStatus(ds *Dataset, now func() time.Time) *RegionStatus {
	if now == nil {
		now = time.Now
	}
	return &RegionStatus{regions: ds.Regions, now: now}
}

func (r *RegionStatus) Name() string { return NameRegionStatus }

func (r *RegionStatus) Description() string {
	return `Check the status page for a region (us-east, us-west, eu-west, apac): overall status,
per-service health and latency, and any active incidents.`
}

func (r *RegionStatus) Parameters() json.RawMessage {
	return json.RawMessage(`{
        "type": "object",
        "properties": {
            "region": {"type": "string"},
            "check_services": {"type": "array", "items": {"type": "string"}, "description": "Limit the report to these services."}
        },
        "required": ["region"]
    }`)
}

func (r *RegionStatus) Execute(_ context.Context, params json.RawMessage) (json.RawMessage, error) {
	var in RegionStatusInput
	if err := decodeInput(params, &in); err != nil {
		return nil, err
	}
	name := strings.ToLower(strings.TrimSpace(in.Region))

	out := RegionStatusOutput{
		Region:          name,
		OverallStatus:   "unknown",
		Services:        []ServiceStatus{},
		ActiveIncidents: []RegionIncident{},
		LastUpdated:     r.now().UTC(),
	}

	rg, ok := r.regions[name]
	if !ok {
		return encodeOutput(r.Name(), out)
	}

	out.OverallStatus = rg.OverallStatus
	for _, svc := range rg.Services {
		if len(in.CheckServices) > 0 && !slices.Contains(in.CheckServices, svc.Name) {
			continue
		}
		out.Services = append(out.Services, svc)
	}
	out.ActiveIncidents = append(out.ActiveIncidents, rg.ActiveIncidents...)
	return encodeOutput(r.Name(), out)
}
